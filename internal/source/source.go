// Package source adapts the varied shapes a caller may hand the pump --- a
// single object, a slice of objects, a file path, or raw text/bytes --- into
// a single pull-based Source iterator (spec component C11).
package source

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	pkgerrors "tableflow/pkg/errors"

	"tableflow/internal/model"
)

// maxLineBytes bounds a single JSONL line so one pathological record can't
// grow the scanner buffer unbounded.
const maxLineBytes = 16 * 1024 * 1024

// Source is a pull-based iterator over decoded records. Next returns
// io.EOF (with a nil record) once exhausted.
type Source interface {
	Next() (model.Record, error)
	Close() error
}

// New inspects data and returns the Source best suited to its shape:
//
//   - Source: returned as-is, so a caller-built source (NewKafkaSource,
//     NewTailSource, or a custom implementation) can be handed to the pump
//     through the same entry point as any other input shape.
//   - model.Record / map[string]interface{}: a single-element iterator.
//   - []model.Record / []interface{} / []map[string]interface{}: a slice iterator.
//   - string ending in .jsonl/.ndjson or .json and naming an existing file:
//     a line-oriented or whole-file iterator over that file.
//   - any other string, or []byte: sniffed as inline JSON or JSONL text.
func New(data interface{}) (Source, error) {
	switch v := data.(type) {
	case Source:
		return v, nil
	case model.Record:
		return newSlice([]model.Record{v}), nil
	case []model.Record:
		return newSlice(v), nil
	case []interface{}:
		return newSlice(coerceSlice(v)), nil
	case []map[string]interface{}:
		records := make([]model.Record, len(v))
		for i, r := range v {
			records[i] = r
		}
		return newSlice(records), nil
	case string:
		return newFromString(v)
	case []byte:
		return newFromText(string(v))
	default:
		return nil, pkgerrors.Validationf("source", "new", "unsupported input type %T", data)
	}
}

func coerceSlice(v []interface{}) []model.Record {
	records := make([]model.Record, 0, len(v))
	for _, el := range v {
		if r, ok := el.(map[string]interface{}); ok {
			records = append(records, r)
		}
	}
	return records
}

func newFromString(s string) (Source, error) {
	if looksLikeFilePath(s) {
		if info, err := os.Stat(s); err == nil && !info.IsDir() {
			return newFromFile(s)
		}
	}
	return newFromText(s)
}

func looksLikeFilePath(s string) bool {
	return strings.HasSuffix(s, ".jsonl") || strings.HasSuffix(s, ".ndjson") || strings.HasSuffix(s, ".json")
}

func newFromFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.Validationf("source", "open_file", "cannot open %s", path).Wrap(err)
	}

	if strings.HasSuffix(path, ".jsonl") || strings.HasSuffix(path, ".ndjson") {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		return &lineSource{f: f, scanner: scanner}, nil
	}

	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, pkgerrors.Validationf("source", "read_file", "cannot read %s", path).Wrap(err)
	}
	return newFromWholeDocument(body)
}

// newFromText sniffs inline content: two or more non-blank lines whose
// first line is itself a complete, self-contained JSON object mean JSONL
// (subsequent lines are decoded lazily, one at a time, so a later malformed
// line surfaces as a parsing error on its own Next() call rather than
// failing the sniff); anything else -- a single line, or multi-line
// pretty-printed JSON whose first line is only a fragment -- is parsed as
// one whole document.
func newFromText(s string) (Source, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return newSlice(nil), nil
	}

	lines := nonBlankLines(trimmed)
	if len(lines) >= 2 && firstLineIsCompleteObject(lines[0]) {
		scanner := bufio.NewScanner(strings.NewReader(trimmed))
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		return &lineSource{scanner: scanner}, nil
	}

	return newFromWholeDocument([]byte(trimmed))
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func firstLineIsCompleteObject(line string) bool {
	var v map[string]interface{}
	return json.Unmarshal([]byte(strings.TrimSpace(line)), &v) == nil
}

// newFromWholeDocument parses body as either a single JSON object or an
// array of objects and returns a slice iterator over the result.
func newFromWholeDocument(body []byte) (Source, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return newSlice(nil), nil
	}

	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil, pkgerrors.Parsingf("source", "decode_json", "malformed JSON array").Wrap(err)
		}
		records := make([]model.Record, 0, len(arr))
		for _, raw := range arr {
			var r model.Record
			if err := json.Unmarshal(raw, &r); err != nil {
				return nil, pkgerrors.Parsingf("source", "decode_element", "array element is not a JSON object").Wrap(err)
			}
			records = append(records, r)
		}
		return newSlice(records), nil
	}

	var r model.Record
	if err := json.Unmarshal([]byte(trimmed), &r); err != nil {
		return nil, pkgerrors.Parsingf("source", "decode_json", "malformed JSON document").Wrap(err)
	}
	return newSlice([]model.Record{r}), nil
}

// sliceSource iterates an in-memory slice of already-decoded records.
type sliceSource struct {
	records []model.Record
	pos     int
}

func newSlice(records []model.Record) *sliceSource {
	return &sliceSource{records: records}
}

func (s *sliceSource) Next() (model.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceSource) Close() error { return nil }

// lineSource decodes one JSON object per non-blank line, independently, so
// a single malformed line can be reported without corrupting the rest of
// the stream. f is nil when iterating an in-memory string rather than a
// file.
type lineSource struct {
	f       *os.File
	scanner *bufio.Scanner
}

func (l *lineSource) Next() (model.Record, error) {
	for l.scanner.Scan() {
		line := strings.TrimSpace(l.scanner.Text())
		if line == "" {
			continue
		}
		var r model.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, pkgerrors.Parsingf("source", "decode_line", "malformed JSONL line").Wrap(err)
		}
		return r, nil
	}
	if err := l.scanner.Err(); err != nil {
		return nil, pkgerrors.Parsingf("source", "scan", "error reading input").Wrap(err)
	}
	return nil, io.EOF
}

func (l *lineSource) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
