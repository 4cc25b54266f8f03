package source

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	pkgerrors "tableflow/pkg/errors"

	"tableflow/internal/model"
)

// tailSource follows a JSONL/NDJSON file as it grows, decoding each newly
// appended line into a record. Grounded on pkg/hotreload/config_reloader.go's
// fsnotify.NewWatcher/Events-loop shape, turned from "reload config on
// write" into "decode newly appended lines on write".
type tailSource struct {
	f       *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher

	lines     chan string
	watchErrs chan error
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// TailConfig selects the file to follow and where to start reading from.
type TailConfig struct {
	Path string
	// FromStart reads the file's existing content before following new
	// writes; the default (false) seeks to the current end of file, as
	// log-tailing callers generally want only what's written from here on.
	FromStart bool
}

// NewTailSource opens path, optionally replays its existing content, then
// watches it with fsnotify and decodes each line appended after that point
// as a JSON record. The returned Source's Next() blocks until a new line
// arrives or Close is called, at which point it reports io.EOF.
func NewTailSource(cfg TailConfig) (Source, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, pkgerrors.Validationf("source", "new_tail_source", "cannot open %s", cfg.Path).Wrap(err)
	}

	if !cfg.FromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, pkgerrors.Outputf("source", "new_tail_source", "cannot seek to end of %s", cfg.Path).Wrap(err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, pkgerrors.Outputf("source", "new_tail_source", "cannot create file watcher").Wrap(err)
	}
	if err := watcher.Add(cfg.Path); err != nil {
		watcher.Close()
		f.Close()
		return nil, pkgerrors.Outputf("source", "new_tail_source", "cannot watch %s", cfg.Path).Wrap(err)
	}

	ts := &tailSource{
		f:         f,
		reader:    bufio.NewReader(f),
		watcher:   watcher,
		lines:     make(chan string, 256),
		watchErrs: make(chan error, 8),
		done:      make(chan struct{}),
	}
	ts.wg.Add(1)
	go ts.watch()
	return ts, nil
}

// watch drains every readable line on each write event, so a burst of
// appended lines between two fsnotify events is never missed.
func (ts *tailSource) watch() {
	defer ts.wg.Done()
	ts.drainAvailable()
	for {
		select {
		case <-ts.done:
			return
		case event, ok := <-ts.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				ts.drainAvailable()
			}
		case err, ok := <-ts.watcher.Errors:
			if !ok {
				continue
			}
			select {
			case ts.watchErrs <- err:
			case <-ts.done:
				return
			}
		}
	}
}

func (ts *tailSource) drainAvailable() {
	for {
		line, err := ts.reader.ReadString('\n')
		if line != "" {
			select {
			case ts.lines <- line:
			case <-ts.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (ts *tailSource) Next() (model.Record, error) {
	select {
	case line := <-ts.lines:
		var r model.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, pkgerrors.Parsingf("source", "decode_tail_line", "malformed JSONL line in %s", ts.f.Name()).Wrap(err)
		}
		return r, nil
	case err := <-ts.watchErrs:
		return nil, pkgerrors.Outputf("source", "tail_watch", "file watcher error for %s", ts.f.Name()).Wrap(err)
	case <-ts.done:
		return nil, io.EOF
	}
}

func (ts *tailSource) Close() error {
	ts.closeOnce.Do(func() {
		close(ts.done)
		ts.watcher.Close()
		ts.wg.Wait()
		ts.f.Close()
	})
	return nil
}
