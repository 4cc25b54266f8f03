package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTailSourceFollowsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tail.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n"), 0o644))

	s, err := NewTailSource(TailConfig{Path: path, FromStart: true})
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec["a"])

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"a\":2}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	done := make(chan struct{})
	var rec2 map[string]interface{}
	var nextErr error
	go func() {
		rec2, nextErr = s.Next()
		close(done)
	}()

	select {
	case <-done:
		require.NoError(t, nextErr)
		assert.EqualValues(t, 2, rec2["a"])
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for appended line to be observed")
	}
}

func TestNewTailSourceMissingFile(t *testing.T) {
	_, err := NewTailSource(TailConfig{Path: filepath.Join(t.TempDir(), "missing.jsonl")})
	assert.Error(t, err)
}

func TestNewPassesThroughExistingSource(t *testing.T) {
	inner := newSlice([]map[string]interface{}{{"a": 1}})
	s, err := New(Source(inner))
	require.NoError(t, err)
	got := drain(t, s)
	require.Len(t, got, 1)
}
