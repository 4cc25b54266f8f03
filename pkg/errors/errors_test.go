package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRecoverable(t *testing.T) {
	assert.True(t, Parsing.Recoverable())
	assert.True(t, Processing.Recoverable())
	assert.False(t, Configuration.Recoverable())
	assert.False(t, Validation.Recoverable())
	assert.False(t, Output.Recoverable())
	assert.False(t, MissingDependency.Recoverable())
}

func TestErrorWrapAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Outputf("writer", "finalize", "could not flush %s", "main").Wrap(cause)

	require.Equal(t, cause, errors.Unwrap(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "could not flush main")
}

func TestIs(t *testing.T) {
	err := Parsingf("source", "decode", "bad json")
	assert.True(t, Is(err, Parsing))
	assert.False(t, Is(err, Processing))
	assert.False(t, Is(errors.New("plain"), Parsing))
}
