package logging

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type customError struct{}

func (customError) Error() string { return "custom" }

func TestExtractStack_FindsWrappedStack(t *testing.T) {
	err := errors.Wrap(errors.WithStack(customError{}), "outer")
	assert.NotNil(t, ExtractStack(err))
}

func TestExtractStack_NoStack(t *testing.T) {
	assert.Nil(t, ExtractStack(customError{}))
}

func TestErrorClassName(t *testing.T) {
	err := errors.Wrap(customError{}, "fetching page")
	assert.Equal(t, "logging.customError", ErrorClassName(err))
	assert.Equal(t, "", ErrorClassName(nil))
}

func TestWithStacktrace_AddsFields(t *testing.T) {
	entry := WithStacktrace(NullEntry(), errors.WithStack(customError{}))
	assert.Contains(t, entry.Data, Stacktrace)
	assert.Equal(t, "logging.customError", entry.Data[ErrorClass])
}
