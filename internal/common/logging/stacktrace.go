package logging

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	Stacktrace = "stacktrace"
	ErrorClass = "error_class"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err to the entry together with the first stack trace recorded by pkg/errors
// anywhere in its cause chain, if there is one.
func WithStacktrace(logger *log.Entry, err error) *log.Entry {
	logger = logger.WithError(err).WithField(ErrorClass, ErrorClassName(err))
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack walks the cause chain outermost first and returns the first stack trace found.
func ExtractStack(err error) errors.StackTrace {
	for err != nil {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		c, ok := err.(causer)
		if !ok {
			return nil
		}
		err = c.Cause()
	}
	return nil
}

// ErrorClassName returns the Go type of the innermost cause of err, e.g. "*url.Error".
func ErrorClassName(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%T", errors.Cause(err))
}
