// Package importerrors contains the error types shared across the importer.
//
// Errors that callers are expected to branch on are defined here so they can be recovered with errors.As
// after being wrapped with github.com/pkg/errors. If several errors occur in one operation, the function
// should return a *multierror.Error from github.com/hashicorp/go-multierror wrapping them.
package importerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "source" or "collection"
	Value   string // Resource name, e.g., "octocat/hello-world"
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is returned on an invalid argument or configuration value.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "batchSize"
	Value   interface{} // The invalid value that was provided
	Message string      // Optional explanation of why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrUnknownKind is returned when a transport value names a representation kind nobody registered.
type ErrUnknownKind struct {
	Kind string
}

func (err *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown representation kind %q", err.Kind)
}

// ErrUnexpectedResponse is returned by the pager when the remote API answers with a non-success status.
type ErrUnexpectedResponse struct {
	URL        string
	StatusCode int
	Body       string
}

func (err *ErrUnexpectedResponse) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("unexpected status %d from %s", err.StatusCode, err.URL)
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", err.StatusCode, err.URL, err.Body)
}

// IsNotFound reports whether any error in err's chain is an *ErrNotFound.
func IsNotFound(err error) bool {
	var e *ErrNotFound
	return errors.As(err, &e)
}
