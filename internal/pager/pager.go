// Package pager walks the pages of a remote collection.
package pager

import (
	"context"

	"github.com/G-Research/importscheduler/internal/representation"
)

// Options are passed through to the remote API as query parameters. "page" selects the first page to fetch.
type Options map[string]string

// Page is one page of a collection. Number is the 1-based page number as understood by the remote API.
type Page struct {
	Number  int
	Objects []representation.Raw
}

// Pager yields the pages of collection for sourceRef in ascending page order, starting at the page named
// in options. Returning an error from fn stops paging and that error is returned.
type Pager interface {
	EachPage(ctx context.Context, collection string, sourceRef string, options Options, fn func(Page) error) error
}

// Merge returns a copy of o with the entries of other applied on top.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
