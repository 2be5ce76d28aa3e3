// Package representation holds plain, serialisable snapshots of remote API objects.
//
// A representation is built once per object from the raw API response and then passed by value to whatever
// imports it: inline in the scheduling process or in a worker elsewhere. It never references the client that
// fetched it.
package representation

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
)

type Kind string

const (
	IssueKind       Kind = "issue"
	PullRequestKind Kind = "pull_request"
	MilestoneKind   Kind = "milestone"
	NoteKind        Kind = "note"
)

// Raw is one object as decoded from the remote API.
type Raw map[string]interface{}

type Representation interface {
	Kind() Kind
	// ExternalID identifies the remote object. It is what dedup marks and what imports are idempotent on.
	ExternalID() string
}

// Converter builds a Representation from a raw API object.
type Converter func(raw Raw) (Representation, error)

var converters = map[Kind]Converter{
	IssueKind:       func(raw Raw) (Representation, error) { return IssueFromAPIResponse(raw) },
	PullRequestKind: func(raw Raw) (Representation, error) { return PullRequestFromAPIResponse(raw) },
	MilestoneKind:   func(raw Raw) (Representation, error) { return MilestoneFromAPIResponse(raw) },
	NoteKind:        func(raw Raw) (Representation, error) { return NoteFromAPIResponse(raw) },
}

var constructors = map[Kind]func() Representation{
	IssueKind:       func() Representation { return &Issue{} },
	PullRequestKind: func() Representation { return &PullRequest{} },
	MilestoneKind:   func() Representation { return &Milestone{} },
	NoteKind:        func() Representation { return &Note{} },
}

// ConverterFor returns the Converter for kind.
func ConverterFor(kind Kind) (Converter, error) {
	converter, ok := converters[kind]
	if !ok {
		return nil, errors.WithStack(&importerrors.ErrUnknownKind{Kind: string(kind)})
	}
	return converter, nil
}

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Encode returns the transport value of r.
func Encode(r Representation) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s %s", r.Kind(), r.ExternalID())
	}
	out, err := json.Marshal(envelope{Kind: r.Kind(), Data: data})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

// Decode rebuilds the Representation from a value produced by Encode.
func Decode(transport []byte) (Representation, error) {
	var e envelope
	if err := json.Unmarshal(transport, &e); err != nil {
		return nil, errors.Wrap(err, "decoding representation envelope")
	}
	constructor, ok := constructors[e.Kind]
	if !ok {
		return nil, errors.WithStack(&importerrors.ErrUnknownKind{Kind: string(e.Kind)})
	}
	r := constructor()
	if err := json.Unmarshal(e.Data, r); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", e.Kind)
	}
	return r, nil
}

// helpers for reading loosely typed API objects

func (raw Raw) object(field string) Raw {
	switch v := raw[field].(type) {
	case map[string]interface{}:
		return v
	case Raw:
		return v
	default:
		return nil
	}
}

func (raw Raw) objects(field string) []Raw {
	list, ok := raw[field].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Raw, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func (raw Raw) str(field string) string {
	s, _ := raw[field].(string)
	return s
}

func (raw Raw) int64(field string) (int64, bool) {
	switch v := raw[field].(type) {
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func (raw Raw) requiredInt64(kind Kind, field string) (int64, error) {
	v, ok := raw.int64(field)
	if !ok {
		return 0, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    string(kind) + "." + field,
			Value:   raw[field],
			Message: "expected an integer",
		})
	}
	return v, nil
}

func (raw Raw) time(field string) (*time.Time, error) {
	s := raw.str(field)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", field)
	}
	t = t.UTC()
	return &t, nil
}

func (raw Raw) requiredTime(field string) (time.Time, error) {
	t, err := raw.time(field)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}
