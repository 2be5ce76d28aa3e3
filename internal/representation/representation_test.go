package representation

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
)

// decodeRaw decodes like the pager does, with numbers kept as json.Number.
func decodeRaw(t *testing.T, s string) Raw {
	decoder := json.NewDecoder(bytes.NewBufferString(s))
	decoder.UseNumber()
	var raw Raw
	require.NoError(t, decoder.Decode(&raw))
	return raw
}

const issueJSON = `{
	"number": 42,
	"title": "Crash on start",
	"body": "stack trace attached",
	"state": "open",
	"milestone": {"number": 3},
	"labels": [{"name": "bug"}, {"name": "p1"}],
	"assignees": [{"id": 7, "login": "alice"}],
	"user": {"id": 9, "login": "bob"},
	"created_at": "2022-03-01T10:00:00Z",
	"updated_at": "2022-03-02T11:30:00+01:00"
}`

const pullRequestJSON = `{
	"number": 5,
	"title": "Fix crash",
	"body": "",
	"state": "closed",
	"head": {"ref": "fix", "sha": "abc", "repo": {"id": 99}},
	"base": {"ref": "main", "sha": "def"},
	"user": {"id": 9, "login": "bob"},
	"assignee": null,
	"created_at": "2022-03-01T10:00:00Z",
	"updated_at": "2022-03-01T10:00:00Z",
	"merged_at": "2022-03-03T09:00:00Z"
}`

const milestoneJSON = `{
	"number": 3,
	"title": "v1.0",
	"description": "first release",
	"state": "open",
	"due_on": null,
	"created_at": "2022-01-01T00:00:00Z",
	"updated_at": "2022-01-01T00:00:00Z"
}`

const noteJSON = `{
	"id": 1001,
	"body": "looks good",
	"issue_url": "https://api.example.com/repos/o/r/issues/42",
	"user": {"id": 7, "login": "alice"},
	"created_at": "2022-03-01T10:00:00Z",
	"updated_at": "2022-03-01T10:00:00Z"
}`

func TestIssueFromAPIResponse(t *testing.T) {
	issue, err := IssueFromAPIResponse(decodeRaw(t, issueJSON))
	require.NoError(t, err)

	milestone := int64(3)
	assert.Equal(t, &Issue{
		IID:             42,
		Title:           "Crash on start",
		Description:     "stack trace attached",
		MilestoneNumber: &milestone,
		State:           "opened",
		Assignees:       []User{{ID: 7, Login: "alice"}},
		LabelNames:      []string{"bug", "p1"},
		Author:          &User{ID: 9, Login: "bob"},
		CreatedAt:       time.Date(2022, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2022, 3, 2, 10, 30, 0, 0, time.UTC),
	}, issue)
	assert.Equal(t, IssueKind, issue.Kind())
	assert.Equal(t, "42", issue.ExternalID())
}

func TestPullRequestFromAPIResponse(t *testing.T) {
	pr, err := PullRequestFromAPIResponse(decodeRaw(t, pullRequestJSON))
	require.NoError(t, err)

	assert.Equal(t, "merged", pr.State)
	assert.Equal(t, "fix", pr.SourceBranch)
	assert.Equal(t, "def", pr.TargetBranchSha)
	require.NotNil(t, pr.SourceRepositoryID)
	assert.Equal(t, int64(99), *pr.SourceRepositoryID)
	assert.Nil(t, pr.Assignee)
	require.NotNil(t, pr.MergedAt)
	assert.Equal(t, time.Date(2022, 3, 3, 9, 0, 0, 0, time.UTC), *pr.MergedAt)
}

func TestNoteFromAPIResponse(t *testing.T) {
	note, err := NoteFromAPIResponse(decodeRaw(t, noteJSON))
	require.NoError(t, err)

	assert.Equal(t, "1001", note.ExternalID())
	assert.Equal(t, "Issue", note.NoteableType)
	assert.Equal(t, int64(42), note.NoteableID)
}

func TestFromAPIResponse_MissingIdentifier(t *testing.T) {
	_, err := IssueFromAPIResponse(Raw{"title": "no number"})
	var invalid *importerrors.ErrInvalidArgument
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "issue.number", invalid.Name)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := map[string]struct {
		kind Kind
		raw  string
	}{
		"issue":        {kind: IssueKind, raw: issueJSON},
		"pull request": {kind: PullRequestKind, raw: pullRequestJSON},
		"milestone":    {kind: MilestoneKind, raw: milestoneJSON},
		"note":         {kind: NoteKind, raw: noteJSON},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			converter, err := ConverterFor(tc.kind)
			require.NoError(t, err)
			original, err := converter(decodeRaw(t, tc.raw))
			require.NoError(t, err)

			transport, err := Encode(original)
			require.NoError(t, err)
			decoded, err := Decode(transport)
			require.NoError(t, err)

			assert.Equal(t, original, decoded)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"wiki","data":{}}`))
	var unknown *importerrors.ErrUnknownKind
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "wiki", unknown.Kind)
}

func TestConverterFor_UnknownKind(t *testing.T) {
	_, err := ConverterFor("wiki")
	assert.Error(t, err)
}
