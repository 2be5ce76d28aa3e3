package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/G-Research/importscheduler/internal/importer"
	"github.com/G-Research/importscheduler/internal/importstore"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := RootCmd()
	for _, name := range []string{"schedule", "worker", "status", "notify"} {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup(configFlag))
}

func TestPrintStatus(t *testing.T) {
	out := &bytes.Buffer{}
	printStatus(out, "42", &importer.Status{
		State: &importstore.State{SourceID: "42", Status: importstore.StatusFailed, LastError: "boom", UpdatedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		Collections: []importer.CollectionStatus{
			{Name: "issues", Importer: "IssuesImporter", Page: 3, Fetched: 10, Imported: 9, Stored: 9},
		},
		Failures: []importstore.FailureRecord{
			{ErrorSource: "IssuesImporter", ExceptionClass: "*errors.fundamental", ExceptionMessage: "boom", CreatedAt: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	})

	printed := out.String()
	assert.Contains(t, printed, "Import of 42: failed (updated 2022-01-01T00:00:00Z)")
	assert.Contains(t, printed, "Last error: boom")
	assert.Contains(t, printed, "IssuesImporter")
	assert.Contains(t, printed, "*errors.fundamental")
}

func TestPrintStatus_NeverStarted(t *testing.T) {
	out := &bytes.Buffer{}
	printStatus(out, "42", &importer.Status{})
	assert.Contains(t, out.String(), "Import of 42: never started")
}
