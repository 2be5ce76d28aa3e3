// Package importstore persists imported objects, import failures and the overall state of each import.
//
// Object writes are upserts keyed on (source_id, kind, external_id), which is what makes it safe for the
// scheduler to dispatch the same object more than once.
package importstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/G-Research/importscheduler/internal/common/importerrors"
	"github.com/G-Research/importscheduler/internal/representation"
)

type Config struct {
	// Driver is either postgres or sqlite
	Driver string `validate:"oneof=postgres sqlite"`
	DSN    string `validate:"required"`
}

var (
	importedObjectsTable = goqu.T("imported_objects")
	importFailuresTable  = goqu.T("import_failures")
	importStateTable     = goqu.T("import_state")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS imported_objects (
		source_id    TEXT NOT NULL,
		collection   TEXT NOT NULL,
		kind         TEXT NOT NULL,
		external_id  TEXT NOT NULL,
		payload      TEXT NOT NULL,
		import_count BIGINT NOT NULL,
		imported_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (source_id, kind, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS import_failures (
		id                TEXT PRIMARY KEY,
		source_id         TEXT NOT NULL,
		error_source      TEXT NOT NULL,
		exception_class   TEXT NOT NULL,
		exception_message TEXT NOT NULL,
		fail_import       BOOLEAN NOT NULL,
		created_at        TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS import_failures_source_id ON import_failures (source_id)`,
	`CREATE TABLE IF NOT EXISTS import_state (
		source_id  TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		last_error TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

type Status string

const (
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

type State struct {
	SourceID  string    `db:"source_id"`
	Status    Status    `db:"status"`
	LastError string    `db:"last_error"`
	UpdatedAt time.Time `db:"updated_at"`
}

type FailureRecord struct {
	ID               string    `db:"id"`
	SourceID         string    `db:"source_id"`
	ErrorSource      string    `db:"error_source"`
	ExceptionClass   string    `db:"exception_class"`
	ExceptionMessage string    `db:"exception_message"`
	FailImport       bool      `db:"fail_import"`
	CreatedAt        time.Time `db:"created_at"`
}

// Store runs every statement prepared, so values reach the driver typed rather than interpolated.
type Store struct {
	db     *sql.DB
	goquDb *goqu.Database
	now    func() time.Time
}

// Open connects to the database described by config. The caller owns the returned store's connection.
func Open(config Config) (*Store, error) {
	driver, dialect := "pgx", "postgres"
	if config.Driver == "sqlite" {
		driver, dialect = "sqlite", "sqlite3"
	}
	db, err := sql.Open(driver, config.DSN)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.Driver == "sqlite" {
		// sqlite allows a single writer; a shared in-memory database also vanishes with its last connection
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect), nil
}

// New wraps db, which must speak the given goqu dialect ("postgres" or "sqlite3").
func New(db *sql.DB, dialect string) *Store {
	return &Store{
		db:     db,
		goquDb: goqu.New(dialect, db),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, statement := range schema {
		if _, err := s.goquDb.ExecContext(ctx, statement); err != nil {
			return errors.Wrap(err, "migrating import store")
		}
	}
	return nil
}

// UpsertObject records r as imported for sourceID. Importing the same object again overwrites it and bumps
// its import count.
func (s *Store) UpsertObject(ctx context.Context, sourceID string, collection string, r representation.Representation) error {
	payload, err := representation.Encode(r)
	if err != nil {
		return err
	}
	ds := s.goquDb.Insert(importedObjectsTable).Prepared(true).
		Rows(goqu.Record{
			"source_id":    sourceID,
			"collection":   collection,
			"kind":         string(r.Kind()),
			"external_id":  r.ExternalID(),
			"payload":      string(payload),
			"import_count": 1,
			"imported_at":  s.now(),
		}).
		OnConflict(goqu.DoUpdate("source_id, kind, external_id", goqu.Record{
			"payload":      goqu.L("EXCLUDED.payload"),
			"imported_at":  goqu.L("EXCLUDED.imported_at"),
			"import_count": goqu.L("imported_objects.import_count + 1"),
		}))
	if _, err := ds.Executor().ExecContext(ctx); err != nil {
		return errors.Wrapf(err, "upserting %s %s", r.Kind(), r.ExternalID())
	}
	return nil
}

type objectRow struct {
	Payload     string `db:"payload"`
	ImportCount int64  `db:"import_count"`
}

// GetObject returns the stored representation and how many times it was imported.
func (s *Store) GetObject(ctx context.Context, sourceID string, kind representation.Kind, externalID string) (representation.Representation, int64, error) {
	var row objectRow
	found, err := s.goquDb.From(importedObjectsTable).Prepared(true).
		Select("payload", "import_count").
		Where(goqu.Ex{"source_id": sourceID, "kind": string(kind), "external_id": externalID}).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	if !found {
		return nil, 0, errors.WithStack(&importerrors.ErrNotFound{Type: string(kind), Value: externalID})
	}
	r, err := representation.Decode([]byte(row.Payload))
	if err != nil {
		return nil, 0, err
	}
	return r, row.ImportCount, nil
}

// CountObjects returns how many distinct objects of collection were imported for sourceID.
func (s *Store) CountObjects(ctx context.Context, sourceID string, collection string) (int64, error) {
	count, err := s.goquDb.From(importedObjectsTable).Prepared(true).
		Where(goqu.Ex{"source_id": sourceID, "collection": collection}).
		CountContext(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return count, nil
}

// SetState records the status of the import of sourceID.
func (s *Store) SetState(ctx context.Context, sourceID string, status Status, lastError string) error {
	ds := s.goquDb.Insert(importStateTable).Prepared(true).
		Rows(goqu.Record{
			"source_id":  sourceID,
			"status":     string(status),
			"last_error": lastError,
			"updated_at": s.now(),
		}).
		OnConflict(goqu.DoUpdate("source_id", goqu.Record{
			"status":     goqu.L("EXCLUDED.status"),
			"last_error": goqu.L("EXCLUDED.last_error"),
			"updated_at": goqu.L("EXCLUDED.updated_at"),
		}))
	if _, err := ds.Executor().ExecContext(ctx); err != nil {
		return errors.Wrapf(err, "setting import state of %s", sourceID)
	}
	return nil
}

func (s *Store) GetState(ctx context.Context, sourceID string) (State, error) {
	var state State
	found, err := s.goquDb.From(importStateTable).Prepared(true).
		Where(goqu.Ex{"source_id": sourceID}).
		ScanStructContext(ctx, &state)
	if err != nil {
		return State{}, errors.WithStack(err)
	}
	if !found {
		return State{}, errors.WithStack(&importerrors.ErrNotFound{Type: "import", Value: sourceID})
	}
	return state, nil
}

func (s *Store) insertFailure(ctx context.Context, failure FailureRecord) error {
	_, err := s.goquDb.Insert(importFailuresTable).Prepared(true).Rows(failure).Executor().ExecContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "recording failure of %s", failure.SourceID)
	}
	return nil
}

// ListFailures returns the failures recorded for sourceID, oldest first.
func (s *Store) ListFailures(ctx context.Context, sourceID string) ([]FailureRecord, error) {
	var failures []FailureRecord
	err := s.goquDb.From(importFailuresTable).Prepared(true).
		Where(goqu.Ex{"source_id": sourceID}).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		ScanStructsContext(ctx, &failures)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return failures, nil
}
