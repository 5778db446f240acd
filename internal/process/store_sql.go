package process

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// sqlRecord is the row representation: indexed columns for the filterable
// fields Filter exposes, plus the full Process serialized as JSON in
// `data`, mirroring internal/job.SQLStore's sqlRecord convention so the
// store doesn't need a migration for every new Process field.
type sqlRecord struct {
	ID         string `db:"id"`
	Type       string `db:"type"`
	Visibility string `db:"visibility"`
	Version    sql.NullString `db:"version"`
	Data       string `db:"data"`
}

// SQLStore is a Postgres- or SQLite-backed Store, selected by the driver
// name passed to NewSQLStore, matching internal/job.SQLStore's
// dual-driver convention.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore wraps an already-connected *sqlx.DB. driver is "postgres" or
// "sqlite", matching config.DatabaseConfig.Provider.
func NewSQLStore(db *sqlx.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func toRecord(p *Process) (sqlRecord, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return sqlRecord{}, fmt.Errorf("marshaling process %s: %w", p.ID, err)
	}
	rec := sqlRecord{
		ID:         p.ID,
		Type:       string(p.Type),
		Visibility: string(p.Visibility),
		Data:       string(data),
	}
	if p.Version != "" {
		rec.Version = sql.NullString{String: p.Version, Valid: true}
	}
	return rec, nil
}

func fromRecord(rec sqlRecord) (*Process, error) {
	var p Process
	if err := json.Unmarshal([]byte(rec.Data), &p); err != nil {
		return nil, fmt.Errorf("unmarshaling process %s: %w", rec.ID, err)
	}
	return &p, nil
}

const upsertPostgres = `
INSERT INTO processes (id, type, visibility, version, data)
VALUES (:id, :type, :visibility, :version, :data)
ON CONFLICT (id) DO UPDATE SET
  type = EXCLUDED.type, visibility = EXCLUDED.visibility, version = EXCLUDED.version,
  data = EXCLUDED.data`

const upsertSQLite = `
INSERT INTO processes (id, type, visibility, version, data)
VALUES (:id, :type, :visibility, :version, :data)
ON CONFLICT(id) DO UPDATE SET
  type = excluded.type, visibility = excluded.visibility, version = excluded.version,
  data = excluded.data`

// SaveProcess upserts the process record (full-document write, matching
// internal/job.SQLStore.SaveJob's convention).
func (s *SQLStore) SaveProcess(ctx context.Context, p *Process) error {
	rec, err := toRecord(p)
	if err != nil {
		return err
	}
	query := upsertPostgres
	if s.driver == "sqlite" {
		query = upsertSQLite
	}
	_, err = s.db.NamedExecContext(ctx, query, rec)
	return err
}

// FetchByID loads the process at id.
func (s *SQLStore) FetchByID(ctx context.Context, id string) (*Process, error) {
	var rec sqlRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind("SELECT id, type, visibility, version, data FROM processes WHERE id = ?"), id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// FindProcesses filters the process set via indexed columns (type,
// visibility) and an in-memory keyword pass over the decoded record, since
// keywords are not broken out into their own indexed column.
func (s *SQLStore) FindProcesses(ctx context.Context, filter Filter) ([]*Process, error) {
	var where []string
	var args []interface{}

	add := func(col, val string) {
		if val == "" {
			return
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}
	add("type", string(filter.Type))
	add("visibility", string(filter.Visibility))

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := s.db.Rebind("SELECT id, type, visibility, version, data FROM processes " + whereClause + " ORDER BY id ASC")
	var recs []sqlRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}

	procs := make([]*Process, 0, len(recs))
	for _, rec := range recs {
		p, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		if filter.Keyword != "" {
			found := false
			for _, kw := range p.Keywords {
				if kw == filter.Keyword {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// DeleteProcess removes the record at id. Deleting a missing id is a
// no-op, matching MemoryStore.DeleteProcess's idempotent-delete convention.
func (s *SQLStore) DeleteProcess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM processes WHERE id = ?"), id)
	return err
}

// ClearProcesses truncates the table. Test only.
func (s *SQLStore) ClearProcesses(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM processes")
	return err
}
