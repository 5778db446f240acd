package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// sqlRecord is the row representation: indexed columns for the filterable/
// sortable fields (spec.md §4.6), plus the full Job serialized as JSON in
// `data` so the store doesn't need a migration for every new Job field.
type sqlRecord struct {
	ID       string         `db:"id"`
	Status   string         `db:"status"`
	Process  string         `db:"process"`
	Service  sql.NullString `db:"service"`
	UserID   sql.NullString `db:"user_id"`
	Access   string         `db:"access"`
	Created  time.Time      `db:"created"`
	Finished sql.NullTime   `db:"finished"`
	Data     string         `db:"data"`
}

// SQLStore is a Postgres- or SQLite-backed Store, selected by the driver
// name passed to NewSQLStore (matches the `database.provider` config key
// and the `internal/database.RunMigrations` dual-driver convention).
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// NewSQLStore wraps an already-connected *sqlx.DB. driver is "postgres" or
// "sqlite", matching config.DatabaseConfig.Provider.
func NewSQLStore(db *sqlx.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func toRecord(j *Job) (sqlRecord, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return sqlRecord{}, fmt.Errorf("marshaling job %s: %w", j.ID, err)
	}
	rec := sqlRecord{
		ID:      j.ID.String(),
		Status:  string(j.Status),
		Process: j.Process,
		Access:  string(j.Access),
		Created: j.Created,
		Data:    string(data),
	}
	if j.Service != "" {
		rec.Service = sql.NullString{String: j.Service, Valid: true}
	}
	if j.UserID != "" {
		rec.UserID = sql.NullString{String: j.UserID, Valid: true}
	}
	if j.Finished != nil {
		rec.Finished = sql.NullTime{Time: *j.Finished, Valid: true}
	}
	return rec, nil
}

func fromRecord(rec sqlRecord) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(rec.Data), &j); err != nil {
		return nil, fmt.Errorf("unmarshaling job %s: %w", rec.ID, err)
	}
	return &j, nil
}

const upsertPostgres = `
INSERT INTO jobs (id, status, process, service, user_id, access, created, finished, data)
VALUES (:id, :status, :process, :service, :user_id, :access, :created, :finished, :data)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status, process = EXCLUDED.process, service = EXCLUDED.service,
  user_id = EXCLUDED.user_id, access = EXCLUDED.access, finished = EXCLUDED.finished,
  data = EXCLUDED.data`

const upsertSQLite = `
INSERT INTO jobs (id, status, process, service, user_id, access, created, finished, data)
VALUES (:id, :status, :process, :service, :user_id, :access, :created, :finished, :data)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status, process = excluded.process, service = excluded.service,
  user_id = excluded.user_id, access = excluded.access, finished = excluded.finished,
  data = excluded.data`

// SaveJob upserts the job record (full-document write per spec.md §4.6).
func (s *SQLStore) SaveJob(ctx context.Context, j *Job) error {
	rec, err := toRecord(j)
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

// UpdateJob is an alias for SaveJob (both are full-document upserts).
func (s *SQLStore) UpdateJob(ctx context.Context, j *Job) error {
	return s.SaveJob(ctx, j)
}

// FetchByID loads the job at id.
func (s *SQLStore) FetchByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	var rec sqlRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind("SELECT id, status, process, service, user_id, access, created, finished, data FROM jobs WHERE id = ?"), id.String())
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// FindJobs filters, sorts, and paginates via indexed columns, falling back
// to the defaults (created, ascending) when sortBy is empty.
func (s *SQLStore) FindJobs(ctx context.Context, filter Filter, sortBy SortKey, page, limit int) ([]*Job, int, error) {
	var where []string
	var args []interface{}

	add := func(col, val string) {
		if val == "" {
			return
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}
	add("status", string(filter.Status))
	add("process", filter.Process)
	add("service", filter.Service)
	add("user_id", filter.UserID)
	add("access", string(filter.Access))

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := s.db.Rebind("SELECT COUNT(*) FROM jobs " + whereClause)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	orderCol := "created"
	switch sortBy {
	case SortFinished:
		orderCol = "finished"
	case SortStatus:
		orderCol = "status"
	case SortProcess:
		orderCol = "process"
	case SortService:
		orderCol = "service"
	case SortUserID:
		orderCol = "user_id"
	}

	if limit <= 0 {
		limit = total
		if limit == 0 {
			limit = 1
		}
	}
	offset := page * limit

	query := fmt.Sprintf(
		"SELECT id, status, process, service, user_id, access, created, finished, data FROM jobs %s ORDER BY %s ASC LIMIT ? OFFSET ?",
		whereClause, orderCol,
	)
	args = append(args, limit, offset)

	var recs []sqlRecord
	if err := s.db.SelectContext(ctx, &recs, s.db.Rebind(query), args...); err != nil {
		return nil, 0, err
	}

	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		j, err := fromRecord(rec)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, total, nil
}

// ClearJobs truncates the table. Test only.
func (s *SQLStore) ClearJobs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM jobs")
	return err
}
