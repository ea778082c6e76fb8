package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// CreateJob persists a new engine-level run record.
func (s *Store) CreateJob(j *Job) error {
	if j.ID == "" {
		j.ID = clk.NewID()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, status, started_at, completed_at, duration_sec,
			model_tag, error_msg, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, formatNullTime(j.StartedAt), formatNullTime(j.CompletedAt),
		j.DurationSec, j.ModelTag, j.ErrorMsg, formatTime(j.CreatedAt))
	return err
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(jobSelect+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListJobs returns every job, newest first.
func (s *Store) ListJobs() ([]*Job, error) {
	rows, err := s.db.Query(jobSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJob updates a job's mutable fields.
func (s *Store) UpdateJob(j *Job) error {
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, started_at = ?, completed_at = ?,
			duration_sec = ?, model_tag = ?, error_msg = ?
		WHERE id = ?
	`, j.Status, formatNullTime(j.StartedAt), formatNullTime(j.CompletedAt),
		j.DurationSec, j.ModelTag, j.ErrorMsg, j.ID)
	return err
}

// StartJob transitions a job to running and stamps StartedAt.
func (s *Store) StartJob(id string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE jobs SET status = ?, started_at = ? WHERE id = ?
	`, JobRunning, formatTime(now), id)
	return err
}

// CompleteJob transitions a job to a terminal status and stamps
// CompletedAt/DurationSec relative to StartedAt.
func (s *Store) CompleteJob(id, status, errMsg string) error {
	j, err := s.GetJob(id)
	if err != nil {
		return err
	}

	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.ErrorMsg = errMsg
	if j.StartedAt != nil {
		j.DurationSec = now.Sub(*j.StartedAt).Seconds()
	}
	return s.UpdateJob(j)
}

// DeleteJob removes a job.
func (s *Store) DeleteJob(id string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

const jobSelect = `
	SELECT id, type, status, started_at, completed_at, duration_sec, model_tag,
		error_msg, created_at
	FROM jobs
`

func scanJob(row scannable) (*Job, error) {
	return scanJobRow(row)
}

func scanJobRow(row scannable) (*Job, error) {
	var j Job
	var startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &startedAt, &completedAt,
		&j.DurationSec, &j.ModelTag, &j.ErrorMsg, &createdAt)
	if err != nil {
		return nil, err
	}

	j.StartedAt = parseNullTime(startedAt)
	j.CompletedAt = parseNullTime(completedAt)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &j, nil
}
