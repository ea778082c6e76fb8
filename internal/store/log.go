package store

import (
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// CreateLog appends a log entry.
func (s *Store) CreateLog(l *LogEntry) error {
	if l.ID == "" {
		l.ID = clk.NewID()
	}
	if l.At.IsZero() {
		l.At = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO logs (id, at, level, agent_id, job_id, message, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, formatTime(l.At), l.Level, l.AgentID, l.JobID, l.Message, l.MetaJSON)
	return err
}

// LogFilter narrows ListLogs results.
type LogFilter struct {
	AgentID      string
	OlderThanHrs float64 // when > 0, only entries older than this many hours
}

// ListLogs returns log entries matching filter, newest first.
func (s *Store) ListLogs(f LogFilter) ([]*LogEntry, error) {
	query := `SELECT id, at, level, agent_id, job_id, message, meta_json FROM logs WHERE 1=1`
	var args []any

	if f.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.OlderThanHrs > 0 {
		cutoff := time.Now().Add(-time.Duration(f.OlderThanHrs * float64(time.Hour)))
		query += ` AND at < ?`
		args = append(args, formatTime(cutoff))
	}
	query += ` ORDER BY at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var l LogEntry
		var at string
		if err := rows.Scan(&l.ID, &at, &l.Level, &l.AgentID, &l.JobID, &l.Message, &l.MetaJSON); err != nil {
			return nil, err
		}
		l.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// DeleteLogs removes log entries matching filter and returns the
// number of rows deleted.
func (s *Store) DeleteLogs(f LogFilter) (int64, error) {
	query := `DELETE FROM logs WHERE 1=1`
	var args []any

	if f.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.OlderThanHrs > 0 {
		cutoff := time.Now().Add(-time.Duration(f.OlderThanHrs * float64(time.Hour)))
		query += ` AND at < ?`
		args = append(args, formatTime(cutoff))
	}

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
