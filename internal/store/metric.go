package store

import (
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// CreateMetric appends a metric sample.
func (s *Store) CreateMetric(m *Metric) error {
	if m.ID == "" {
		m.ID = clk.NewID()
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO metrics (id, at, type, value, agent_id)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID, formatTime(m.At), m.Type, m.Value, m.AgentID)
	return err
}

// ListMetrics returns every metric sample, newest first.
func (s *Store) ListMetrics() ([]*Metric, error) {
	rows, err := s.db.Query(`SELECT id, at, type, value, agent_id FROM metrics ORDER BY at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		m, err := scanMetricRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MetricSummary aggregates metric samples by type within a time window.
type MetricSummary struct {
	Type    string
	Count   int
	Average float64
	Min     float64
	Max     float64
}

// SummarizeMetrics aggregates metrics recorded within the last
// sinceHours (or all time, when sinceHours <= 0), grouped by type.
func (s *Store) SummarizeMetrics(sinceHours float64) ([]*MetricSummary, error) {
	query := `SELECT id, at, type, value, agent_id FROM metrics WHERE 1=1`
	var args []any
	if sinceHours > 0 {
		cutoff := time.Now().Add(-time.Duration(sinceHours * float64(time.Hour)))
		query += ` AND at >= ?`
		args = append(args, formatTime(cutoff))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byType := make(map[string]*MetricSummary)
	var order []string
	for rows.Next() {
		m, err := scanMetricRow(rows)
		if err != nil {
			return nil, err
		}
		sum, ok := byType[m.Type]
		if !ok {
			sum = &MetricSummary{Type: m.Type, Min: m.Value, Max: m.Value}
			byType[m.Type] = sum
			order = append(order, m.Type)
		}
		sum.Count++
		sum.Average += m.Value
		if m.Value < sum.Min {
			sum.Min = m.Value
		}
		if m.Value > sum.Max {
			sum.Max = m.Value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*MetricSummary, 0, len(order))
	for _, t := range order {
		sum := byType[t]
		if sum.Count > 0 {
			sum.Average /= float64(sum.Count)
		}
		out = append(out, sum)
	}
	return out, nil
}

func scanMetricRow(row scannable) (*Metric, error) {
	var m Metric
	var at string
	if err := row.Scan(&m.ID, &at, &m.Type, &m.Value, &m.AgentID); err != nil {
		return nil, err
	}
	m.At, _ = time.Parse(time.RFC3339Nano, at)
	return &m, nil
}
