package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// CreateAgent persists a new agent role slot.
func (s *Store) CreateAgent(a *Agent) error {
	if a.ID == "" {
		a.ID = clk.NewID()
	}
	if a.Status == "" {
		a.Status = AgentIdle
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO agents (id, name, type, status, last_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.Type, a.Status, formatNullTime(a.LastActive),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return err
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(id string) (*Agent, error) {
	row := s.db.QueryRow(agentSelect+` WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAgents returns every agent.
func (s *Store) ListAgents() ([]*Agent, error) {
	rows, err := s.db.Query(agentSelect + ` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAgent updates an agent's mutable fields.
func (s *Store) UpdateAgent(a *Agent) error {
	a.UpdatedAt = time.Now()
	_, err := s.db.Exec(`
		UPDATE agents SET name = ?, type = ?, status = ?, last_active = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, a.Type, a.Status, formatNullTime(a.LastActive), formatTime(a.UpdatedAt), a.ID)
	return err
}

// SetAgentStatus updates only an agent's status and last-active stamp.
func (s *Store) SetAgentStatus(id, status string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE agents SET status = ?, last_active = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(now), formatTime(now), id)
	return err
}

// DeleteAgent removes an agent.
func (s *Store) DeleteAgent(id string) error {
	_, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id)
	return err
}

const agentSelect = `
	SELECT id, name, type, status, last_active, created_at, updated_at FROM agents
`

func scanAgent(row scannable) (*Agent, error) {
	return scanAgentRow(row)
}

func scanAgentRow(row scannable) (*Agent, error) {
	var a Agent
	var lastActive sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Status, &lastActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	a.LastActive = parseNullTime(lastActive)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &a, nil
}
