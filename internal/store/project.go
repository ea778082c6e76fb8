package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// ErrDuplicateName is returned when creating a project whose name
// already exists.
var ErrDuplicateName = errors.New("project name already exists")

// ErrNotFound is returned by Get-style lookups that find no row.
var ErrNotFound = errors.New("not found")

// CreateProject persists a new project. State defaults to "pending"
// when unset.
func (s *Store) CreateProject(p *Project) error {
	if p.ID == "" {
		p.ID = clk.NewID()
	}
	if p.State == "" {
		p.State = ProjectPending
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, remote_url, slug, branch, clone_path,
			last_commit, last_sync_at, target_chip, build_system, webhook_secret,
			state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.RemoteURL, p.Slug, p.Branch, p.ClonePath, p.LastCommit,
		formatNullTime(p.LastSyncAt), p.TargetChip, p.BuildSystem, p.WebhookSecret,
		p.State, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(id string) (*Project, error) {
	row := s.db.QueryRow(projectSelect+` WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProjectByName retrieves a project by its unique name.
func (s *Store) GetProjectByName(name string) (*Project, error) {
	row := s.db.QueryRow(projectSelect+` WHERE name = ?`, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetProjectBySlug retrieves a project by its canonical "owner/repo" slug.
// Returns ErrNotFound when no project matches.
func (s *Store) GetProjectBySlug(slug string) (*Project, error) {
	row := s.db.QueryRow(projectSelect+` WHERE slug = ? LIMIT 1`, slug)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListProjects returns all projects ordered by creation time, newest first.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(projectSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject updates all mutable fields of an existing project.
func (s *Store) UpdateProject(p *Project) error {
	p.UpdatedAt = time.Now()

	_, err := s.db.Exec(`
		UPDATE projects SET name = ?, remote_url = ?, slug = ?, branch = ?,
			clone_path = ?, last_commit = ?, last_sync_at = ?, target_chip = ?,
			build_system = ?, webhook_secret = ?, state = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.RemoteURL, p.Slug, p.Branch, p.ClonePath, p.LastCommit,
		formatNullTime(p.LastSyncAt), p.TargetChip, p.BuildSystem, p.WebhookSecret,
		p.State, formatTime(p.UpdatedAt), p.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

// DeleteProject removes a project. Dependencies and builds cascade
// via the foreign key ON DELETE CASCADE clauses.
func (s *Store) DeleteProject(id string) error {
	_, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	return err
}

const projectSelect = `
	SELECT id, name, remote_url, slug, branch, clone_path, last_commit,
		last_sync_at, target_chip, build_system, webhook_secret, state,
		created_at, updated_at
	FROM projects
`

type scannable interface {
	Scan(dest ...any) error
}

func scanProject(row scannable) (*Project, error) {
	return scanProjectRow(row)
}

func scanProjectRow(row scannable) (*Project, error) {
	var p Project
	var lastSyncAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.RemoteURL, &p.Slug, &p.Branch, &p.ClonePath,
		&p.LastCommit, &lastSyncAt, &p.TargetChip, &p.BuildSystem, &p.WebhookSecret,
		&p.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.LastSyncAt = parseNullTime(lastSyncAt)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
