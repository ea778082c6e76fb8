package store

import (
	"database/sql"

	"github.com/nugget/thane-forge/internal/clk"
)

// CreateDependency persists a new dependency record. (project_id,
// component_name) must be unique per the schema constraint.
func (s *Store) CreateDependency(d *Dependency) error {
	if d.ID == "" {
		d.ID = clk.NewID()
	}

	installed := 0
	if d.Installed {
		installed = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO dependencies (id, project_id, component_name, version_spec,
			source_tag, installed, installed_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.ProjectID, d.ComponentName, d.VersionSpec, d.SourceTag, installed,
		formatNullTime(d.InstalledAt), d.LastError)
	return err
}

// ListDependencies returns every dependency declared by a project.
func (s *Store) ListDependencies(projectID string) ([]*Dependency, error) {
	rows, err := s.db.Query(`
		SELECT id, project_id, component_name, version_spec, source_tag,
			installed, installed_at, last_error
		FROM dependencies WHERE project_id = ? ORDER BY component_name ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceDependencies implements overwrite-on-scan semantics: it
// deletes all of a project's existing dependency rows and inserts the
// given set, atomically.
func (s *Store) ReplaceDependencies(projectID string, deps []*Dependency) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dependencies WHERE project_id = ?`, projectID); err != nil {
		return err
	}

	for _, d := range deps {
		if d.ID == "" {
			d.ID = clk.NewID()
		}
		d.ProjectID = projectID
		installed := 0
		if d.Installed {
			installed = 1
		}
		if _, err := tx.Exec(`
			INSERT INTO dependencies (id, project_id, component_name, version_spec,
				source_tag, installed, installed_at, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.ProjectID, d.ComponentName, d.VersionSpec, d.SourceTag, installed,
			formatNullTime(d.InstalledAt), d.LastError); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanDependency(row scannable) (*Dependency, error) {
	var d Dependency
	var installed int
	var installedAt sql.NullString

	err := row.Scan(&d.ID, &d.ProjectID, &d.ComponentName, &d.VersionSpec,
		&d.SourceTag, &installed, &installedAt, &d.LastError)
	if err != nil {
		return nil, err
	}

	d.Installed = installed == 1
	d.InstalledAt = parseNullTime(installedAt)
	return &d, nil
}
