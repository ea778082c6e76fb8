package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// ErrActiveBuildExists describes a (project, commit) pair that already
// has a non-terminal build. CreateBuild does not return it: such a
// trigger is coalesced onto the existing build.
var ErrActiveBuildExists = errors.New("an active build already exists for this commit")

// CreateBuild persists a new build. If a non-terminal build already
// exists for (ProjectID, CommitHash), the new trigger is coalesced:
// the existing build is returned instead of creating a duplicate.
func (s *Store) CreateBuild(b *Build) (*Build, error) {
	existing, err := s.activeBuildForCommit(b.ProjectID, b.CommitHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if b.ID == "" {
		b.ID = clk.NewID()
	}
	if b.State == "" {
		b.State = BuildPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	_, err = s.db.Exec(`
		INSERT INTO builds (id, project_id, commit_hash, commit_message,
			commit_author, branch, state, started_at, completed_at, duration_sec,
			build_output, test_results, artifacts_path, triggered_by, event_type,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.ProjectID, b.CommitHash, b.CommitMessage, b.CommitAuthor, b.Branch,
		b.State, formatNullTime(b.StartedAt), formatNullTime(b.CompletedAt),
		b.DurationSec, b.BuildOutput, b.TestResults, b.ArtifactsPath, b.TriggeredBy,
		b.EventType, formatTime(b.CreatedAt))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) activeBuildForCommit(projectID, commitHash string) (*Build, error) {
	row := s.db.QueryRow(buildSelect+`
		WHERE project_id = ? AND commit_hash = ? AND state IN (?, ?)
		ORDER BY created_at DESC LIMIT 1
	`, projectID, commitHash, BuildPending, BuildRunning)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// GetBuild retrieves a build by ID.
func (s *Store) GetBuild(id string) (*Build, error) {
	row := s.db.QueryRow(buildSelect+` WHERE id = ?`, id)
	b, err := scanBuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// ListBuilds returns builds for a project, or every build when
// projectID is empty, newest first.
func (s *Store) ListBuilds(projectID string) ([]*Build, error) {
	var rows *sql.Rows
	var err error
	if projectID == "" {
		rows, err = s.db.Query(buildSelect + ` ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(buildSelect+` WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Build
	for rows.Next() {
		b, err := scanBuildRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBuild updates all mutable fields of a build record.
func (s *Store) UpdateBuild(b *Build) error {
	_, err := s.db.Exec(`
		UPDATE builds SET state = ?, started_at = ?, completed_at = ?,
			duration_sec = ?, build_output = ?, test_results = ?,
			artifacts_path = ?, commit_hash = ?, commit_message = ?,
			commit_author = ?, branch = ?
		WHERE id = ?
	`, b.State, formatNullTime(b.StartedAt), formatNullTime(b.CompletedAt),
		b.DurationSec, b.BuildOutput, b.TestResults, b.ArtifactsPath,
		b.CommitHash, b.CommitMessage, b.CommitAuthor, b.Branch, b.ID)
	return err
}

// BuildStats summarizes build outcomes, optionally scoped to one project.
type BuildStats struct {
	Total          int
	Successful     int
	Failed         int
	AverageSeconds float64
	SuccessRate    float64 // percentage, 0-100
}

// Stats computes aggregate statistics over every build of the project
// (or of all projects, when projectID is empty), whatever its state. Average
// duration is computed only over builds with a recorded duration;
// success rate is zero when there are no builds.
func (s *Store) Stats(projectID string) (*BuildStats, error) {
	builds, err := s.ListBuilds(projectID)
	if err != nil {
		return nil, err
	}

	stats := &BuildStats{}
	var durSum float64
	var durCount int
	for _, b := range builds {
		stats.Total++
		switch b.State {
		case BuildSuccess:
			stats.Successful++
		case BuildFailed:
			stats.Failed++
		}
		if b.DurationSec > 0 {
			durSum += b.DurationSec
			durCount++
		}
	}
	if durCount > 0 {
		stats.AverageSeconds = durSum / float64(durCount)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats, nil
}

const buildSelect = `
	SELECT id, project_id, commit_hash, commit_message, commit_author, branch,
		state, started_at, completed_at, duration_sec, build_output, test_results,
		artifacts_path, triggered_by, event_type, created_at
	FROM builds
`

func scanBuild(row scannable) (*Build, error) {
	return scanBuildRow(row)
}

func scanBuildRow(row scannable) (*Build, error) {
	var b Build
	var startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(&b.ID, &b.ProjectID, &b.CommitHash, &b.CommitMessage,
		&b.CommitAuthor, &b.Branch, &b.State, &startedAt, &completedAt,
		&b.DurationSec, &b.BuildOutput, &b.TestResults, &b.ArtifactsPath,
		&b.TriggeredBy, &b.EventType, &createdAt)
	if err != nil {
		return nil, err
	}

	b.StartedAt = parseNullTime(startedAt)
	b.CompletedAt = parseNullTime(completedAt)
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &b, nil
}
