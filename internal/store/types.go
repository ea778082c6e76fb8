// Package store provides SQLite-backed persistence for every durable
// entity in the build orchestrator: projects, dependencies, builds,
// webhook events, agents, jobs, logs, and metrics.
package store

import "time"

// Project lifecycle states.
const (
	ProjectPending  = "pending"
	ProjectActive   = "active"
	ProjectError    = "error"
	ProjectArchived = "archived"
)

// Build lifecycle states.
const (
	BuildPending = "pending"
	BuildRunning = "running"
	BuildSuccess = "success"
	BuildFailed  = "failed"
)

// Build trigger origins.
const (
	TriggerWebhook   = "webhook"
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// WebhookEvent processing states.
const (
	WebhookPending    = "pending"
	WebhookProcessing = "processing"
	WebhookSuccess    = "success"
	WebhookFailed     = "failed"
)

// Agent status values.
const (
	AgentIdle   = "idle"
	AgentActive = "active"
	AgentError  = "error"
)

// Job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSuccess   = "success"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Log levels.
const (
	LogDebug   = "DEBUG"
	LogInfo    = "INFO"
	LogWarning = "WARNING"
	LogError   = "ERROR"
	LogSuccess = "SUCCESS"
)

// Project is a tracked repository.
type Project struct {
	ID              string
	Name            string
	RemoteURL       string
	Slug            string // canonical "owner/repo"
	Branch          string
	ClonePath       string
	LastCommit      string
	LastSyncAt      *time.Time
	TargetChip      string
	BuildSystem     string
	WebhookSecret   string
	State           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Dependency is a declared component requirement of a project.
type Dependency struct {
	ID            string
	ProjectID     string
	ComponentName string
	VersionSpec   string
	SourceTag     string // registry name, "git:<url>", or "path:<local>"
	Installed     bool
	InstalledAt   *time.Time
	LastError     string
}

// Build is one execution of the workflow against one commit.
type Build struct {
	ID            string
	ProjectID     string
	CommitHash    string
	CommitMessage string
	CommitAuthor  string
	Branch        string
	State         string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	DurationSec   float64
	BuildOutput   string
	TestResults   string // JSON blob
	ArtifactsPath string
	TriggeredBy   string
	EventType     string // originating webhook event type, if any
	CreatedAt     time.Time
}

// WebhookEvent records one inbound delivery.
type WebhookEvent struct {
	ID             string
	ProjectID      string // empty when repository is unknown
	EventType      string
	DeliveryID     string
	RawPayload     string
	SignatureValid bool
	State          string
	ProcessedAt    *time.Time
	ErrorMessage   string
	CreatedAt      time.Time
}

// Agent is a named role slot surfaced to the UI.
type Agent struct {
	ID         string
	Name       string
	Type       string
	Status     string
	LastActive *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Job is an engine-level run record surfaced to the UI.
type Job struct {
	ID          string
	Type        string
	Status      string
	StartedAt   *time.Time
	CompletedAt *time.Time
	DurationSec float64
	ModelTag    string
	ErrorMsg    string
	CreatedAt   time.Time
}

// LogEntry is an append-only event record.
type LogEntry struct {
	ID        string
	At        time.Time
	Level     string
	AgentID   string
	JobID     string
	Message   string
	MetaJSON  string // structured metadata, JSON-encoded
}

// Metric is a time-stamped numeric sample.
type Metric struct {
	ID      string
	At      time.Time
	Type    string
	Value   float64
	AgentID string
}
