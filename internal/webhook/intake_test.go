package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/thane-forge/internal/build"
	"github.com/nugget/thane-forge/internal/repo"
	"github.com/nugget/thane-forge/internal/store"
	"github.com/nugget/thane-forge/internal/workflow"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "webhook_test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeEngine struct{}

func (fakeEngine) Run(ctx context.Context, projectPath, target string, flashDevice, runQEMU bool, jobID string) (*workflow.Result, error) {
	return &workflow.Result{Success: true, Artifacts: map[string]any{}}, nil
}

func newTestIntake(t *testing.T, st *store.Store) *Intake {
	t.Helper()
	builder := build.New(nil, st, fakeEngine{})
	return New(nil, st, repo.New(0), builder)
}

const pushPayload = `{
	"ref": "refs/heads/main",
	"repository": {"full_name": "acme/firmware-demo"},
	"head_commit": {"id": "c2", "message": "fix sensor init", "author": {"name": "octocat"}}
}`

const pingPayload = `{"zen": "hello", "repository": {"full_name": "acme/firmware-demo"}}`

const pullRequestPayload = `{
	"action": "opened",
	"repository": {"full_name": "acme/firmware-demo"},
	"pull_request": {"title": "add sensor", "head": {"ref": "feature/sensor", "sha": "pr1"}, "user": {"login": "octocat"}}
}`

func newRequest(t *testing.T, eventType, deliveryID, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/github/webhook", strings.NewReader(body))
	r.Header.Set("X-GitHub-Event", eventType)
	r.Header.Set("X-GitHub-Delivery", deliveryID)
	return r
}

func TestReceivePingRecordsSuccessWithoutBuild(t *testing.T) {
	st := newTestStore(t)
	project := &store.Project{Name: "firmware-demo", RemoteURL: "https://example.com/firmware-demo.git", Slug: "acme/firmware-demo", ClonePath: t.TempDir(), State: store.ProjectActive}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	in := newTestIntake(t, st)
	result, err := in.Receive(context.Background(), newRequest(t, "ping", "d1", pingPayload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !result.Queued {
		t.Error("Queued = false, want true: the response is sent before downstream processing regardless of whether a build is triggered")
	}
	if result.EventID != "d1" {
		t.Errorf("EventID = %q, want the delivery ID d1", result.EventID)
	}

	event, err := st.GetWebhookEventByDeliveryID("d1")
	if err != nil {
		t.Fatalf("GetWebhookEventByDeliveryID: %v", err)
	}
	if event.State != store.WebhookSuccess {
		t.Errorf("State = %q, want %q", event.State, store.WebhookSuccess)
	}

	builds, err := st.ListBuilds(project.ID)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(builds) != 0 {
		t.Errorf("len(builds) = %d, want 0 after a ping event", len(builds))
	}
}

func TestReceiveUnknownProjectRecordsEventWithoutAction(t *testing.T) {
	st := newTestStore(t)
	in := newTestIntake(t, st)

	result, err := in.Receive(context.Background(), newRequest(t, "push", "d2", pushPayload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !result.Queued {
		t.Error("Queued = false, want true even when no project matches the payload slug")
	}

	event, err := st.GetWebhookEventByDeliveryID("d2")
	if err != nil {
		t.Fatalf("GetWebhookEventByDeliveryID: %v", err)
	}
	if event.State != store.WebhookSuccess {
		t.Errorf("State = %q, want %q", event.State, store.WebhookSuccess)
	}
	if event.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", event.ProjectID)
	}
}

func TestReceivePushQueuesDispatchForKnownProject(t *testing.T) {
	st := newTestStore(t)
	project := &store.Project{Name: "firmware-demo", RemoteURL: "https://example.com/firmware-demo.git", Slug: "acme/firmware-demo", ClonePath: t.TempDir(), State: store.ProjectActive}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	in := newTestIntake(t, st)
	result, err := in.Receive(context.Background(), newRequest(t, "push", "d3", pushPayload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !result.Queued {
		t.Error("Queued = false, want true for a push event against a known project")
	}

	// The dispatch step runs in the background, so only the
	// immediately-returned Result is deterministic here; its terminal
	// WebhookEvent state is exercised directly via dispatch in
	// TestDispatchSyncFailureRecordsEventAsFailed below.
	event, err := st.GetWebhookEventByDeliveryID("d3")
	if err != nil {
		t.Fatalf("GetWebhookEventByDeliveryID: %v", err)
	}
	if !event.SignatureValid {
		t.Error("SignatureValid = false, want true when no secret is configured")
	}
}

func TestDispatchSyncFailureRecordsEventAsFailed(t *testing.T) {
	st := newTestStore(t)
	project := &store.Project{Name: "firmware-demo", RemoteURL: "https://example.com/firmware-demo.git", Slug: "acme/firmware-demo", ClonePath: t.TempDir(), State: store.ProjectActive}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	event := &store.WebhookEvent{EventType: "push", DeliveryID: "d-dispatch", SignatureValid: true, State: store.WebhookPending, ProjectID: project.ID}
	if err := st.CreateWebhookEvent(event); err != nil {
		t.Fatalf("CreateWebhookEvent: %v", err)
	}

	in := newTestIntake(t, st)
	d := decision{trigger: true, branch: "main", commitHash: "c2", commitMessage: "fix sensor init", commitAuthor: "octocat"}
	in.dispatch(context.Background(), event, project, d, "push")

	got, err := st.GetWebhookEventByDeliveryID("d-dispatch")
	if err != nil {
		t.Fatalf("GetWebhookEventByDeliveryID: %v", err)
	}
	if got.State != store.WebhookFailed {
		t.Errorf("State = %q, want %q when the clone path has no git repository to sync", got.State, store.WebhookFailed)
	}
}

func TestReceiveRejectsDuplicateDeliveryID(t *testing.T) {
	st := newTestStore(t)
	project := &store.Project{Name: "firmware-demo", RemoteURL: "https://example.com/firmware-demo.git", Slug: "acme/firmware-demo", ClonePath: t.TempDir(), State: store.ProjectActive}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	in := newTestIntake(t, st)
	if _, err := in.Receive(context.Background(), newRequest(t, "ping", "d4", pingPayload)); err != nil {
		t.Fatalf("first Receive: %v", err)
	}
	result, err := in.Receive(context.Background(), newRequest(t, "ping", "d4", pingPayload))
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if !result.Queued {
		t.Error("Queued = false, want true for a replayed delivery ID")
	}

	events, err := st.ListWebhookEvents(project.ID)
	if err != nil {
		t.Fatalf("ListWebhookEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("len(events) = %d, want 1 after a replayed delivery", len(events))
	}
}

func TestReceiveInvalidSignatureIsRejected(t *testing.T) {
	st := newTestStore(t)
	project := &store.Project{Name: "firmware-demo", RemoteURL: "https://example.com/firmware-demo.git", Slug: "acme/firmware-demo", ClonePath: t.TempDir(), State: store.ProjectActive, WebhookSecret: "topsecret"}
	if err := st.CreateProject(project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	in := newTestIntake(t, st)
	r := newRequest(t, "push", "d5", pushPayload)
	r.Header.Set(signatureHeader256, "sha256=not-a-real-signature")

	_, err := in.Receive(context.Background(), r)
	if err != ErrInvalidSignature {
		t.Fatalf("Receive error = %v, want %v", err, ErrInvalidSignature)
	}

	event, err := st.GetWebhookEventByDeliveryID("d5")
	if err != nil {
		t.Fatalf("GetWebhookEventByDeliveryID: %v", err)
	}
	if event.State != store.WebhookFailed || event.SignatureValid {
		t.Errorf("event = %+v, want failed with signature_valid=false", event)
	}
}

func TestClassifyPush(t *testing.T) {
	slug, d, err := classify("push", []byte(pushPayload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if slug != "acme/firmware-demo" {
		t.Errorf("slug = %q", slug)
	}
	if !d.trigger || d.branch != "main" || d.commitHash != "c2" || d.commitAuthor != "octocat" {
		t.Errorf("decision = %+v", d)
	}
}

func TestClassifyPullRequestOnlyTriggersForRelevantActions(t *testing.T) {
	slug, d, err := classify("pull_request", []byte(pullRequestPayload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if slug != "acme/firmware-demo" || !d.trigger || d.branch != "feature/sensor" {
		t.Errorf("decision = %+v, slug = %q", d, slug)
	}

	closedPayload := strings.Replace(pullRequestPayload, `"action": "opened"`, `"action": "closed"`, 1)
	_, d2, err := classify("pull_request", []byte(closedPayload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d2.trigger {
		t.Error("expected closed pull_request action not to trigger a build")
	}
}

func TestClassifyPingNeverTriggers(t *testing.T) {
	slug, d, err := classify("ping", []byte(pingPayload))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if slug != "acme/firmware-demo" || d.trigger {
		t.Errorf("decision = %+v, slug = %q", d, slug)
	}
}
