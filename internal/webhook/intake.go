// Package webhook ingests inbound GitHub webhook deliveries: verifying
// the signature, persisting the delivery, deciding whether it should
// trigger a build, and dispatching that build asynchronously.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v69/github"

	"github.com/nugget/thane-forge/internal/build"
	"github.com/nugget/thane-forge/internal/repo"
	"github.com/nugget/thane-forge/internal/store"
)

const (
	deliveryIDHeader    = "X-GitHub-Delivery"
	signatureHeader256  = "X-Hub-Signature-256"
	signatureHeaderSHA1 = "X-Hub-Signature"
)

// ErrInvalidSignature is returned by Receive when the computed HMAC
// does not match the signature header.
var ErrInvalidSignature = errors.New("webhook: signature verification failed")

// Result is what the HTTP layer reports back to the caller
// immediately, before any downstream work runs.
type Result struct {
	EventID   string // the provider's delivery ID, not the store's internal event ID
	EventType string
	Queued    bool // true once the delivery is recorded, regardless of whether it triggers a build
}

// Intake processes one webhook delivery at a time.
type Intake struct {
	logger  *slog.Logger
	store   *store.Store
	repo    *repo.Manager
	builder *build.Orchestrator
}

// New creates an Intake.
func New(logger *slog.Logger, st *store.Store, repoMgr *repo.Manager, builder *build.Orchestrator) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{logger: logger, store: st, repo: repoMgr, builder: builder}
}

// Receive reads, verifies, and persists one delivery, then — for a
// build-triggering event against a known project — launches the
// build-decision pipeline in the background before returning. The
// returned Result reflects only the intake step; anything that fails
// afterward is recorded on the WebhookEvent/Build/Project records, not
// surfaced to the caller.
func (in *Intake) Receive(ctx context.Context, r *http.Request) (*Result, error) {
	eventType := github.WebHookType(r)
	deliveryID := r.Header.Get(deliveryIDHeader)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("webhook: reading body: %w", err)
	}

	slug, d, err := classify(eventType, body)
	if err != nil {
		in.logger.Warn("webhook: could not parse payload", "event_type", eventType, "error", err)
	}

	var project *store.Project
	if slug != "" {
		project, err = in.store.GetProjectBySlug(slug)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("webhook: looking up project %q: %w", slug, err)
		}
	}

	sigValid := in.verifySignature(r, project, body)

	event := &store.WebhookEvent{
		EventType:      eventType,
		DeliveryID:     deliveryID,
		RawPayload:     string(body),
		SignatureValid: sigValid,
		State:          store.WebhookPending,
	}
	if project != nil {
		event.ProjectID = project.ID
	}

	if !sigValid {
		event.State = store.WebhookFailed
		event.ErrorMessage = ErrInvalidSignature.Error()
		if err := in.store.CreateWebhookEvent(event); err != nil && !errors.Is(err, store.ErrDuplicateDelivery) {
			return nil, fmt.Errorf("webhook: recording rejected delivery: %w", err)
		}
		return nil, ErrInvalidSignature
	}

	if err := in.store.CreateWebhookEvent(event); err != nil {
		if errors.Is(err, store.ErrDuplicateDelivery) {
			return &Result{EventID: deliveryID, EventType: eventType, Queued: true}, nil
		}
		return nil, fmt.Errorf("webhook: recording delivery: %w", err)
	}

	if project == nil || !d.trigger {
		event.State = store.WebhookSuccess
		if err := in.store.UpdateWebhookEvent(event); err != nil {
			in.logger.Error("webhook: recording no-op outcome", "event_id", event.ID, "error", err)
		}
		return &Result{EventID: deliveryID, EventType: eventType, Queued: true}, nil
	}

	go in.dispatch(context.Background(), event, project, d, eventType)

	return &Result{EventID: deliveryID, EventType: eventType, Queued: true}, nil
}

// dispatch runs the sync-then-build sequence off the request path.
func (in *Intake) dispatch(ctx context.Context, event *store.WebhookEvent, project *store.Project, d decision, eventType string) {
	if err := in.repo.Update(ctx, project.ClonePath, d.branch); err != nil {
		in.fail(event, fmt.Errorf("syncing repository: %w", err))
		return
	}

	project.LastCommit = d.commitHash
	now := time.Now()
	project.LastSyncAt = &now
	if err := in.store.UpdateProject(project); err != nil {
		in.fail(event, fmt.Errorf("updating project: %w", err))
		return
	}

	created, err := in.store.CreateBuild(&store.Build{
		ProjectID:     project.ID,
		CommitHash:    d.commitHash,
		CommitMessage: d.commitMessage,
		CommitAuthor:  d.commitAuthor,
		Branch:        d.branch,
		TriggeredBy:   store.TriggerWebhook,
		EventType:     eventType,
	})
	if err != nil {
		in.fail(event, fmt.Errorf("creating build: %w", err))
		return
	}

	go func() {
		if err := in.builder.ExecuteBuild(context.Background(), created.ID, false, true); err != nil {
			in.logger.Error("webhook: build execution error", "build_id", created.ID, "error", err)
		}
	}()

	event.State = store.WebhookSuccess
	if err := in.store.UpdateWebhookEvent(event); err != nil {
		in.logger.Error("webhook: recording success", "event_id", event.ID, "error", err)
	}
}

func (in *Intake) fail(event *store.WebhookEvent, err error) {
	event.State = store.WebhookFailed
	event.ErrorMessage = err.Error()
	if uerr := in.store.UpdateWebhookEvent(event); uerr != nil {
		in.logger.Error("webhook: recording failure", "event_id", event.ID, "error", uerr)
	}
	in.logger.Error("webhook dispatch failed", "event_id", event.ID, "error", err)
}

// verifySignature reports whether body's HMAC-SHA-256 under the
// project's configured secret matches the X-Hub-Signature-256 header;
// when that header is absent, the SHA-1 X-Hub-Signature header is
// checked instead. A project
// with no configured secret (or no known project) is recorded as
// valid, per the skip-when-no-secret rule.
func (in *Intake) verifySignature(r *http.Request, project *store.Project, body []byte) bool {
	if project == nil || project.WebhookSecret == "" {
		return true
	}
	sig := r.Header.Get(signatureHeader256)
	if sig == "" {
		sig = r.Header.Get(signatureHeaderSHA1)
	}
	if sig == "" {
		return false
	}
	return github.ValidateSignature(sig, body, []byte(project.WebhookSecret)) == nil
}

// decision is the outcome of applying the build-decision table to one
// parsed payload.
type decision struct {
	trigger       bool
	branch        string
	commitHash    string
	commitMessage string
	commitAuthor  string
}

// classify parses the payload and extracts both the repository's
// canonical slug (for project lookup) and the build decision, in one
// pass so callers never need to re-parse the same body.
func classify(eventType string, body []byte) (slug string, d decision, err error) {
	raw, err := github.ParseWebHook(eventType, body)
	if err != nil {
		return "", decision{}, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}

	switch ev := raw.(type) {
	case *github.PushEvent:
		slug = ev.GetRepo().GetFullName()
		d.trigger = true
		d.branch = strings.TrimPrefix(ev.GetRef(), "refs/heads/")
		if hc := ev.GetHeadCommit(); hc != nil {
			d.commitHash = hc.GetID()
			d.commitMessage = hc.GetMessage()
			d.commitAuthor = hc.GetAuthor().GetName()
		}
	case *github.PullRequestEvent:
		slug = ev.GetRepo().GetFullName()
		switch ev.GetAction() {
		case "opened", "synchronize", "reopened":
			d.trigger = true
			if pr := ev.GetPullRequest(); pr != nil {
				d.branch = pr.GetHead().GetRef()
				d.commitHash = pr.GetHead().GetSHA()
				d.commitMessage = pr.GetTitle()
				d.commitAuthor = pr.GetUser().GetLogin()
			}
		}
	case *github.PingEvent:
		slug = ev.GetRepo().GetFullName()
		// ping never triggers a build; the caller records success.
	default:
		// unsupported event type: no repository context, no trigger.
	}
	return slug, d, nil
}
