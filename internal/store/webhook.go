package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/nugget/thane-forge/internal/clk"
)

// ErrDuplicateDelivery is returned when a WebhookEvent with an
// already-seen delivery ID is created, enforcing replay safety.
var ErrDuplicateDelivery = errors.New("webhook delivery already recorded")

// CreateWebhookEvent persists a new inbound delivery record. Delivery
// ID uniqueness makes replayed deliveries a no-op at the store layer.
func (s *Store) CreateWebhookEvent(e *WebhookEvent) error {
	if e.ID == "" {
		e.ID = clk.NewID()
	}
	if e.State == "" {
		e.State = WebhookPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	sigValid := 0
	if e.SignatureValid {
		sigValid = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO webhook_events (id, project_id, event_type, delivery_id,
			raw_payload, signature_valid, state, processed_at, error_message,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.EventType, e.DeliveryID, e.RawPayload, sigValid,
		e.State, formatNullTime(e.ProcessedAt), e.ErrorMessage, formatTime(e.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicateDelivery
	}
	return err
}

// GetWebhookEventByDeliveryID looks up a delivery by its provider ID.
// Returns ErrNotFound when no matching delivery exists.
func (s *Store) GetWebhookEventByDeliveryID(deliveryID string) (*WebhookEvent, error) {
	row := s.db.QueryRow(webhookSelect+` WHERE delivery_id = ?`, deliveryID)
	e, err := scanWebhookEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// UpdateWebhookEvent updates the processing state of an existing event.
func (s *Store) UpdateWebhookEvent(e *WebhookEvent) error {
	sigValid := 0
	if e.SignatureValid {
		sigValid = 1
	}
	_, err := s.db.Exec(`
		UPDATE webhook_events SET project_id = ?, signature_valid = ?, state = ?,
			processed_at = ?, error_message = ?
		WHERE id = ?
	`, e.ProjectID, sigValid, e.State, formatNullTime(e.ProcessedAt), e.ErrorMessage, e.ID)
	return err
}

// ListWebhookEvents returns deliveries for a project (or all, when
// projectID is empty), newest first.
func (s *Store) ListWebhookEvents(projectID string) ([]*WebhookEvent, error) {
	var rows *sql.Rows
	var err error
	if projectID == "" {
		rows, err = s.db.Query(webhookSelect + ` ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(webhookSelect+` WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const webhookSelect = `
	SELECT id, project_id, event_type, delivery_id, raw_payload,
		signature_valid, state, processed_at, error_message, created_at
	FROM webhook_events
`

func scanWebhookEvent(row scannable) (*WebhookEvent, error) {
	return scanWebhookEventRow(row)
}

func scanWebhookEventRow(row scannable) (*WebhookEvent, error) {
	var e WebhookEvent
	var sigValid int
	var processedAt sql.NullString
	var createdAt string

	err := row.Scan(&e.ID, &e.ProjectID, &e.EventType, &e.DeliveryID, &e.RawPayload,
		&sigValid, &e.State, &processedAt, &e.ErrorMessage, &createdAt)
	if err != nil {
		return nil, err
	}

	e.SignatureValid = sigValid == 1
	e.ProcessedAt = parseNullTime(processedAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}
