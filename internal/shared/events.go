package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventAction enumerates recorded workflow actions.
type EventAction string

const (
	// EventOTPRequested marks an OTP issuance.
	EventOTPRequested EventAction = "OTP_REQUESTED"
	// EventOTPVerified marks a successful code verification.
	EventOTPVerified EventAction = "OTP_VERIFIED"
	// EventSigned marks a completed signature link.
	EventSigned EventAction = "SIGNED"
)

// Event is a single audit record scoped to a module and referenced entity.
type Event struct {
	ID     int64
	Module string
	RefID  uuid.UUID
	Actor  string
	Action EventAction
	Note   string
	At     time.Time
}

// EventRecorder persists workflow history for audit purposes.
type EventRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEventRecorder constructs an EventRecorder.
func NewEventRecorder(pool *pgxpool.Pool, logger *slog.Logger) *EventRecorder {
	return &EventRecorder{pool: pool, logger: logger}
}

// Record writes an event to the database. Audit writes are best-effort for
// callers: they log the error and move on.
func (r *EventRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil {
		return errors.New("event recorder not initialised")
	}
	if ev.Module == "" {
		return errors.New("event module required")
	}
	if ev.RefID == uuid.Nil {
		return errors.New("event ref id required")
	}
	if ev.Action == "" {
		return errors.New("event action required")
	}
	var at any
	if !ev.At.IsZero() {
		at = ev.At
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO workflow_events (module, ref_id, actor, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`,
		ev.Module, ev.RefID, ev.Actor, string(ev.Action), ev.Note, at)
	if err != nil {
		r.logger.Error("record workflow event", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns events for a module/ref ordered oldest first.
func (r *EventRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]Event, error) {
	if r == nil {
		return nil, errors.New("event recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor, action, note, at
FROM workflow_events WHERE module=$1 AND ref_id=$2 ORDER BY at ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var ev Event
		var action string
		if err := rows.Scan(&ev.ID, &ev.Module, &ev.RefID, &ev.Actor, &action, &ev.Note, &ev.At); err != nil {
			return nil, err
		}
		ev.Action = EventAction(action)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
