// Package audit persists role/user change events for record keeping. It is
// the second consumer of the change bus, next to the projection refresher.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-console/stratus/internal/bus"
)

// Entry represents a record stored in audit_logs.
type Entry struct {
	ActorID  int64
	Entity   string
	EntityID int64
	Action   string
	Meta     map[string]any
	At       time.Time
}

// Writer writes records into audit_logs.
type Writer struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewWriter returns a new Writer.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// Record persists the log entry.
func (w *Writer) Record(ctx context.Context, entry Entry) error {
	if w == nil || w.pool == nil {
		return errors.New("audit writer not initialised")
	}
	if entry.Entity == "" || entry.Action == "" {
		return errors.New("audit entry requires entity and action")
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, entity, entity_id, action, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Entity, entry.EntityID, entry.Action, metaJSON, at)
	return err
}

// HandleEvent is the bus subscriber. Zero-valued events (undecodable
// payloads) are skipped; they only matter to refresh-style consumers.
func (w *Writer) HandleEvent(ctx context.Context, ev bus.Event) {
	if ev.Entity == "" {
		return
	}
	entry := Entry{
		ActorID:  ev.ActorID,
		Entity:   ev.Entity,
		EntityID: ev.EntityID,
		Action:   ev.Action,
		Meta:     map[string]any{"operate_id": ev.OperateID},
		At:       time.Now().UTC(),
	}
	if err := w.Record(ctx, entry); err != nil && w.logger != nil {
		w.logger.Warn("audit record", slog.Any("error", err))
	}
}

// Prune deletes audit rows older than the retention window and returns the
// number removed.
func (w *Writer) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if w == nil || w.pool == nil {
		return 0, errors.New("audit writer not initialised")
	}
	cutoff := time.Now().UTC().Add(-retention)
	tag, err := w.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
