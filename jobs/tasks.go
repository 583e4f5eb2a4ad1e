package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stratus-console/stratus/internal/audit"
	"github.com/stratus-console/stratus/internal/bus"
	jobmetrics "github.com/stratus-console/stratus/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeProjectionTick publishes a change notification so every
	// backend instance refreshes its projection. Covers bus events missed
	// while an instance was down; the refresh itself is watermark-gated,
	// so a tick against an unchanged table set is a no-op everywhere.
	TaskTypeProjectionTick = "authz:projection_tick"
	// TaskTypeAuditPrune trims audit_logs to the retention window.
	TaskTypeAuditPrune = "authz:audit_prune"
)

// AuditPrunePayload configures one audit prune run.
type AuditPrunePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewProjectionTickTask constructs the periodic refresh task.
func NewProjectionTickTask() *asynq.Task {
	return asynq.NewTask(TaskTypeProjectionTick, nil)
}

// NewAuditPruneTask constructs an audit prune task.
func NewAuditPruneTask(payload AuditPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditPrune, data), nil
}

// ProjectionTickHandler publishes a synthetic change event on the bus.
func ProjectionTickHandler(b *bus.Bus, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("projection_tick")
		if err := tracker.End(b.Publish(ctx, bus.Event{Action: "tick"})); err != nil {
			return err
		}
		if logger != nil {
			logger.Debug("projection tick published")
		}
		return nil
	}
}

// AuditPruneHandler deletes audit rows past the retention window.
func AuditPruneHandler(writer *audit.Writer, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("audit_prune")
		removed, err := writer.Prune(ctx, payload.Retention)
		if err != nil {
			return tracker.End(err)
		}
		metrics.AddPruned(removed)
		if logger != nil {
			logger.Info("audit pruned", slog.Int64("rows", removed))
		}
		return tracker.End(nil)
	}
}
