// Package worker moves confirmed records from SQLite to the export target,
// driven by AMQP events with a periodic catch-up pass.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finova/internal/amqp"
	"finova/internal/export"
	"finova/internal/storage"
)

// ExportWorker exports records marked pending in SQLite.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	exporter  export.Exporter
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, exporter export.Exporter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleRecordEvent processes a single record event from AMQP.
func (w *ExportWorker) HandleRecordEvent(ctx context.Context, msg *amqp.RecordEventMessage) error {
	slog.InfoContext(ctx, "Processing record event",
		"event", msg.Event,
		"record_id", msg.RecordID,
		"kind", msg.Kind)

	switch msg.Event {
	case amqp.EventDeleted:
		if err := w.exporter.Remove(ctx, msg.RecordID); err != nil {
			return fmt.Errorf("remove exported record: %w", err)
		}
		return nil

	case amqp.EventCreated, amqp.EventUpdated:
		stored, err := w.storage.GetRecord(ctx, msg.RecordID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted before we got here; the delete event will clean up.
			slog.WarnContext(ctx, "Record gone before export, skipping",
				"record_id", msg.RecordID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get record from storage: %w", err)
		}

		if msg.Event == amqp.EventUpdated {
			// Replace the previously exported row, if any.
			if err := w.exporter.Remove(ctx, msg.RecordID); err != nil {
				return fmt.Errorf("remove stale exported record: %w", err)
			}
		}
		return w.exportRecord(ctx, stored)

	default:
		slog.WarnContext(ctx, "Unknown record event, dropping", "event", msg.Event)
		return nil
	}
}

// exportRecord appends one stored record to the export target and updates
// its export status.
func (w *ExportWorker) exportRecord(ctx context.Context, stored storage.StoredRecord) error {
	id := stored.Record.ServerID

	ref, err := w.exporter.Append(ctx, stored.Kind, stored.Record)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "record_id", id, "error", markErr)
		}
		return fmt.Errorf("append to export target: %w", err)
	}

	if err := w.storage.MarkExported(ctx, id); err != nil {
		// The export itself worked; the catch-up pass may re-export.
		slog.ErrorContext(ctx, "Failed to mark as exported", "record_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Record exported",
		"record_id", id,
		"kind", stored.Kind,
		"sheet_ref", ref)
	return nil
}

// ProcessPending exports records still marked pending. This is the backup
// mechanism for lost AMQP messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, stored := range pending {
		if err := w.exportRecord(ctx, stored); err != nil {
			slog.ErrorContext(ctx, "Failed to export record",
				"record_id", stored.Record.ServerID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains the pending queue once at worker startup, recovering
// from missed events or downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, stored := range pending {
		if err := w.exportRecord(ctx, stored); err != nil {
			slog.ErrorContext(ctx, "Failed to export record during startup",
				"record_id", stored.Record.ServerID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}

// RunPeriodic runs the catch-up pass on a ticker until the context ends.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export pass failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
