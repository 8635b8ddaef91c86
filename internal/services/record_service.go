// Package services wires the record store's persistence and event
// publishing into one operation per API call.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finova/internal/amqp"
	"finova/internal/core"
	"finova/internal/storage"
)

// EventPublisher is the slice of the AMQP client the service needs.
type EventPublisher interface {
	PublishRecordEvent(ctx context.Context, event string, kind core.Kind, recordID, owner string) error
}

// RecordService persists records and emits change events. The database
// write is authoritative; a failed publish is logged and never fails the
// request, since the export worker's periodic pass picks up missed rows.
type RecordService struct {
	storage *storage.SQLiteRepository
	events  EventPublisher
}

func NewRecordService(storage *storage.SQLiteRepository, events EventPublisher) *RecordService {
	return &RecordService{
		storage: storage,
		events:  events,
	}
}

// Create validates and stores a new record, then announces it.
func (s *RecordService) Create(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	if err := rec.Validate(kind); err != nil {
		return core.Record{}, err
	}

	created, err := s.storage.CreateRecord(ctx, kind, rec)
	if err != nil {
		return core.Record{}, fmt.Errorf("save %s record: %w", kind, err)
	}

	s.publish(ctx, amqp.EventCreated, kind, created.ServerID, created.Owner)
	return created, nil
}

// Update overwrites an existing record's fields and announces the change.
func (s *RecordService) Update(ctx context.Context, kind core.Kind, id string, rec core.Record) (core.Record, error) {
	if err := rec.Validate(kind); err != nil {
		return core.Record{}, err
	}

	updated, err := s.storage.UpdateRecord(ctx, id, rec)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Record{}, err
		}
		return core.Record{}, fmt.Errorf("update %s record: %w", kind, err)
	}

	s.publish(ctx, amqp.EventUpdated, kind, id, updated.Owner)
	return updated, nil
}

// Delete removes a record and announces the deletion. The deleted record's
// kind and owner are returned so callers can invalidate derived state.
func (s *RecordService) Delete(ctx context.Context, id string) (core.Kind, string, error) {
	stored, err := s.storage.DeleteRecord(ctx, id)
	if err != nil {
		return "", "", err
	}

	s.publish(ctx, amqp.EventDeleted, stored.Kind, id, stored.Record.Owner)
	return stored.Kind, stored.Record.Owner, nil
}

// List returns an owner's records of one kind, newest first.
func (s *RecordService) List(ctx context.Context, kind core.Kind, owner string) ([]core.Record, error) {
	return s.storage.ListRecords(ctx, kind, owner)
}

func (s *RecordService) publish(ctx context.Context, event string, kind core.Kind, recordID, owner string) {
	if s.events == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping record event",
			"event", event, "kind", kind, "record_id", recordID)
		return
	}
	if err := s.events.PublishRecordEvent(ctx, event, kind, recordID, owner); err != nil {
		// Store write already succeeded; the export worker catches up later.
		slog.ErrorContext(ctx, "Failed to publish record event",
			"error", err, "event", event, "kind", kind, "record_id", recordID)
	}
}
