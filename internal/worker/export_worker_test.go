package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finova/internal/amqp"
	"finova/internal/core"
	"finova/internal/export/memory"
	"finova/internal/storage"
)

func newTestWorker(t *testing.T) (*ExportWorker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := memory.New()
	return NewExportWorker(repo, store, 10), repo, store
}

func createRecord(t *testing.T, repo *storage.SQLiteRepository, source string) core.Record {
	t.Helper()

	amount, err := core.ParseAmount("100.50")
	if err != nil {
		t.Fatal(err)
	}
	created, err := repo.CreateRecord(context.Background(), core.KindBudget, core.Record{
		Owner:  "tim",
		Date:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Amount: amount,
		Source: source,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return created
}

func TestHandleCreatedEventExports(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()

	created := createRecord(t, repo, "Salary")
	msg := amqp.NewRecordEvent(amqp.EventCreated, core.KindBudget, created.ServerID, "tim")
	if err := w.HandleRecordEvent(ctx, msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 1 || rows[0].Record.ServerID != created.ServerID {
		t.Fatalf("rows = %+v", rows)
	}

	pending, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("still pending: %+v", pending)
	}
}

func TestHandleUpdatedEventReplacesRow(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()

	created := createRecord(t, repo, "Salary")
	if err := w.HandleRecordEvent(ctx, amqp.NewRecordEvent(amqp.EventCreated, core.KindBudget, created.ServerID, "tim")); err != nil {
		t.Fatal(err)
	}

	changed := created
	changed.Source = "Bonus"
	if _, err := repo.UpdateRecord(ctx, created.ServerID, changed); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleRecordEvent(ctx, amqp.NewRecordEvent(amqp.EventUpdated, core.KindBudget, created.ServerID, "tim")); err != nil {
		t.Fatal(err)
	}

	rows := store.Rows()
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want the replaced row only", rows)
	}
	if rows[0].Record.Source != "Bonus" {
		t.Errorf("exported source = %q", rows[0].Record.Source)
	}
}

func TestHandleDeletedEventRemovesRow(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()

	created := createRecord(t, repo, "Salary")
	if err := w.HandleRecordEvent(ctx, amqp.NewRecordEvent(amqp.EventCreated, core.KindBudget, created.ServerID, "tim")); err != nil {
		t.Fatal(err)
	}
	if err := w.HandleRecordEvent(ctx, amqp.NewRecordEvent(amqp.EventDeleted, core.KindBudget, created.ServerID, "tim")); err != nil {
		t.Fatal(err)
	}

	if rows := store.Rows(); len(rows) != 0 {
		t.Errorf("rows = %+v after delete", rows)
	}
}

func TestHandleEventForMissingRecord(t *testing.T) {
	w, _, store := newTestWorker(t)

	msg := amqp.NewRecordEvent(amqp.EventCreated, core.KindBudget, "no-such-id", "tim")
	if err := w.HandleRecordEvent(context.Background(), msg); err != nil {
		t.Fatalf("missing record should be skipped, got %v", err)
	}
	if rows := store.Rows(); len(rows) != 0 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestProcessPendingExportsOldestFirst(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()

	first := createRecord(t, repo, "Salary")
	second := createRecord(t, repo, "Freelance")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	rows := store.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Record.ServerID != first.ServerID || rows[1].Record.ServerID != second.ServerID {
		t.Errorf("export order = [%s, %s], want oldest first",
			rows[0].Record.ServerID, rows[1].Record.ServerID)
	}

	// Second pass exports nothing new.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatal(err)
	}
	if rows := store.Rows(); len(rows) != 2 {
		t.Errorf("rows = %+v after second pass", rows)
	}
}

type failingExporter struct{}

func (failingExporter) Append(context.Context, core.Kind, core.Record) (string, error) {
	return "", errors.New("target unavailable")
}

func (failingExporter) Remove(context.Context, string) error {
	return errors.New("target unavailable")
}

func TestExportFailureMarksError(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	w := NewExportWorker(repo, failingExporter{}, 10)
	ctx := context.Background()

	created := createRecord(t, repo, "Salary")
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	// The row left the pending queue with an error status; it is not
	// retried until something resets it.
	pending, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, stored := range pending {
		if stored.Record.ServerID == created.ServerID {
			t.Errorf("failed record still pending: %+v", stored)
		}
	}
}

func TestStartupCheckDrainsQueue(t *testing.T) {
	w, repo, store := newTestWorker(t)
	ctx := context.Background()

	createRecord(t, repo, "Salary")
	createRecord(t, repo, "Freelance")

	if err := w.StartupCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if rows := store.Rows(); len(rows) != 2 {
		t.Errorf("rows = %+v", rows)
	}
}
