package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finova/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "finova.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRecord(t *testing.T, owner, source, amount string) core.Record {
	t.Helper()
	a, err := core.ParseAmount(amount)
	if err != nil {
		t.Fatal(err)
	}
	return core.Record{
		Owner:  owner,
		Date:   time.Now().UTC(),
		Amount: a,
		Source: source,
	}
}

func TestCreateAndListRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "alice", "Salary", "5000"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ServerID == "" {
		t.Fatal("create should assign a server id")
	}
	if first.ClientID != 0 {
		t.Error("client ids must not be persisted")
	}

	second, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "alice", "Bonus", "750.50"))
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	// A different owner and a different kind must not leak in.
	if _, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "bob", "Salary", "1")); err != nil {
		t.Fatal(err)
	}
	exp := testRecord(t, "alice", "", "20")
	exp.Reason = "Groceries"
	if _, err := repo.CreateRecord(ctx, core.KindExpense, exp); err != nil {
		t.Fatal(err)
	}

	records, err := repo.ListRecords(ctx, core.KindBudget, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("list returned %d records, want 2", len(records))
	}
	// Newest first.
	if records[0].ServerID != second.ServerID || records[1].ServerID != first.ServerID {
		t.Errorf("list order wrong: got %s, %s", records[0].ServerID, records[1].ServerID)
	}
	if !records[1].Amount.Equal(first.Amount) {
		t.Errorf("amount round trip: got %s, want %s", records[1].Amount, first.Amount)
	}
}

func TestUpdateRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "alice", "Salary", "5000"))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkExported(ctx, created.ServerID); err != nil {
		t.Fatal(err)
	}

	updated := created
	updated.Source = "Freelance"
	if _, err := repo.UpdateRecord(ctx, created.ServerID, updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, err := repo.GetRecord(ctx, created.ServerID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Record.Source != "Freelance" {
		t.Errorf("source = %s after update", stored.Record.Source)
	}
	if stored.ExportStatus != ExportPending {
		t.Errorf("update should re-enter the export queue, status = %s", stored.ExportStatus)
	}

	if _, err := repo.UpdateRecord(ctx, "missing", updated); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing record: %v, want ErrNotFound", err)
	}
}

func TestDeleteRecordHidesFromList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateRecord(ctx, core.KindExpense, func() core.Record {
		r := testRecord(t, "alice", "", "42")
		r.Reason = "Taxi"
		return r
	}())
	if err != nil {
		t.Fatal(err)
	}

	stored, err := repo.DeleteRecord(ctx, created.ServerID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if stored.Kind != core.KindExpense {
		t.Errorf("deleted record kind = %s", stored.Kind)
	}

	if _, err := repo.GetRecord(ctx, created.ServerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v, want ErrNotFound", err)
	}
	records, err := repo.ListRecords(ctx, core.KindExpense, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("deleted record still listed: %v", records)
	}

	if _, err := repo.DeleteRecord(ctx, created.ServerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}

func TestExportQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "alice", "Salary", "1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.CreateRecord(ctx, core.KindBudget, testRecord(t, "alice", "Bonus", "2"))
	if err != nil {
		t.Fatal(err)
	}

	pending, err := repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	// Oldest first.
	if pending[0].Record.ServerID != a.ServerID {
		t.Errorf("pending order wrong, head = %s", pending[0].Record.ServerID)
	}

	if err := repo.MarkExported(ctx, a.ServerID); err != nil {
		t.Fatal(err)
	}
	if err := repo.MarkExportError(ctx, b.ServerID); err != nil {
		t.Fatal(err)
	}

	pending, err = repo.PendingExports(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after marking = %d, want 0", len(pending))
	}
}

func TestUserCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, core.User{FullName: "Alice Doe", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" {
		t.Fatal("user id not assigned")
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Email != "alice@example.com" {
		t.Fatalf("list users = %+v", users)
	}

	updated, err := repo.UpdateUser(ctx, u.ID, map[string]any{"fullname": "Alice Smith", "is_admin": true})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if updated.FullName != "Alice Smith" || !updated.IsAdmin {
		t.Errorf("update result = %+v", updated)
	}
	// Email untouched by partial update.
	if updated.Email != "alice@example.com" {
		t.Errorf("email changed unexpectedly: %s", updated.Email)
	}

	if _, err := repo.UpdateUser(ctx, u.ID, map[string]any{"email": ""}); err == nil {
		t.Error("blank email should fail validation")
	}

	if err := repo.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := repo.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v, want ErrNotFound", err)
	}
}
