package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finova/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record or user does not exist (or was
// deleted).
var ErrNotFound = errors.New("not found")

// ExportStatus values for the record export queue.
const (
	ExportPending = "pending"
	ExportDone    = "exported"
	ExportFailed  = "error"
)

// SQLiteRepository is the record store's persistence layer: one table for
// financial records of all kinds and one for users.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// StoredRecord is a record row together with its kind and export state.
type StoredRecord struct {
	Kind         core.Kind
	Record       core.Record
	ExportStatus string
	CreatedAt    time.Time
}

const recordColumns = `id, kind, user_id, date, amount, source, reason, company, type, returns, name, deadline, progress, export_status, created_at`

// CreateRecord inserts a new record, assigning its server id. The stored
// record is returned with the id set; the export queue starts at pending.
func (r *SQLiteRepository) CreateRecord(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	rec.ServerID = uuid.NewString()
	rec.ClientID = 0 // client ids never reach persistent storage

	var returns sql.NullString
	if rec.Returns != nil {
		returns = sql.NullString{String: rec.Returns.String(), Valid: true}
	}
	var progress sql.NullFloat64
	if rec.Progress != nil {
		progress = sql.NullFloat64{Float64: *rec.Progress, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, user_id, date, amount, source, reason, company, type, returns, name, deadline, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ServerID, string(kind), rec.Owner, rec.Date.UTC().Format(time.RFC3339Nano),
		rec.Amount.String(), rec.Source, rec.Reason, rec.Company, rec.Type,
		returns, rec.Name, rec.Deadline, progress,
	)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert %s record: %w", kind, err)
	}

	slog.InfoContext(ctx, "Record saved",
		"kind", kind,
		"record_id", rec.ServerID,
		"owner", rec.Owner,
		"amount", rec.Amount.String())

	return rec, nil
}

// GetRecord returns a single record by server id.
func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (StoredRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ? AND deleted = 0`, id)

	stored, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredRecord{}, ErrNotFound
	}
	if err != nil {
		return StoredRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return stored, nil
}

// ListRecords returns an owner's records of one kind, newest first. This is
// the order clients prepend in, so rebuilt mirrors match live ones.
func (r *SQLiteRepository) ListRecords(ctx context.Context, kind core.Kind, owner string) ([]core.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE kind = ? AND user_id = ? AND deleted = 0
		ORDER BY rowid DESC`,
		string(kind), owner)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", kind, err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		stored, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s record: %w", kind, err)
		}
		records = append(records, stored.Record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}

	return records, nil
}

// UpdateRecord overwrites a record's fields, keeping identity and kind. The
// row re-enters the export queue as pending.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, id string, rec core.Record) (core.Record, error) {
	var returns sql.NullString
	if rec.Returns != nil {
		returns = sql.NullString{String: rec.Returns.String(), Valid: true}
	}
	var progress sql.NullFloat64
	if rec.Progress != nil {
		progress = sql.NullFloat64{Float64: *rec.Progress, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE records
		SET date = ?, amount = ?, source = ?, reason = ?, company = ?, type = ?,
		    returns = ?, name = ?, deadline = ?, progress = ?,
		    export_status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted = 0`,
		rec.Date.UTC().Format(time.RFC3339Nano), rec.Amount.String(),
		rec.Source, rec.Reason, rec.Company, rec.Type,
		returns, rec.Name, rec.Deadline, progress, ExportPending, id,
	)
	if err != nil {
		return core.Record{}, fmt.Errorf("update record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Record{}, ErrNotFound
	}

	rec.ServerID = id
	rec.ClientID = 0
	return rec, nil
}

// DeleteRecord soft deletes a record so the export worker can still resolve
// the row when removing it from the export target.
func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id string) (StoredRecord, error) {
	stored, err := r.GetRecord(ctx, id)
	if err != nil {
		return StoredRecord{}, err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE records SET deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("delete record %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Record deleted", "kind", stored.Kind, "record_id", id)
	return stored, nil
}

// PendingExports returns up to limit records awaiting export, oldest first.
func (r *SQLiteRepository) PendingExports(ctx context.Context, limit int) ([]StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE export_status = ? AND deleted = 0
		ORDER BY rowid ASC
		LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending exports: %w", err)
	}
	defer rows.Close()

	var pending []StoredRecord
	for rows.Next() {
		stored, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending export: %w", err)
		}
		pending = append(pending, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending exports: %w", err)
	}

	return pending, nil
}

// MarkExported marks a record as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE records SET export_status = ?, exported_at = CURRENT_TIMESTAMP
		WHERE id = ?`, ExportDone, id)
	if err != nil {
		return fmt.Errorf("mark record exported: %w", err)
	}
	return nil
}

// MarkExportError flags a record whose export failed; the periodic pass
// will not retry it until it is reset manually.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE records SET export_status = ? WHERE id = ?`, ExportFailed, id)
	if err != nil {
		return fmt.Errorf("mark record export error: %w", err)
	}
	slog.WarnContext(ctx, "Record marked with export error", "record_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (StoredRecord, error) {
	var (
		stored    StoredRecord
		kind      string
		date      string
		amount    string
		returns   sql.NullString
		progress  sql.NullFloat64
		createdAt time.Time
	)

	err := row.Scan(
		&stored.Record.ServerID, &kind, &stored.Record.Owner, &date, &amount,
		&stored.Record.Source, &stored.Record.Reason, &stored.Record.Company,
		&stored.Record.Type, &returns, &stored.Record.Name,
		&stored.Record.Deadline, &progress, &stored.ExportStatus, &createdAt,
	)
	if err != nil {
		return StoredRecord{}, err
	}

	stored.Kind = core.Kind(kind)
	stored.CreatedAt = createdAt

	stored.Record.Date, err = time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("parse record date %q: %w", date, err)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return StoredRecord{}, fmt.Errorf("parse record amount %q: %w", amount, err)
	}
	stored.Record.Amount = core.NewAmount(d)

	if returns.Valid {
		rd, err := decimal.NewFromString(returns.String)
		if err != nil {
			return StoredRecord{}, fmt.Errorf("parse record returns %q: %w", returns.String, err)
		}
		ra := core.NewAmount(rd)
		stored.Record.Returns = &ra
	}
	if progress.Valid {
		p := progress.Float64
		stored.Record.Progress = &p
	}

	return stored, nil
}
