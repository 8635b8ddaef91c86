// Package mirror persists the per-owner local copy of the record history.
// Each owner gets one JSON document on disk; the reconciliation client reads
// it at startup and rewrites it as the store confirms changes.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"finova/internal/core"
	"finova/internal/log"
)

// Version is the current mirror document schema version. Documents without
// a version field are legacy flat maps and migrated on load.
const Version = 1

// Document is one owner's mirrored record history. Arrays are newest first,
// matching the store's listing order. The plural/singular key mix is part of
// the persisted format and kept as is.
type Document struct {
	Version     int           `json:"version"`
	Budget      []core.Record `json:"budget"`
	Expenses    []core.Record `json:"expenses"`
	Investments []core.Record `json:"investments"`
	Goals       []core.Record `json:"goals"`
}

// Records returns the document's array for one kind.
func (d *Document) Records(kind core.Kind) []core.Record {
	switch kind {
	case core.KindBudget:
		return d.Budget
	case core.KindExpense:
		return d.Expenses
	case core.KindInvestment:
		return d.Investments
	case core.KindGoal:
		return d.Goals
	}
	return nil
}

// SetRecords replaces the document's array for one kind.
func (d *Document) SetRecords(kind core.Kind, recs []core.Record) {
	switch kind {
	case core.KindBudget:
		d.Budget = recs
	case core.KindExpense:
		d.Expenses = recs
	case core.KindInvestment:
		d.Investments = recs
	case core.KindGoal:
		d.Goals = recs
	}
}

// Repository reads and writes mirror documents under one directory.
type Repository struct {
	mu     sync.Mutex
	dir    string
	logger *log.Logger
}

// NewRepository opens (creating if needed) a mirror directory.
func NewRepository(dir string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create mirror directory: %w", err)
	}
	return &Repository{
		dir:    dir,
		logger: logger.WithComponent(log.ComponentMirror),
	}, nil
}

// Path returns the document path for an owner.
func (r *Repository) Path(owner string) string {
	return filepath.Join(r.dir, "history-"+safeOwner(owner)+".json")
}

// safeOwner keeps owner-derived filenames free of path separators and other
// surprises.
func safeOwner(owner string) string {
	out := make([]rune, 0, len(owner))
	for _, c := range owner {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Load reads an owner's document. A missing file yields an empty document.
// A malformed file also yields an empty document, with a ParseError the
// caller may inspect; the client keeps working and reconverges on the next
// Refresh.
func (r *Repository) Load(owner string) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(owner)
}

func (r *Repository) load(owner string) (Document, error) {
	path := r.Path(owner)
	empty := Document{Version: Version}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return empty, fmt.Errorf("read mirror: %w", err)
	}

	// Legacy documents predate the version field.
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		r.logger.Warn("Mirror document unreadable, starting empty",
			log.FieldMirrorPath, path, log.FieldError, err)
		return empty, &core.ParseError{Path: path, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn("Mirror document unreadable, starting empty",
			log.FieldMirrorPath, path, log.FieldError, err)
		return empty, &core.ParseError{Path: path, Err: err}
	}

	if probe.Version == nil {
		r.logger.Info("Migrated legacy mirror document", log.FieldMirrorPath, path)
		doc.Version = Version
	}
	return doc, nil
}

// Save atomically rewrites an owner's document.
func (r *Repository) Save(owner string, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(owner, doc)
}

func (r *Repository) save(owner string, doc Document) error {
	doc.Version = Version
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mirror: %w", err)
	}

	path := r.Path(owner)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace mirror: %w", err)
	}
	return nil
}

// Get returns an owner's records of one kind, newest first. Malformed
// documents read as empty.
func (r *Repository) Get(owner string, kind core.Kind) ([]core.Record, error) {
	doc, err := r.Load(owner)
	if err != nil && !isParse(err) {
		return nil, err
	}
	return doc.Records(kind), nil
}

// Append inserts a record at the head of one kind's array and persists the
// document. Head insertion keeps resolution order: the record whose store
// call resolved last sits first.
func (r *Repository) Append(owner string, kind core.Kind, rec core.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(owner)
	if err != nil && !isParse(err) {
		return err
	}
	doc.SetRecords(kind, append([]core.Record{rec}, doc.Records(kind)...))
	return r.save(owner, doc)
}

// Replace swaps out one kind's whole array and persists the document.
func (r *Repository) Replace(owner string, kind core.Kind, recs []core.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, err := r.load(owner)
	if err != nil && !isParse(err) {
		return err
	}
	doc.SetRecords(kind, recs)
	return r.save(owner, doc)
}

func isParse(err error) bool {
	var pe *core.ParseError
	return errors.As(err, &pe)
}
