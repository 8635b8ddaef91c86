// Package memory is an in-process Exporter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finova/internal/core"
	"finova/internal/export"
)

// Row is one exported record.
type Row struct {
	Ref    string
	Kind   core.Kind
	Record core.Record
}

// Store keeps exported rows in memory.
type Store struct {
	mu   sync.Mutex
	next int
	rows []Row
}

var _ export.Exporter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, kind core.Kind, rec core.Record) (string, error) {
	if rec.ServerID == "" {
		return "", fmt.Errorf("record has no server id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	ref := fmt.Sprintf("mem:%d", s.next)
	s.rows = append(s.rows, Row{Ref: ref, Kind: kind, Record: rec})
	return ref, nil
}

// Remove drops the row for a record id. Unknown ids are not an error.
func (s *Store) Remove(_ context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rows[:0]
	for _, row := range s.rows {
		if row.Record.ServerID == recordID {
			continue
		}
		out = append(out, row)
	}
	s.rows = out
	return nil
}

// Rows returns a copy of the exported rows, in export order.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
