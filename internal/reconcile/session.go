// Package reconcile keeps the three copies of a user's records consistent:
// the in-memory working set, the on-disk mirror, and the record store. The
// store is the single source of truth; the mirror is a cache of it.
package reconcile

import (
	"context"
	"strings"
	"sync"
	"time"

	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/mirror"
)

// Phase is the session's form state. Submit branches on it: Creating posts
// a new record, Editing updates the one whose identity was remembered.
type Phase int

const (
	Idle Phase = iota
	Creating
	Editing
)

// Session reconciles one owner's records for the duration of a client run.
type Session struct {
	store  Store
	mirror *mirror.Repository
	owner  string
	logger *log.Logger

	now func() time.Time

	mu           sync.Mutex
	lastClientID int64
	working      map[core.Kind][]core.Record

	phase        Phase
	editKind     core.Kind
	editServerID string
	editClientID int64
	form         FormFields
}

// NewSession builds a session for the given owner. The owner may be empty;
// submissions then fail with ErrUnauthenticated before any network call.
func NewSession(store Store, repo *mirror.Repository, owner string, logger *log.Logger) *Session {
	return &Session{
		store:   store,
		mirror:  repo,
		owner:   strings.TrimSpace(owner),
		logger:  logger.WithComponent(log.ComponentReconcile),
		now:     time.Now,
		working: make(map[core.Kind][]core.Record),
	}
}

// nextClientID issues a session-unique client id, timestamp-derived and
// bumped when two submissions land in the same millisecond.
func (s *Session) nextClientID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.lastClientID {
		id = s.lastClientID + 1
	}
	s.lastClientID = id
	return id
}

// Owner returns the session's owner identifier.
func (s *Session) Owner() string {
	return s.owner
}

// State returns the current form phase.
func (s *Session) State() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Form returns the current form contents.
func (s *Session) Form() FormFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// SetForm stores in-progress form input.
func (s *Session) SetForm(f FormFields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form = f
	if s.phase == Idle {
		s.phase = Creating
	}
}

// Working returns the in-memory working set for one kind, newest first.
func (s *Session) Working(kind core.Kind) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.working[kind]...)
}

// LoadMirror reads the mirror slice for one kind into the working set and
// returns it, ordered as stored. An absent or malformed mirror reads as
// empty; the session keeps working.
func (s *Session) LoadMirror(kind core.Kind) []core.Record {
	records, err := s.mirror.Get(s.owner, kind)
	if err != nil {
		s.logger.Warn("Mirror unavailable, starting empty",
			log.FieldKind, kind, log.FieldOwner, s.owner, log.FieldError, err)
		records = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[kind] = records
	return append([]core.Record(nil), records...)
}

// Edit loads a working-set record back into the form and remembers its
// identity. The next Submit for this kind updates it instead of creating.
func (s *Session) Edit(kind core.Kind, serverID string, clientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.working[kind] {
		if rec.Matches(serverID, clientID) {
			s.form = formFromRecord(kind, rec)
			s.phase = Editing
			s.editKind = kind
			s.editServerID = rec.ServerID
			s.editClientID = rec.ClientID
			return nil
		}
	}
	return &core.ValidationError{Field: "identity", Reason: "no such record"}
}

// Cancel drops any in-progress form state.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearFormLocked()
}

func (s *Session) clearFormLocked() {
	s.form = FormFields{}
	s.phase = Idle
	s.editKind = ""
	s.editServerID = ""
	s.editClientID = 0
}

// Submit validates the form and sends it to the store, creating a new record
// or updating the one being edited. On success the confirmed record lands in
// the working set and the mirror, newest first, and the form clears. On any
// failure nothing changes and the form keeps its contents.
func (s *Session) Submit(ctx context.Context, kind core.Kind, f FormFields) (core.Record, error) {
	if s.owner == "" {
		return core.Record{}, core.ErrUnauthenticated
	}

	rec, err := buildRecord(kind, s.owner, s.now(), f)
	if err != nil {
		return core.Record{}, err
	}

	s.mu.Lock()
	updating := s.phase == Editing && s.editKind == kind
	editServerID := s.editServerID
	editClientID := s.editClientID
	s.mu.Unlock()

	if updating && editServerID != "" {
		return s.submitUpdate(ctx, kind, editServerID, rec)
	}
	if updating {
		// Never confirmed by the store; nothing to update there.
		return s.submitLocalEdit(kind, editClientID, rec)
	}
	return s.submitCreate(ctx, kind, rec)
}

func (s *Session) submitCreate(ctx context.Context, kind core.Kind, rec core.Record) (core.Record, error) {
	rec.ClientID = s.nextClientID()

	confirmed, err := s.store.CreateRecord(ctx, kind, rec)
	if err != nil {
		return core.Record{}, err
	}
	if !confirmed.HasIdentity() {
		confirmed.ClientID = rec.ClientID
	}

	s.mu.Lock()
	s.working[kind] = append([]core.Record{confirmed}, s.working[kind]...)
	// A pending edit of another kind survives this create.
	if s.phase != Editing || s.editKind == kind {
		s.clearFormLocked()
	}
	s.mu.Unlock()

	// Store write succeeded; a mirror failure is a warning, not a rollback.
	// The next Refresh reconverges the mirror from the store.
	if err := s.mirror.Append(s.owner, kind, confirmed); err != nil {
		s.logger.Warn("Mirror write failed after store success",
			log.FieldKind, kind, log.FieldRecordID, confirmed.ServerID, log.FieldError, err)
	}

	s.logger.Info("Record created",
		log.FieldKind, kind, log.FieldRecordID, confirmed.ServerID, log.FieldOwner, s.owner)
	return confirmed, nil
}

func (s *Session) submitUpdate(ctx context.Context, kind core.Kind, serverID string, rec core.Record) (core.Record, error) {
	rec.ServerID = serverID

	confirmed, err := s.store.UpdateRecord(ctx, kind, serverID, rec)
	if err != nil {
		return core.Record{}, err
	}
	if confirmed.ServerID == "" {
		confirmed.ServerID = serverID
	}

	s.mu.Lock()
	records := replaceRecord(s.working[kind], serverID, 0, confirmed)
	s.working[kind] = records
	s.clearFormLocked()
	s.mu.Unlock()

	if err := s.mirror.Replace(s.owner, kind, records); err != nil {
		s.logger.Warn("Mirror write failed after store success",
			log.FieldKind, kind, log.FieldRecordID, serverID, log.FieldError, err)
	}

	s.logger.Info("Record updated",
		log.FieldKind, kind, log.FieldRecordID, serverID, log.FieldOwner, s.owner)
	return confirmed, nil
}

// submitLocalEdit rewrites a record the store never confirmed. It lives only
// in the working set and mirror, so no store call is made.
func (s *Session) submitLocalEdit(kind core.Kind, clientID int64, rec core.Record) (core.Record, error) {
	rec.ClientID = clientID

	s.mu.Lock()
	records := replaceRecord(s.working[kind], "", clientID, rec)
	s.working[kind] = records
	s.clearFormLocked()
	s.mu.Unlock()

	if err := s.mirror.Replace(s.owner, kind, records); err != nil {
		s.logger.Warn("Mirror write failed", log.FieldKind, kind, log.FieldError, err)
	}
	return rec, nil
}

// Delete removes a record everywhere, store first. A store failure leaves
// all three copies untouched; the caller may retry. Records the store never
// confirmed are removed locally only.
func (s *Session) Delete(ctx context.Context, kind core.Kind, serverID string, clientID int64) error {
	if serverID != "" {
		if err := s.store.DeleteRecord(ctx, kind, serverID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	records := removeRecord(s.working[kind], serverID, clientID)
	s.working[kind] = records
	s.mu.Unlock()

	if err := s.mirror.Replace(s.owner, kind, records); err != nil {
		s.logger.Warn("Mirror write failed after store delete",
			log.FieldKind, kind, log.FieldRecordID, serverID, log.FieldError, err)
	}

	s.logger.Info("Record deleted",
		log.FieldKind, kind, log.FieldRecordID, serverID, log.FieldOwner, s.owner)
	return nil
}

// Refresh replaces the working set and mirror for one kind with the store's
// listing. This is the reconvergence path after partial failures.
func (s *Session) Refresh(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	if s.owner == "" {
		return nil, core.ErrUnauthenticated
	}

	records, err := s.store.ListRecords(ctx, kind, s.owner)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.working[kind] = records
	s.mu.Unlock()

	if err := s.mirror.Replace(s.owner, kind, records); err != nil {
		s.logger.Warn("Mirror write failed during refresh",
			log.FieldKind, kind, log.FieldError, err)
	}
	return append([]core.Record(nil), records...), nil
}

func replaceRecord(records []core.Record, serverID string, clientID int64, updated core.Record) []core.Record {
	out := append([]core.Record(nil), records...)
	for i, rec := range out {
		if rec.Matches(serverID, clientID) {
			out[i] = updated
			return out
		}
	}
	// Not in the working set; keep it visible anyway.
	return append([]core.Record{updated}, out...)
}

func removeRecord(records []core.Record, serverID string, clientID int64) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, rec := range records {
		if rec.Matches(serverID, clientID) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
