package http

import (
	"errors"
	"net/http"
	"strings"

	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/storage"
)

// listCacheKey builds the listing cache key for one kind+owner pair.
func listCacheKey(kind core.Kind, owner string) string {
	return string(kind) + "|" + owner
}

// normalizeRecord strips control characters and stray whitespace from the
// free-text fields before validation sees them.
func normalizeRecord(rec core.Record) core.Record {
	rec.Owner = sanitizeInput(rec.Owner)
	rec.Source = sanitizeInput(rec.Source)
	rec.Reason = sanitizeInput(rec.Reason)
	rec.Company = sanitizeInput(rec.Company)
	rec.Type = sanitizeInput(rec.Type)
	rec.Name = sanitizeInput(rec.Name)
	rec.Deadline = strings.TrimSpace(rec.Deadline)
	return rec
}

// handleRecords serves the collection route for one kind: POST creates a
// record, GET lists an owner's records newest first.
func (s *Server) handleRecords(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.createRecord(w, r, kind)
		case http.MethodGet:
			s.listRecords(w, r, kind)
		default:
			w.Header().Set("Allow", "GET, POST")
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

// handleRecordByID serves the item route for one kind: PUT updates, DELETE
// removes.
func (s *Server) handleRecordByID(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r.URL.Path, kind.APIPath())
		if id == "" {
			writeMessage(w, http.StatusNotFound, "record id missing")
			return
		}

		switch r.Method {
		case http.MethodPut:
			s.updateRecord(w, r, kind, id)
		case http.MethodDelete:
			s.deleteRecord(w, r, kind, id)
		default:
			w.Header().Set("Allow", "PUT, DELETE")
			writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request, kind core.Kind) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var rec core.Record
	if err := decodeBody(r, &rec); err != nil {
		logger.WarnContext(ctx, "Rejected unreadable record payload",
			log.FieldKind, kind, log.FieldError, err)
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec = normalizeRecord(rec)

	created, err := s.records.Create(ctx, kind, rec)
	if err != nil {
		s.writeRecordError(w, r, kind, "add", err)
		return
	}

	s.listCache.Delete(listCacheKey(kind, created.Owner))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request, kind core.Kind) {
	ctx := r.Context()
	owner := sanitizeInput(r.URL.Query().Get("user_id"))
	if owner == "" {
		writeMessage(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	key := listCacheKey(kind, owner)
	if cached, ok := s.listCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	records, err := s.records.List(ctx, kind, owner)
	if err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Failed to list records",
			log.FieldKind, kind, log.FieldOwner, owner, log.FieldError, err)
		writeMessage(w, http.StatusInternalServerError, "failed to list "+string(kind)+" records")
		return
	}
	if records == nil {
		records = []core.Record{}
	}

	s.listCache.Set(key, records)
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request, kind core.Kind, id string) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var rec core.Record
	if err := decodeBody(r, &rec); err != nil {
		logger.WarnContext(ctx, "Rejected unreadable record payload",
			log.FieldKind, kind, log.FieldRecordID, id, log.FieldError, err)
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rec = normalizeRecord(rec)

	updated, err := s.records.Update(ctx, kind, id, rec)
	if err != nil {
		s.writeRecordError(w, r, kind, "update", err)
		return
	}

	s.listCache.Delete(listCacheKey(kind, updated.Owner))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, kind core.Kind, id string) {
	ctx := r.Context()

	deletedKind, owner, err := s.records.Delete(ctx, id)
	if err != nil {
		s.writeRecordError(w, r, kind, "delete", err)
		return
	}

	s.listCache.Delete(listCacheKey(deletedKind, owner))
	writeMessage(w, http.StatusOK, string(deletedKind)+" deleted")
}

// writeRecordError maps service errors onto the API's status codes and
// {"message": ...} bodies.
func (s *Server) writeRecordError(w http.ResponseWriter, r *http.Request, kind core.Kind, verb string, err error) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, core.ErrUnauthenticated):
		writeMessage(w, http.StatusBadRequest, "user_id required")
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, http.StatusNotFound, string(kind)+" record not found")
	default:
		logger.ErrorContext(ctx, "Record operation failed",
			log.FieldKind, kind, log.FieldOperation, verb, log.FieldError, err)
		writeMessage(w, http.StatusInternalServerError, "failed to "+verb+" "+string(kind))
	}
}
