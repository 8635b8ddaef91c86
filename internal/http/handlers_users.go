package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/storage"
)

// checkAdminToken validates the bearer token on destructive user routes.
// Listing and updates stay open; that asymmetry is the API's documented
// behavior.
func (s *Server) checkAdminToken(w http.ResponseWriter, r *http.Request) bool {
	if s.adminToken == "" {
		writeMessage(w, http.StatusServiceUnavailable, "admin operations not configured")
		return false
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		atomic.AddInt64(&s.metrics.invalidAdminAuths, 1)
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rejected admin request",
			log.FieldPath, r.URL.Path)
		writeMessage(w, http.StatusUnauthorized, "admin token required")
		return false
	}
	return true
}

// handleUsers serves the user collection: GET lists all users, POST creates
// one (admin only).
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		users, err := s.users.ListUsers(ctx)
		if err != nil {
			log.FromContext(ctx).ErrorContext(ctx, "Failed to list users", log.FieldError, err)
			writeMessage(w, http.StatusInternalServerError, "failed to list users")
			return
		}
		if users == nil {
			users = []core.User{}
		}
		writeJSON(w, http.StatusOK, users)

	case http.MethodPost:
		if !s.checkAdminToken(w, r) {
			return
		}
		var u core.User
		if err := decodeBody(r, &u); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		u.FullName = sanitizeInput(u.FullName)
		u.Email = sanitizeInput(u.Email)

		created, err := s.users.CreateUser(ctx, u)
		if err != nil {
			s.writeUserError(w, r, "create", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		w.Header().Set("Allow", "GET, POST")
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUserByID serves one user: PUT applies a partial update, DELETE
// removes the user (admin only).
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := pathID(r.URL.Path, "/api/admin/users")
	if id == "" {
		writeMessage(w, http.StatusNotFound, "user id missing")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var fields map[string]any
		if err := decodeBody(r, &fields); err != nil {
			writeMessage(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		updated, err := s.users.UpdateUser(ctx, id, fields)
		if err != nil {
			s.writeUserError(w, r, "update", err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if !s.checkAdminToken(w, r) {
			return
		}
		if err := s.users.DeleteUser(ctx, id); err != nil {
			s.writeUserError(w, r, "delete", err)
			return
		}
		writeMessage(w, http.StatusOK, "user deleted")

	default:
		w.Header().Set("Allow", "PUT, DELETE")
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeUserError(w http.ResponseWriter, r *http.Request, verb string, err error) {
	ctx := r.Context()

	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "user not found")
	default:
		log.FromContext(ctx).ErrorContext(ctx, "User operation failed",
			log.FieldOperation, verb, log.FieldError, err)
		writeMessage(w, http.StatusInternalServerError, "failed to "+verb+" user")
	}
}
