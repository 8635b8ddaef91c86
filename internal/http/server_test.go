package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finova/internal/core"
	"finova/internal/log"
	"finova/internal/services"
	"finova/internal/storage"
)

const testAdminToken = "test-admin-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	logger := log.New(log.Config{
		Component: log.ComponentHTTP,
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
	svc := services.NewRecordService(repo, nil)

	srv := NewServer(":0", svc, repo, testAdminToken, logger)
	t.Cleanup(func() {
		srv.shutdownOnce.Do(func() {
			close(srv.stopCacheCleanup)
			srv.rateLimiter.stop()
		})
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func testBudget(owner string) core.Record {
	return core.Record{
		Owner:  owner,
		Date:   time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount: mustAmount("2500.50"),
		Source: "Salary",
	}
}

func mustAmount(s string) core.Amount {
	a, err := core.ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status=%d", path, rr.Code)
		}
	}
}

func TestRecordLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPost, "/api/budget", testBudget("tim"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ServerID == "" {
		t.Fatal("created record has no _id")
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/budget?user_id=tim", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d", rr.Code)
	}
	var listed []core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ServerID != created.ServerID {
		t.Fatalf("list = %+v, want the created record", listed)
	}

	update := created
	update.Source = "Bonus"
	rr = doJSON(t, srv, http.MethodPut, "/api/budget/"+created.ServerID, update)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	var updated core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Source != "Bonus" {
		t.Errorf("updated source = %q", updated.Source)
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/budget/"+created.ServerID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/budget?user_id=tim", nil)
	listed = nil
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("list after delete = %+v, want empty", listed)
	}
}

func TestCreateRejectsInvalidRecords(t *testing.T) {
	srv := newTestServer(t)

	t.Run("missing kind field", func(t *testing.T) {
		rec := testBudget("tim")
		rec.Source = ""
		rr := doJSON(t, srv, http.MethodPost, "/api/budget", rec)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "source") {
			t.Errorf("body = %s, want mention of source", rr.Body.String())
		}
	})

	t.Run("missing owner", func(t *testing.T) {
		rec := testBudget("")
		rr := doJSON(t, srv, http.MethodPost, "/api/expense", rec)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("garbage body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/goal", strings.NewReader("{nope"))
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}

func TestListRequiresOwner(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodGet, "/api/investment", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPut, "/api/budget/no-such-id", testBudget("tim"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rr := doJSON(t, srv, http.MethodPatch, "/api/budget", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestListCacheInvalidation(t *testing.T) {
	srv := newTestServer(t)

	if rr := doJSON(t, srv, http.MethodPost, "/api/budget", testBudget("tim")); rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d", rr.Code)
	}

	doJSON(t, srv, http.MethodGet, "/api/budget?user_id=tim", nil)
	if _, ok := srv.listCache.Get(listCacheKey(core.KindBudget, "tim")); !ok {
		t.Fatal("listing not cached after GET")
	}

	second := testBudget("tim")
	second.Source = "Freelance"
	if rr := doJSON(t, srv, http.MethodPost, "/api/budget", second); rr.Code != http.StatusCreated {
		t.Fatalf("second create status=%d", rr.Code)
	}
	if _, ok := srv.listCache.Get(listCacheKey(core.KindBudget, "tim")); ok {
		t.Fatal("cache entry survived a write")
	}

	rr := doJSON(t, srv, http.MethodGet, "/api/budget?user_id=tim", nil)
	var listed []core.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 2 || listed[0].Source != "Freelance" {
		t.Fatalf("list after second create = %+v, want newest first", listed)
	}
}

func TestAdminUserRoutes(t *testing.T) {
	srv := newTestServer(t)

	user := core.User{FullName: "Ada Lovelace", Email: "ada@example.com"}

	t.Run("create requires token", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodPost, "/api/admin/users", user)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	var created core.User
	t.Run("create with token", func(t *testing.T) {
		data, _ := json.Marshal(user)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/users", bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("decode created user: %v", err)
		}
		if created.ID == "" {
			t.Fatal("created user has no id")
		}
	})

	t.Run("list is open", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodGet, "/api/admin/users", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		var users []core.User
		if err := json.Unmarshal(rr.Body.Bytes(), &users); err != nil {
			t.Fatalf("decode users: %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("users = %+v", users)
		}
	})

	t.Run("update is open", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodPut, "/api/admin/users/"+created.ID,
			map[string]any{"fullname": "Ada King"})
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		var u core.User
		if err := json.Unmarshal(rr.Body.Bytes(), &u); err != nil {
			t.Fatalf("decode user: %v", err)
		}
		if u.FullName != "Ada King" {
			t.Errorf("fullname = %q", u.FullName)
		}
	})

	t.Run("delete requires token", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodDelete, "/api/admin/users/"+created.ID, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status=%d", rr.Code)
		}

		rr = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+created.ID, nil)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}

		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodDelete, "/api/admin/users/"+created.ID, nil)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("repeat delete status=%d", rr.Code)
		}
	})
}

func TestPathID(t *testing.T) {
	cases := []struct {
		path, prefix, want string
	}{
		{"/api/budget/abc", "/api/budget", "abc"},
		{"/api/budget/", "/api/budget", ""},
		{"/api/budget/abc/extra", "/api/budget", ""},
		{"/api/admin/users/u1", "/api/admin/users", "u1"},
	}
	for _, c := range cases {
		if got := pathID(c.path, c.prefix); got != c.want {
			t.Errorf("pathID(%q, %q) = %q, want %q", c.path, c.prefix, got, c.want)
		}
	}
}
