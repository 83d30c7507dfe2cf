package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"checklist/api/internal/broadcast"
	"checklist/api/internal/model"
)

type apiHarness struct {
	t       *testing.T
	handler http.Handler
	hub     *broadcast.Hub
}

func newAPIHarness(t *testing.T, cfg HTTPConfig) *apiHarness {
	t.Helper()
	hub := broadcast.NewHub(nil)
	t.Cleanup(hub.Close)
	svc := New(newFakeStore(), hub, nil)
	return &apiHarness{
		t:       t,
		handler: NewHTTPServer(svc, hub, cfg, nil).Handler(),
		hub:     hub,
	}
}

func (h *apiHarness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	body := decodeJSON[map[string]any](t, rr)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Fatalf("expected error message in %v", body)
	}
}

func TestChecklistScenario(t *testing.T) {
	h := newAPIHarness(t, HTTPConfig{})
	observer, err := h.hub.Register()
	if err != nil {
		t.Fatalf("register observer: %v", err)
	}
	signals := func() int {
		n := 0
		for {
			select {
			case <-observer.Signals():
				n++
			default:
				return n
			}
		}
	}

	rr := h.do(http.MethodPost, "/api/categories", `{"name":"Groceries"}`)
	expectStatus(t, rr, http.StatusCreated)
	category := decodeJSON[model.Category](t, rr)
	if category.ID <= 0 || category.Name != "Groceries" {
		t.Fatalf("unexpected category %+v", category)
	}

	rr = h.do(http.MethodGet, "/api/categories", "")
	expectStatus(t, rr, http.StatusOK)
	categories := decodeJSON[[]model.Category](t, rr)
	if len(categories) != 1 || categories[0] != category {
		t.Fatalf("unexpected categories %+v", categories)
	}

	rr = h.do(http.MethodPost, "/api/items", `{"name":"Milk","categoryId":`+itoa(category.ID)+`,"attribution":"ana"}`)
	expectStatus(t, rr, http.StatusCreated)
	item := decodeJSON[model.Item](t, rr)
	if item.Name != "Milk" || item.Completed || item.CategoryID != category.ID || item.Attribution != "ana" {
		t.Fatalf("unexpected item %+v", item)
	}

	rr = h.do(http.MethodPut, "/api/items/"+itoa(item.ID), `{"completed":true}`)
	expectStatus(t, rr, http.StatusOK)

	rr = h.do(http.MethodGet, "/api/items?categoryId="+itoa(category.ID), "")
	expectStatus(t, rr, http.StatusOK)
	items := decodeJSON[[]model.Item](t, rr)
	if len(items) != 1 || !items[0].Completed {
		t.Fatalf("expected completed item, got %+v", items)
	}

	rr = h.do(http.MethodDelete, "/api/categories/"+itoa(category.ID), "")
	expectStatus(t, rr, http.StatusNoContent)

	rr = h.do(http.MethodGet, "/api/categories", "")
	if got := decodeJSON[[]model.Category](t, rr); len(got) != 0 {
		t.Fatalf("expected no categories, got %+v", got)
	}
	rr = h.do(http.MethodGet, "/api/items?categoryId="+itoa(category.ID), "")
	if got := decodeJSON[[]model.Item](t, rr); len(got) != 0 {
		t.Fatalf("expected no items, got %+v", got)
	}

	// The observer buffer holds 8 signals; four mutations fit.
	if got := signals(); got != 4 {
		t.Fatalf("expected 4 signals, got %d", got)
	}
}

func TestEmptyListsAreArrays(t *testing.T) {
	h := newAPIHarness(t, HTTPConfig{})

	for _, path := range []string{"/api/categories", "/api/items?categoryId=5", "/api/items/5"} {
		rr := h.do(http.MethodGet, path, "")
		expectStatus(t, rr, http.StatusOK)
		if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
			t.Fatalf("%s: expected [], got %s", path, got)
		}
	}
}

func TestLegacyItemFields(t *testing.T) {
	h := newAPIHarness(t, HTTPConfig{})
	category := decodeJSON[model.Category](t, h.do(http.MethodPost, "/api/categories", `{"name":"Chores"}`))

	rr := h.do(http.MethodPost, "/api/items", `{"name":"Sweep","completed":false,"category_id":`+itoa(category.ID)+`,"added_by":"bo"}`)
	expectStatus(t, rr, http.StatusCreated)
	item := decodeJSON[model.Item](t, rr)
	if item.CategoryID != category.ID || item.Attribution != "bo" {
		t.Fatalf("unexpected item %+v", item)
	}

	rr = h.do(http.MethodGet, "/api/items/"+itoa(category.ID), "")
	expectStatus(t, rr, http.StatusOK)
	if items := decodeJSON[[]model.Item](t, rr); len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestValidationAndNotFoundResponses(t *testing.T) {
	h := newAPIHarness(t, HTTPConfig{})
	category := decodeJSON[model.Category](t, h.do(http.MethodPost, "/api/categories", `{"name":"Chores"}`))

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"blank category", http.MethodPost, "/api/categories", `{"name":"  "}`, http.StatusUnprocessableEntity, model.CodeValidation},
		{"bad json", http.MethodPost, "/api/categories", `{`, http.StatusBadRequest, "INVALID_BODY"},
		{"blank item", http.MethodPost, "/api/items", `{"name":"","categoryId":` + itoa(category.ID) + `}`, http.StatusUnprocessableEntity, model.CodeValidation},
		{"item without category", http.MethodPost, "/api/items", `{"name":"Milk"}`, http.StatusUnprocessableEntity, model.CodeValidation},
		{"item in missing category", http.MethodPost, "/api/items", `{"name":"Milk","categoryId":999}`, http.StatusNotFound, model.CodeNotFound},
		{"toggle without flag", http.MethodPut, "/api/items/1", `{}`, http.StatusUnprocessableEntity, model.CodeValidation},
		{"toggle missing item", http.MethodPut, "/api/items/999", `{"completed":true}`, http.StatusNotFound, model.CodeNotFound},
		{"delete missing item", http.MethodDelete, "/api/items/999", "", http.StatusNotFound, model.CodeNotFound},
		{"delete missing category", http.MethodDelete, "/api/categories/999", "", http.StatusNotFound, model.CodeNotFound},
		{"non numeric id", http.MethodDelete, "/api/categories/abc", "", http.StatusNotFound, model.CodeNotFound},
		{"list without category", http.MethodGet, "/api/items", "", http.StatusUnprocessableEntity, model.CodeValidation},
		{"wrong method", http.MethodPatch, "/api/categories", "", http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"unknown route", http.MethodGet, "/api/unknown", "", http.StatusNotFound, model.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectErrorCode(t, h.do(tc.method, tc.path, tc.body), tc.status, tc.code)
		})
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	h := newAPIHarness(t, HTTPConfig{CORSOrigin: "http://localhost:3000"})

	rr := h.do(http.MethodOptions, "/api/categories", "")
	expectStatus(t, rr, http.StatusNoContent)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected CORS origin %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr = httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}

	rr = h.do(http.MethodGet, "/api/health", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestStaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	h := newAPIHarness(t, HTTPConfig{StaticDir: dir})

	rr := h.do(http.MethodGet, "/app.js", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "console.log") {
		t.Fatalf("unexpected asset body %q", rr.Body.String())
	}

	rr = h.do(http.MethodGet, "/lists/3", "")
	expectStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "app") || strings.Contains(rr.Header().Get("Content-Type"), "json") {
		t.Fatalf("expected index.html fallback, got %q (%s)", rr.Body.String(), rr.Header().Get("Content-Type"))
	}

	// API paths never fall back to the client.
	expectErrorCode(t, h.do(http.MethodGet, "/api/nope", ""), http.StatusNotFound, model.CodeNotFound)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
