package recordapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stackpine/recordapi/internal/testutil"
	"github.com/stackpine/recordapi/storage"
	"github.com/stackpine/recordapi/token"
)

func newTestHandler(t *testing.T, cfg *Config) (http.Handler, *Server, *token.Service) {
	t.Helper()
	srv, _, tokens := newTestServer(t, cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(srv, logger).Routes(), srv, tokens
}

func doJSON(t *testing.T, h http.Handler, method, target, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func loginToken(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/api/authenticate", "", loginRequest{Username: username, Password: password})
	if w.Code != http.StatusOK {
		t.Fatalf("authenticate status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token in response")
	}
	return resp.Token
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp messageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding message response: %v (body %q)", err, w.Body.String())
	}
	return resp.Message
}

func TestHealth(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", w.Body.String())
	}
}

func TestAuthenticate_Success(t *testing.T) {
	h, _, tokens := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	identity, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if identity.Username != "user1" {
		t.Errorf("identity.Username = %q, want user1", identity.Username)
	}
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	w := doJSON(t, h, http.MethodPost, "/api/authenticate", "", loginRequest{Username: "ghost", Password: "p"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := decodeMessage(t, w); msg != "Unknown user." {
		t.Errorf("message = %q, want Unknown user.", msg)
	}
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	w := doJSON(t, h, http.MethodPost, "/api/authenticate", "", loginRequest{Username: "user1", Password: "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if msg := decodeMessage(t, w); msg != "Invalid password." {
		t.Errorf("message = %q, want Invalid password.", msg)
	}
}

func TestAuthenticate_MalformedBody(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/authenticate", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthenticate_RateLimited(t *testing.T) {
	h, _, _ := newTestHandler(t, &Config{
		RateLimit: RateLimitConfig{Limit: 2, Window: time.Hour},
	})

	body := loginRequest{Username: "user1", Password: "p"}
	for i := 0; i < 2; i++ {
		if w := doJSON(t, h, http.MethodPost, "/api/authenticate", "", body); w.Code != http.StatusOK {
			t.Fatalf("attempt %d status = %d, want 200", i+1, w.Code)
		}
	}

	w := doJSON(t, h, http.MethodPost, "/api/authenticate", "", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429")
	}
}

func TestProtectedRoutes_MissingHeader(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	routes := []struct {
		method, target string
	}{
		{http.MethodGet, "/api/data"},
		{http.MethodGet, "/api/data/1"},
		{http.MethodPost, "/api/data"},
		{http.MethodPut, "/api/data/1"},
		{http.MethodDelete, "/api/data/1"},
	}

	for _, rt := range routes {
		w := doJSON(t, h, rt.method, rt.target, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", rt.method, rt.target, w.Code)
			continue
		}
		if msg := decodeMessage(t, w); msg != "Authentication failed." {
			t.Errorf("%s %s message = %q, want Authentication failed.", rt.method, rt.target, msg)
		}
	}
}

func TestProtectedRoutes_MalformedHeader(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	for _, header := range []string{"Bearer", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, w.Code)
		}
	}
}

func TestProtectedRoutes_TamperedToken(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	// Flip one byte of the payload segment.
	tampered := []byte(tok)
	idx := strings.Index(tok, ".") + 1
	if tampered[idx] == 'A' {
		tampered[idx] = 'B'
	} else {
		tampered[idx] = 'A'
	}

	w := doJSON(t, h, http.MethodGet, "/api/data", string(tampered), nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for tampered token", w.Code)
	}
}

func TestProtectedRoutes_ExpiredToken(t *testing.T) {
	h, _, tokens := newTestHandler(t, nil)

	clock := testutil.NewMockTime(time.Now())
	tokens.SetClock(clock.Now)

	tok := loginToken(t, h, "user1", "p")

	clock.Advance(61 * time.Minute)
	w := doJSON(t, h, http.MethodGet, "/api/data", tok, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for expired token", w.Code)
	}
}

func TestListRecords(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	w := doJSON(t, h, http.MethodGet, "/api/data", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var records []storage.Record
	if err := json.NewDecoder(w.Body).Decode(&records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	want := []storage.Record{
		{ID: 1, Name: "John Doe", Age: 25},
		{ID: 2, Name: "Jane Smith", Age: 30},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("records[%d] = %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestGetRecord(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	w := doJSON(t, h, http.MethodGet, "/api/data/2", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var record storage.Record
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record != (storage.Record{ID: 2, Name: "Jane Smith", Age: 30}) {
		t.Errorf("record = %+v", record)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	for _, target := range []string{"/api/data/99", "/api/data/abc"} {
		w := doJSON(t, h, http.MethodGet, target, tok, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", target, w.Code)
		}
		if w.Body.Len() != 0 {
			t.Errorf("%s body = %q, want empty", target, w.Body.String())
		}
	}
}

func TestCreateRecord(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	w := doJSON(t, h, http.MethodPost, "/api/data", tok, map[string]any{"name": "Bob", "age": 40})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var record storage.Record
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record != (storage.Record{ID: 3, Name: "Bob", Age: 40}) {
		t.Errorf("record = %+v, want id 3 Bob 40", record)
	}
}

func TestCreateRecord_ValidationErrors(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	// Empty name and absent age must both be reported.
	w := doJSON(t, h, http.MethodPost, "/api/data", tok, map[string]any{"name": ""})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}

	var resp validationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding validation response: %v", err)
	}
	if len(resp.Errors) != 2 {
		t.Fatalf("got %d validation errors, want 2: %+v", len(resp.Errors), resp.Errors)
	}
	if resp.Errors[0].Field != "name" || resp.Errors[1].Field != "age" {
		t.Errorf("error fields = %q, %q, want name, age", resp.Errors[0].Field, resp.Errors[1].Field)
	}

	// The collection must be untouched.
	lw := doJSON(t, h, http.MethodGet, "/api/data", tok, nil)
	var records []storage.Record
	if err := json.NewDecoder(lw.Body).Decode(&records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("collection grew to %d after rejected create", len(records))
	}
}

func TestUpdateRecord_IDFromPath(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	// A body id is ignored; the path id wins.
	w := doJSON(t, h, http.MethodPut, "/api/data/1", tok, map[string]any{"id": 77, "name": "Johnny", "age": 26})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var record storage.Record
	if err := json.NewDecoder(w.Body).Decode(&record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record != (storage.Record{ID: 1, Name: "Johnny", Age: 26}) {
		t.Errorf("record = %+v, want id 1 from path", record)
	}
}

func TestUpdateRecord_NotFoundAndInvalid(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	w := doJSON(t, h, http.MethodPut, "/api/data/99", tok, map[string]any{"name": "X", "age": 1})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing record: status = %d, want 404", w.Code)
	}

	w = doJSON(t, h, http.MethodPut, "/api/data/1", tok, map[string]any{"name": "X", "age": "old"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("update with bad age: status = %d, want 422", w.Code)
	}
}

func TestDeleteRecord(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	tok := loginToken(t, h, "user1", "p")

	w := doJSON(t, h, http.MethodDelete, "/api/data/1", tok, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}

	// Second delete finds nothing.
	w = doJSON(t, h, http.MethodDelete, "/api/data/1", tok, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", w.Code)
	}

	// The remaining record keeps its id.
	lw := doJSON(t, h, http.MethodGet, "/api/data", tok, nil)
	var records []storage.Record
	if err := json.NewDecoder(lw.Body).Decode(&records); err != nil {
		t.Fatalf("decoding records: %v", err)
	}
	if len(records) != 1 || records[0].ID != 2 {
		t.Errorf("records after delete = %+v, want only id 2", records)
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/data", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	w := doJSON(t, h, http.MethodGet, "/health", "", nil)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h, _, _ := newTestHandler(t, nil)
	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID response header")
	}
}

func TestRecoverPanics(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(srv, logger)

	boom := h.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	w := httptest.NewRecorder()
	boom.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp messageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Message != "Something went wrong." {
		t.Errorf("message = %q, want Something went wrong.", resp.Message)
	}
}
