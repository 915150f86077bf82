package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/qpindex/internal/config"
	"github.com/hyperjump/qpindex/internal/describe"
	"github.com/hyperjump/qpindex/internal/embedding"
	"github.com/hyperjump/qpindex/internal/indexer"
	"github.com/hyperjump/qpindex/internal/models"
	"github.com/hyperjump/qpindex/internal/retriever"
	"github.com/hyperjump/qpindex/internal/storage"
	"go.uber.org/zap"
)

type brokenSchemaStorage struct {
	storage.Storage
}

func (brokenSchemaStorage) EnsureSchema(context.Context) error {
	return fmt.Errorf("%w: connection refused", models.ErrPersistence)
}

func testServer(t *testing.T, cfg *config.ServerConfig, wrap func(storage.Storage) storage.Storage) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"), storage.Options{
		Table:      "documents",
		Dimensions: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var s storage.Storage = store
	if wrap != nil {
		s = wrap(store)
	}
	emb := embedding.NewMockEmbedder(4)
	idx := indexer.NewIndexer(s, emb, describe.TemplateSynthesizer{})
	ret := retriever.New(emb, s)
	if cfg == nil {
		cfg = &config.ServerConfig{MaxBodyBytes: 1 << 20}
	}
	return NewServer(idx, ret, s, cfg, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

const mcqQuestion = `{
	"question": "Which of these is a vector quantity?",
	"subject": "Physics", "class": 9, "year": 2022, "topic": "Motion", "mark": 1,
	"difficultyLevel": "Easy", "board": "CBSE",
	"isMcq": true, "options": ["A", "B"],
	"containsImages": false, "imageDescription": null,
	"isEitherOr": false, "otherQuestion": null, "isRepeated": false
}`

func questionRecord(text string) string {
	return fmt.Sprintf(`{
	"question": %q, "subject": "Math", "class": 8, "year": 2021, "topic": "Algebra",
	"mark": 2, "difficultyLevel": "Medium", "board": "ICSE", "isMcq": false,
	"containsImages": false, "isEitherOr": false, "isRepeated": false
}`, text)
}

func TestIndexQuestions_bodyShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", "[" + mcqQuestion + "]"},
		{"data wrapper", `{"data": [` + mcqQuestion + `]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testServer(t, nil, nil).Handler()
			w := do(t, h, http.MethodPost, "/indexQuestions", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
			}
			var res models.IndexResult
			if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if res.IndexedCount != 1 || len(res.Errors) != 0 {
				t.Errorf("result: %+v", res)
			}
		})
	}
}

func TestIndexQuestions_badBody(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	for _, body := range []string{`{"question": "x"}`, `"text"`, `{"data": 3}`, `not json`, ``} {
		w := do(t, h, http.MethodPost, "/indexQuestions", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status %d, want 400", body, w.Code)
		}
	}
}

func TestIndexQuestions_missingRequiredFieldsRejectsBatch(t *testing.T) {
	srv := testServer(t, nil, nil)
	h := srv.Handler()
	for _, body := range []string{
		`[{}]`,
		"[" + questionRecord("complete") + `, {"question": "no subject"}]`,
		`[{"question": null, "subject": "Math", "class": 8, "year": 2021, "topic": "Algebra",
		  "mark": 2, "difficultyLevel": "Medium", "board": "ICSE", "isMcq": false,
		  "containsImages": false, "isEitherOr": false, "isRepeated": false}]`,
	} {
		w := do(t, h, http.MethodPost, "/indexQuestions", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, w.Code)
			continue
		}
		var out map[string]string
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out["error"], "missing required fields") {
			t.Errorf("error: %q", out["error"])
		}
	}
	n, err := srv.storage.Count(context.Background())
	if err == nil && n != 0 {
		t.Errorf("stored %d rows from rejected batches", n)
	}
}

func TestIndexQuestions_nullableFieldsMayBeOmitted(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	w := do(t, h, http.MethodPost, "/indexQuestions", "["+questionRecord("no options")+"]")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestIndexQuestions_emptyArrayHasEmptyErrors(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	w := do(t, h, http.MethodPost, "/indexQuestions", `[]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"indexedCount":0,"errors":[]}` {
		t.Errorf("body: %s", got)
	}
}

func TestIndexQuestions_schemaFailureIs500(t *testing.T) {
	h := testServer(t, nil, func(s storage.Storage) storage.Storage { return brokenSchemaStorage{s} }).Handler()
	w := do(t, h, http.MethodPost, "/indexQuestions", "["+mcqQuestion+"]")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["error"] == "" {
		t.Error("expected error message")
	}
	if _, ok := out["stack"]; ok {
		t.Error("stack should be hidden unless expose_error_detail is set")
	}
}

func TestRetrieveContext_exposesStackWhenConfigured(t *testing.T) {
	cfg := &config.ServerConfig{ExposeErrorDetail: true}
	h := testServer(t, cfg, func(s storage.Storage) storage.Storage { return brokenSchemaStorage{s} }).Handler()
	w := do(t, h, http.MethodPost, "/retrieveContext", `{"query": "x"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out["stack"], "connection refused") {
		t.Errorf("stack: %q", out["stack"])
	}
}

func TestRetrieveContext_bodyShapes(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	if w := do(t, h, http.MethodPost, "/indexQuestions", "["+mcqQuestion+"]"); w.Code != http.StatusOK {
		t.Fatalf("seed: status %d", w.Code)
	}
	for _, body := range []string{
		`{"data": "vector quantity"}`,
		`{"query": "vector quantity"}`,
		`{"text": "vector quantity"}`,
		`"vector quantity"`,
		`{"data": {"query": "vector quantity"}}`,
		`{"data": {"text": "vector quantity"}}`,
	} {
		w := do(t, h, http.MethodPost, "/retrieveContext", body)
		if w.Code != http.StatusOK {
			t.Errorf("body %s: status %d (%s)", body, w.Code, w.Body.String())
			continue
		}
		var out []string
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if len(out) != 1 || !strings.Contains(out[0], "Multiple Choice Question with options: A, B") {
			t.Errorf("body %s: got %v", body, out)
		}
	}
}

func TestRetrieveContext_unrecognizedBody(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	for _, body := range []string{`{"q": "x"}`, `[1, 2]`, `42`, `{"data": {"other": "x"}}`} {
		w := do(t, h, http.MethodPost, "/retrieveContext", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status %d, want 400", body, w.Code)
			continue
		}
		var out map[string]string
		if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out["error"] != queryShapeMessage {
			t.Errorf("error: %q", out["error"])
		}
	}
}

func TestRetrieveContext_emptyStore(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	w := do(t, h, http.MethodPost, "/retrieveContext", `{"query": "anything"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body: %s, want []", got)
	}
}

func TestRetrieveContext_respectsK(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	var items []string
	for i := 0; i < 4; i++ {
		items = append(items, questionRecord(fmt.Sprintf("q%d", i)))
	}
	if w := do(t, h, http.MethodPost, "/indexQuestions", "["+strings.Join(items, ",")+"]"); w.Code != http.StatusOK {
		t.Fatalf("seed: status %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/retrieveContext", `{"query": "q1", "k": 2}`)
	var out []string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Errorf("len: got %d, want 2", len(out))
	}
}

func TestEmbedAndStoreAndHealth(t *testing.T) {
	h := testServer(t, nil, nil).Handler()
	w := do(t, h, http.MethodPost, "/embedAndStore", `{"text": "Ohm's law", "metadata": {"source": "notes"}}`)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "true" {
		t.Fatalf("embedAndStore: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/embedAndStore", `{"text": ""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty text: status %d, want 400", w.Code)
	}

	w = do(t, h, http.MethodGet, "/health", "")
	var out struct {
		Status    string `json:"status"`
		Documents int64  `json:"documents"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "ok" || out.Documents != 1 {
		t.Errorf("health: %+v", out)
	}
}

func TestBodyLimit(t *testing.T) {
	h := testServer(t, &config.ServerConfig{MaxBodyBytes: 64}, nil).Handler()
	body := `{"query": "` + strings.Repeat("x", 256) + `"}`
	w := do(t, h, http.MethodPost, "/retrieveContext", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestCORS(t *testing.T) {
	h := testServer(t, &config.ServerConfig{CORSOrigins: []string{"http://app.example"}}, nil).Handler()

	r := httptest.NewRequest(http.MethodOptions, "/retrieveContext", nil)
	r.Header.Set("Origin", "http://app.example")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code >= 300 {
		t.Errorf("preflight status: got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("allow methods: %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("allow origin: %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/retrieveContext", bytes.NewBufferString(`{"query":"x"}`))
	r.Header.Set("Origin", "http://other.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin got %q", got)
	}
}

func TestCORS_anyOrigin(t *testing.T) {
	h := testServer(t, &config.ServerConfig{CORSOrigins: []string{"*"}}, nil).Handler()
	r := httptest.NewRequest(http.MethodPost, "/retrieveContext", bytes.NewBufferString(`{"query":"x"}`))
	r.Header.Set("Origin", "http://anywhere.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin: %q, want *", got)
	}
}

func TestDecodeQuery_largeKIsCapped(t *testing.T) {
	q, err := decodeQuery([]byte(`{"query": "x", "k": 1e300}`))
	if err != nil {
		t.Fatal(err)
	}
	if q.K != models.MaxK {
		t.Errorf("K = %d, want %d", q.K, models.MaxK)
	}
	q, err = decodeQuery([]byte(`{"query": "x", "k": -4}`))
	if err != nil {
		t.Fatal(err)
	}
	if q.K != 0 {
		t.Errorf("negative k: K = %d, want 0", q.K)
	}
}

func TestDecodeQuery_priority(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"data": "d", "query": "q", "text": "t"}`, "d"},
		{`{"query": "q", "text": "t"}`, "q"},
		{`{"text": "t", "data": {"query": "nested"}}`, "t"},
		{`{"data": {"query": "nq", "text": "nt"}}`, "nq"},
		{`{"data": {"text": "nt"}}`, "nt"},
		{`"bare"`, "bare"},
	}
	for _, tt := range tests {
		q, err := decodeQuery([]byte(tt.body))
		if err != nil {
			t.Errorf("decodeQuery(%s): %v", tt.body, err)
			continue
		}
		if q.Query != tt.want {
			t.Errorf("decodeQuery(%s) = %q, want %q", tt.body, q.Query, tt.want)
		}
	}
}
