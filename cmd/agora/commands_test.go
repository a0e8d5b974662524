package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/config"
	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/retrieval"
	"github.com/kalambet/agora/internal/similarity"
	"github.com/kalambet/agora/internal/storage"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Catalog-Version", "7")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func withoutColor(t *testing.T) {
	t.Helper()
	old := noColor
	noColor = true
	t.Cleanup(func() { noColor = old })
}

const assistantsJSON = `[
	{"id":"1","title":"Python Helper","description":"Writes and reviews Python code","tags":["Developer"],"roles":["Engineer"]},
	{"id":"2","title":"Joke Bot","tags":["Fun"]}
]`

func TestAssistantsQueryPath(t *testing.T) {
	tests := []struct {
		name string
		q    assistantsQuery
		want string
	}{
		{"empty", assistantsQuery{}, "/assistants"},
		{"tags", assistantsQuery{tags: []string{"Developer", "Data"}}, "/assistants?tag=Developer&tag=Data"},
		{"roles and search", assistantsQuery{roles: []string{"Engineer"}, search: "go & sql"}, "/assistants?q=go+%26+sql&role=Engineer"},
		{"id", assistantsQuery{id: "42"}, "/assistants?id=42"},
		{"refresh", assistantsQuery{refresh: true}, "/assistants?refresh=true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.path(); got != tt.want {
				t.Errorf("path() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunAssistants(t *testing.T) {
	withoutColor(t)
	ts := newTestServer(t, map[string]string{
		"GET /assistants": assistantsJSON,
	})

	var out bytes.Buffer
	q := assistantsQuery{tags: []string{"Developer"}}
	if err := runAssistants(ctx, ts.client(), &out, q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Path != "/assistants?tag=Developer" {
		t.Errorf("path = %q, want /assistants?tag=Developer", r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	got := out.String()
	for _, want := range []string{"1  Python Helper", "Tags: Developer", "Roles: Engineer", "2  Joke Bot", "(catalog version 7)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunAssistants_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /assistants": assistantsJSON,
	})

	var out bytes.Buffer
	if err := runAssistants(ctx, ts.client(), &out, assistantsQuery{asJSON: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var as []map[string]any
	if err := json.Unmarshal(out.Bytes(), &as); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(as) != 2 {
		t.Errorf("expected 2 assistants, got %d", len(as))
	}
	if strings.Contains(out.String(), "catalog version") {
		t.Error("JSON output should not carry the version line")
	}
}

func TestRunAssistants_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /assistants": `[]`,
	})

	var out bytes.Buffer
	if err := runAssistants(ctx, ts.client(), &out, assistantsQuery{search: "nothing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No assistants found.") {
		t.Errorf("output = %q, want no-results message", out.String())
	}
}

func TestRunAssistants_ServerError(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	err := runAssistants(ctx, ts.client(), &bytes.Buffer{}, assistantsQuery{id: "missing"})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
}

const resultJSON = `{
	"id":"3f2b8c1e-0000-4000-8000-000000000001",
	"ranked":[
		{"assistant":{"id":"1","title":"Python Helper"},"score":0.82},
		{"assistant":{"id":"2","title":"Joke Bot"},"score":0.05}
	],
	"message":"Python Helper fits best.",
	"mode":"composed",
	"picks":["1"],
	"catalog_version":7,
	"created_at":"2026-01-01T00:00:00Z"
}`

func TestRunRecommend_JSONBody(t *testing.T) {
	withoutColor(t)
	ts := newTestServer(t, map[string]string{
		"POST /assistants/recommend": resultJSON,
	})

	opts := recommendOptions{req: recommend.Request{
		Description: "I need help writing Python code",
		Tags:        []string{"Developer"},
		TopK:        3,
	}}
	var out bytes.Buffer
	if err := runRecommend(ctx, ts.client(), &out, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.ContentType != "application/json" {
		t.Errorf("content type = %q, want application/json", r.ContentType)
	}
	var body recommend.Request
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Description != opts.req.Description || body.TopK != 3 {
		t.Errorf("body = %+v, want %+v", body, opts.req)
	}

	got := out.String()
	if !strings.Contains(got, "Python Helper fits best.") {
		t.Errorf("output missing message:\n%s", got)
	}
	if !strings.Contains(got, "* 1. 1  Python Helper [score: 0.820]") {
		t.Errorf("output should mark the pick:\n%s", got)
	}
	if !strings.Contains(got, "  2. 2  Joke Bot [score: 0.050]") {
		t.Errorf("output should list the unpicked assistant:\n%s", got)
	}
}

func TestRunRecommend_Fallback(t *testing.T) {
	withoutColor(t)
	ts := newTestServer(t, map[string]string{
		"POST /assistants/recommend": `{"id":"x","ranked":[{"assistant":{"id":"1","title":"Python Helper"},"score":0.4}],` +
			`"message":"ranked by similarity","mode":"similarity_only","reason":"language model timed out after 20s","catalog_version":1,"created_at":"2026-01-01T00:00:00Z"}`,
	})

	var out bytes.Buffer
	opts := recommendOptions{req: recommend.Request{Description: "python"}}
	if err := runRecommend(ctx, ts.client(), &out, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "(language model timed out after 20s)") {
		t.Errorf("output should show the fallback reason:\n%s", out.String())
	}
}

func TestRunRecommend_Brief(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /assistants/recommend": resultJSON,
	})

	brief := filepath.Join(t.TempDir(), "brief.txt")
	if err := os.WriteFile(brief, []byte("We are migrating a Django app."), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := recommendOptions{
		req:    recommend.Request{Description: "help", Tags: []string{"Developer", "Data"}, TopK: 2},
		brief:  brief,
		asJSON: true,
	}
	var out bytes.Buffer
	if err := runRecommend(ctx, ts.client(), &out, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Fatalf("content type = %q, want multipart/form-data", r.ContentType)
	}
	for _, want := range []string{
		`name="description"`, "help",
		`name="tags"`, "Developer", "Data",
		`name="top_k"`,
		`filename="brief.txt"`, "We are migrating a Django app.",
	} {
		if !strings.Contains(r.Body, want) {
			t.Errorf("multipart body missing %q", want)
		}
	}
	if strings.Contains(r.Body, `name="roles"`) {
		t.Error("empty roles should not be sent")
	}

	var res recommend.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if res.Mode != recommend.ModeComposed {
		t.Errorf("mode = %q, want composed", res.Mode)
	}
}

func TestRunRecommend_MissingBrief(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	opts := recommendOptions{req: recommend.Request{Description: "x"}, brief: filepath.Join(t.TempDir(), "nope.pdf")}
	err := runRecommend(ctx, ts.client(), &bytes.Buffer{}, opts)
	if err == nil {
		t.Fatal("expected error for missing brief file")
	}
	if !strings.Contains(err.Error(), "reading brief") {
		t.Errorf("error = %q, want it to mention reading brief", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no request, got %d", len(ts.requests))
	}
}

func TestRecommendCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"recommend"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing description")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestRunCatalogStatus(t *testing.T) {
	withoutColor(t)
	ts := newTestServer(t, map[string]string{
		"GET /catalog": `{"version":3,"count":2,"fetched_at":"2026-01-01T10:00:00Z",` +
			`"tags":[{"name":"Developer","count":1},{"name":"Fun","count":1}],"roles":[{"name":"Engineer","count":1}]}`,
	})

	var out bytes.Buffer
	if err := runCatalogStatus(ctx, ts.client(), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Version: 3", "Assistants: 2", "Tags: Developer (1), Fun (1)", "Roles: Engineer (1)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunCatalogRefresh(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /catalog/refresh": `{"version":4,"count":12,"fetched_at":"2026-01-01T10:00:00Z"}`,
	})

	st, err := runCatalogRefresh(ctx, ts.client())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Version != 4 || st.Count != 12 {
		t.Errorf("status = %+v, want version 4 count 12", st)
	}
	if ts.requests[0].Method != http.MethodPost {
		t.Errorf("method = %q, want POST", ts.requests[0].Method)
	}
}

func TestRunCatalogRefresh_Upstream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		w.Write([]byte(`{"error":{"message":"catalog upstream unavailable","type":"upstream_unavailable"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	_, err := runCatalogRefresh(ctx, client)
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "upstream_unavailable") {
		t.Errorf("error = %q, want status and type", err.Error())
	}
}

func TestRunHistoryList(t *testing.T) {
	withoutColor(t)
	ts := newTestServer(t, map[string]string{
		"GET /recommendations": `[{"request":{"description":"I need help writing Python code"},` +
			`"result":{"id":"3f2b8c1e-aaaa","ranked":[],"message":"m","mode":"composed","catalog_version":1,"created_at":"2026-01-02T03:04:00Z"}}]`,
	})

	var out bytes.Buffer
	if err := runHistoryList(ctx, ts.client(), &out, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts.requests[0].Path != "/recommendations?limit=5" {
		t.Errorf("path = %q, want /recommendations?limit=5", ts.requests[0].Path)
	}
	got := out.String()
	for _, want := range []string{"3f2b8c1e  2026-01-02 03:04", "composed", "I need help writing Python code"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "aaaa") {
		t.Errorf("id should be shortened:\n%s", got)
	}
}

func TestRunHistoryList_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /recommendations": `[]`,
	})

	var out bytes.Buffer
	if err := runHistoryList(ctx, ts.client(), &out, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No recommendations found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestAPIClient_NoToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want no header", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to mention 401", err.Error())
	}
}

func TestCatalogVersion(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if _, ok := catalogVersion(resp); ok {
		t.Error("missing header should not parse")
	}
	resp.Header.Set("X-Catalog-Version", "12")
	if v, ok := catalogVersion(resp); !ok || v != 12 {
		t.Errorf("catalogVersion = %d, %v, want 12, true", v, ok)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSplitLabels(t *testing.T) {
	got := splitLabels([]string{"Developer, Data", " ", "Fun"})
	want := []string{"Developer", "Data", "Fun"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitLabels = %q, want %q", got, want)
	}
	if splitLabels(nil) != nil {
		t.Error("nil input should give nil")
	}
}

func TestEllipsize(t *testing.T) {
	if got := ellipsize("short", 10); got != "short" {
		t.Errorf("ellipsize = %q", got)
	}
	if got := ellipsize("line one\n  line two", 100); got != "line one line two" {
		t.Errorf("whitespace should collapse, got %q", got)
	}
	if got := ellipsize("Straße und mehr", 6); got != "Straße..." {
		t.Errorf("ellipsize should cut on runes, got %q", got)
	}
}

func TestWriteConfig(t *testing.T) {
	withoutColor(t)
	var out bytes.Buffer
	writeConfig(&out, []config.KeyInfo{
		{Key: "server.port", EnvVar: "AGORA_SERVER_PORT", Value: "4000"},
		{Key: "llm.api_key", EnvVar: "AGORA_LLM_API_KEY", Value: "(set)", Secret: true},
	})

	got := out.String()
	if !strings.Contains(got, "server.port = 4000  (AGORA_SERVER_PORT)") {
		t.Errorf("output missing port line:\n%s", got)
	}
	if !strings.Contains(got, "llm.api_key = (set)") {
		t.Errorf("output missing masked secret:\n%s", got)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		info  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		l := newLogger(tt.level)
		if got := l.Enabled(ctx, -4); got != tt.debug {
			t.Errorf("%s: debug enabled = %v, want %v", tt.level, got, tt.debug)
		}
		if got := l.Enabled(ctx, 0); got != tt.info {
			t.Errorf("%s: info enabled = %v, want %v", tt.level, got, tt.info)
		}
	}
}

func TestNeedsEngine(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want bool
	}{
		{"ollama provider", config.Config{LLM: config.LLMConfig{Provider: "ollama"}}, true},
		{"openrouter without embeddings", config.Config{LLM: config.LLMConfig{Provider: "openrouter"}}, false},
		{"none with embeddings", config.Config{
			LLM:       config.LLMConfig{Provider: "none"},
			Ollama:    config.OllamaConfig{EmbedModel: "nomic-embed-text"},
			Recommend: config.RecommendConfig{EmbeddingWeight: 0.3},
		}, true},
		{"weight without model", config.Config{
			LLM:       config.LLMConfig{Provider: "openai"},
			Recommend: config.RecommendConfig{EmbeddingWeight: 0.3},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsEngine(tt.cfg); got != tt.want {
				t.Errorf("needsEngine = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVectorPrunerRunsOnCatalogRefresh(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.PutVectors([]storage.AssistantVector{
		{Model: "embed", TextHash: "gone", AssistantID: "old", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatal(err)
	}

	hybrid := retrieval.NewHybridScorer(similarity.NewRanker(), retrieval.NewEmbedder(nil, "embed"), store, 0.5)
	client := catalog.NewFileClient(writeCatalogFile(t))
	cache := catalog.NewCache(client, catalog.WithOnRefresh(vectorPruner(hybrid)))

	if _, err := cache.Get(ctx, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got, err := store.GetVectors("embed", []string{"gone"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("vector of removed assistant kept after refresh: %v", got)
	}
}

func writeCatalogFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistants.json")
	if err := os.WriteFile(path, []byte(assistantsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatal(err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}
