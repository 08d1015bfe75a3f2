package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	dto "github.com/prometheus/client_model/go"

	"github.com/sclab-io/sclab-sqlserver-connector/internal/auth"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/config"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/infrastructure/logging"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/metrics"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/query"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/recordset"
	"github.com/sclab-io/sclab-sqlserver-connector/internal/telemetry"
)

// fakeExecutor records the SQL it receives and returns canned results.
type fakeExecutor struct {
	mu    sync.Mutex
	rows  recordset.Rows
	err   error
	calls []string
}

func (f *fakeExecutor) Query(_ context.Context, sqlText string) (recordset.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sqlText)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeExecutor) lastSQL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

// statsExecutor also exposes pool statistics.
type statsExecutor struct {
	fakeExecutor
}

func (s *statsExecutor) Stats() sql.DBStats {
	return sql.DBStats{OpenConnections: 2, InUse: 1, Idle: 1}
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "json"}, "test")
}

func apiItem(source, endpoint, template string) query.Item {
	return query.Item{
		Source:   source,
		Mode:     query.ModeAPI,
		Template: template,
		API:      &query.APISpec{Endpoint: endpoint},
	}
}

func sampleRows() recordset.Rows {
	row := recordset.NewRow(2)
	row.Set("id", int64(1))
	row.Set("name", "press-1")
	return recordset.Rows{row}
}

// testServer creates a Server with the given modifications applied to the
// default dependencies.
func testServer(t *testing.T, modify func(*Deps)) (*Server, *fakeExecutor) {
	t.Helper()

	exec := &fakeExecutor{rows: sampleRows()}
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
			CORS:     config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		WS: config.WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   testLogger(),
		Executor: exec,
		Items: []query.Item{
			apiItem("QUERY_1", "/api/machines", "SELECT id, name FROM machines WHERE line = :line"),
			apiItem("QUERY_2", "/api/all", "SELECT id, name FROM machines"),
		},
		Version: "test",
	}
	if modify != nil {
		modify(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, exec
}

func doGet(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding message body: %v (body %q)", err, rec.Body.String())
	}
	return body.Message
}

// --- Construction ---

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Executor: &fakeExecutor{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without executor should fail")
	}
}

func TestServer_StartClose(t *testing.T) {
	srv, _ := testServer(t, nil)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if srv.Addr() == "" {
		t.Error("Addr() should be set after Start")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	srv, _ := testServer(t, nil)
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// --- Dispatch ---

func TestQueryEndpoint_Rows(t *testing.T) {
	srv, exec := testServer(t, nil)

	rec := doGet(t, srv.Handler(), "/api/machines?line=A1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got, want := strings.TrimSpace(rec.Body.String()), `{"rows":[{"id":1,"name":"press-1"}]}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if got, want := exec.lastSQL(), "SELECT id, name FROM machines WHERE line = A1"; got != want {
		t.Errorf("executed SQL = %q, want %q", got, want)
	}
}

func TestQueryEndpoint_EmptyResult(t *testing.T) {
	srv, exec := testServer(t, nil)
	exec.rows = recordset.Rows{}

	rec := doGet(t, srv.Handler(), "/api/all", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"rows":[]}` {
		t.Errorf("body = %s, want {\"rows\":[]}", got)
	}
}

func TestQueryEndpoint_FirstValueWins(t *testing.T) {
	srv, exec := testServer(t, nil)

	rec := doGet(t, srv.Handler(), "/api/machines?line=A1&line=B2", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.HasSuffix(exec.lastSQL(), "= A1") {
		t.Errorf("executed SQL = %q, want first value A1", exec.lastSQL())
	}
}

func TestQueryEndpoint_InjectionRejected(t *testing.T) {
	srv, exec := testServer(t, func(d *Deps) {
		d.Security.SQLInjection = true
	})

	rec := doGet(t, srv.Handler(), "/api/machines?line=A1%27%3B%20DROP%20TABLE%20machines%3B--", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}
	if msg := decodeMessage(t, rec); msg != msgInjectDetected {
		t.Errorf("message = %q, want %q", msg, msgInjectDetected)
	}
	if sqlText := exec.lastSQL(); sqlText != "" {
		t.Errorf("query should not run after rejection, ran %q", sqlText)
	}
}

func TestQueryEndpoint_InjectionScreenDisabled(t *testing.T) {
	srv, exec := testServer(t, nil)

	rec := doGet(t, srv.Handler(), "/api/machines?line=A1%27%3B--", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with screening off", rec.Code)
	}
	if exec.lastSQL() == "" {
		t.Error("query should have run")
	}
}

func TestQueryEndpoint_QueryFailure(t *testing.T) {
	srv, exec := testServer(t, nil)
	exec.err = errors.New("login failed for user 'sa'")

	rec := doGet(t, srv.Handler(), "/api/all", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	msg := decodeMessage(t, rec)
	if msg != msgQueryFailed {
		t.Errorf("message = %q, want %q", msg, msgQueryFailed)
	}
	if strings.Contains(rec.Body.String(), "login failed") {
		t.Error("driver error text must not leak to the client")
	}
}

func TestQueryEndpoint_Timeout(t *testing.T) {
	blocking := &blockingExecutor{}
	srv, _ := testServer(t, func(d *Deps) {
		d.Executor = blocking
		d.QueryTimeout = 20 * time.Millisecond
	})

	rec := doGet(t, srv.Handler(), "/api/all", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

// blockingExecutor waits for its context to end.
type blockingExecutor struct{}

func (blockingExecutor) Query(ctx context.Context, _ string) (recordset.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDispatch_ItemEmpty(t *testing.T) {
	srv, _ := testServer(t, nil)

	tests := []struct {
		name string
		item *query.Item
	}{
		{"nil item", nil},
		{"empty template", &query.Item{Source: "QUERY_X", Mode: query.ModeAPI, API: &query.APISpec{Endpoint: "/x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)

			status := srv.dispatch(rec, req, tt.item)

			if status != http.StatusInternalServerError || rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d/%d, want 500", status, rec.Code)
			}
			if msg := decodeMessage(t, rec); msg != msgQueryItemEmpty {
				t.Errorf("message = %q, want %q", msg, msgQueryItemEmpty)
			}
		})
	}
}

func TestRequestValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?a=1&b=2&a=3&empty=", nil)
	got := requestValues(req)

	want := map[string]string{"a": "1", "b": "2", "empty": ""}
	if len(got) != len(want) {
		t.Fatalf("requestValues() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("requestValues()[%q] = %q, want %q", k, got[k], v)
		}
	}
}

// --- Routing ---

func TestRouting(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Items = append(d.Items,
			apiItem("QUERY_3", "/trailing/", "SELECT 3"),
			apiItem("QUERY_4", "/health", "SELECT 4"),
			apiItem("QUERY_5", "/api/{id}", "SELECT 5"),
			apiItem("QUERY_6", "/api/all", "SELECT 6"),
			query.Item{
				Source:    "QUERY_7",
				Mode:      query.ModeTelemetry,
				Template:  "SELECT 7",
				Telemetry: &query.TelemetrySpec{Topic: "t", Interval: time.Second},
			},
		)
	})
	h := srv.Handler()

	want := []string{"/api/machines", "/api/all", "/trailing"}
	got := srv.Endpoints()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Endpoints() = %v, want %v", got, want)
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"mounted endpoint", "/api/all", http.StatusOK},
		{"trailing slash on request", "/api/all/", http.StatusOK},
		{"endpoint declared with trailing slash", "/trailing", http.StatusOK},
		{"unknown path", "/nope", http.StatusNotFound},
		{"health stays a system route", "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, h, tt.target, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.target, rec.Code, tt.wantStatus)
			}
		})
	}

	// The first item wins a duplicate endpoint.
	exec := srv.executor.(*fakeExecutor)
	doGet(t, h, "/api/all", nil)
	if got := exec.lastSQL(); got != "SELECT id, name FROM machines" {
		t.Errorf("duplicate endpoint served %q", got)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.Handler()

	rec := doGet(t, h, "/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if msg := decodeMessage(t, rec); msg != msgNotFound {
		t.Errorf("message = %q", msg)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/all", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := doGet(t, srv.Handler(), "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Service   string   `json:"service"`
		Version   string   `json:"version"`
		Endpoints []string `json:"endpoints"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != "test" {
		t.Errorf("version = %q", body.Version)
	}
	if len(body.Endpoints) != 2 {
		t.Errorf("endpoints = %v, want 2", body.Endpoints)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/x":   "/api/x",
		"/api/x/":  "/api/x",
		"/api/x//": "/api/x",
		"/":        "/",
		"":         "/",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSystemRoute(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.WS.Path = "/stream" })

	for _, p := range []string{"/", "/health", "/metrics", "/stream", "/health/"} {
		if !srv.isSystemRoute(p) {
			t.Errorf("isSystemRoute(%q) = false, want true", p)
		}
	}
	if srv.isSystemRoute("/ws") {
		t.Error("/ws should be free when the WebSocket path is moved")
	}
}

// --- Middleware ---

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv, _ := testServer(t, nil)
	h := srv.Handler()

	rec := doGet(t, h, "/health", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated X-Request-ID")
	}

	rec = doGet(t, h, "/health", http.Header{"X-Request-Id": {"req-42"}})
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		cors        config.CORSConfig
		origin      string
		wantOrigin  string
		wantCredent string
	}{
		{
			name:       "wildcard without credentials",
			cors:       config.CORSConfig{AllowedOrigins: []string{"*"}},
			origin:     "https://app.example.com",
			wantOrigin: "*",
		},
		{
			name:        "wildcard with credentials echoes origin",
			cors:        config.CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true},
			origin:      "https://app.example.com",
			wantOrigin:  "https://app.example.com",
			wantCredent: "true",
		},
		{
			name:       "listed origin",
			cors:       config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			origin:     "https://app.example.com",
			wantOrigin: "https://app.example.com",
		},
		{
			name:   "unlisted origin",
			cors:   config.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}},
			origin: "https://evil.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(d *Deps) { d.Config.CORS = tt.cors })

			rec := doGet(t, srv.Handler(), "/health", http.Header{"Origin": {tt.origin}})

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredent {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCredent)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, exec := testServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/all", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing Allow-Methods")
	}
	if exec.lastSQL() != "" {
		t.Error("preflight must not run the query")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _ := testServer(t, nil)

	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if msg := decodeMessage(t, rec); msg != msgInternal {
		t.Errorf("message = %q", msg)
	}
}

func TestCompression(t *testing.T) {
	srv, _ := testServer(t, nil)

	rec := doGet(t, srv.Handler(), "/api/all", http.Header{"Accept-Encoding": {"gzip"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", got)
	}
}

// --- Authentication ---

func testVerifier(t *testing.T, secret string) *auth.Keys {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey() error = %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	keys, err := auth.NewKeys(privPEM, pubPEM, secret, 0)
	if err != nil {
		t.Fatalf("NewKeys() error = %v", err)
	}
	return keys
}

func TestAuthMiddleware(t *testing.T) {
	keys := testVerifier(t, "plant-secret")
	token, err := keys.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	other := testVerifier(t, "plant-secret")
	otherToken, err := other.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	srv, _ := testServer(t, func(d *Deps) { d.Verifier = keys })
	h := srv.Handler()

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"missing token", "/api/all", "", http.StatusUnauthorized, "Authentication token missing"},
		{"wrong token", "/api/all", "garbage", http.StatusUnauthorized, "Wrong authentication token"},
		{"token from another key", "/api/all", otherToken, http.StatusUnauthorized, "Wrong authentication token"},
		{"bare token", "/api/all", token, http.StatusOK, ""},
		{"bearer token", "/api/all", "Bearer " + token, http.StatusOK, ""},
		{"index is protected", "/", "", http.StatusUnauthorized, "Authentication token missing"},
		{"query token ignored off the websocket path", "/api/all?token=" + token, "", http.StatusUnauthorized, "Authentication token missing"},
		{"health is public", "/health", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			rec := doGet(t, h, tt.target, header)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantMsg != "" {
				if msg := decodeMessage(t, rec); msg != tt.wantMsg {
					t.Errorf("message = %q, want %q", msg, tt.wantMsg)
				}
			}
		})
	}
}

// --- Health ---

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Executor = &statsExecutor{}
		d.Checks = map[string]HealthChecker{"database": fakeCheck{}}
	})

	rec := doGet(t, srv.Handler(), "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != healthOK {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Components["database"].Status != healthOK {
		t.Errorf("database component = %+v", body.Components["database"])
	}
	if body.Database == nil || body.Database.OpenConnections != 2 {
		t.Errorf("database stats = %+v", body.Database)
	}
	if body.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines should be reported")
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) {
		d.Checks = map[string]HealthChecker{
			"database": fakeCheck{},
			"broker":   fakeCheck{err: errors.New("not connected")},
		}
	})

	rec := doGet(t, srv.Handler(), "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != healthDegraded {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	broker := body.Components["broker"]
	if broker.Status != healthDown || broker.Error != "not connected" {
		t.Errorf("broker component = %+v", broker)
	}
	if body.Database != nil {
		t.Error("database stats should be omitted when the executor has no pool")
	}
}

// --- Metrics ---

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	srv, exec := testServer(t, func(d *Deps) { d.Metrics = reg })
	h := srv.Handler()

	doGet(t, h, "/api/all", nil)
	exec.err = errors.New("down")
	doGet(t, h, "/api/all", nil)

	if got := reg.APIRequests.WithLabelValues("/api/all", "200"); counterValue(t, got) != 1 {
		t.Error("expected one 200 request recorded")
	}
	if got := reg.APIRequests.WithLabelValues("/api/all", "500"); counterValue(t, got) != 1 {
		t.Error("expected one 500 request recorded")
	}

	rec := doGet(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("metrics output should include the request counter")
	}
}

func TestMetrics_RouteAbsentWithoutRegistry(t *testing.T) {
	srv, _ := testServer(t, nil)
	if rec := doGet(t, srv.Handler(), "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %d, want 404", rec.Code)
	}
}

// --- WebSocket ---

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocket_TopicRelay(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws?topic=line/1")
	waitForClients(t, srv.Hub(), 1)

	hub := srv.Hub()
	var sink telemetry.Sink = hub
	if sink.Name() != "websocket" {
		t.Errorf("Name() = %q", sink.Name())
	}

	// Not subscribed: dropped.
	if err := hub.Write(context.Background(), telemetry.Message{Source: "QUERY_9", Topic: "line/2", Payload: []byte(`{"rows":[]}`)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := hub.Write(context.Background(), telemetry.Message{Source: "QUERY_1", Topic: "line/1", Payload: []byte(`{"rows":[{"v":1}]}`)}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	msg := readWS(t, conn)
	if msg.Type != WSTypeTelemetry || msg.Topic != "line/1" || msg.Source != "QUERY_1" {
		t.Errorf("message = %+v", msg)
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != `{"rows":[{"v":1}]}` {
		t.Errorf("payload = %s", payload)
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws")
	waitForClients(t, srv.Hub(), 1)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Topics: []string{WSChannelAll}}}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "s1" {
		t.Errorf("subscribe reply = %+v", msg)
	}

	srv.Hub().Broadcast("any/topic", "QUERY_2", map[string]int{"n": 1})
	if msg := readWS(t, conn); msg.Type != WSTypeTelemetry || msg.Topic != "any/topic" {
		t.Errorf("broadcast = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "b1"}); err != nil {
		t.Fatal(err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v", msg)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	keys := testVerifier(t, "s")
	token, err := keys.Issue()
	if err != nil {
		t.Fatal(err)
	}
	srv, _ := testServer(t, func(d *Deps) { d.Verifier = keys })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	dialWS(t, ts, "/ws?token="+token)
	waitForClients(t, srv.Hub(), 1)
}

func TestHub_RunClosesClients(t *testing.T) {
	srv, _ := testServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws")
	waitForClients(t, srv.Hub(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Hub().Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if n := srv.Hub().ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after shutdown, want 0", n)
	}

	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after hub shutdown")
	}
}

func TestNewHub_Defaults(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	if hub.cfg.PingInterval != defaultWSPingInterval || hub.cfg.PongTimeout != defaultWSPongTimeout || hub.cfg.MaxMessageSize != defaultWSMaxMessageSize {
		t.Errorf("cfg = %+v, want defaults", hub.cfg)
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}
