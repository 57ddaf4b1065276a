package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"focusaura/internal/config"
	"focusaura/internal/domain"
	"focusaura/internal/engine"
	"focusaura/internal/templates"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, cfg *config.Config) (*testServer, func()) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	composer, err := engine.NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("build composer: %v", err)
	}
	handler, err := New(Config{Composer: composer, Config: cfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Errors []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"errors"`
		} `json:"details"`
	} `json:"error"`
}

func TestInterventionDemoScenario(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", map[string]any{
		"goal":                 "Finish Section 2 by 3 PM",
		"context_title":        "Project_Proposal.docx",
		"context_app":          "Google Docs",
		"time_on_task_minutes": 42,
		"event":                "switched_to_video",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("intervention status %d: %s", res.StatusCode, string(data))
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	var got InterventionResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry := templates.Lookup(domain.CategoryVideo)
	want := InterventionResponse{
		ActionNow:    entry.Action,
		WhyItWorks:   entry.WhyItWorks(),
		GoalReminder: "Your goal: Finish Section 2 by 3 PM",
		Citation:     entry.Citation,
	}
	if got != want {
		t.Fatalf("unexpected response:\n got %+v\nwant %+v", got, want)
	}
}

func TestInterventionGoalOnly(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", `{"goal":"Write tests","time_on_task_minutes":"7"}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var got InterventionResponse
	_ = json.Unmarshal(data, &got)
	if got.ActionNow != templates.Lookup(domain.CategoryUnknown).Action {
		t.Fatalf("expected unknown-category action, got %q", got.ActionNow)
	}
}

func TestInterventionValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", map[string]any{
		"goal":                 "   ",
		"time_on_task_minutes": -3,
		"event":                42,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q", env.Error.Code)
	}
	fields := map[string]bool{}
	for _, e := range env.Error.Details.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{"goal", "time_on_task_minutes", "event"} {
		if !fields[f] {
			t.Fatalf("expected error for %s, got %s", f, string(data))
		}
	}
}

func TestInterventionRejectsNonObjectBody(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	for _, body := range []string{"", "[1,2]", "not json"} {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", body, nil)
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d %s", body, res.StatusCode, string(data))
		}
	}
}

func TestInterventionRejectsOversizedBody(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()

	small := `{"goal":"Ship it"}`
	padded := small + strings.Repeat(" ", maxRequestBytes-len(small))
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", padded, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("body at the limit: expected 200, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", padded+" ", nil)
	if res.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Code != "request_entity_too_large" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
	if !strings.Contains(env.Error.Message, "exceeds 64 KiB") {
		t.Fatalf("unexpected message %q", env.Error.Message)
	}
}

func TestInterventionSurvivesFailingProviders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.Mode = config.ModeLive
	cfg.Credential = "rejected"
	cfg.Providers.Evidence.URL = upstream.URL
	cfg.Providers.Recency.URL = upstream.URL
	cfg.Providers.Synthesis.URL = upstream.URL
	srv, cleanup := newTestServer(t, cfg)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/intervention", map[string]any{
		"goal":  "Ship it",
		"event": "reddit",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var got InterventionResponse
	_ = json.Unmarshal(data, &got)
	entry := templates.Lookup(domain.CategorySocial)
	if got.ActionNow != entry.Action || got.Citation != entry.Citation {
		t.Fatalf("expected social templates, got %+v", got)
	}
}

func TestHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeLive
	srv, cleanup := newTestServer(t, cfg)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var h HealthResponse
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.Status != "ok" || h.Mode != "live" || h.CredentialConfigured || h.ReadyForLiveMode {
		t.Fatalf("unexpected health: %+v", h)
	}
	if len(h.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", h.Warnings)
	}
	for _, role := range domain.Roles() {
		if h.Providers[string(role)] != "template" {
			t.Fatalf("expected %s routed to template, got %q", role, h.Providers[string(role)])
		}
	}
}

func TestSessionsDedupAndDelete(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()
	event := map[string]any{"goal": "Draft intro", "event": "youtube", "session_id": "tab-1"}

	first, body1 := doJSON(t, client, http.MethodPost, srv.URL+"/intervention", event, nil)
	second, body2 := doJSON(t, client, http.MethodPost, srv.URL+"/intervention", event, nil)
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusOK {
		t.Fatalf("intervention statuses %d/%d", first.StatusCode, second.StatusCode)
	}
	if string(body1) != string(body2) {
		t.Fatalf("expected repeated response, got %s vs %s", body1, body2)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/sessions", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list sessions %d: %s", res.StatusCode, string(data))
	}
	var list SessionListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.Count != 1 || list.Sessions[0].DistractionCount != 2 || list.Sessions[0].InterventionCount != 1 {
		t.Fatalf("unexpected sessions: %+v", list)
	}
	if list.Sessions[0].LastCategory != string(domain.CategoryVideo) {
		t.Fatalf("unexpected last category %q", list.Sessions[0].LastCategory)
	}

	del, delBody := doJSON(t, client, http.MethodDelete, srv.URL+"/sessions/tab-1", nil, nil)
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete session %d: %s", del.StatusCode, string(delBody))
	}
	missing, missingBody := doJSON(t, client, http.MethodDelete, srv.URL+"/sessions/tab-1", nil, nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", missing.StatusCode, string(missingBody))
	}
	var env errorEnvelope
	_ = json.Unmarshal(missingBody, &env)
	if env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", env.Error.Code)
	}
}

func TestCORS(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodOptions, srv.URL+"/intervention", nil, map[string]string{
		"Origin":                         "chrome-extension://abcdef",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "content-type",
	})
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status %d", res.StatusCode)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "chrome-extension://abcdef" {
		t.Fatalf("missing allow-origin: %v", res.Header)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/health", nil, map[string]string{"Origin": "https://evil.example"})
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}

func TestBannerAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), serviceName) {
		t.Fatalf("banner %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi %d", res.StatusCode)
	}
	for _, want := range []string{`"/intervention"`, `"/health"`, `"/sessions/{session_id}"`, `"time_on_task_minutes"`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("openapi missing %s", want)
		}
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/docs", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), "swagger-ui") {
		t.Fatalf("docs %d", res.StatusCode)
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t, nil)
	defer cleanup()
	client := srv.Client()

	const n = 16
	bodies := make([][]byte, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			res, err := client.Get(srv.URL + "/openapi.json")
			if err != nil {
				return err
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				return fmt.Errorf("status %d", res.StatusCode)
			}
			bodies[i], err = io.ReadAll(res.Body)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("openapi: %v", err)
	}
	for i := 1; i < n; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("response %d differs from the first", i)
		}
	}
	if !json.Valid(bodies[0]) {
		t.Fatalf("openapi is not valid json")
	}
}

func TestBasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Server.BasePath = "/v1"
	srv, cleanup := newTestServer(t, cfg)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health under base path %d: %s", res.StatusCode, string(data))
	}
}

func TestRecovererWritesEnvelope(t *testing.T) {
	h := newRecoverer(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Error.Code != "internal_error" {
		t.Fatalf("unexpected code %q", env.Error.Code)
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:3000", "chrome-extension://*"}
	cases := map[string]bool{
		"http://localhost:3000":  true,
		"chrome-extension://abc": true,
		"http://localhost:3001":  false,
		"moz-extension://abc":    false,
	}
	for origin, want := range cases {
		if got := originAllowed(allowed, origin); got != want {
			t.Fatalf("%s: got %v want %v", origin, got, want)
		}
	}
}
