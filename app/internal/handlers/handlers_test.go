package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mcnetwork/app/internal/checker"
	"mcnetwork/app/internal/collector"
	"mcnetwork/app/internal/config"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/models"
	"mcnetwork/app/internal/ratelimit"
	"mcnetwork/app/internal/stats"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
)

type stubRunner struct {
	res   models.RunResult
	err   error
	calls int
}

func (s *stubRunner) Run(context.Context) (models.RunResult, error) {
	s.calls++
	return s.res, s.err
}

type env struct {
	store  *database.MemoryStore
	runner *stubRunner
	probe  checker.ProberFunc
	cfg    *config.Config
	deps   Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := database.NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"lobby", "survival"} {
		if err := store.UpsertServer(ctx, models.Server{
			ID: id, Name: id, Host: id + ".example", Port: 25565, Active: true, DisplayOrder: i,
		}); err != nil {
			t.Fatalf("UpsertServer: %v", err)
		}
	}

	e := &env{
		store:  store,
		runner: &stubRunner{res: models.RunResult{RunID: "r1", Success: true, Results: []models.Outcome{}}},
		cfg:    &config.Config{},
	}
	e.probe = func(ctx context.Context, host string, port int) (checker.Status, error) {
		if host == "lobby.example" {
			return checker.Status{PlayerCount: 7, MaxPlayers: 50, Latency: models.IntPtr(12), Version: "1.21", Motd: "Welcome"}, nil
		}
		return checker.Status{}, errors.New("connection refused")
	}
	e.deps = Deps{
		Store:      store,
		Aggregator: stats.NewAggregator(store, nil),
		Predictor:  stats.NewPredictor(store, nil),
		Collector:  e.runner,
		Prober:     e.probe,
		Auth:       e.cfg,
	}
	return e
}

func (e *env) do(t *testing.T, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	SetupRoutes(e.deps).ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func protect(t *testing.T, cfg *config.Config, secret string) {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg.CronSecretHash = h
}

// --------------- collect ---------------

func TestCollect_OpenTrigger(t *testing.T) {
	e := newEnv(t)
	for _, m := range []string{http.MethodGet, http.MethodPost} {
		rec := e.do(t, m, "/api/analytics/collect", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", m, rec.Code)
		}
	}
	var res models.RunResult
	decode(t, e.do(t, http.MethodGet, "/api/analytics/collect", nil), &res)
	if !res.Success || res.RunID != "r1" {
		t.Errorf("unexpected body %+v", res)
	}
}

func TestCollect_RequiresSecret(t *testing.T) {
	e := newEnv(t)
	protect(t, e.cfg, "s3cret")

	cases := []struct {
		name string
		hdr  map[string]string
		want int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"no bearer prefix", map[string]string{"Authorization": "s3cret"}, http.StatusUnauthorized},
		{"valid", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/analytics/collect", tc.hdr)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
	if e.runner.calls != 1 {
		t.Errorf("runner called %d times, want 1", e.runner.calls)
	}
}

func TestCollect_Conflict(t *testing.T) {
	e := newEnv(t)
	e.runner.err = collector.ErrRunInProgress
	rec := e.do(t, http.MethodPost, "/api/analytics/collect", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status %d, want 409", rec.Code)
	}
}

func TestCollect_Failure(t *testing.T) {
	e := newEnv(t)
	e.runner.err = errors.New("registry unavailable")
	rec := e.do(t, http.MethodPost, "/api/analytics/collect", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "Collection failed" || body["details"] != "registry unavailable" {
		t.Errorf("body = %v", body)
	}
}

// --------------- analytics ---------------

func TestServerAnalytics(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	ctx := context.Background()
	_ = e.store.AppendSnapshot(ctx, models.Snapshot{ServerID: "lobby", Timestamp: now.Add(-2 * time.Hour), Online: true, PlayerCount: 10, MaxPlayers: 50})
	_ = e.store.AppendSnapshot(ctx, models.OfflineSnapshot("lobby", now.Add(-time.Hour)))
	_ = e.store.AppendSnapshot(ctx, models.Snapshot{ServerID: "lobby", Timestamp: now.Add(-72 * time.Hour), Online: true, PlayerCount: 99})

	rec := e.do(t, http.MethodGet, "/api/analytics/server/lobby?range=24h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var res stats.SummaryResult
	decode(t, rec, &res)
	if res.ServerID != "lobby" || res.Range != stats.Range24h {
		t.Errorf("header fields = %s %s", res.ServerID, res.Range)
	}
	want := stats.SummaryStats{UptimePercent: 50, AvgPlayers: 10, PeakPlayers: 10, TotalSnapshots: 2}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if len(res.Data) != 2 || !res.Data[0].Timestamp.Before(res.Data[1].Timestamp) {
		t.Errorf("data = %+v", res.Data)
	}
}

func TestServerAnalytics_UnknownServerAndRange(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/analytics/server/ghost?range=1y", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("empty data should be [], got %s", rec.Body.String())
	}
	var res stats.SummaryResult
	decode(t, rec, &res)
	if res.Range != stats.Range24h || res.Summary != (stats.SummaryStats{}) {
		t.Errorf("res = %+v", res)
	}
}

func TestServerAnalytics_StoreError(t *testing.T) {
	e := newEnv(t)
	e.store.FailRead = errors.New("db gone")
	rec := e.do(t, http.MethodGet, "/api/analytics/server/lobby", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != "Failed to fetch analytics" {
		t.Errorf("body = %v", body)
	}
}

func TestHourly(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	_ = e.store.AppendSnapshot(context.Background(), models.Snapshot{ServerID: "lobby", Timestamp: now.Add(-3 * time.Hour), Online: true, PlayerCount: 4})

	rec := e.do(t, http.MethodGet, "/api/analytics/server/lobby/hourly?range=24h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var res stats.HourlyResult
	decode(t, rec, &res)
	if len(res.Buckets) != 1 || res.Buckets[0].Players == nil || *res.Buckets[0].Players != 4 {
		t.Errorf("buckets = %+v", res.Buckets)
	}
}

func TestPredictions(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/analytics/predictions/lobby?range=24h", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var res stats.PredictionResult
	decode(t, rec, &res)
	past, future := stats.PredictionWindow(24)
	if len(res.Predictions) != past+future+1 {
		t.Errorf("got %d points, want %d", len(res.Predictions), past+future+1)
	}
	for _, p := range res.Predictions {
		if p.PredictedPlayers != 0 {
			t.Fatalf("no history should predict 0, got %+v", p)
		}
	}
}

func TestNetworkSummary(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	_ = e.store.AppendSnapshot(context.Background(), models.Snapshot{ServerID: "lobby", Timestamp: now, Online: true, PlayerCount: 6, MaxPlayers: 20})

	rec := e.do(t, http.MethodGet, "/api/analytics/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var res stats.NetworkSummary
	decode(t, rec, &res)
	want := stats.NetworkTotals{TotalServers: 2, OnlineServers: 1, TotalPlayers: 6}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
	if len(res.Servers) != 2 {
		t.Errorf("servers = %+v", res.Servers)
	}
}

// --------------- live status ---------------

func TestServerStatus(t *testing.T) {
	e := newEnv(t)

	if rec := e.do(t, http.MethodGet, "/api/server-status", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id: status %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/server-status?id=ghost", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d", rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/api/server-status?id=lobby", nil)
	var live models.LiveStatus
	decode(t, rec, &live)
	if !live.Online || live.PlayerCount != 7 || live.MaxPlayers != 50 || live.Latency == nil || *live.Latency != 12 {
		t.Errorf("online payload = %+v", live)
	}
	if live.Motd == nil || *live.Motd != "Welcome" {
		t.Errorf("motd = %v", live.Motd)
	}

	rec = e.do(t, http.MethodGet, "/api/server-status?id=survival", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("offline: status %d", rec.Code)
	}
	body := rec.Body.String()
	for _, frag := range []string{`"online":false`, `"playerCount":0`, `"version":null`, `"latency":null`} {
		if !strings.Contains(body, frag) {
			t.Errorf("offline payload %s missing %s", body, frag)
		}
	}
}

// --------------- infrastructure ---------------

func TestHealth(t *testing.T) {
	e := newEnv(t)
	e.deps.Health = map[string]HealthChecker{
		"store": func(context.Context) error { return nil },
	}
	if rec := e.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("healthy: status %d", rec.Code)
	}

	e.deps.Health["redis"] = func(context.Context) error { return errors.New("breaker open") }
	rec := e.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: status %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, rec, &body)
	if body.Status != "degraded" || body.Checks["redis"] != "breaker open" || body.Checks["store"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics status %d", rec.Code)
	}
}

func TestSecureHeaders(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/api/analytics/summary", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("missing security headers: %v", rec.Header())
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be sent over https")
	}
}

func TestRateLimitedReadAPI(t *testing.T) {
	e := newEnv(t)
	lim := ratelimit.New(ratelimit.Config{TokensPerMinute: 1})
	defer lim.Stop()
	e.deps.Limiter = lim

	if rec := e.do(t, http.MethodGet, "/api/analytics/summary", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: status %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/analytics/summary", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status %d, want 429", rec.Code)
	}
	// the trigger is not throttled
	if rec := e.do(t, http.MethodPost, "/api/analytics/collect", nil); rec.Code != http.StatusOK {
		t.Errorf("collect: status %d", rec.Code)
	}
}
