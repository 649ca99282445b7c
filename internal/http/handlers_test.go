package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"duckreplay/player/internal/logging"
)

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow() bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

type stubRoller struct {
	location string
	err      error
	names    []string
}

func (s *stubRoller) Roll(name string) (string, error) {
	s.names = append(s.names, name)
	return s.location, s.err
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" {
		t.Fatalf("unexpected status %q", payload.Status)
	}
	if payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp %q", payload.Timestamp)
	}
}

func TestReadinessHandlerWaitsForGame(t *testing.T) {
	//1.- Arrange a readiness probe that flips once a game arrives.
	started := time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)
	now := started.Add(45 * time.Second)
	loaded := errors.New("no game loaded")
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Readiness:  func() error { return loaded },
		TimeSource: func() time.Time { return now },
		Started:    started,
	})

	type payload struct {
		Status        string  `json:"status"`
		Message       string  `json:"message"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	probe := func() (int, payload) {
		rr := httptest.NewRecorder()
		handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		var body payload
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return rr.Code, body
	}

	//2.- Before the game the probe reports 503 with the reason.
	code, body := probe()
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if body.Status != "waiting" || body.Message != "no game loaded" || body.UptimeSeconds != 45 {
		t.Fatalf("unexpected payload: %+v", body)
	}

	//3.- Once loaded the probe succeeds.
	loaded = nil
	code, body = probe()
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("expected ready, got %d %+v", code, body)
	}
}

func TestMetricsHandlerOutputsPrometheusFormat(t *testing.T) {
	started := time.Date(2024, time.January, 2, 15, 0, 0, 0, time.UTC)
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		TimeSource: func() time.Time { return started.Add(90 * time.Second) },
		Started:    started,
		Metrics: func() []Sample {
			return []Sample{
				{Name: "replayd_current_turn", Help: "Turn on screen.", Value: 42},
				{Name: "replayd_rolls_total", Help: "Recordings finalized.", Kind: "counter", Value: 3},
				{Name: "replayd_team_units", Help: "Units alive per team.", Labels: map[string]string{"team": "A"}, Value: 12},
				{Name: "replayd_team_units", Help: "Units alive per team.", Labels: map[string]string{"team": "B"}, Value: 1.5},
			}
		},
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handlers.MetricsHandler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Content-Type"); got != "text/plain; version=0.0.4" {
		t.Fatalf("unexpected content type %q", got)
	}
	body := rr.Body.String()
	for _, substr := range []string{
		"replayd_uptime_seconds 90",
		"# TYPE replayd_current_turn gauge",
		"replayd_current_turn 42",
		"# TYPE replayd_rolls_total counter",
		"replayd_rolls_total 3",
		`replayd_team_units{team="A"} 12`,
		`replayd_team_units{team="B"} 1.5`,
	} {
		if !strings.Contains(body, substr) {
			t.Fatalf("metrics missing %q:\n%s", substr, body)
		}
	}
	if strings.Count(body, "# HELP replayd_team_units") != 1 {
		t.Fatalf("expected a single HELP line per metric:\n%s", body)
	}
}

func TestRollHandlerAuthAndRateLimits(t *testing.T) {
	roller := &stubRoller{location: "/replays/game-1.bc24"}
	limiter := &stubLimiter{remaining: 1}
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Roller:      roller,
		AdminToken:  "topsecret",
		RateLimiter: limiter,
	})

	makeRequest := func(token string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/replay/roll?name=final", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		handlers.RollHandler().ServeHTTP(rr, req)
		return rr
	}

	if resp := makeRequest(""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for missing token, got %d", resp.Code)
	}
	if resp := makeRequest("wrong"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %d", resp.Code)
	}

	resp := makeRequest("topsecret")
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 for authorised request, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "game-1.bc24") {
		t.Fatalf("expected location in body: %s", resp.Body.String())
	}
	if len(roller.names) != 1 || roller.names[0] != "final" {
		t.Fatalf("unexpected roll names %v", roller.names)
	}

	if resp := makeRequest("topsecret"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", resp.Code)
	}
}

func TestRollHandlerReportsRetryAfter(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Roller:      &stubRoller{location: "x"},
		AdminToken:  "topsecret",
		RateLimiter: NewTokenBucket(time.Minute, 1, func() time.Time { return now }),
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/replay/roll", nil)
		req.Header.Set("X-Admin-Token", "topsecret")
		handlers.RollHandler().ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit, got %d", last.Code)
	}
	if got := last.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("unexpected Retry-After %q", got)
	}
}

func TestRollHandlerRejectsWithoutConfiguration(t *testing.T) {
	cases := []struct {
		name   string
		opts   Options
		method string
		want   int
	}{
		{name: "method", opts: Options{AdminToken: "t", Roller: &stubRoller{}}, method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "no token configured", opts: Options{Roller: &stubRoller{}}, method: http.MethodPost, want: http.StatusForbidden},
		{name: "no recorder", opts: Options{AdminToken: "t"}, method: http.MethodPost, want: http.StatusServiceUnavailable},
		{name: "nothing buffered", opts: Options{AdminToken: "t", Roller: &stubRoller{err: ErrNothingToRoll}}, method: http.MethodPost, want: http.StatusConflict},
		{name: "roll failure", opts: Options{AdminToken: "t", Roller: &stubRoller{err: errors.New("disk full")}}, method: http.MethodPost, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Logger = logging.NewTestLogger()
			handlers := NewHandlerSet(tc.opts)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/replay/roll", nil)
			req.Header.Set("Authorization", "Bearer t")
			handlers.RollHandler().ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestRegisterRoutesEveryHandler(t *testing.T) {
	mux := http.NewServeMux()
	NewHandlerSet(Options{Logger: logging.NewTestLogger()}).Register(mux)
	for _, path := range []string{"/livez", "/readyz", "/metrics", "/replay/roll"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if _, pattern := mux.Handler(req); pattern == "" {
			t.Fatalf("route %s not registered", path)
		}
	}
}
