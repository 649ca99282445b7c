package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"duckreplay/player/internal/logging"
)

// ErrNothingToRoll is returned by a Roller when no events are buffered.
var ErrNothingToRoll = errors.New("httpapi: nothing to roll")

// ReadinessFunc reports nil once replayd has a game it can serve.
type ReadinessFunc func() error

// Sample is one Prometheus series value.
type Sample struct {
	Name   string
	Help   string
	Kind   string // gauge or counter
	Labels map[string]string
	Value  float64
}

// MetricsFunc gathers the current samples on every scrape.
type MetricsFunc func() []Sample

// Roller finalizes the in-progress recording and returns where it was written.
type Roller interface {
	Roll(name string) (string, error)
}

// RollerFunc adapts a function into a Roller.
type RollerFunc func(name string) (string, error)

// Roll implements Roller.
func (f RollerFunc) Roll(name string) (string, error) { return f(name) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

type retryAdvisor interface {
	RetryAfter() time.Duration
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessFunc
	Metrics     MetricsFunc
	Roller      Roller
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
	Started     time.Time
}

// HandlerSet bundles the replayd operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessFunc
	metrics     MetricsFunc
	roller      Roller
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
	started     time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	started := opts.Started
	if started.IsZero() {
		started = now()
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		metrics:     opts.Metrics,
		roller:      opts.Roller,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
		started:     started,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/replay/roll", h.RollHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler answers 503 until a game is loaded.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok", UptimeSeconds: h.uptime().Seconds()}
		if h.readiness != nil {
			if err := h.readiness(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "waiting"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		samples := []Sample{{
			Name:  "replayd_uptime_seconds",
			Help:  "Process uptime in seconds.",
			Kind:  "gauge",
			Value: float64(int64(h.uptime().Seconds())),
		}}
		if h.metrics != nil {
			samples = append(samples, h.metrics()...)
		}
		writeSamples(w, samples)
	}
}

// RollHandler authorises and finalizes the current recording.
// An optional name query parameter overrides the generated file name.
func (h *HandlerSet) RollHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_roll"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay roll denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.authorise(r) {
			reqLogger.Warn("replay roll denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			if advisor, ok := h.rateLimiter.(retryAdvisor); ok {
				seconds := int64(advisor.RetryAfter().Round(time.Second) / time.Second)
				w.Header().Set("Retry-After", strconv.FormatInt(max(seconds, 1), 10))
			}
			reqLogger.Warn("replay roll denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.roller == nil {
			reqLogger.Warn("replay roll denied: recording disabled")
			http.Error(w, "recording is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.roller.Roll(r.URL.Query().Get("name"))
		if errors.Is(err, ErrNothingToRoll) {
			writeJSON(w, http.StatusConflict, response{Status: "empty"})
			return
		}
		if err != nil {
			reqLogger.Error("replay roll failed", logging.Error(err))
			http.Error(w, "failed to roll replay", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay rolled", logging.String("location", location))
		writeJSON(w, http.StatusCreated, response{Status: "rolled", Location: location})
	}
}

func (h *HandlerSet) uptime() time.Duration {
	elapsed := h.now().Sub(h.started)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// writeSamples renders samples in exposition order, emitting HELP and TYPE
// once for each metric name.
func writeSamples(w http.ResponseWriter, samples []Sample) {
	described := make(map[string]bool, len(samples))
	for _, sample := range samples {
		if !described[sample.Name] {
			described[sample.Name] = true
			kind := sample.Kind
			if kind == "" {
				kind = "gauge"
			}
			fmt.Fprintf(w, "# HELP %s %s\n", sample.Name, sample.Help)
			fmt.Fprintf(w, "# TYPE %s %s\n", sample.Name, kind)
		}
		fmt.Fprintf(w, "%s%s %s\n", sample.Name, formatLabels(sample.Labels), strconv.FormatFloat(sample.Value, 'f', -1, 64))
	}
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", key, labels[key]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
