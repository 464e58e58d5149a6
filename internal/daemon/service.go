// Package daemon provides the long-running background usage monitor
// service: periodic refreshes, change-triggered refreshes, and HTTP/SSE/
// Prometheus endpoints for consumers.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/theirongolddev/ccmeter/internal/model"
	"github.com/theirongolddev/ccmeter/internal/pipeline"
	"github.com/theirongolddev/ccmeter/internal/sched"
)

// Config controls the daemon runtime behavior.
type Config struct {
	BasePaths    []string
	WindowDays   int
	Interval     time.Duration
	Addr         string
	EventsBuffer int
}

// Summary is the compact usage state served at /v1/status and streamed
// over SSE.
type Summary struct {
	At               time.Time  `json:"at"`
	CostUsageUSD     float64    `json:"cost_usage_usd"`
	TokenUsage       int64      `json:"token_usage"`
	MessagesUsage    int        `json:"messages_usage"`
	TokensPerMinute  float64    `json:"tokens_per_minute"`
	CostPerHourUSD   float64    `json:"cost_per_hour_usd"`
	P90TokenLimit    int64      `json:"p90_token_limit"`
	P90CostLimitUSD  float64    `json:"p90_cost_limit_usd"`
	LimitResetsAt    time.Time  `json:"limit_resets_at"`
	TokensWillRunOut *time.Time `json:"tokens_will_run_out,omitempty"`
	Blocks           int        `json:"blocks"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastRefreshAt   time.Time `json:"last_refresh_at"`
	RefreshCount    int64     `json:"refresh_count"`
	IntervalSec     int       `json:"interval_sec"`
	LastError       string    `json:"last_error,omitempty"`
	Summary         Summary   `json:"summary"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service is the daemon runtime.
type Service struct {
	cfg       Config
	engine    *pipeline.Engine
	scheduler *sched.Scheduler
	logger    zerolog.Logger

	mu            sync.RWMutex
	startedAt     time.Time
	lastRefreshAt time.Time
	refreshCount  int64
	lastError     string
	snapshot      *model.Metrics

	nextSubID int
	subs      map[int]chan Summary

	metrics *promMetrics
}

// New returns a daemon service around an engine.
func New(engine *pipeline.Engine, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = sched.DefaultInterval
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8791"
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 16
	}

	s := &Service{
		cfg:       cfg,
		engine:    engine,
		logger:    logger,
		startedAt: time.Now(),
		subs:      make(map[int]chan Summary),
		metrics:   newPromMetrics(),
	}
	s.scheduler = sched.New(s.compute, cfg.Interval, logger)
	return s
}

func (s *Service) compute(ctx context.Context) (*model.Metrics, error) {
	now := time.Now().UTC()
	return s.engine.Compute(ctx, now.AddDate(0, 0, -s.cfg.WindowDays), now)
}

// Run starts the HTTP endpoints, the refresh loop, and the log watcher,
// blocking until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		_ = s.scheduler.Run(ctx, s.applySnapshot)
	}()
	go s.watchLogs(ctx)

	s.logger.Info().Str("addr", s.cfg.Addr).Dur("interval", s.cfg.Interval).Msg("daemon started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("daemon http server: %w", err)
	}
}

// watchLogs triggers an immediate refresh when a log file changes,
// debounced so bursts of appends collapse into one refresh.
func (s *Service) watchLogs(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Debug().Err(err).Msg("log watcher unavailable, relying on the refresh interval")
		return
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, base := range s.cfg.BasePaths {
		_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil //nolint:nilerr // unwatchable entries are fine
			}
			if watcher.Add(path) == nil {
				watched++
			}
			return nil
		})
	}
	if watched == 0 {
		return
	}
	s.logger.Debug().Int("dirs", watched).Msg("watching log directories")

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".jsonl" && !ev.Has(fsnotify.Create) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// New session directories appear mid-run; watch them too.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = watcher.Add(ev.Name)
					continue
				}
			}
			if debounce == nil {
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(500 * time.Millisecond)
			}
		case <-fire:
			debounce = nil
			m, err := s.scheduler.RunOnce(ctx)
			if ctx.Err() != nil {
				return
			}
			s.applySnapshot(m, err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug().Err(err).Msg("log watcher error")
		}
	}
}

func (s *Service) applySnapshot(m *model.Metrics, err error) {
	s.mu.Lock()
	s.lastRefreshAt = time.Now()
	s.refreshCount++
	if err != nil {
		s.lastError = err.Error()
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("refresh failed")
		return
	}
	s.lastError = ""
	s.snapshot = m
	subs := make([]chan Summary, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	s.metrics.observe(m)

	summary := summarize(m)
	for _, ch := range subs {
		select {
		case ch <- summary:
		default:
		}
	}
}

func summarize(m *model.Metrics) Summary {
	sum := Summary{
		At:               m.ComputedAt,
		CostUsageUSD:     m.CostUsage,
		TokenUsage:       m.TokenUsage,
		MessagesUsage:    m.MessagesUsage,
		P90TokenLimit:    m.P90.TokenLimit,
		P90CostLimitUSD:  m.P90.CostLimit,
		LimitResetsAt:    m.LimitResetsAt,
		TokensWillRunOut: m.TokensWillRunOut,
		Blocks:           len(m.Blocks),
	}
	if m.BurnRate != nil {
		sum.TokensPerMinute = m.BurnRate.TokensPerMinute
		sum.CostPerHourUSD = m.BurnRate.CostPerHour
	}
	return sum
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	st := Status{
		StartedAt:       s.startedAt,
		LastRefreshAt:   s.lastRefreshAt,
		RefreshCount:    s.refreshCount,
		IntervalSec:     int(s.cfg.Interval.Seconds()),
		LastError:       s.lastError,
		SubscriberCount: len(s.subs),
	}
	if s.snapshot != nil {
		st.Summary = summarize(s.snapshot)
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	snapshot := s.snapshot
	s.mu.RUnlock()

	if snapshot == nil {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Summary, s.cfg.EventsBuffer)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	s.mu.RLock()
	current := s.snapshot
	s.mu.RUnlock()
	if current != nil {
		writeSSE(w, summarize(current))
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case sum := <-ch:
			writeSSE(w, sum)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, sum Summary) {
	data, err := json.Marshal(sum)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Summary) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// promMetrics holds the Prometheus gauges exported at /metrics.
type promMetrics struct {
	registry *prometheus.Registry

	costUsage     prometheus.Gauge
	tokenUsage    prometheus.Gauge
	messagesUsage prometheus.Gauge
	tokensPerMin  prometheus.Gauge
	costPerHour   prometheus.Gauge
	p90TokenLimit prometheus.Gauge
	p90CostLimit  prometheus.Gauge
	timeToReset   prometheus.Gauge
	refreshes     prometheus.Counter
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "ccmeter", Name: name, Help: help})
		reg.MustRegister(g)
		return g
	}

	pm := &promMetrics{
		registry:      reg,
		costUsage:     gauge("cost_usage_usd", "Cost of the active session blocks in USD."),
		tokenUsage:    gauge("token_usage", "Input+output tokens of the active session blocks."),
		messagesUsage: gauge("messages_usage", "Unique messages in the active session blocks."),
		tokensPerMin:  gauge("burn_tokens_per_minute", "Token burn rate over the last hour."),
		costPerHour:   gauge("burn_cost_per_hour_usd", "Cost burn rate over the last hour in USD."),
		p90TokenLimit: gauge("p90_token_limit", "Adaptive P90 token limit."),
		p90CostLimit:  gauge("p90_cost_limit_usd", "Adaptive P90 cost limit in USD."),
		timeToReset:   gauge("time_to_reset_seconds", "Seconds until the block reset."),
	}
	pm.refreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ccmeter", Name: "refreshes_total", Help: "Completed metric refreshes.",
	})
	reg.MustRegister(pm.refreshes)
	return pm
}

func (p *promMetrics) observe(m *model.Metrics) {
	p.costUsage.Set(m.CostUsage)
	p.tokenUsage.Set(float64(m.TokenUsage))
	p.messagesUsage.Set(float64(m.MessagesUsage))
	if m.BurnRate != nil {
		p.tokensPerMin.Set(m.BurnRate.TokensPerMinute)
		p.costPerHour.Set(m.BurnRate.CostPerHour)
	} else {
		p.tokensPerMin.Set(0)
		p.costPerHour.Set(0)
	}
	p.p90TokenLimit.Set(float64(m.P90.TokenLimit))
	p.p90CostLimit.Set(m.P90.CostLimit)
	p.timeToReset.Set(m.TimeToReset.Seconds())
	p.refreshes.Inc()
}
