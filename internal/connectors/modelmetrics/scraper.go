// Package modelmetrics follows the model-monitoring exporter: drift, accuracy
// and dataset-size gauges published in Prometheus text format.
package modelmetrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KnownMetrics are the fixed gauges of the exporter. Per-column drift flags
// are published as <column>_drift.
var KnownMetrics = []string{
	"drift_share",
	"drift_count",
	"accuracy",
	"precision",
	"recall",
	"f1_score",
	"current_data_count",
	"reference_data_count",
	"columns_count",
}

const driftSuffix = "_drift"

func isKnown(name string) bool {
	return slices.Contains(KnownMetrics, name)
}

func IsModelMetric(name string) bool {
	if isKnown(name) {
		return true
	}
	col, ok := strings.CutSuffix(name, driftSuffix)
	return ok && col != ""
}

// Point is one scraped value of a metric.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// LiveSnapshot is the model gauges of one exporter at one scrape.
type LiveSnapshot struct {
	Target      string             `json:"target"`
	ScrapedAt   time.Time          `json:"scraped_at"`
	SampleCount int                `json:"sample_count"`
	Metrics     map[string]float64 `json:"metrics"`
	Drifted     []string           `json:"drifted_columns,omitempty"`
}

// TargetStatus is the health of one exporter endpoint.
type TargetStatus struct {
	Target        string    `json:"target"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	PingMS        int64     `json:"ping_ms"`
	ScrapedAt     time.Time `json:"scraped_at"`
	SampleCount   int       `json:"sample_count"`
	ModelMetrics  int       `json:"model_metrics"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	MemoryMB      float64   `json:"memory_mb"`
}

// ring keeps the newest limit points of one metric.
type ring struct {
	limit  int
	points []Point
}

func (r *ring) push(p Point) {
	r.points = append(r.points, p)
	if over := len(r.points) - r.limit; over > 0 {
		r.points = slices.Delete(r.points, 0, over)
	}
}

func (r *ring) since(t time.Time) []Point {
	out := make([]Point, 0, len(r.points))
	for _, p := range r.points {
		if t.IsZero() || !p.Timestamp.Before(t) {
			out = append(out, p)
		}
	}
	return out
}

// Scraper polls one or more exporters. History is per target and metric and
// bounded by maxPoints.
type Scraper struct {
	client    *http.Client
	targets   []string
	maxPoints int

	mu      sync.RWMutex
	history map[string]map[string]*ring
	latest  map[string]LiveSnapshot
}

func NewScraper(targets []string, timeout time.Duration, maxPoints int) *Scraper {
	if maxPoints <= 0 {
		maxPoints = 720
	}
	var clean []string
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		targets:   clean,
		maxPoints: maxPoints,
		history:   map[string]map[string]*ring{},
		latest:    map[string]LiveSnapshot{},
	}
}

func (s *Scraper) Enabled() bool {
	return s != nil && len(s.targets) > 0
}

func (s *Scraper) Targets() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.targets)
}

func (s *Scraper) Close() {
	if s != nil {
		s.client.CloseIdleConnections()
	}
}

// Scrape reads every target concurrently and records the model gauges. Any
// failing target fails the whole scrape; targets that did answer are still
// recorded.
func (s *Scraper) Scrape(ctx context.Context) ([]LiveSnapshot, error) {
	if !s.Enabled() {
		return nil, nil
	}

	at := time.Now().UTC()
	snaps := make([]LiveSnapshot, len(s.targets))
	ok := make([]bool, len(s.targets))

	var g errgroup.Group
	for i, target := range s.targets {
		g.Go(func() error {
			samples, err := s.read(ctx, target)
			if err != nil {
				return fmt.Errorf("scrape %s: %w", target, err)
			}
			gauges := modelGauges(samples)
			snaps[i] = LiveSnapshot{
				Target:      target,
				ScrapedAt:   at,
				SampleCount: countModelSamples(samples),
				Metrics:     gauges,
				Drifted:     driftedColumns(gauges),
			}
			ok[i] = true
			return nil
		})
	}
	err := g.Wait()

	for i, snap := range snaps {
		if ok[i] {
			s.store(snap)
		}
	}
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// Latest returns the last snapshot of every target that has been scraped, in
// target order.
func (s *Scraper) Latest() []LiveSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LiveSnapshot, 0, len(s.latest))
	for _, t := range s.targets {
		if snap, ok := s.latest[t]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// Series returns the recorded points of metric for target at or after since.
// A zero since returns everything kept.
func (s *Scraper) Series(target, metric string, since time.Time) []Point {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.history[target][metric]
	if r == nil {
		return []Point{}
	}
	return r.since(since)
}

// SeenMetrics lists, sorted, the metrics recorded for target.
func (s *Scraper) SeenMetrics(target string) []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.history[target]))
	for name := range s.history[target] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Scraper) store(snap LiveSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[snap.Target] = snap
	byMetric := s.history[snap.Target]
	if byMetric == nil {
		byMetric = map[string]*ring{}
		s.history[snap.Target] = byMetric
	}
	for name, v := range snap.Metrics {
		r := byMetric[name]
		if r == nil {
			r = &ring{limit: s.maxPoints}
			byMetric[name] = r
		}
		r.push(Point{Timestamp: snap.ScrapedAt, Value: v})
	}
}

func (s *Scraper) read(ctx context.Context, target string) ([]sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return readExposition(resp.Body)
}

// Run scrapes immediately and then every interval until ctx ends. A failed
// scrape is logged; the next tick tries again.
func (s *Scraper) Run(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if !s.Enabled() {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for {
		if snaps, err := s.Scrape(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Warn("model metrics scrape failed", zap.Error(err))
			}
		} else {
			logger.Debug("model metrics scraped", zap.Int("targets", len(snaps)))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// ProbeTargets checks each exporter on its own; one failing target does not
// hide the others.
func (s *Scraper) ProbeTargets(ctx context.Context) []TargetStatus {
	if !s.Enabled() {
		return nil
	}

	at := time.Now().UTC()
	out := make([]TargetStatus, len(s.targets))
	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = s.probe(ctx, target, at)
		}()
	}
	wg.Wait()
	return out
}

func (s *Scraper) probe(ctx context.Context, target string, at time.Time) TargetStatus {
	st := TargetStatus{Target: target, ScrapedAt: at}

	began := time.Now()
	samples, err := s.read(ctx, target)
	st.PingMS = time.Since(began).Milliseconds()
	if err != nil {
		st.Error = err.Error()
		return st
	}

	st.OK = true
	st.SampleCount = len(samples)
	first := firstValues(samples)
	for name := range first {
		if IsModelMetric(name) {
			st.ModelMetrics++
		}
	}
	if started := first["process_start_time_seconds"]; started > 0 {
		st.UptimeSeconds = int64(at.Sub(time.Unix(int64(started), 0)).Seconds())
	}
	if rss := first["process_resident_memory_bytes"]; rss > 0 {
		st.MemoryMB = rss / (1 << 20)
	}
	return st
}

func countModelSamples(samples []sample) int {
	n := 0
	for _, smp := range samples {
		if IsModelMetric(smp.name) {
			n++
		}
	}
	return n
}

// driftedColumns lists the columns whose drift flag is set.
func driftedColumns(gauges map[string]float64) []string {
	var cols []string
	for name, v := range gauges {
		if isKnown(name) || v == 0 {
			continue
		}
		if col, ok := strings.CutSuffix(name, driftSuffix); ok {
			cols = append(cols, col)
		}
	}
	slices.Sort(cols)
	return cols
}
