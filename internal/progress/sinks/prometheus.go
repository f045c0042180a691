package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/readingprogress/internal/progress"
)

// PrometheusSink exports reading progress as Prometheus metrics.
type PrometheusSink struct {
	percentage  prometheus.Gauge
	active      prometheus.Gauge
	updates     prometheus.Counter
	transitions *prometheus.CounterVec
	completions prometheus.Counter
	leaveAt     prometheus.Histogram

	sessions *sessionTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		percentage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reading_progress_percentage",
			Help: "Latest scroll percentage reported by the tracker.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reading_progress_active",
			Help: "1 while a content container is active, 0 otherwise.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reading_progress_updates_total",
			Help: "Viewport states received.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reading_progress_transitions_total",
			Help: "Active container changes partitioned by kind.",
		}, []string{"kind"}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reading_progress_completions_total",
			Help: "Times a session reached 100 percent from below.",
		}),
		leaveAt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reading_progress_leave_percentage",
			Help:    "Percentage reported when the reader left a container.",
			Buckets: []float64{0, 10, 25, 50, 75, 90, 99, 100},
		}),
		sessions: newSessionTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.percentage,
		s.active,
		s.updates,
		s.transitions,
		s.completions,
		s.leaveAt,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Update) error {
	for _, u := range batch {
		s.consumeUpdate(u)
	}
	return nil
}

func (s *PrometheusSink) consumeUpdate(u progress.Update) {
	pct := u.State.ScrollPercentage
	s.updates.Inc()
	s.percentage.Set(pct)
	if u.State.Active {
		s.active.Set(1)
	} else {
		s.active.Set(0)
	}
	if u.Transition != progress.TransitionNone {
		s.transitions.WithLabelValues(string(u.Transition)).Inc()
	}
	if u.Transition == progress.TransitionLeave || u.Transition == progress.TransitionSwitch {
		s.leaveAt.Observe(s.sessions.previous(u.Session))
	}
	if s.sessions.observe(u.Session, pct) {
		s.completions.Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// sessionTracker remembers the last percentage per session.
type sessionTracker struct {
	mu   sync.Mutex
	last map[uuid.UUID]float64
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{last: make(map[uuid.UUID]float64)}
}

func (t *sessionTracker) previous(id uuid.UUID) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[id]
}

// observe records pct and reports whether it completes the session.
func (t *sessionTracker) observe(id uuid.UUID, pct float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[id]
	t.last[id] = pct
	return pct >= 100 && (!seen || prev < 100)
}
