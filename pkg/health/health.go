// Package health serves Kubernetes liveness and readiness probes.
//
// Every registered probe is polled in its own goroutine. A probe flips to
// failing only after FailureThreshold consecutive errors and back to passing
// after SuccessThreshold consecutive successes, so a single slow ping does
// not take the pod out of rotation.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports nil when the component is healthy.
type Check func(ctx context.Context) error

// Kind selects the endpoint a probe contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

// Option tunes a probe.
type Option func(*probe)

// WithTimeout bounds a single check run. Default is one second.
func WithTimeout(d time.Duration) Option {
	return func(p *probe) { p.timeout = d }
}

// WithThresholds sets the consecutive failure and success counts required to
// change state. Defaults are 3 and 1.
func WithThresholds(failure, success int) Option {
	return func(p *probe) {
		p.failureThreshold = failure
		p.successThreshold = success
	}
}

type probe struct {
	name             string
	kind             Kind
	check            Check
	timeout          time.Duration
	failureThreshold int
	successThreshold int

	mu      sync.Mutex
	failing bool
	lastErr error
	streak  int // positive counts successes, negative counts failures
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.streak = min(p.streak, 0) - 1
		if -p.streak >= p.failureThreshold {
			p.failing = true
		}
		return
	}
	p.streak = max(p.streak, 0) + 1
	if p.streak >= p.successThreshold {
		p.failing = false
	}
}

// status returns the failure message, or "" when the probe passes.
func (p *probe) status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.failing:
		return ""
	case p.lastErr != nil:
		return p.lastErr.Error()
	default:
		return "check is unhealthy"
	}
}

// Health aggregates probes and the manual readiness switch.
type Health struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers a probe. Probes start out passing.
func (h *Health) Add(kind Kind, name string, check Check, opts ...Option) {
	p := &probe{
		name:             name,
		kind:             kind,
		check:            check,
		timeout:          time.Second,
		failureThreshold: 3,
		successThreshold: 1,
	}
	for _, o := range opts {
		o(p)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

// Start polls every probe at interval until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		go poll(ctx, p, interval)
	}
}

func poll(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p.run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts polling. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness switch, typically false on shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// probe passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.Lock()
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	failures := make(map[string]string)
	for _, p := range probes {
		if p.kind != kind {
			continue
		}
		if msg := p.status(); msg != "" {
			failures[p.name] = msg
		}
	}
	return failures
}

// Response is the probe endpoint body.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live serves /livez.
func (h *Health) Live(c *gin.Context) {
	respond(c, h.failures(Liveness))
}

// Ready serves /readyz. It fails while the manual switch is off.
func (h *Health) Ready(c *gin.Context) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	respond(c, failures)
}

func respond(c *gin.Context, failures map[string]string) {
	if len(failures) == 0 {
		c.JSON(http.StatusOK, Response{Status: "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, Response{Status: "unhealthy", Checks: failures})
}
