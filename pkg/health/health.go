// Package health serves Kubernetes-style liveness and readiness probes.
//
// Registered checks run on a background ticker. A check flips to unhealthy
// after failing failureThreshold consecutive times and recovers on the first
// success, which keeps a flaky dependency from flapping the probe.
package health

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const failureThreshold = 3

// probe is one registered check plus its rolling state.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu      sync.Mutex
	fails   int
	lastErr error
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.check(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.fails++
	} else {
		p.fails = 0
	}
}

// failure returns the failure message when the probe is unhealthy, or "".
func (p *probe) failure() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails < failureThreshold {
		return ""
	}
	if p.lastErr != nil {
		return p.lastErr.Error()
	}
	return "check is unhealthy"
}

// Health tracks liveness and readiness probes for a service.
type Health struct {
	mu        sync.Mutex
	ready     bool
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health service in the not-ready state. Call SetReady(true)
// once initialization finishes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check for the /livez probe.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &probe{name: name, timeout: timeout, check: check})
}

// AddReadinessCheck registers a check for the /readyz probe.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &probe{name: name, timeout: timeout, check: check})
}

// Start runs every registered probe on its own ticker until Stop or context
// cancellation. Register all checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := append(append([]*probe{}, h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			p.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.run(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Call with false during graceful
// shutdown to drain traffic before the listener closes.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports whether the service is marked ready and every readiness
// probe is passing.
func (h *Health) IsReady() bool {
	h.mu.Lock()
	ready := h.ready
	probes := h.readiness
	h.mu.Unlock()

	if !ready {
		return false
	}
	for _, p := range probes {
		if p.failure() != "" {
			return false
		}
	}
	return true
}

// LiveEndpoint handles /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	probes := h.liveness
	h.mu.Unlock()
	writeProbeStatus(w, failures(probes))
}

// ReadyEndpoint handles /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	ready := h.ready
	probes := h.readiness
	h.mu.Unlock()

	fails := failures(probes)
	if !ready {
		fails = append(fails, [2]string{"_readiness", "service is not ready"})
	}
	writeProbeStatus(w, fails)
}

func failures(probes []*probe) [][2]string {
	var out [][2]string
	for _, p := range probes {
		if msg := p.failure(); msg != "" {
			out = append(out, [2]string{p.name, msg})
		}
	}
	return out
}

func writeProbeStatus(w http.ResponseWriter, fails [][2]string) {
	w.Header().Set("Content-Type", "application/json")

	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("status")
	if len(fails) == 0 {
		e.Str("ok")
		e.ObjEnd()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(e.Bytes())
		return
	}
	e.Str("unhealthy")
	e.FieldStart("checks")
	e.ObjStart()
	for _, f := range fails {
		e.FieldStart(f[0])
		e.Str(f[1])
	}
	e.ObjEnd()
	e.ObjEnd()
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(e.Bytes())
}

// GoroutineCountCheck flags a goroutine leak once the count passes threshold.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
