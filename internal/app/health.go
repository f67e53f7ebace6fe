package app

import (
	"sync/atomic"

	"github.com/florianilch/claudine-gateway/internal/proxy"
)

// Health tracks whether the gateway accepts Claude traffic. It backs /readyz and /health.
// All methods are thread-safe.
type Health struct {
	ready atomic.Bool
}

var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a Health that is not ready until the listener is up.
func NewHealth() *Health {
	return &Health{}
}

// SetReady updates the readiness state.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the listener is up and not draining.
func (h *Health) IsReady() bool {
	return h.ready.Load()
}
