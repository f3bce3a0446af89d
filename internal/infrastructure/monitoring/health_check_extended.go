package monitoring

import (
	"context"
	"errors"
	"time"

	"vistahub/internal/core/ports"
)

var errNoBroadcasterBound = errors.New("no broadcaster currently bound")

// AddRegistryCheck adds a health check that verifies the session registry
// is still answering queries (i.e. its actor loop hasn't deadlocked or
// been closed out from under the server).
func (h *HealthChecker) AddRegistryCheck(registry ports.Registry, interval, timeout time.Duration) {
	h.AddCheck("registry", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if _, err := registry.SnapshotRoster(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddBroadcasterPresenceCheck adds a readiness check that reports healthy
// only while a broadcaster is currently bound to the hub. This is a
// readiness signal, not a liveness one: an idle hub with no broadcaster
// is a normal, up state, just not one that can serve viewers yet.
func (h *HealthChecker) AddBroadcasterPresenceCheck(registry ports.Registry, interval, timeout time.Duration) {
	h.AddCheck("broadcaster_presence", func(ctx context.Context) (bool, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		current, err := registry.CurrentBroadcaster(ctx)
		if err != nil {
			return false, err
		}
		if current == nil {
			return false, errNoBroadcasterBound
		}
		return true, nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for a load balancer probe.
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
