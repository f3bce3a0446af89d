package broadcaster

import (
	"context"
	"time"

	"vistahub/pkg/circuitbreaker"
	"vistahub/pkg/retry"
	"vistahub/pkg/utils"

	"go.uber.org/zap"
)

// Reconnector keeps a HubClient connected for the life of the
// broadcaster process: every lost connection (Coordinator's
// OnHubDisconnected fires when this happens) is followed by a
// circuit-broken, exponentially backed-off redial loop rather than a
// tight retry loop hammering a hub that is down for maintenance.
//
// This is the concrete home for the retry/circuitbreaker pattern the
// teacher's reliability.MeshServiceWrapper applied to mesh RPCs --
// rewired here from "wrap an RPC call" to "wrap a WebSocket dial",
// the broadcaster's one long-lived call to an external dependency.
type Reconnector struct {
	client    *HubClient
	breaker   *circuitbreaker.CircuitBreaker
	retryCfg  retry.Config
	logger    *zap.SugaredLogger
}

// NewReconnector builds a Reconnector around client using sensible
// defaults for both the circuit breaker and the retry backoff.
func NewReconnector(client *HubClient, logger *zap.SugaredLogger) *Reconnector {
	return &Reconnector{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retryCfg: retry.Config{
			Enabled:      true,
			MaxAttempts:  5,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

// Run blocks until ctx is cancelled, keeping client connected. Each dial
// attempt is backed off exponentially by retry.Retry; once enough
// consecutive bursts of retries have failed to connect to reach the
// breaker's failure threshold, the circuit breaker opens and further
// bursts are rejected outright until its timeout elapses, so a prolonged
// hub outage settles into one retry burst per breaker timeout instead of
// a continuous retry storm.
func (r *Reconnector) Run(ctx context.Context, connected chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := r.breaker.Execute(ctx, func() error {
			return retry.Retry(ctx, r.retryCfg, func() error {
				return r.client.Connect(ctx)
			})
		})
		if err != nil {
			if r.logger != nil {
				r.logger.Warnw("hub connect attempts exhausted, backing off",
					"error", err, "backoff", utils.FormatDuration(r.retryCfg.MaxDelay))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.retryCfg.MaxDelay):
			}
			continue
		}

		if connected != nil {
			select {
			case connected <- struct{}{}:
			default:
			}
		}

		<-r.waitForDisconnect(ctx)
	}
}

// waitForDisconnect blocks until the Reconnector's HubClient's
// connection is gone, detected by polling rather than a callback so this
// type does not need to implement Dispatcher itself -- the Coordinator
// already is the Dispatcher driving session teardown on the same event.
func (r *Reconnector) waitForDisconnect(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !r.client.Connected() {
					return
				}
			}
		}
	}()
	return done
}
