package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"
	pkglogger "vistahub/pkg/logger"

	"go.uber.org/zap"
)

// RosterObserver is notified once per successful Registry mutation, per
// the change-notification contract in the component design. It is the
// Registry's only coupling to the Event Hub.
type RosterObserver interface {
	OnRosterChanged(roster []domain.ViewerRecord)
}

// FatalInvariantFunc is invoked if the registry's single serialization
// domain ever observes a state that the invariants say cannot happen. The
// hub process is expected to terminate with exit code 3 on this call.
type FatalInvariantFunc func(reason string)

type binding struct {
	role     domain.Role
	clientID domain.ClientID
}

type registryState struct {
	viewers     map[domain.ClientID]*domain.ViewerRecord
	broadcaster *domain.BroadcasterRecord
	byTransport map[domain.TransportID]binding
}

// Registry is the Session Registry: the single serialization domain that
// owns broadcaster presence, the viewer roster, and region assignments.
// All state is confined to one goroutine; every public method round-trips
// a closure through a command channel, giving sequential consistency
// without locks.
type Registry struct {
	reqs     chan func(*registryState)
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	observer     RosterObserver
	onFatal      FatalInvariantFunc
	staleTTL     time.Duration
	logger       *zap.SugaredLogger
	cl           *pkglogger.ContextLogger
}

// NewRegistry starts the registry's serialization goroutine and its
// background stale-record collector. Mutation log lines are emitted
// through a ContextLogger built from zapLogger, so a trace/request id
// set on the ctx passed into a mutating method (UpsertViewer, SetRegion,
// ...) rides along into that mutation's log entry.
func NewRegistry(observer RosterObserver, staleTTL time.Duration, onFatal FatalInvariantFunc, zapLogger *zap.SugaredLogger) *Registry {
	if staleTTL <= 0 {
		staleTTL = time.Duration(domain.StaleRecordTTLMinutes) * time.Minute
	}
	r := &Registry{
		reqs:     make(chan func(*registryState), 64),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		observer: observer,
		onFatal:  onFatal,
		staleTTL: staleTTL,
		logger:   zapLogger,
	}
	if zapLogger != nil {
		r.cl = pkglogger.NewContextLogger(zapLogger.Desugar())
	}
	go r.run()
	go r.gcLoop()
	return r
}

func (r *Registry) run() {
	defer close(r.doneCh)
	s := &registryState{
		viewers:     make(map[domain.ClientID]*domain.ViewerRecord),
		byTransport: make(map[domain.TransportID]binding),
	}
	for {
		select {
		case cmd := <-r.reqs:
			cmd(s)
		case <-r.stopCh:
			return
		}
	}
}

// do submits fn to the serialization domain and blocks until it has run.
func (r *Registry) do(fn func(*registryState)) {
	done := make(chan struct{})
	select {
	case r.reqs <- func(s *registryState) {
		fn(s)
		close(done)
	}:
	case <-r.stopCh:
		close(done)
		return
	}
	<-done
}

func (r *Registry) snapshotLocked(s *registryState) []domain.ViewerRecord {
	out := make([]domain.ViewerRecord, 0, len(s.viewers))
	for _, v := range s.viewers {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func (r *Registry) notifyRosterChanged(roster []domain.ViewerRecord) {
	if r.observer != nil {
		r.observer.OnRosterChanged(roster)
	}
}

// UpsertViewer creates or revives a ViewerRecord, marking it connected.
func (r *Registry) UpsertViewer(ctx context.Context, clientID domain.ClientID, transportID domain.TransportID, displayName string) (domain.ViewerRecord, error) {
	var result domain.ViewerRecord
	var roster []domain.ViewerRecord

	r.do(func(s *registryState) {
		v, exists := s.viewers[clientID]
		if !exists {
			v = &domain.ViewerRecord{ClientID: clientID}
			s.viewers[clientID] = v
		}
		if v.TransportID != "" && v.TransportID != transportID {
			delete(s.byTransport, v.TransportID)
		}
		v.TransportID = transportID
		if displayName != "" {
			v.DisplayName = displayName
		}
		v.Connected = true
		v.LastSeenAt = time.Now()
		s.byTransport[transportID] = binding{role: domain.RoleViewer, clientID: clientID}

		result = v.Clone()
		roster = r.snapshotLocked(s)
	})

	if r.cl != nil {
		r.cl.LogInfo(ctx, "viewer upserted", zap.String("clientId", string(clientID)), zap.String("transportId", string(transportID)))
	}
	r.notifyRosterChanged(roster)
	return result, nil
}

// MarkDisconnected flips connected=false for the viewer bound to this
// transport, or clears the broadcaster slot if the transport was the
// broadcaster's. ViewerRecords are never deleted here.
func (r *Registry) MarkDisconnected(ctx context.Context, transportID domain.TransportID) error {
	var mutated bool
	var roster []domain.ViewerRecord

	r.do(func(s *registryState) {
		if s.broadcaster != nil && s.broadcaster.TransportID == transportID {
			s.broadcaster = nil
			mutated = true
		}
		if b, ok := s.byTransport[transportID]; ok {
			delete(s.byTransport, transportID)
			if b.role == domain.RoleViewer {
				if v, ok := s.viewers[b.clientID]; ok {
					v.Connected = false
					v.TransportID = ""
					v.LastSeenAt = time.Now()
					mutated = true
				}
			}
		}
		if mutated {
			roster = r.snapshotLocked(s)
		}
	})

	if mutated {
		if r.cl != nil {
			r.cl.LogInfo(ctx, "participant marked disconnected", zap.String("transportId", string(transportID)))
		}
		r.notifyRosterChanged(roster)
	}
	return nil
}

// SetRegion normalizes and stores the viewer's region. Setting region to
// its current value is a no-op that does not fire a roster-changed event.
func (r *Registry) SetRegion(ctx context.Context, clientID domain.ClientID, region *domain.Rectangle) (domain.ViewerRecord, error) {
	var result domain.ViewerRecord
	var roster []domain.ViewerRecord
	var err error
	var changed bool

	r.do(func(s *registryState) {
		v, exists := s.viewers[clientID]
		if !exists {
			err = domain.ErrUnknownViewer
			return
		}

		if region == nil {
			if v.Region != nil {
				v.Region = nil
				changed = true
			}
		} else {
			geo := domain.Geometry{}
			if s.broadcaster != nil {
				geo = s.broadcaster.Geometry
			}
			norm := region.Normalize(geo)
			if norm.Area() == 0 {
				err = domain.ErrBadInput
				return
			}
			if v.Region == nil || *v.Region != norm {
				v.Region = &norm
				changed = true
			}
		}

		if changed {
			v.LastSeenAt = time.Now()
		}
		result = v.Clone()
		if changed {
			roster = r.snapshotLocked(s)
		}
	})

	if err != nil {
		return domain.ViewerRecord{}, err
	}
	if changed {
		if r.cl != nil {
			r.cl.LogInfo(ctx, "viewer region changed", zap.String("clientId", string(clientID)))
		}
		r.notifyRosterChanged(roster)
	}
	return result, nil
}

// SetDisplayName updates the viewer's display name. An empty name is a
// no-op; setting it to its current value does not fire a roster-changed
// event, matching SetRegion's idempotence rule.
func (r *Registry) SetDisplayName(ctx context.Context, clientID domain.ClientID, displayName string) (domain.ViewerRecord, error) {
	var result domain.ViewerRecord
	var roster []domain.ViewerRecord
	var err error
	var changed bool

	r.do(func(s *registryState) {
		v, exists := s.viewers[clientID]
		if !exists {
			err = domain.ErrUnknownViewer
			return
		}
		if displayName != "" && v.DisplayName != displayName {
			v.DisplayName = displayName
			v.LastSeenAt = time.Now()
			changed = true
		}
		result = v.Clone()
		if changed {
			roster = r.snapshotLocked(s)
		}
	})

	if err != nil {
		return domain.ViewerRecord{}, err
	}
	if changed {
		if r.cl != nil {
			r.cl.LogInfo(ctx, "viewer display name changed", zap.String("clientId", string(clientID)))
		}
		r.notifyRosterChanged(roster)
	}
	return result, nil
}

// RegisterBroadcaster replaces any prior broadcaster slot and returns the
// previous occupant so the caller can disconnect its transport.
func (r *Registry) RegisterBroadcaster(ctx context.Context, transportID domain.TransportID, geometry domain.Geometry) (*domain.BroadcasterRecord, error) {
	var prior *domain.BroadcasterRecord
	var roster []domain.ViewerRecord
	var broadcasterCount int

	r.do(func(s *registryState) {
		if s.broadcaster != nil {
			p := *s.broadcaster
			prior = &p
			delete(s.byTransport, s.broadcaster.TransportID)
		}
		s.broadcaster = &domain.BroadcasterRecord{TransportID: transportID, Geometry: geometry}
		s.byTransport[transportID] = binding{role: domain.RoleBroadcaster}

		for _, b := range s.byTransport {
			if b.role == domain.RoleBroadcaster {
				broadcasterCount++
			}
		}
		roster = r.snapshotLocked(s)
	})

	if broadcasterCount > 1 && r.onFatal != nil {
		r.onFatal("more than one active broadcaster after arbitration")
	}

	if r.cl != nil {
		r.cl.LogInfo(ctx, "broadcaster registered", zap.String("transportId", string(transportID)))
	}
	r.notifyRosterChanged(roster)
	return prior, nil
}

// SnapshotRoster returns all ViewerRecords ordered by clientId ascending.
func (r *Registry) SnapshotRoster(ctx context.Context) ([]domain.ViewerRecord, error) {
	var roster []domain.ViewerRecord
	r.do(func(s *registryState) {
		roster = r.snapshotLocked(s)
	})
	return roster, nil
}

// LookupByTransport is the reverse index used for disconnection handling.
func (r *Registry) LookupByTransport(ctx context.Context, transportID domain.TransportID) (domain.Role, domain.ClientID, bool) {
	var role domain.Role
	var clientID domain.ClientID
	var found bool
	r.do(func(s *registryState) {
		b, ok := s.byTransport[transportID]
		if ok {
			role, clientID, found = b.role, b.clientID, true
		}
	})
	return role, clientID, found
}

// CurrentBroadcaster returns a copy of the active broadcaster record, or
// nil if none is present.
func (r *Registry) CurrentBroadcaster(ctx context.Context) (*domain.BroadcasterRecord, error) {
	var out *domain.BroadcasterRecord
	r.do(func(s *registryState) {
		if s.broadcaster != nil {
			b := *s.broadcaster
			out = &b
		}
	})
	return out, nil
}

// GetViewer returns a copy of the viewer record for clientID, if any.
func (r *Registry) GetViewer(ctx context.Context, clientID domain.ClientID) (domain.ViewerRecord, bool, error) {
	var out domain.ViewerRecord
	var found bool
	r.do(func(s *registryState) {
		if v, ok := s.viewers[clientID]; ok {
			out = v.Clone()
			found = true
		}
	})
	return out, found, nil
}

// gcLoop periodically discards disconnected ViewerRecords that have been
// stale for longer than staleTTL.
func (r *Registry) gcLoop() {
	ticker := time.NewTicker(r.staleTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var removed int
			var roster []domain.ViewerRecord
			r.do(func(s *registryState) {
				cutoff := time.Now().Add(-r.staleTTL)
				for id, v := range s.viewers {
					if !v.Connected && v.LastSeenAt.Before(cutoff) {
						delete(s.viewers, id)
						removed++
					}
				}
				if removed > 0 {
					roster = r.snapshotLocked(s)
				}
			})
			if removed > 0 {
				if r.logger != nil {
					r.logger.Infow("garbage collected stale viewer records", "count", removed)
				}
				r.notifyRosterChanged(roster)
			}
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the registry's serialization and GC goroutines.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}

var _ ports.Registry = (*Registry)(nil)
