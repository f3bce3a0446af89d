package eventhub

import (
	"context"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"
	"vistahub/pkg/batch"

	"go.uber.org/zap"
)

// Hub is the Event Hub: a per-participant FIFO egress queue plus a
// coalesced region-change fan-out. Each participant's messages are kept
// strictly ordered on their own queue; a full queue is never blocked on
// or silently dropped from -- Enqueue reports it, and the caller (the
// signaling transport) is expected to disconnect that participant.
//
// Grounded on the teacher's `connections map[string]*websocket.Conn`
// bookkeeping in infrastructure/signal/websocket_server.go, generalized
// from "one map of live sockets" to "one map of outbound queues" so the
// hub never has to know about gorilla/websocket.
type Hub struct {
	mu   sync.RWMutex
	subs map[domain.TransportID]*subscriber

	coalescer *batch.Coalescer[domain.ClientID, regionUpdate]
	logger    *zap.SugaredLogger
}

type subscriber struct {
	role domain.Role
	ch   chan ports.OutboundMessage
}

type regionUpdate struct {
	broadcasterTransportID domain.TransportID
	clientID               domain.ClientID
	region                 domain.Rectangle
}

// NewHub builds an Event Hub whose region-change notifications are
// coalesced to at most one flush per window.
func NewHub(window time.Duration, logger *zap.SugaredLogger) *Hub {
	if window <= 0 {
		window = time.Duration(domain.RegionCoalesceWindowMillis) * time.Millisecond
	}
	h := &Hub{
		subs:   make(map[domain.TransportID]*subscriber),
		logger: logger,
	}
	h.coalescer = batch.NewCoalescer(window, coalescedFlusher{hub: h})
	return h
}

// coalescedFlusher adapts Hub.flushRegionUpdates to the generic
// batch.CoalescedProcessor contract without exposing it on Hub's own
// public surface.
type coalescedFlusher struct {
	hub *Hub
}

func (f coalescedFlusher) ProcessCoalesced(ctx context.Context, updates map[domain.ClientID]regionUpdate) error {
	f.hub.flushRegionUpdates(updates)
	return nil
}

// Subscribe registers transportID's outbound queue and returns the
// receive side. Re-subscribing an already-known transport replaces its
// queue, matching the Registry's "reconnect replaces transport" model.
func (h *Hub) Subscribe(transportID domain.TransportID, role domain.Role) <-chan ports.OutboundMessage {
	ch := make(chan ports.OutboundMessage, domain.OutboundQueueCapacity)

	h.mu.Lock()
	h.subs[transportID] = &subscriber{role: role, ch: ch}
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes transportID's outbound queue.
func (h *Hub) Unsubscribe(transportID domain.TransportID) {
	h.mu.Lock()
	sub, ok := h.subs[transportID]
	delete(h.subs, transportID)
	h.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Enqueue appends msg to transportID's FIFO. It never blocks: a full
// queue returns domain.ErrOutboundQueueFull so the transport layer can
// disconnect the slow participant instead of stalling everyone else's
// delivery.
func (h *Hub) Enqueue(transportID domain.TransportID, msg ports.OutboundMessage) error {
	h.mu.RLock()
	sub, ok := h.subs[transportID]
	h.mu.RUnlock()

	if !ok {
		return domain.ErrUnknownViewer
	}

	select {
	case sub.ch <- msg:
		return nil
	default:
		if h.logger != nil {
			h.logger.Warnw("outbound queue full, disconnecting", "transportId", transportID)
		}
		return domain.ErrOutboundQueueFull
	}
}

// Broadcast enqueues msg on every subscriber currently holding role,
// best-effort: a single overflowing subscriber does not stop delivery to
// the rest.
func (h *Hub) Broadcast(role domain.Role, msg ports.OutboundMessage) {
	h.mu.RLock()
	targets := make([]domain.TransportID, 0, len(h.subs))
	for id, sub := range h.subs {
		if sub.role == role {
			targets = append(targets, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range targets {
		if err := h.Enqueue(id, msg); err != nil && h.logger != nil {
			h.logger.Warnw("broadcast enqueue failed", "transportId", id, "error", err)
		}
	}
}

// NotifyRegionChanged records the viewer's latest region for coalesced
// delivery. Repeated calls for the same clientId within one window
// collapse to the last value, matching the admin-flood scenario's bound
// on notification volume.
func (h *Hub) NotifyRegionChanged(broadcasterTransportID domain.TransportID, clientID domain.ClientID, region domain.Rectangle) {
	h.coalescer.Put(clientID, regionUpdate{
		broadcasterTransportID: broadcasterTransportID,
		clientID:               clientID,
		region:                 region,
	})
}

// flushRegionUpdates delivers one coalesced client-region-updated message
// per viewer to the broadcaster, so a burst of rapid reassignments costs
// the broadcaster's Cropper at most one retarget per window instead of
// one per request.
func (h *Hub) flushRegionUpdates(updates map[domain.ClientID]regionUpdate) {
	for _, u := range updates {
		_ = h.Enqueue(u.broadcasterTransportID, ports.OutboundMessage{
			Type: "client-region-updated",
			Payload: domain.RegionChangedEvent{
				ClientID: u.clientID,
				Region:   u.region,
			},
		})
	}
}

// Close stops the coalescer and closes every subscriber's queue.
func (h *Hub) Close() {
	h.coalescer.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

var _ ports.EventHub = (*Hub)(nil)
