package signaling

import (
	"context"
	"sync"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"go.uber.org/zap"
)

// rosterBridge implements services.RosterObserver by diffing successive
// full-roster snapshots against the previous one and translating the
// difference into the discrete wire events SPEC_FULL.md's external
// interfaces describe (client-config, region-update, new-viewer,
// client-region-updated, viewer-disconnected), plus an unconditional
// clients-update broadcast to admins on every change.
//
// The Registry's RosterObserver contract only hands over the full roster,
// not a diff, because the Registry itself has no notion of "the Event
// Hub's wire vocabulary" -- keeping that translation here is what lets
// the Registry stay ignorant of WebSocket/JSON concerns entirely.
type rosterBridge struct {
	hub      ports.EventHub
	registry ports.Registry
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	previous map[domain.ClientID]domain.ViewerRecord
}

// OnRosterChanged satisfies services.RosterObserver.
func (b *rosterBridge) OnRosterChanged(roster []domain.ViewerRecord) {
	b.hub.Broadcast(domain.RoleAdmin, ports.OutboundMessage{
		Type:    "clients-update",
		Payload: clientsUpdatePayload{Clients: wireSlice(roster)},
	})

	broadcaster, _ := b.registry.CurrentBroadcaster(context.Background())

	b.mu.Lock()
	prevByID := b.previous
	if prevByID == nil {
		prevByID = map[domain.ClientID]domain.ViewerRecord{}
	}
	next := make(map[domain.ClientID]domain.ViewerRecord, len(roster))
	for _, v := range roster {
		next[v.ClientID] = v
	}
	b.previous = next
	b.mu.Unlock()

	for _, v := range roster {
		prev, existed := prevByID[v.ClientID]
		b.notifyOne(prev, existed, v, broadcaster)
	}
}

func (b *rosterBridge) notifyOne(prev domain.ViewerRecord, existed bool, v domain.ViewerRecord, broadcaster *domain.BroadcasterRecord) {
	boundBefore := existed && prev.Connected && prev.Region != nil
	boundNow := v.Connected && v.Region != nil
	regionChanged := !existed || !sameRegion(prev.Region, v.Region)

	if v.Connected && v.TransportID != "" {
		needsFullConfig := !existed || !prev.Connected || prev.DisplayName != v.DisplayName
		switch {
		case needsFullConfig:
			_ = b.hub.Enqueue(v.TransportID, ports.OutboundMessage{Type: "client-config", Payload: toWireViewer(v)})
		case boundNow && regionChanged:
			geo := domain.Geometry{}
			if broadcaster != nil {
				geo = broadcaster.Geometry
			}
			_ = b.hub.Enqueue(v.TransportID, ports.OutboundMessage{
				Type:    "region-update",
				Payload: regionUpdatePayload{ClientID: v.ClientID, Region: *v.Region, Geometry: geo},
			})
		}
	}

	if broadcaster == nil {
		return
	}

	switch {
	case !boundBefore && boundNow:
		_ = b.hub.Enqueue(broadcaster.TransportID, ports.OutboundMessage{
			Type:    "new-viewer",
			Payload: newViewerPayload{ViewerTransportID: v.TransportID, ClientID: v.ClientID, Region: *v.Region},
		})
	case boundBefore && boundNow && regionChanged:
		b.hub.NotifyRegionChanged(broadcaster.TransportID, v.ClientID, *v.Region)
	case boundBefore && !boundNow:
		target := v.TransportID
		if target == "" {
			target = prev.TransportID
		}
		_ = b.hub.Enqueue(broadcaster.TransportID, ports.OutboundMessage{
			Type:    "viewer-disconnected",
			Payload: viewerDisconnectedPayload{ViewerTransportID: target},
		})
	}
}

func sameRegion(a, b *domain.Rectangle) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
