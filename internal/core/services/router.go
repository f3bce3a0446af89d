package services

import (
	"context"
	"encoding/json"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"go.uber.org/zap"
)

// Router forwards SDP offers/answers and ICE candidates between the
// broadcaster's transport and a specific viewer's transport. It holds no
// session state of its own; each route call looks the sender and the
// recipient up in the Registry and rejects an unknown viewer or a missing
// broadcaster before forwarding anything.
type Router struct {
	registry  ports.Registry
	transport ports.Transport
	logger    *zap.SugaredLogger
}

// NewRouter builds a Signal Router bound to the given Registry (for
// viewer and broadcaster identity lookups) and Transport (for delivery).
func NewRouter(registry ports.Registry, transport ports.Transport, logger *zap.SugaredLogger) *Router {
	return &Router{registry: registry, transport: transport, logger: logger}
}

// RouteBroadcasterOffer forwards an SDP offer from the broadcaster to one
// viewer's transport, unchanged.
func (r *Router) RouteBroadcasterOffer(ctx context.Context, viewerTransportID domain.TransportID, sdp json.RawMessage) error {
	role, _, found := r.registry.LookupByTransport(ctx, viewerTransportID)
	if !found || role != domain.RoleViewer {
		return domain.ErrUnknownViewer
	}
	return r.transport.Send(ctx, viewerTransportID, "broadcaster-offer", sdp)
}

// RouteViewerAnswer forwards a viewer's SDP answer to the broadcaster's
// transport, unchanged.
func (r *Router) RouteViewerAnswer(ctx context.Context, fromTransport domain.TransportID, sdp json.RawMessage) error {
	broadcaster, err := r.registry.CurrentBroadcaster(ctx)
	if err != nil || broadcaster == nil {
		return domain.ErrNoBroadcaster
	}
	return r.transport.Send(ctx, broadcaster.TransportID, "viewer-answer", answerEnvelope{
		ViewerTransportID: fromTransport,
		SDP:               sdp,
	})
}

// RouteBroadcasterICE forwards an ICE candidate from the broadcaster to
// one viewer's transport, unchanged.
func (r *Router) RouteBroadcasterICE(ctx context.Context, viewerTransportID domain.TransportID, candidate json.RawMessage) error {
	role, _, found := r.registry.LookupByTransport(ctx, viewerTransportID)
	if !found || role != domain.RoleViewer {
		return domain.ErrUnknownViewer
	}
	return r.transport.Send(ctx, viewerTransportID, "broadcaster-ice-candidate", candidate)
}

// RouteViewerICE forwards an ICE candidate from a viewer to the
// broadcaster's transport, unchanged.
func (r *Router) RouteViewerICE(ctx context.Context, fromTransport domain.TransportID, candidate json.RawMessage) error {
	broadcaster, err := r.registry.CurrentBroadcaster(ctx)
	if err != nil || broadcaster == nil {
		return domain.ErrNoBroadcaster
	}
	return r.transport.Send(ctx, broadcaster.TransportID, "viewer-ice-candidate", viewerICEEnvelope{
		ViewerTransportID: fromTransport,
		Candidate:         candidate,
	})
}

type answerEnvelope struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	SDP                json.RawMessage    `json:"sdp"`
}

type viewerICEEnvelope struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	Candidate          json.RawMessage    `json:"candidate"`
}

var _ ports.Router = (*Router)(nil)
