package ports

import (
	"context"
	"encoding/json"

	"vistahub/internal/core/domain"
)

// Router is the Signal Router's port: pure forwarding of SDP/ICE messages
// by transport identity, with no interpretation of payload contents.
type Router interface {
	RouteBroadcasterOffer(ctx context.Context, viewerTransportID domain.TransportID, sdp json.RawMessage) error
	RouteViewerAnswer(ctx context.Context, fromTransport domain.TransportID, sdp json.RawMessage) error
	RouteBroadcasterICE(ctx context.Context, viewerTransportID domain.TransportID, candidate json.RawMessage) error
	RouteViewerICE(ctx context.Context, fromTransport domain.TransportID, candidate json.RawMessage) error
}

// Transport abstracts "deliver this message to this participant's
// outbound FIFO" for whoever owns the wire connections (the signaling
// WebSocket server), so the Router and Registry never touch a socket
// directly.
type Transport interface {
	Send(ctx context.Context, transportID domain.TransportID, messageType string, payload interface{}) error
	Close(transportID domain.TransportID, reason string)
	RoleOf(transportID domain.TransportID) (domain.Role, bool)
}
