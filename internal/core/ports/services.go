package ports

import (
	"context"
	"time"

	"vistahub/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// EventHub is the bidirectional typed messaging layer between the hub and
// every connected participant: per-participant FIFO egress, backpressure
// by disconnection, and coalesced region-change fan-out.
type EventHub interface {
	Subscribe(transportID domain.TransportID, role domain.Role) <-chan OutboundMessage
	Unsubscribe(transportID domain.TransportID)
	Enqueue(transportID domain.TransportID, msg OutboundMessage) error
	Broadcast(role domain.Role, msg OutboundMessage)
	NotifyRegionChanged(broadcasterTransportID domain.TransportID, clientID domain.ClientID, region domain.Rectangle)
	Close()
}

// OutboundMessage is one hub-to-participant wire message queued on a
// participant's FIFO.
type OutboundMessage struct {
	Type    string
	Payload interface{}
}

// PeerConnection is the narrow subset of *webrtc.PeerConnection a Viewer
// Session drives. It exists so tests can substitute a fake without
// bringing up real ICE/DTLS.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	RemoveTrack(sender *webrtc.RTPSender) error
	SignalingState() webrtc.SignalingState
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnICECandidate(func(*webrtc.ICECandidate))
	Close() error
}

// CroppedTrack is the derived per-viewer video track a Cropper hands to
// its Viewer Session, narrowed to what the session needs to attach it to
// a peer connection and swap it on region change.
type CroppedTrack interface {
	webrtc.TrackLocal
	WriteSample(sample media.Sample) error
}

// Cropper produces a derived, region-cropped video track from a shared
// source track and supports live retargeting without track churn when
// dimensions are unchanged.
type Cropper interface {
	Track() CroppedTrack
	Retarget(rect domain.Rectangle) error
	Close()
}

// SourceProvider is the boundary between this repository and whatever
// produces the broadcaster's shared source track -- a real capture device
// in production, the built-in synthetic generator in this repository.
type SourceProvider interface {
	Geometry() domain.Geometry
	Subscribe() (frames <-chan SourceFrame, unsubscribe func())
	Close()
}

// SourceFrame is one decoded frame of the shared source, handed to every
// Cropper that is currently bound to this provider.
type SourceFrame struct {
	Image      interface{} // *image.RGBA; kept opaque so non-cropper consumers don't need to import image
	CapturedAt time.Time
}

// ViewerSession is the broadcaster-side negotiation state machine: one
// instance per (broadcaster, viewer-with-region) pairing.
type ViewerSession interface {
	State() domain.SessionState
	OnAnswer(ctx context.Context, sdp webrtc.SessionDescription) error
	OnRemoteICE(ctx context.Context, candidate webrtc.ICECandidateInit) error
	OnGeometryChange(ctx context.Context, rect domain.Rectangle) error
	Close()
}
