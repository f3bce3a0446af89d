package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SignalSender is the broadcaster's outbound half of signaling: a
// ViewerSession never touches a socket, it only ever calls these two
// methods to hand an SDP offer or a local ICE candidate back to whoever
// owns the connection to the hub.
type SignalSender interface {
	SendOffer(ctx context.Context, viewerTransportID domain.TransportID, sdp webrtc.SessionDescription) error
	SendICECandidate(ctx context.Context, viewerTransportID domain.TransportID, candidate webrtc.ICECandidateInit) error
}

// ViewerSession drives one broadcaster<->viewer negotiation through
// Fresh -> OfferSent -> Answered -> Connected, or into Failed/Closed.
// Grounded on the teacher's CreatePublisherOffer/HandlePublisherAnswer
// pair in sfu.go and its OnICEConnectionStateChange/OnConnectionStateChange
// handler registration, reshaped into an explicit state machine because
// this repository's negotiation has more states than the teacher's
// binary connected/disconnected tracking.
type ViewerSession struct {
	clientID          domain.ClientID
	viewerTransportID domain.TransportID

	pc      ports.PeerConnection
	cropper ports.Cropper
	sender  SignalSender
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	state      domain.SessionState
	pendingICE []webrtc.ICECandidateInit
	offerTimer *time.Timer

	onTerminal func(domain.TransportID, domain.SessionState)
}

// NewViewerSession creates the peer connection's offer, attaches the
// viewer's cropped track, and starts the 15s offer-timeout clock. The
// offer is sent to sender before this call returns.
func NewViewerSession(
	ctx context.Context,
	clientID domain.ClientID,
	viewerTransportID domain.TransportID,
	pc ports.PeerConnection,
	cropper ports.Cropper,
	sender SignalSender,
	logger *zap.SugaredLogger,
	onTerminal func(domain.TransportID, domain.SessionState),
) (*ViewerSession, error) {
	vs := &ViewerSession{
		clientID:          clientID,
		viewerTransportID: viewerTransportID,
		pc:                pc,
		cropper:           cropper,
		sender:            sender,
		logger:            logger,
		state:             domain.SessionFresh,
		onTerminal:        onTerminal,
	}

	if _, err := pc.AddTrack(cropper.Track()); err != nil {
		return nil, fmt.Errorf("attaching cropped track: %w", err)
	}

	pc.OnICECandidate(vs.handleLocalICECandidate)
	pc.OnICEConnectionStateChange(vs.handleICEConnectionStateChange)
	pc.OnConnectionStateChange(vs.handleConnectionStateChange)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	vs.mu.Lock()
	vs.state = domain.SessionOfferSent
	vs.offerTimer = time.AfterFunc(time.Duration(domain.OfferTimeoutSeconds)*time.Second, vs.onOfferTimeout)
	vs.mu.Unlock()

	if err := sender.SendOffer(ctx, viewerTransportID, offer); err != nil {
		vs.Close()
		return nil, fmt.Errorf("sending offer: %w", err)
	}

	return vs, nil
}

// State returns the session's current state.
func (vs *ViewerSession) State() domain.SessionState {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.state
}

// OnAnswer applies the viewer's SDP answer and flushes any ICE
// candidates that arrived before the remote description was set.
func (vs *ViewerSession) OnAnswer(ctx context.Context, sdp webrtc.SessionDescription) error {
	vs.mu.Lock()
	if vs.state != domain.SessionOfferSent {
		state := vs.state
		vs.mu.Unlock()
		if state == domain.SessionClosed || state == domain.SessionFailed {
			return domain.ErrSessionClosed
		}
		return domain.ErrWrongState
	}
	vs.mu.Unlock()

	if err := vs.pc.SetRemoteDescription(sdp); err != nil {
		vs.fail(fmt.Errorf("setting remote description: %w", err))
		return domain.ErrNegotiationFailed
	}

	vs.mu.Lock()
	vs.state = domain.SessionAnswered
	if vs.offerTimer != nil {
		vs.offerTimer.Stop()
	}
	queued := vs.pendingICE
	vs.pendingICE = nil
	vs.mu.Unlock()

	for _, candidate := range queued {
		if err := vs.pc.AddICECandidate(candidate); err != nil && vs.logger != nil {
			vs.logger.Warnw("failed to apply queued ICE candidate", "clientId", vs.clientID, "error", err)
		}
	}

	return nil
}

// OnRemoteICE applies a viewer ICE candidate immediately once the remote
// description has been set, or queues it (up to PendingICEQueueCapacity,
// dropping the oldest when full) while still waiting for the answer.
func (vs *ViewerSession) OnRemoteICE(ctx context.Context, candidate webrtc.ICECandidateInit) error {
	vs.mu.Lock()
	switch vs.state {
	case domain.SessionClosed, domain.SessionFailed:
		vs.mu.Unlock()
		return domain.ErrSessionClosed
	case domain.SessionOfferSent:
		if len(vs.pendingICE) >= domain.PendingICEQueueCapacity {
			vs.pendingICE = vs.pendingICE[1:]
		}
		vs.pendingICE = append(vs.pendingICE, candidate)
		vs.mu.Unlock()
		return nil
	}
	vs.mu.Unlock()

	if err := vs.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("applying remote ICE candidate: %w", err)
	}
	return nil
}

// OnGeometryChange retargets this viewer's Cropper to rect.
func (vs *ViewerSession) OnGeometryChange(ctx context.Context, rect domain.Rectangle) error {
	if err := vs.cropper.Retarget(rect); err != nil {
		return domain.ErrCropperFailed
	}
	return nil
}

// Close tears down the peer connection and cropper and marks the
// session Closed.
func (vs *ViewerSession) Close() {
	vs.mu.Lock()
	if vs.state == domain.SessionClosed {
		vs.mu.Unlock()
		return
	}
	vs.state = domain.SessionClosed
	if vs.offerTimer != nil {
		vs.offerTimer.Stop()
	}
	vs.mu.Unlock()

	vs.cropper.Close()
	_ = vs.pc.Close()

	if vs.onTerminal != nil {
		vs.onTerminal(vs.viewerTransportID, domain.SessionClosed)
	}
}

func (vs *ViewerSession) fail(err error) {
	vs.mu.Lock()
	if vs.state == domain.SessionClosed || vs.state == domain.SessionFailed {
		vs.mu.Unlock()
		return
	}
	vs.state = domain.SessionFailed
	if vs.offerTimer != nil {
		vs.offerTimer.Stop()
	}
	vs.mu.Unlock()

	if vs.logger != nil {
		vs.logger.Warnw("viewer session failed", "clientId", vs.clientID, "error", err)
	}

	vs.cropper.Close()
	_ = vs.pc.Close()

	if vs.onTerminal != nil {
		vs.onTerminal(vs.viewerTransportID, domain.SessionFailed)
	}
}

func (vs *ViewerSession) onOfferTimeout() {
	vs.mu.Lock()
	stillWaiting := vs.state == domain.SessionOfferSent
	vs.mu.Unlock()

	if stillWaiting {
		vs.fail(domain.ErrNegotiationFailed)
	}
}

func (vs *ViewerSession) handleLocalICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		return
	}
	if err := vs.sender.SendICECandidate(context.Background(), vs.viewerTransportID, candidate.ToJSON()); err != nil && vs.logger != nil {
		vs.logger.Warnw("failed to send local ICE candidate", "clientId", vs.clientID, "error", err)
	}
}

func (vs *ViewerSession) handleICEConnectionStateChange(state webrtc.ICEConnectionState) {
	if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateDisconnected {
		vs.fail(domain.ErrNegotiationFailed)
	}
}

func (vs *ViewerSession) handleConnectionStateChange(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		vs.mu.Lock()
		if vs.state == domain.SessionAnswered {
			vs.state = domain.SessionConnected
		}
		vs.mu.Unlock()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		vs.fail(domain.ErrNegotiationFailed)
	}
}

var _ ports.ViewerSession = (*ViewerSession)(nil)
