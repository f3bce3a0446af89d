package broadcaster

import (
	"context"
	"sync"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"
	"vistahub/internal/infrastructure/webrtc"

	pionwebrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// SessionMetrics is the narrow subset of the monitoring collector the
// Coordinator reports to; kept as an interface so the broadcaster binary
// can wire the real Prometheus collector without this package importing
// the monitoring package directly.
type SessionMetrics interface {
	RecordViewerConnected()
	RecordViewerDisconnected()
}

// Coordinator owns one broadcaster's entire fleet of per-viewer sessions:
// it reacts to the hub's new-viewer/client-region-updated/viewer-disconnected
// notifications by creating, retargeting, and tearing down matched
// Cropper/ViewerSession pairs, and relays viewer-answer/viewer-ice-candidate
// into the matching session.
//
// Grounded on the teacher's SFU.HandleNewPeer/HandlePublisherAnswer
// dispatch in sfu.go, reshaped from "one mesh of peer connections" to
// "one shared source fanned out through per-viewer Croppers".
type Coordinator struct {
	source    ports.SourceProvider
	pcFactory func() (ports.PeerConnection, error)
	sender    webrtc.SignalSender
	metrics   SessionMetrics
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.TransportID]*sessionEntry
	byClient map[domain.ClientID]domain.TransportID
}

type sessionEntry struct {
	session *webrtc.ViewerSession
	cropper ports.Cropper
	clientID domain.ClientID
}

// NewCoordinator builds a Coordinator that crops frames from source for
// every viewer the hub assigns it, creating peer connections via
// pcFactory and sending signaling through sender.
func NewCoordinator(
	source ports.SourceProvider,
	pcFactory func() (ports.PeerConnection, error),
	sender webrtc.SignalSender,
	metrics SessionMetrics,
	logger *zap.SugaredLogger,
) *Coordinator {
	return &Coordinator{
		source:    source,
		pcFactory: pcFactory,
		sender:    sender,
		metrics:   metrics,
		logger:    logger,
		sessions:  make(map[domain.TransportID]*sessionEntry),
		byClient:  make(map[domain.ClientID]domain.TransportID),
	}
}

// OnNewViewer satisfies Dispatcher: it builds a fresh Cropper bound to
// region and a ViewerSession that immediately creates and sends its SDP
// offer.
func (c *Coordinator) OnNewViewer(ctx context.Context, viewerTransportID domain.TransportID, clientID domain.ClientID, region domain.Rectangle) {
	cropper, err := webrtc.NewCropper(clientID, c.source, region, c.logger)
	if err != nil {
		if c.logger != nil {
			c.logger.Errorw("failed to create cropper for new viewer", "clientId", clientID, "error", err)
		}
		return
	}

	pc, err := c.pcFactory()
	if err != nil {
		cropper.Close()
		if c.logger != nil {
			c.logger.Errorw("failed to create peer connection for new viewer", "clientId", clientID, "error", err)
		}
		return
	}

	session, err := webrtc.NewViewerSession(ctx, clientID, viewerTransportID, pc, cropper, c.sender, c.logger, c.onSessionTerminal)
	if err != nil {
		cropper.Close()
		_ = pc.Close()
		if c.logger != nil {
			c.logger.Errorw("failed to start viewer session", "clientId", clientID, "error", err)
		}
		return
	}

	c.mu.Lock()
	c.sessions[viewerTransportID] = &sessionEntry{session: session, cropper: cropper, clientID: clientID}
	c.byClient[clientID] = viewerTransportID
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordViewerConnected()
	}
}

// OnRegionChanged satisfies Dispatcher: it retargets the viewer's
// existing Cropper without touching its peer connection or track.
func (c *Coordinator) OnRegionChanged(ctx context.Context, clientID domain.ClientID, region domain.Rectangle) {
	entry := c.lookupByClient(clientID)
	if entry == nil {
		return
	}
	if err := entry.session.OnGeometryChange(ctx, region); err != nil && c.logger != nil {
		c.logger.Warnw("failed to retarget viewer session", "clientId", clientID, "error", err)
	}
}

// OnViewerDisconnected satisfies Dispatcher: it closes and forgets the
// viewer's session.
func (c *Coordinator) OnViewerDisconnected(ctx context.Context, viewerTransportID domain.TransportID) {
	c.mu.Lock()
	entry, ok := c.sessions[viewerTransportID]
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.session.Close()
}

// OnViewerAnswer satisfies Dispatcher: it applies the viewer's SDP
// answer to the matching session.
func (c *Coordinator) OnViewerAnswer(ctx context.Context, viewerTransportID domain.TransportID, sdp pionwebrtc.SessionDescription) {
	c.mu.Lock()
	entry, ok := c.sessions[viewerTransportID]
	c.mu.Unlock()
	if !ok {
		if c.logger != nil {
			c.logger.Warnw("answer for unknown viewer session", "viewerTransportId", viewerTransportID)
		}
		return
	}
	if err := entry.session.OnAnswer(ctx, sdp); err != nil && c.logger != nil {
		c.logger.Warnw("failed to apply viewer answer", "viewerTransportId", viewerTransportID, "error", err)
	}
}

// OnViewerICE satisfies Dispatcher: it applies (or queues, per
// ViewerSession's own state machine) the viewer's remote ICE candidate.
func (c *Coordinator) OnViewerICE(ctx context.Context, viewerTransportID domain.TransportID, candidate pionwebrtc.ICECandidateInit) {
	c.mu.Lock()
	entry, ok := c.sessions[viewerTransportID]
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := entry.session.OnRemoteICE(ctx, candidate); err != nil && c.logger != nil {
		c.logger.Warnw("failed to apply viewer ICE candidate", "viewerTransportId", viewerTransportID, "error", err)
	}
}

// OnHubDisconnected satisfies Dispatcher: losing the hub connection
// strands every session's signaling path, so the Coordinator tears all
// of them down rather than leaving dangling peer connections no answer
// or ICE candidate can ever reach again.
func (c *Coordinator) OnHubDisconnected() {
	c.mu.Lock()
	entries := make([]*sessionEntry, 0, len(c.sessions))
	for _, entry := range c.sessions {
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

// Close tears down every active session. The shared source is not
// closed here -- its owner is whoever constructed it, typically the
// broadcaster binary's main function.
func (c *Coordinator) Close() {
	c.mu.Lock()
	entries := make([]*sessionEntry, 0, len(c.sessions))
	for _, entry := range c.sessions {
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.session.Close()
	}
}

func (c *Coordinator) onSessionTerminal(viewerTransportID domain.TransportID, _ domain.SessionState) {
	c.mu.Lock()
	entry, ok := c.sessions[viewerTransportID]
	if ok {
		delete(c.sessions, viewerTransportID)
		if entry.clientID != "" && c.byClient[entry.clientID] == viewerTransportID {
			delete(c.byClient, entry.clientID)
		}
	}
	c.mu.Unlock()

	if ok && c.metrics != nil {
		c.metrics.RecordViewerDisconnected()
	}
}

func (c *Coordinator) lookupByClient(clientID domain.ClientID) *sessionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	transportID, ok := c.byClient[clientID]
	if !ok {
		return nil
	}
	return c.sessions[transportID]
}

var _ Dispatcher = (*Coordinator)(nil)
