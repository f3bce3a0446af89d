package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vistahub/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Dispatcher is notified of every wire message the hub sends to the
// broadcaster's connection. A Coordinator is the only real implementation;
// the interface exists so HubClient's read loop can be tested without a
// live Coordinator.
type Dispatcher interface {
	OnNewViewer(ctx context.Context, viewerTransportID domain.TransportID, clientID domain.ClientID, region domain.Rectangle)
	OnRegionChanged(ctx context.Context, clientID domain.ClientID, region domain.Rectangle)
	OnViewerDisconnected(ctx context.Context, viewerTransportID domain.TransportID)
	OnViewerAnswer(ctx context.Context, viewerTransportID domain.TransportID, sdp webrtc.SessionDescription)
	OnViewerICE(ctx context.Context, viewerTransportID domain.TransportID, candidate webrtc.ICECandidateInit)
	OnHubDisconnected()
}

// envelope mirrors the hub's wire shape; duplicated here rather than
// imported because the signaling package's envelope type is unexported
// and this is the other end of the same wire, not a caller of that
// package.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type registerBroadcasterPayload struct {
	Geometry domain.Geometry `json:"geometry"`
}

type broadcasterOfferPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	SDP                json.RawMessage    `json:"sdp"`
}

type broadcasterICEPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	Candidate          json.RawMessage    `json:"candidate"`
}

type newViewerPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	ClientID           domain.ClientID    `json:"clientId"`
	Region             domain.Rectangle   `json:"region"`
}

type regionChangedPayload struct {
	ClientID domain.ClientID  `json:"clientId"`
	Region   domain.Rectangle `json:"region"`
}

type viewerAnswerPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	SDP                json.RawMessage    `json:"sdp"`
}

type viewerICEPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	Candidate          json.RawMessage    `json:"candidate"`
}

type viewerDisconnectedPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
}

// HubClient is the broadcaster's one connection to the hub: a
// gorilla/websocket client dial rather than the server-side upgrade the
// Session Registry's own transport uses. It implements webrtc.SignalSender
// directly, so a ViewerSession created by the Coordinator can hand its
// offers and local ICE candidates straight to this connection.
//
// Grounded on the teacher's LoadTestClient.Connect/WriteJSON pairing in
// tests/load/realistic_load_test.go -- the only place in the corpus that
// dials a signaling WebSocket as a client instead of accepting one.
type HubClient struct {
	url        string
	geometry   domain.Geometry
	dispatcher Dispatcher
	logger     *zap.SugaredLogger

	writeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewHubClient builds a HubClient that will register as the broadcaster
// with geometry once Connect succeeds. dispatcher may be nil at
// construction time and set later with SetDispatcher -- the Coordinator
// that normally fills this role needs this same HubClient as its
// webrtc.SignalSender, so the two are built in two phases rather than
// each requiring the other to already exist.
func NewHubClient(url string, geometry domain.Geometry, dispatcher Dispatcher, logger *zap.SugaredLogger) *HubClient {
	return &HubClient{
		url:          url,
		geometry:     geometry,
		dispatcher:   dispatcher,
		logger:       logger,
		writeTimeout: 10 * time.Second,
	}
}

// SetDispatcher binds the Dispatcher that will receive messages read
// from the hub. Must be called before Connect if dispatcher was nil at
// construction.
func (h *HubClient) SetDispatcher(dispatcher Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = dispatcher
}

// Connect dials the hub, sends register-broadcaster, and starts the read
// loop in a new goroutine. It returns once registration has been sent,
// not once the hub has acknowledged it -- the hub's signaling protocol
// has no explicit ack for register-broadcaster.
func (h *HubClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return fmt.Errorf("dialing hub: %w", err)
	}

	h.mu.Lock()
	h.conn = conn
	h.mu.Unlock()

	if err := h.writeEnvelope("register-broadcaster", registerBroadcasterPayload{Geometry: h.geometry}); err != nil {
		conn.Close()
		return fmt.Errorf("registering with hub: %w", err)
	}

	go h.readLoop(conn)
	return nil
}

// Connected reports whether this client currently holds a live
// connection. It does not probe the socket; it only reflects whether
// Close or the read loop's error path has run since the last Connect.
func (h *HubClient) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn != nil
}

// Close closes the underlying connection; the read loop's ReadJSON error
// observes it and returns.
func (h *HubClient) Close() {
	h.mu.Lock()
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SendOffer implements webrtc.SignalSender by forwarding sdp to the hub
// as a broadcaster-offer addressed to viewerTransportID.
func (h *HubClient) SendOffer(ctx context.Context, viewerTransportID domain.TransportID, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return fmt.Errorf("marshaling offer: %w", err)
	}
	return h.writeEnvelope("broadcaster-offer", broadcasterOfferPayload{
		ViewerTransportID: viewerTransportID,
		SDP:               raw,
	})
}

// SendICECandidate implements webrtc.SignalSender by forwarding candidate
// to the hub as a broadcaster-ice-candidate addressed to viewerTransportID.
func (h *HubClient) SendICECandidate(ctx context.Context, viewerTransportID domain.TransportID, candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("marshaling ICE candidate: %w", err)
	}
	return h.writeEnvelope("broadcaster-ice-candidate", broadcasterICEPayload{
		ViewerTransportID: viewerTransportID,
		Candidate:         raw,
	})
}

func (h *HubClient) writeEnvelope(messageType string, payload interface{}) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("hub client not connected")
	}
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(outboundEnvelope{Type: messageType, Payload: payload})
}

func (h *HubClient) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if h.logger != nil {
				h.logger.Infow("hub connection closed", "error", err)
			}
			h.mu.Lock()
			if h.conn == conn {
				h.conn = nil
			}
			h.mu.Unlock()
			h.dispatcher.OnHubDisconnected()
			return
		}
		if err := h.dispatch(ctx, env); err != nil && h.logger != nil {
			h.logger.Warnw("failed to handle hub message", "type", env.Type, "error", err)
		}
	}
}

func (h *HubClient) dispatch(ctx context.Context, env envelope) error {
	switch env.Type {
	case "new-viewer":
		var p newViewerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.dispatcher.OnNewViewer(ctx, p.ViewerTransportID, p.ClientID, p.Region)
	case "client-region-updated":
		var p regionChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.dispatcher.OnRegionChanged(ctx, p.ClientID, p.Region)
	case "viewer-disconnected":
		var p viewerDisconnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		h.dispatcher.OnViewerDisconnected(ctx, p.ViewerTransportID)
	case "viewer-answer":
		var p viewerAnswerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		var sdp webrtc.SessionDescription
		if err := json.Unmarshal(p.SDP, &sdp); err != nil {
			return err
		}
		h.dispatcher.OnViewerAnswer(ctx, p.ViewerTransportID, sdp)
	case "viewer-ice-candidate":
		var p viewerICEPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
			return err
		}
		h.dispatcher.OnViewerICE(ctx, p.ViewerTransportID, candidate)
	case "error":
		if h.logger != nil {
			h.logger.Warnw("hub reported error", "payload", string(env.Payload))
		}
	default:
		if h.logger != nil {
			h.logger.Debugw("ignoring unknown hub message type", "type", env.Type)
		}
	}
	return nil
}
