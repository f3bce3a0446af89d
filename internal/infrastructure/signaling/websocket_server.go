package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"
	pkglogger "vistahub/pkg/logger"
	"vistahub/pkg/utils"
	"vistahub/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ConnectionMetrics is the narrow slice of the monitoring collector this
// transport reports transport-level connect/disconnect/bind events to.
// Kept as an interface so this package doesn't import
// internal/infrastructure/monitoring directly.
type ConnectionMetrics interface {
	RecordTransportAccepted()
	RecordViewerConnected()
	RecordViewerDisconnected()
	RecordBroadcasterBound(bound bool)
}

// Server is the hub's signaling transport: it terminates every WebSocket
// connection, assigns each a TransportID, and dispatches wire messages to
// the Registry and Router. It implements ports.Transport so the Router
// never has to know about gorilla/websocket.
//
// Grounded on the teacher's WebSocketServer in
// infrastructure/signal/websocket_server.go -- same upgrade/ping/cleanup
// shape -- rewired from peer-to-peer mesh signaling to the hub's
// broadcaster/viewer/admin roles.
type Server struct {
	registry ports.Registry
	router   ports.Router
	hub      ports.EventHub
	bridge   *rosterBridge
	metrics  ConnectionMetrics
	cl       *pkglogger.ContextLogger

	mu    sync.RWMutex
	conns map[domain.TransportID]*wsConn

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

type wsConn struct {
	conn *websocket.Conn
	role domain.Role
}

// NewServer wires a signaling Server to the Event Hub it dispatches
// outbound messages through, and builds its roster-observer bridge. The
// Registry and Router are bound afterward via BindRegistry/BindRouter:
// the Registry's constructor needs this server's RosterObserver() before
// the Registry itself exists, so the two can't be supplied to one
// constructor call without a forward reference.
func NewServer(hub ports.EventHub, logger *zap.SugaredLogger) *Server {
	s := &Server{
		hub:          hub,
		conns:        make(map[domain.TransportID]*wsConn),
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
	if logger != nil {
		s.cl = pkglogger.NewContextLogger(logger.Desugar())
	}
	s.bridge = &rosterBridge{hub: hub, logger: logger}
	return s
}

// RosterObserver returns the services.RosterObserver this server exposes
// so NewRegistry can be wired directly to it.
func (s *Server) RosterObserver() *rosterBridge {
	return s.bridge
}

// BindRegistry completes construction by attaching the Registry this
// server and its roster bridge dispatch to. Call once, after the
// Registry has been built from RosterObserver().
func (s *Server) BindRegistry(registry ports.Registry) {
	s.registry = registry
	s.bridge.registry = registry
}

// BindRouter completes construction by attaching the Router this
// server forwards broadcaster-offer/viewer-answer/ICE messages to.
func (s *Server) BindRouter(router ports.Router) {
	s.router = router
}

// BindMetrics attaches the collector this server reports transport
// connect/disconnect/bind events to. Optional: a nil metrics field is
// checked before every call site.
func (s *Server) BindMetrics(metrics ConnectionMetrics) {
	s.metrics = metrics
}

// HandleWebSocket upgrades an HTTP request and runs one connection's
// read/write loops until it disconnects. roleHint comes from the route
// the connection arrived on ("broadcaster", "viewer", or "admin"); actual
// registration (and the clientId binding) still happens via the
// register-broadcaster/register-viewer wire messages.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request, roleHint domain.Role) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	transportID := domain.TransportID(uuid.NewString())
	s.mu.Lock()
	s.conns[transportID] = &wsConn{conn: conn, role: roleHint}
	s.mu.Unlock()

	outbound := s.hub.Subscribe(transportID, roleHint)

	if s.metrics != nil {
		s.metrics.RecordTransportAccepted()
		if roleHint == domain.RoleViewer {
			s.metrics.RecordViewerConnected()
		}
	}

	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go s.writeLoop(&writerWG, conn, outbound)

	s.logger.Infow("participant connected", "transportId", transportID, "role", roleHint)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	s.readLoop(transportID, conn)

	s.cleanup(transportID)
	s.hub.Unsubscribe(transportID)
	writerWG.Wait()
	conn.Close()
}

func (s *Server) writeLoop(wg *sync.WaitGroup, conn *websocket.Conn, outbound <-chan ports.OutboundMessage) {
	defer wg.Done()
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(outboundEnvelope{Type: msg.Type, Payload: msg.Payload}); err != nil {
				s.logger.Infow("write failed, closing connection", "error", err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(transportID domain.TransportID, conn *websocket.Conn) {
	ctx := context.WithValue(context.Background(), "request_id", string(transportID))
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "transportId", transportID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		if s.cl != nil {
			s.cl.LogDebug(ctx, "dispatching message", zap.String("type", env.Type))
		}
		if err := s.handleMessage(ctx, transportID, env); err != nil {
			if s.cl != nil {
				s.cl.LogError(ctx, err, "message handling failed", zap.String("type", env.Type))
			} else {
				s.logger.Infow("message handling failed", "transportId", transportID, "type", env.Type, "error", err)
			}
			_ = s.Send(ctx, transportID, "error", errorPayload{Message: err.Error()})
		}
	}
}

func (s *Server) cleanup(transportID domain.TransportID) {
	role, _, found := s.registry.LookupByTransport(context.Background(), transportID)
	wasBroadcaster := found && role == domain.RoleBroadcaster
	wasViewer := found && role == domain.RoleViewer

	_ = s.registry.MarkDisconnected(context.Background(), transportID)

	if wasBroadcaster {
		s.hub.Broadcast(domain.RoleViewer, ports.OutboundMessage{Type: "broadcaster-disconnected", Payload: struct{}{}})
		s.hub.Broadcast(domain.RoleAdmin, ports.OutboundMessage{Type: "broadcaster-disconnected", Payload: struct{}{}})
		if s.metrics != nil {
			s.metrics.RecordBroadcasterBound(false)
		}
	}
	if wasViewer && s.metrics != nil {
		s.metrics.RecordViewerDisconnected()
	}

	s.mu.Lock()
	delete(s.conns, transportID)
	s.mu.Unlock()

	s.logger.Infow("participant disconnected", "transportId", transportID)
}

func (s *Server) handleMessage(ctx context.Context, transportID domain.TransportID, env envelope) error {
	switch env.Type {
	case "register-broadcaster":
		return s.handleRegisterBroadcaster(ctx, transportID, env.Payload)
	case "register-viewer":
		return s.handleRegisterViewer(ctx, transportID, env.Payload)
	case "get-client-config":
		return s.handleGetClientConfig(ctx, transportID, env.Payload)
	case "get-clients":
		return s.handleGetClients(ctx, transportID)
	case "update-client-config":
		return s.handleUpdateClientConfig(ctx, env.Payload)
	case "broadcaster-offer":
		return s.handleBroadcasterOffer(ctx, env.Payload)
	case "viewer-answer":
		return s.handleViewerAnswer(ctx, transportID, env.Payload)
	case "broadcaster-ice-candidate":
		return s.handleBroadcasterICE(ctx, env.Payload)
	case "viewer-ice-candidate":
		return s.handleViewerICE(ctx, transportID, env.Payload)
	default:
		return fmt.Errorf("unknown message type: %s", env.Type)
	}
}

func (s *Server) handleRegisterBroadcaster(ctx context.Context, transportID domain.TransportID, raw json.RawMessage) error {
	var payload registerBroadcasterPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid register-broadcaster payload: %w", err)
	}

	s.setRole(transportID, domain.RoleBroadcaster)

	prior, err := s.registry.RegisterBroadcaster(ctx, transportID, payload.Geometry)
	if err != nil {
		return err
	}
	if prior != nil && prior.TransportID != transportID {
		s.Close(prior.TransportID, "replaced by new broadcaster")
	}

	if s.metrics != nil {
		s.metrics.RecordBroadcasterBound(true)
	}

	dims := streamDimensionsPayload{Width: payload.Geometry.Width, Height: payload.Geometry.Height}
	s.hub.Broadcast(domain.RoleViewer, ports.OutboundMessage{Type: "stream-dimensions", Payload: dims})
	s.hub.Broadcast(domain.RoleAdmin, ports.OutboundMessage{Type: "stream-dimensions", Payload: dims})

	roster, err := s.registry.SnapshotRoster(ctx)
	if err != nil {
		return nil
	}
	for _, v := range roster {
		if v.Connected && v.Region != nil {
			_ = s.Send(ctx, transportID, "new-viewer", newViewerPayload{ViewerTransportID: v.TransportID, ClientID: v.ClientID, Region: *v.Region})
		}
	}
	return nil
}

func (s *Server) handleRegisterViewer(ctx context.Context, transportID domain.TransportID, raw json.RawMessage) error {
	var payload registerViewerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid register-viewer payload: %w", err)
	}
	if err := validation.ValidateClientID(string(payload.ClientID)); err != nil {
		return domain.ErrBadInput
	}
	payload.DisplayName = utils.SanitizeString(payload.DisplayName)
	if err := validation.ValidateDisplayName(payload.DisplayName); err != nil {
		return domain.ErrBadInput
	}

	s.setRole(transportID, domain.RoleViewer)

	_, err := s.registry.UpsertViewer(ctx, payload.ClientID, transportID, payload.DisplayName)
	return err
}

func (s *Server) handleGetClientConfig(ctx context.Context, transportID domain.TransportID, raw json.RawMessage) error {
	var payload getClientConfigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid get-client-config payload: %w", err)
	}

	v, found, err := s.registry.GetViewer(ctx, payload.ClientID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrUnknownViewer
	}
	return s.Send(ctx, transportID, "client-config", toWireViewer(v))
}

func (s *Server) handleGetClients(ctx context.Context, transportID domain.TransportID) error {
	roster, err := s.registry.SnapshotRoster(ctx)
	if err != nil {
		return err
	}
	return s.Send(ctx, transportID, "clients-update", clientsUpdatePayload{Clients: wireSlice(roster)})
}

func (s *Server) handleUpdateClientConfig(ctx context.Context, raw json.RawMessage) error {
	var payload updateClientConfigPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid update-client-config payload: %w", err)
	}
	if err := validation.ValidateClientID(string(payload.ClientID)); err != nil {
		return domain.ErrBadInput
	}

	if payload.Config.RegionSet {
		if _, err := s.registry.SetRegion(ctx, payload.ClientID, payload.Config.Region); err != nil {
			return err
		}
	}
	if payload.Config.DisplayName != "" {
		payload.Config.DisplayName = utils.SanitizeString(payload.Config.DisplayName)
		if err := validation.ValidateDisplayName(payload.Config.DisplayName); err != nil {
			return domain.ErrBadInput
		}
		if _, err := s.registry.SetDisplayName(ctx, payload.ClientID, payload.Config.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleBroadcasterOffer(ctx context.Context, raw json.RawMessage) error {
	var payload broadcasterOfferPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid broadcaster-offer payload: %w", err)
	}
	return s.router.RouteBroadcasterOffer(ctx, payload.ViewerTransportID, payload.SDP)
}

func (s *Server) handleViewerAnswer(ctx context.Context, transportID domain.TransportID, raw json.RawMessage) error {
	var payload viewerAnswerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid viewer-answer payload: %w", err)
	}
	return s.router.RouteViewerAnswer(ctx, transportID, payload.SDP)
}

func (s *Server) handleBroadcasterICE(ctx context.Context, raw json.RawMessage) error {
	var payload broadcasterICEPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid broadcaster-ice-candidate payload: %w", err)
	}
	return s.router.RouteBroadcasterICE(ctx, payload.ViewerTransportID, payload.Candidate)
}

func (s *Server) handleViewerICE(ctx context.Context, transportID domain.TransportID, raw json.RawMessage) error {
	var payload viewerICEPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("invalid viewer-ice-candidate payload: %w", err)
	}
	return s.router.RouteViewerICE(ctx, transportID, payload.Candidate)
}

func (s *Server) setRole(transportID domain.TransportID, role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[transportID]; ok {
		c.role = role
	}
}

// Send enqueues messageType/payload on transportID's outbound FIFO. A
// full queue means that participant is too slow to keep up; per the
// Event Hub's backpressure contract, Send disconnects it rather than
// letting the queue grow or blocking every other participant.
func (s *Server) Send(ctx context.Context, transportID domain.TransportID, messageType string, payload interface{}) error {
	err := s.hub.Enqueue(transportID, ports.OutboundMessage{Type: messageType, Payload: payload})
	if errors.Is(err, domain.ErrOutboundQueueFull) {
		s.Close(transportID, "outbound queue full")
	}
	return err
}

// Close closes transportID's socket; the owning readLoop observes the
// resulting error and runs the normal cleanup path.
func (s *Server) Close(transportID domain.TransportID, reason string) {
	s.mu.RLock()
	c, ok := s.conns[transportID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.logger.Infow("closing transport", "transportId", transportID, "reason", reason)
	_ = c.conn.Close()
}

// RoleOf reports the role a live connection registered under, if any.
func (s *Server) RoleOf(transportID domain.TransportID) (domain.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[transportID]
	if !ok {
		return "", false
	}
	return c.role, true
}

func wireSlice(records []domain.ViewerRecord) []wireViewer {
	out := make([]wireViewer, 0, len(records))
	for _, v := range records {
		out = append(out, toWireViewer(v))
	}
	return out
}

var _ ports.Transport = (*Server)(nil)
