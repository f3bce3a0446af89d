package broadcaster

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vistahub/internal/core/domain"

	"github.com/gorilla/websocket"
	pionwebrtc "github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	newViewer      chan domain.TransportID
	regionChanged  chan domain.Rectangle
	disconnected   chan domain.TransportID
	answer         chan pionwebrtc.SessionDescription
	ice            chan pionwebrtc.ICECandidateInit
	hubDisconnects chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{
		newViewer:      make(chan domain.TransportID, 4),
		regionChanged:  make(chan domain.Rectangle, 4),
		disconnected:   make(chan domain.TransportID, 4),
		answer:         make(chan pionwebrtc.SessionDescription, 4),
		ice:            make(chan pionwebrtc.ICECandidateInit, 4),
		hubDisconnects: make(chan struct{}, 4),
	}
}

func (d *recordingDispatcher) OnNewViewer(ctx context.Context, viewerTransportID domain.TransportID, clientID domain.ClientID, region domain.Rectangle) {
	d.newViewer <- viewerTransportID
}
func (d *recordingDispatcher) OnRegionChanged(ctx context.Context, clientID domain.ClientID, region domain.Rectangle) {
	d.regionChanged <- region
}
func (d *recordingDispatcher) OnViewerDisconnected(ctx context.Context, viewerTransportID domain.TransportID) {
	d.disconnected <- viewerTransportID
}
func (d *recordingDispatcher) OnViewerAnswer(ctx context.Context, viewerTransportID domain.TransportID, sdp pionwebrtc.SessionDescription) {
	d.answer <- sdp
}
func (d *recordingDispatcher) OnViewerICE(ctx context.Context, viewerTransportID domain.TransportID, candidate pionwebrtc.ICECandidateInit) {
	d.ice <- candidate
}
func (d *recordingDispatcher) OnHubDisconnected() {
	d.hubDisconnects <- struct{}{}
}

// newEchoHub starts a WebSocket server that upgrades a connection and
// hands the raw *websocket.Conn to onConn for the test to drive
// directly, mirroring the teacher's httptest.NewServer-plus-dial pattern
// in tests/unit/signal/websocket_server_test.go.
func newEchoHub(t *testing.T, onConn func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		go onConn(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestHubClient_Connect_SendsRegisterBroadcaster(t *testing.T) {
	received := make(chan envelope, 1)
	srv := newEchoHub(t, func(conn *websocket.Conn) {
		var env envelope
		if err := conn.ReadJSON(&env); err == nil {
			received <- env
		}
	})

	dispatcher := newRecordingDispatcher()
	client := NewHubClient(wsURL(srv.URL), domain.Geometry{Width: 1920, Height: 1080}, dispatcher, nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	select {
	case env := <-received:
		assert.Equal(t, "register-broadcaster", env.Type)
		var payload registerBroadcasterPayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, 1920, payload.Geometry.Width)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for register-broadcaster")
	}
}

func TestHubClient_Dispatch_RoutesNewViewerToDispatcher(t *testing.T) {
	srv := newEchoHub(t, func(conn *websocket.Conn) {
		var env envelope
		_ = conn.ReadJSON(&env) // drain register-broadcaster
		_ = conn.WriteJSON(outboundEnvelope{
			Type: "new-viewer",
			Payload: newViewerPayload{
				ViewerTransportID: "vt1",
				ClientID:          "alice",
				Region:            domain.Rectangle{X: 0, Y: 0, Width: 100, Height: 100},
			},
		})
	})

	dispatcher := newRecordingDispatcher()
	client := NewHubClient(wsURL(srv.URL), domain.Geometry{Width: 640, Height: 480}, dispatcher, nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)

	select {
	case transportID := <-dispatcher.newViewer:
		assert.Equal(t, domain.TransportID("vt1"), transportID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnNewViewer")
	}
}

func TestHubClient_SendOffer_WritesBroadcasterOfferEnvelope(t *testing.T) {
	received := make(chan envelope, 2)
	srv := newEchoHub(t, func(conn *websocket.Conn) {
		for i := 0; i < 2; i++ {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			received <- env
		}
	})

	dispatcher := newRecordingDispatcher()
	client := NewHubClient(wsURL(srv.URL), domain.Geometry{Width: 640, Height: 480}, dispatcher, nil)
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(client.Close)
	<-received // register-broadcaster

	sdp := pionwebrtc.SessionDescription{Type: pionwebrtc.SDPTypeOffer, SDP: "v=0"}
	require.NoError(t, client.SendOffer(context.Background(), "vt1", sdp))

	select {
	case env := <-received:
		assert.Equal(t, "broadcaster-offer", env.Type)
		var payload broadcasterOfferPayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, domain.TransportID("vt1"), payload.ViewerTransportID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcaster-offer")
	}
}

func TestHubClient_ReadLoopExit_NotifiesOnHubDisconnected(t *testing.T) {
	srv := newEchoHub(t, func(conn *websocket.Conn) {
		var env envelope
		_ = conn.ReadJSON(&env)
		conn.Close()
	})

	dispatcher := newRecordingDispatcher()
	client := NewHubClient(wsURL(srv.URL), domain.Geometry{Width: 640, Height: 480}, dispatcher, nil)
	require.NoError(t, client.Connect(context.Background()))

	select {
	case <-dispatcher.hubDisconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnHubDisconnected")
	}
	assert.False(t, client.Connected())
}
