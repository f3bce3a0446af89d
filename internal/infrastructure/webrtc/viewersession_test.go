package webrtc

import (
	"context"
	"sync"
	"testing"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeerConnection struct {
	mu               sync.Mutex
	signalingState   webrtc.SignalingState
	onICEState       func(webrtc.ICEConnectionState)
	onConnState      func(webrtc.PeerConnectionState)
	onICECandidate   func(*webrtc.ICECandidate)
	closed           bool
	remoteDescApplied *webrtc.SessionDescription
	candidates       []webrtc.ICECandidateInit
}

func (f *fakePeerConnection) CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}
func (f *fakePeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error { return nil }
func (f *fakePeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDescApplied = &desc
	return nil
}
func (f *fakePeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}
func (f *fakePeerConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return nil, nil
}
func (f *fakePeerConnection) RemoveTrack(sender *webrtc.RTPSender) error { return nil }
func (f *fakePeerConnection) SignalingState() webrtc.SignalingState     { return f.signalingState }
func (f *fakePeerConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	f.onICEState = fn
}
func (f *fakePeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.onConnState = fn
}
func (f *fakePeerConnection) OnICECandidate(fn func(*webrtc.ICECandidate)) { f.onICECandidate = fn }
func (f *fakePeerConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeCropper struct {
	mu       sync.Mutex
	closed   bool
	retarget []domain.Rectangle
	failNext bool
}

func (c *fakeCropper) Track() ports.CroppedTrack { return nil }
func (c *fakeCropper) Retarget(rect domain.Rectangle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		return domain.ErrCropperFailed
	}
	c.retarget = append(c.retarget, rect)
	return nil
}
func (c *fakeCropper) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type fakeSender struct {
	mu         sync.Mutex
	offersSent int
	candidates int
}

func (s *fakeSender) SendOffer(ctx context.Context, viewerTransportID domain.TransportID, sdp webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offersSent++
	return nil
}
func (s *fakeSender) SendICECandidate(ctx context.Context, viewerTransportID domain.TransportID, candidate webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates++
	return nil
}

func newTestSession(t *testing.T) (*ViewerSession, *fakePeerConnection, *fakeCropper, *fakeSender) {
	pc := &fakePeerConnection{}
	cropper := &fakeCropper{}
	sender := &fakeSender{}

	vs, err := NewViewerSession(context.Background(), "viewer-1", "vt1", pc, cropper, sender, nil, nil)
	require.NoError(t, err)
	return vs, pc, cropper, sender
}

func TestViewerSession_InitialStateIsOfferSent(t *testing.T) {
	vs, _, _, sender := newTestSession(t)
	defer vs.Close()

	assert.Equal(t, domain.SessionOfferSent, vs.State())
	assert.Equal(t, 1, sender.offersSent)
}

func TestViewerSession_OnAnswer_TransitionsToAnswered(t *testing.T) {
	vs, pc, _, _ := newTestSession(t)
	defer vs.Close()

	err := vs.OnAnswer(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionAnswered, vs.State())
	require.NotNil(t, pc.remoteDescApplied)
}

func TestViewerSession_OnAnswer_RejectsWhenNotOfferSent(t *testing.T) {
	vs, _, _, _ := newTestSession(t)
	defer vs.Close()

	require.NoError(t, vs.OnAnswer(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))

	err := vs.OnAnswer(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer})
	assert.ErrorIs(t, err, domain.ErrWrongState)
}

func TestViewerSession_OnRemoteICE_QueuesBeforeAnswerThenFlushes(t *testing.T) {
	vs, pc, _, _ := newTestSession(t)
	defer vs.Close()

	require.NoError(t, vs.OnRemoteICE(context.Background(), webrtc.ICECandidateInit{Candidate: "c1"}))
	require.NoError(t, vs.OnRemoteICE(context.Background(), webrtc.ICECandidateInit{Candidate: "c2"}))

	pc.mu.Lock()
	queuedSoFar := len(pc.candidates)
	pc.mu.Unlock()
	assert.Equal(t, 0, queuedSoFar, "candidates should be queued, not applied, before the answer arrives")

	require.NoError(t, vs.OnAnswer(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))

	pc.mu.Lock()
	defer pc.mu.Unlock()
	assert.Len(t, pc.candidates, 2)
}

func TestViewerSession_OnRemoteICE_DropsOldestWhenQueueFull(t *testing.T) {
	vs, _, _, _ := newTestSession(t)
	defer vs.Close()

	for i := 0; i < domain.PendingICEQueueCapacity+10; i++ {
		require.NoError(t, vs.OnRemoteICE(context.Background(), webrtc.ICECandidateInit{Candidate: "c"}))
	}

	vs.mu.Lock()
	queueLen := len(vs.pendingICE)
	vs.mu.Unlock()
	assert.Equal(t, domain.PendingICEQueueCapacity, queueLen)
}

func TestViewerSession_OnRemoteICE_AfterCloseRejected(t *testing.T) {
	vs, _, _, _ := newTestSession(t)
	vs.Close()

	err := vs.OnRemoteICE(context.Background(), webrtc.ICECandidateInit{Candidate: "c"})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestViewerSession_OnGeometryChange_RetargetsCropper(t *testing.T) {
	vs, _, cropper, _ := newTestSession(t)
	defer vs.Close()

	rect := domain.Rectangle{X: 1, Y: 2, Width: 3, Height: 4}
	require.NoError(t, vs.OnGeometryChange(context.Background(), rect))

	cropper.mu.Lock()
	defer cropper.mu.Unlock()
	require.Len(t, cropper.retarget, 1)
	assert.Equal(t, rect, cropper.retarget[0])
}

func TestViewerSession_Close_ClosesPeerConnectionAndCropper(t *testing.T) {
	vs, pc, cropper, _ := newTestSession(t)

	vs.Close()

	assert.Equal(t, domain.SessionClosed, vs.State())
	pc.mu.Lock()
	assert.True(t, pc.closed)
	pc.mu.Unlock()
	cropper.mu.Lock()
	assert.True(t, cropper.closed)
	cropper.mu.Unlock()
}

func TestViewerSession_ICEConnectionFailedTransitionsToFailed(t *testing.T) {
	vs, pc, _, _ := newTestSession(t)

	require.NotNil(t, pc.onICEState)
	pc.onICEState(webrtc.ICEConnectionStateFailed)

	assert.Equal(t, domain.SessionFailed, vs.State())
}

func TestViewerSession_ConnectionStateConnectedAfterAnswered(t *testing.T) {
	vs, pc, _, _ := newTestSession(t)
	defer vs.Close()

	require.NoError(t, vs.OnAnswer(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	require.NotNil(t, pc.onConnState)
	pc.onConnState(webrtc.PeerConnectionStateConnected)

	assert.Equal(t, domain.SessionConnected, vs.State())
}

func TestViewerSession_OfferTimeoutFailsSession(t *testing.T) {
	pc := &fakePeerConnection{}
	cropper := &fakeCropper{}
	sender := &fakeSender{}

	vs, err := NewViewerSession(context.Background(), "viewer-1", "vt1", pc, cropper, sender, nil, nil)
	require.NoError(t, err)
	defer vs.Close()

	vs.mu.Lock()
	vs.offerTimer.Stop()
	vs.mu.Unlock()
	vs.onOfferTimeout()

	assert.Equal(t, domain.SessionFailed, vs.State())
}
