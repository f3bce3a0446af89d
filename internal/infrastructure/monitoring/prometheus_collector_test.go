package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector_ViewerConnectGauge(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordViewerConnected()
	c.RecordViewerConnected()
	if got := testutil.ToFloat64(c.viewersConnectedTotal); got != 2 {
		t.Fatalf("expected 2 connected viewers, got %v", got)
	}

	c.RecordViewerDisconnected()
	if got := testutil.ToFloat64(c.viewersConnectedTotal); got != 1 {
		t.Fatalf("expected 1 connected viewer after disconnect, got %v", got)
	}
}

func TestPrometheusCollector_BroadcasterBoundGauge(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordBroadcasterBound(true)
	if got := testutil.ToFloat64(c.broadcasterBound); got != 1 {
		t.Fatalf("expected broadcasterBound=1, got %v", got)
	}

	c.RecordBroadcasterBound(false)
	if got := testutil.ToFloat64(c.broadcasterBound); got != 0 {
		t.Fatalf("expected broadcasterBound=0, got %v", got)
	}
}

func TestPrometheusCollector_CropperCountersLabelByClient(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordCropperFrameDropped("alice")
	c.RecordCropperFrameDropped("alice")
	c.RecordCropperFrameFrozen("bob")

	if got := testutil.ToFloat64(c.cropperFramesDropped.WithLabelValues("alice")); got != 2 {
		t.Fatalf("expected 2 dropped frames for alice, got %v", got)
	}
	if got := testutil.ToFloat64(c.cropperFramesFrozen.WithLabelValues("bob")); got != 1 {
		t.Fatalf("expected 1 frozen frame for bob, got %v", got)
	}
}

func TestPrometheusCollector_OutboundQueueFullClearsDepthGauge(t *testing.T) {
	c := NewPrometheusCollector()

	c.SetOutboundQueueDepth("alice", 200)
	if got := testutil.ToFloat64(c.outboundQueueDepth.WithLabelValues("alice")); got != 200 {
		t.Fatalf("expected depth 200, got %v", got)
	}

	c.RecordOutboundQueueFull("alice")
	if got := testutil.ToFloat64(c.outboundQueueFullTotal.WithLabelValues("alice")); got != 1 {
		t.Fatalf("expected outbound queue full counter to be 1, got %v", got)
	}
}

func TestPrometheusCollector_NegotiationDurationObserves(t *testing.T) {
	c := NewPrometheusCollector()
	c.RecordNegotiationDuration(2 * time.Second)
	c.RecordRegionUpdateLatency(10 * time.Millisecond)
}
