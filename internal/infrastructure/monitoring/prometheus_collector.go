package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes the hub's own operational metrics: viewer
// roster size, broadcaster presence, negotiation latency, and the
// cropper/event-hub backpressure signals that matter for a video-wall
// workload.
type PrometheusCollector struct {
	viewersConnectedTotal prometheus.Gauge
	broadcasterBound      prometheus.Gauge
	connectionsTotal      prometheus.Counter
	disconnectionsTotal   *prometheus.CounterVec

	negotiationDuration prometheus.Histogram
	regionUpdateLatency prometheus.Histogram

	cropperFramesDropped   *prometheus.CounterVec
	cropperFramesFrozen    *prometheus.CounterVec
	outboundQueueDepth     *prometheus.GaugeVec
	outboundQueueFullTotal *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		viewersConnectedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vistahub_viewers_connected_total",
			Help: "Total number of viewers currently in the Connected state",
		}),

		broadcasterBound: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vistahub_broadcaster_bound",
			Help: "1 if a broadcaster is currently bound to the hub, 0 otherwise",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vistahub_connections_total",
			Help: "Total number of WebSocket transports accepted by the hub",
		}),

		disconnectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vistahub_disconnections_total",
			Help: "Total number of transport disconnects, labeled by role",
		}, []string{"role"}),

		negotiationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vistahub_negotiation_duration_seconds",
			Help:    "Time from viewer registration to Connected state",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),

		regionUpdateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vistahub_region_update_latency_seconds",
			Help:    "Time from a region change request to the coalesced notification reaching the broadcaster",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),

		cropperFramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vistahub_cropper_frames_dropped_total",
			Help: "Frames dropped by a viewer's cropper because a newer source frame superseded it",
		}, []string{"client_id"}),

		cropperFramesFrozen: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vistahub_cropper_frames_frozen_total",
			Help: "Frames served from the last-good frozen frame because the assigned region left the source bounds",
		}, []string{"client_id"}),

		outboundQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vistahub_outbound_queue_depth",
			Help: "Current depth of a participant's outbound event queue",
		}, []string{"client_id"}),

		outboundQueueFullTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vistahub_outbound_queue_full_total",
			Help: "Total number of times a participant's outbound queue filled and the transport was disconnected",
		}, []string{"client_id"}),
	}
}

func (p *PrometheusCollector) RecordViewerConnected() {
	p.viewersConnectedTotal.Inc()
}

func (p *PrometheusCollector) RecordViewerDisconnected() {
	p.viewersConnectedTotal.Dec()
	p.disconnectionsTotal.WithLabelValues("viewer").Inc()
}

func (p *PrometheusCollector) RecordBroadcasterBound(bound bool) {
	if bound {
		p.broadcasterBound.Set(1)
	} else {
		p.broadcasterBound.Set(0)
		p.disconnectionsTotal.WithLabelValues("broadcaster").Inc()
	}
}

func (p *PrometheusCollector) RecordTransportAccepted() {
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) RecordNegotiationDuration(d time.Duration) {
	p.negotiationDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordRegionUpdateLatency(d time.Duration) {
	p.regionUpdateLatency.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordCropperFrameDropped(clientID string) {
	p.cropperFramesDropped.WithLabelValues(clientID).Inc()
}

func (p *PrometheusCollector) RecordCropperFrameFrozen(clientID string) {
	p.cropperFramesFrozen.WithLabelValues(clientID).Inc()
}

func (p *PrometheusCollector) SetOutboundQueueDepth(clientID string, depth int) {
	p.outboundQueueDepth.WithLabelValues(clientID).Set(float64(depth))
}

func (p *PrometheusCollector) RecordOutboundQueueFull(clientID string) {
	p.outboundQueueFullTotal.WithLabelValues(clientID).Inc()
	p.outboundQueueDepth.DeleteLabelValues(clientID)
}
