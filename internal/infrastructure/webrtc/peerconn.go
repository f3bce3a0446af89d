package webrtc

import (
	"time"

	"vistahub/internal/core/domain"
	"vistahub/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config is the WebRTC transport configuration shared by every peer
// connection the broadcaster creates, one per viewer session.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// NewPeerConnectionFactory builds the pion API once (it owns the
// ephemeral UDP port range setting) and returns a factory function the
// broadcaster calls once per viewer session.
//
// Grounded on createPeerConnection in the teacher's sfu.go, trimmed of
// the SDPSemanticsUnifiedPlanWithFallback override the current pion
// release defaults to and no longer needs spelled out.
func NewPeerConnectionFactory(cfg Config) func() (ports.PeerConnection, error) {
	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		_ = settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	rtcConfig := webrtc.Configuration{ICEServers: cfg.ICEServers}

	return func() (ports.PeerConnection, error) {
		pc, err := api.NewPeerConnection(rtcConfig)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}
}

// QualityTracker turns RTCP receiver/sender reports and NACKs into the
// domain's ConnectionQuality snapshots, one per viewer.
//
// Grounded on processRTCP / processRTCPPackets in the teacher's sfu.go;
// kept the same per-report averaging approach, narrowed from "publisher
// or subscriber, any stream" to "one clientId's RTP receiver".
type QualityTracker struct {
	clientID domain.ClientID
	logger   *zap.SugaredLogger
	onUpdate func(domain.ConnectionQuality)
}

// NewQualityTracker builds a tracker that calls onUpdate with one
// aggregated ConnectionQuality snapshot per ReadRTCP batch.
func NewQualityTracker(clientID domain.ClientID, logger *zap.SugaredLogger, onUpdate func(domain.ConnectionQuality)) *QualityTracker {
	return &QualityTracker{clientID: clientID, logger: logger, onUpdate: onUpdate}
}

// Run reads RTCP packets from receiver until it errors (typically because
// the peer connection closed) and reports quality after every batch that
// contains at least one receiver report.
func (q *QualityTracker) Run(receiver *webrtc.RTPSender) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		q.process(packets)
	}
}

func (q *QualityTracker) process(packets []rtcp.Packet) {
	var totalPacketLoss uint8
	var totalJitter uint32
	var totalRTT time.Duration
	var nackCount int
	reportCount := 0

	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				totalPacketLoss += report.FractionLost
				totalJitter += report.Jitter
				reportCount++

				if report.LastSenderReport != 0 && report.Delay != 0 {
					totalRTT += time.Duration(report.Delay) * time.Second / 65536
				}
			}
		case *rtcp.SenderReport:
			if q.logger != nil {
				q.logger.Debugw("sender report",
					"clientId", q.clientID,
					"packetCount", p.PacketCount,
					"octetCount", p.OctetCount,
				)
			}
		case *rtcp.TransportLayerNack:
			nackCount += len(p.Nacks)
		case *rtcp.PictureLossIndication:
			if q.logger != nil {
				q.logger.Debugw("picture loss indication", "clientId", q.clientID)
			}
		}
	}

	if reportCount == 0 && nackCount == 0 {
		return
	}

	quality := domain.ConnectionQuality{
		ClientID:  q.clientID,
		Timestamp: time.Now(),
		NACKCount: nackCount,
	}
	if reportCount > 0 {
		quality.PacketLoss = float64(totalPacketLoss) / float64(reportCount) / 255.0
		quality.Jitter = time.Duration(totalJitter/uint32(reportCount)) * time.Millisecond
		quality.RTT = totalRTT / time.Duration(reportCount)
	}

	if q.onUpdate != nil {
		q.onUpdate(quality)
	}
}
