package domain

import "time"

// ConnectionQuality summarizes RTCP-derived quality metrics for one
// Viewer Session's peer connection, sampled from receiver/sender reports.
type ConnectionQuality struct {
	ClientID   ClientID
	Timestamp  time.Time
	PacketLoss float64 // fraction, 0..1
	Jitter     time.Duration
	RTT        time.Duration
	NACKCount  int
}
