package domain

// SessionState is the Viewer Session negotiation state machine described
// in the component design: Fresh -> OfferSent -> Answered -> Connected,
// with Failed/Closed reachable from anywhere.
type SessionState string

const (
	SessionFresh      SessionState = "fresh"
	SessionOfferSent  SessionState = "offer-sent"
	SessionAnswered   SessionState = "answered"
	SessionConnected  SessionState = "connected"
	SessionFailed     SessionState = "failed"
	SessionClosed     SessionState = "closed"
)

// PendingICEQueueCapacity bounds a Viewer Session's pending-ICE buffer;
// overflow drops the oldest candidate.
const PendingICEQueueCapacity = 64

// OfferTimeoutSeconds is how long an SDP offer may go unanswered before the
// Viewer Session tears itself down.
const OfferTimeoutSeconds = 15

// StaleRecordTTLMinutes is the default retention window after which a
// disconnected ViewerRecord becomes eligible for garbage collection.
const StaleRecordTTLMinutes = 30

// OutboundQueueCapacity bounds a participant's per-transport outbound
// FIFO; overflow closes the transport.
const OutboundQueueCapacity = 256

// RegionCoalesceWindowMillis is the maximum delay the Event Hub may hold
// a region-changed notification before flushing the latest value.
const RegionCoalesceWindowMillis = 50
