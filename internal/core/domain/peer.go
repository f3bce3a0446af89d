package domain

// RegionChangedEvent notifies the broadcaster of a (possibly coalesced)
// region update for an existing Viewer Session. It carries JSON tags
// because the Event Hub hands it straight to the signaling transport as
// an OutboundMessage payload, making it the one domain type that crosses
// onto the wire unwrapped.
type RegionChangedEvent struct {
	ClientID ClientID  `json:"clientId"`
	Region   Rectangle `json:"region"`
}
