package domain

import "time"

// ViewerRecord is keyed by the stable, operator-visible clientId. It
// survives socket reconnects; only TransportID and Connected flip.
type ViewerRecord struct {
	ClientID    ClientID
	TransportID TransportID // empty when disconnected
	DisplayName string
	Connected   bool
	Region      *Rectangle // nil means "not yet assigned"
	LastSeenAt  time.Time
}

// Clone returns a deep copy safe to hand to callers outside the registry's
// serialization domain (admins, viewer sessions) without risking a data
// race on later mutation.
func (v ViewerRecord) Clone() ViewerRecord {
	out := v
	if v.Region != nil {
		r := *v.Region
		out.Region = &r
	}
	return out
}

// BroadcasterRecord describes the single active broadcaster, if any.
type BroadcasterRecord struct {
	TransportID TransportID
	Geometry    Geometry
}
