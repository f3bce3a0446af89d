package signaling

import (
	"encoding/json"

	"vistahub/internal/core/domain"
)

// envelope is the wire shape every message, inbound or outbound, shares:
// a type discriminator plus a type-specific payload. Grounded on the
// teacher's SignalMessage in infrastructure/signal/websocket_server.go,
// trimmed of the teacher's PeerID/StreamID top-level fields since this
// protocol carries those inside the payload instead.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound payloads, one per participant-to-hub message type in
// SPEC_FULL.md's external interfaces section.

type registerBroadcasterPayload struct {
	Geometry domain.Geometry `json:"geometry"`
}

type registerViewerPayload struct {
	ClientID    domain.ClientID `json:"clientId"`
	DisplayName string          `json:"displayName,omitempty"`
}

type getClientConfigPayload struct {
	ClientID domain.ClientID `json:"clientId"`
}

type updateClientConfigPayload struct {
	ClientID domain.ClientID `json:"clientId"`
	Config   clientConfigPatch `json:"config"`
}

// clientConfigPatch mirrors the admin's partial update: a region field
// present-but-null clears the region, absent leaves it untouched.
type clientConfigPatch struct {
	Region      *domain.Rectangle `json:"region"`
	RegionSet   bool              `json:"-"`
	DisplayName string            `json:"displayName,omitempty"`
}

// UnmarshalJSON tracks whether "region" was present in the patch at all,
// distinguishing "omit this field" from "set it to null", the distinction
// SetRegion's nil-vs-pointer contract depends on.
func (p *clientConfigPatch) UnmarshalJSON(data []byte) error {
	var raw struct {
		Region      *domain.Rectangle `json:"region"`
		DisplayName string            `json:"displayName,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.DisplayName = raw.DisplayName
	p.Region = raw.Region

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		_, p.RegionSet = probe["region"]
	}
	return nil
}

type broadcasterOfferPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	SDP                json.RawMessage    `json:"sdp"`
}

type viewerAnswerPayload struct {
	SDP json.RawMessage `json:"sdp"`
}

type broadcasterICEPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	Candidate          json.RawMessage    `json:"candidate"`
}

type viewerICEPayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// Outbound DTOs.

// wireViewer is the over-the-wire shape of a ViewerRecord: lowerCamelCase
// fields, a nil region serialized as JSON null.
type wireViewer struct {
	ClientID    domain.ClientID   `json:"clientId"`
	DisplayName string            `json:"displayName"`
	Connected   bool              `json:"connected"`
	Region      *domain.Rectangle `json:"region"`
}

func toWireViewer(v domain.ViewerRecord) wireViewer {
	return wireViewer{
		ClientID:    v.ClientID,
		DisplayName: v.DisplayName,
		Connected:   v.Connected,
		Region:      v.Region,
	}
}

type clientsUpdatePayload struct {
	Clients []wireViewer `json:"clients"`
}

type streamDimensionsPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type newViewerPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	ClientID           domain.ClientID    `json:"clientId"`
	Region             domain.Rectangle   `json:"region"`
}

type clientRegionUpdatedPayload struct {
	ClientID domain.ClientID   `json:"clientId"`
	Region   domain.Rectangle  `json:"region"`
}

type regionUpdatePayload struct {
	ClientID domain.ClientID  `json:"clientId"`
	Region   domain.Rectangle `json:"region"`
	Geometry domain.Geometry  `json:"geometry"`
}

type viewerAnswerEnvelopePayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
	SDP                json.RawMessage    `json:"sdp"`
}

type viewerDisconnectedPayload struct {
	ViewerTransportID domain.TransportID `json:"viewerTransportId"`
}

type errorPayload struct {
	Message string `json:"message"`
}
