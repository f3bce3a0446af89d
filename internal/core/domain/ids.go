package domain

// ClientID is the stable, operator-assigned identity of a viewer. It
// survives socket reconnects; TransportID does not.
type ClientID string

// TransportID identifies one message-channel session (one WebSocket
// connection). It changes on every reconnect.
type TransportID string

// Role distinguishes the three kinds of participant the hub accepts.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
	RoleAdmin       Role = "admin"
)
