package ports

import (
	"context"

	"vistahub/internal/core/domain"
)

// Registry is the Session Registry's port: the authoritative, serialized
// store of broadcaster presence, viewer roster, and region assignments.
// Every method is safe for concurrent use; the implementation funnels
// calls through a single serialization domain.
type Registry interface {
	UpsertViewer(ctx context.Context, clientID domain.ClientID, transportID domain.TransportID, displayName string) (domain.ViewerRecord, error)
	MarkDisconnected(ctx context.Context, transportID domain.TransportID) error
	SetRegion(ctx context.Context, clientID domain.ClientID, region *domain.Rectangle) (domain.ViewerRecord, error)
	SetDisplayName(ctx context.Context, clientID domain.ClientID, displayName string) (domain.ViewerRecord, error)
	RegisterBroadcaster(ctx context.Context, transportID domain.TransportID, geometry domain.Geometry) (prior *domain.BroadcasterRecord, err error)
	SnapshotRoster(ctx context.Context) ([]domain.ViewerRecord, error)
	LookupByTransport(ctx context.Context, transportID domain.TransportID) (role domain.Role, clientID domain.ClientID, found bool)
	CurrentBroadcaster(ctx context.Context) (*domain.BroadcasterRecord, error)
	GetViewer(ctx context.Context, clientID domain.ClientID) (domain.ViewerRecord, bool, error)
	Close()
}
