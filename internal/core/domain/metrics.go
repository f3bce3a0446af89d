package domain

// RosterSnapshot is the ordered, clientId-ascending view of all
// ViewerRecords the Session Registry exposes to admins on demand.
type RosterSnapshot struct {
	Viewers     []ViewerRecord
	Broadcaster *BroadcasterRecord
}
