package domain

import "errors"

var (
	ErrUnknownViewer     = errors.New("unknown viewer")
	ErrBadInput          = errors.New("bad input")
	ErrNoBroadcaster     = errors.New("no active broadcaster")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrCropperFailed     = errors.New("cropper failed")
	ErrFatalInvariant    = errors.New("fatal invariant violation")
	ErrSessionClosed     = errors.New("viewer session closed")
	ErrWrongState        = errors.New("operation invalid in current state")
	ErrOutboundQueueFull = errors.New("outbound queue full")
)
