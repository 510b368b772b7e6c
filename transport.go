package signalr

import "context"

// OpenOptions passed to Transport.Open for one connection cycle.
type OpenOptions struct {
	// AccessToken bearer credential, empty when no AccessTokenProvider is configured.
	AccessToken string
	// Format of the frames the selected protocol produces.
	Format TransferFormat
	// Receive called for every inbound frame, in arrival order, from a single goroutine.
	Receive func(frame []byte)
	// Closed called at most once when the transport closes on its own.  nil err means the
	// remote side closed cleanly.  Not called after Close.
	Closed func(err error)
}

// Transport moves opaque frames.  Implementations may be reopened after Close.
type Transport interface {
	Open(ctx context.Context, opts OpenOptions) error
	Send(ctx context.Context, frame []byte) error
	Close() error
}
