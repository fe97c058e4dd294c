package owl

import "errors"

var (
	// errBadSignature is returned internally when an inbound envelope's
	// HMAC does not match; the engine logs and drops such datagrams
	// rather than propagating the error to callers.
	errBadSignature = errors.New("owl: signature verification failed")

	// ErrUnknownPeer is returned by PeerMetrics/PeerState for a node_id
	// the engine has no record of.
	ErrUnknownPeer = errors.New("owl: unknown peer")

	// ErrAlreadyRunning is returned by Start if called twice.
	ErrAlreadyRunning = errors.New("owl: engine already running")
)
