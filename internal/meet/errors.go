package meet

import "errors"

var (
	// ErrAuthorization means the meeting code or credential was rejected
	// before the signaling channel ever connected. Fatal to the join.
	ErrAuthorization = errors.New("meeting authorization failed")
	// ErrTransport is a signaling channel failure. The session is torn down
	// locally; per-peer state is not recoverable.
	ErrTransport = errors.New("signaling transport failure")
	// ErrNegotiation marks an offer/answer/candidate failure for one peer.
	// It only ever takes down that peer, never the session.
	ErrNegotiation = errors.New("peer negotiation failure")

	ErrAlreadyJoined = errors.New("session already joined")
	ErrNotHost       = errors.New("only the host may end the meeting")
)
