package meetings

import "errors"

var (
	ErrMeetingNotFound = errors.New("no active meeting with this code")
	ErrNotHost         = errors.New("only the host may end the meeting")
	ErrTokenInvalid    = errors.New("signaling token invalid")
	ErrTokenExpired    = errors.New("signaling token expired")
)
