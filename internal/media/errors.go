package media

import (
	"fmt"
	"strings"
)

// Reason classifies why a capture device could not be acquired.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonPermission
	ReasonNotFound
	ReasonBusy
)

func (r Reason) String() string {
	switch r {
	case ReasonPermission:
		return "permission denied"
	case ReasonNotFound:
		return "device not found"
	case ReasonBusy:
		return "device busy"
	default:
		return "acquisition failed"
	}
}

// AcquisitionError is returned when a microphone, camera or screen capture
// cannot be opened. It never tears down the session; the caller reports it
// and the meeting continues without that track.
type AcquisitionError struct {
	Kind   string // "audio", "video" or "screen"
	Reason Reason
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s capture: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s capture: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// classify maps driver error text onto a reason. The drivers report plain
// strings, so substring matching is the best available signal.
func classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return ReasonPermission
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no such") ||
		strings.Contains(msg, "failed to find"):
		return ReasonNotFound
	case strings.Contains(msg, "busy") || strings.Contains(msg, "in use"):
		return ReasonBusy
	default:
		return ReasonUnknown
	}
}
