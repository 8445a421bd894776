package meet

import (
	"github.com/pion/webrtc/v4"

	"github.com/Rudra9905/Studify/internal/domain"
)

// State is the meeting lifecycle state.
type State int32

const (
	StateInitializing State = iota
	StateJoining
	StateActive
	StateLeaving
	StateLeft
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateLeaving:
		return "leaving"
	case StateLeft:
		return "left"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Events are the callbacks surfaced to the UI layer. All callbacks are
// invoked from the session's event loop, one at a time, in arrival order.
// Nil callbacks are skipped.
type Events struct {
	OnStateChange       func(from, to State)
	OnParticipantJoined func(id string)
	OnParticipantLeft   func(id string)
	OnRemoteTrack       func(id string, track *webrtc.TrackRemote)
	OnRaiseHand         func(id string, raised bool)
	OnChat              func(msg domain.ChatMessage)
	OnMicState          func(id string, on bool)
	OnCamState          func(id string, on bool)
	OnMeetingEnded      func()
	OnError             func(err error)
}

func (e Events) stateChange(from, to State) {
	if e.OnStateChange != nil {
		e.OnStateChange(from, to)
	}
}

func (e Events) participantJoined(id string) {
	if e.OnParticipantJoined != nil {
		e.OnParticipantJoined(id)
	}
}

func (e Events) participantLeft(id string) {
	if e.OnParticipantLeft != nil {
		e.OnParticipantLeft(id)
	}
}

func (e Events) remoteTrack(id string, track *webrtc.TrackRemote) {
	if e.OnRemoteTrack != nil {
		e.OnRemoteTrack(id, track)
	}
}

func (e Events) raiseHand(id string, raised bool) {
	if e.OnRaiseHand != nil {
		e.OnRaiseHand(id, raised)
	}
}

func (e Events) chat(msg domain.ChatMessage) {
	if e.OnChat != nil {
		e.OnChat(msg)
	}
}

func (e Events) micState(id string, on bool) {
	if e.OnMicState != nil {
		e.OnMicState(id, on)
	}
}

func (e Events) camState(id string, on bool) {
	if e.OnCamState != nil {
		e.OnCamState(id, on)
	}
}

func (e Events) meetingEnded() {
	if e.OnMeetingEnded != nil {
		e.OnMeetingEnded()
	}
}

func (e Events) errorf(err error) {
	if e.OnError != nil {
		e.OnError(err)
	}
}
