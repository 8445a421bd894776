// Package signal defines the wire envelope exchanged over the meeting
// signaling channel. Both the relay and the attendee client speak this format,
// one JSON frame per message.
package signal

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeJoin                 Type = "join"
	TypeLeave                Type = "leave"
	TypeExistingParticipants Type = "existing-participants"
	TypeOffer                Type = "offer"
	TypeAnswer               Type = "answer"
	TypeICECandidate         Type = "ice-candidate"
	TypeParticipantJoined    Type = "participant-joined"
	TypeParticipantLeft      Type = "participant-left"
	TypeRaiseHand            Type = "raise-hand"
	TypeChatMessage          Type = "chat-message"
	TypeMicState             Type = "mic-state"
	TypeCamState             Type = "cam-state"
	TypeEndMeeting           Type = "end-meeting"
	TypeError                Type = "error"
)

// Message is the signaling envelope. It is immutable once constructed; the
// optional fields only carry meaning for some types (ToID for unicast
// negotiation frames, Participants for the roster, UserID/IsOn for presence).
type Message struct {
	Type         Type            `json:"type"`
	MeetingCode  string          `json:"meetingCode,omitempty"`
	FromID       string          `json:"fromUserId,omitempty"`
	ToID         string          `json:"toUserId,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	IsOn         *bool           `json:"isOn,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame. Frames without a type are rejected so the
// dispatcher can drop them in one place.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}

// WithPayload returns a copy of m carrying v as its JSON payload.
func (m Message) WithPayload(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	m.Payload = b
	return m, nil
}

// DecodePayload unmarshals the opaque payload into v.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(m.Payload, v)
}

// Bool dereferences IsOn, defaulting to false when absent.
func (m Message) Bool() bool { return m.IsOn != nil && *m.IsOn }

// JoinPayload carries the signaling token issued by the meeting service.
type JoinPayload struct {
	Token string `json:"token"`
}

// RaiseHandPayload toggles the sender's raised-hand flag.
type RaiseHandPayload struct {
	Raised bool `json:"raised"`
}

// ChatPayload is a broadcast chat line.
type ChatPayload struct {
	Message   string    `json:"message"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// SDPPayload carries an SDP offer or answer between two attendees. The relay
// forwards it untouched.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICEPayload carries one trickled ICE candidate.
type ICEPayload struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// ErrorPayload is sent by the relay before it closes a misbehaving channel.
type ErrorPayload struct {
	Message string `json:"message"`
}
