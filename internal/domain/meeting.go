package domain

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

type (
	MeetingID   string
	MeetingCode string
)

const meetingCodeLen = 8

// meetingCodeAlphabet omits easily confused characters (0/O, 1/I).
const meetingCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Meeting is one live session that participants can join by code.
type Meeting struct {
	ID          MeetingID
	Code        MeetingCode
	Title       string
	ClassroomID string
	Host        Participant
	Active      bool
	CreatedAt   time.Time
	EndedAt     *time.Time
	IsClassroom bool
}

func NewMeetingID() MeetingID { return MeetingID(uuid.NewString()) }

// NewMeetingCode returns a short human-shareable code.
func NewMeetingCode() MeetingCode {
	buf := make([]byte, meetingCodeLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	for i, b := range buf {
		buf[i] = meetingCodeAlphabet[int(b)%len(meetingCodeAlphabet)]
	}
	return MeetingCode(buf)
}
