package domain

import "time"

// ChatMessage is a transcript line. Messages are compared by sender, body and
// a 1s timestamp window to suppress relay echoes of optimistic local entries.
type ChatMessage struct {
	SenderID   UserID
	SenderName string
	Body       string
	SentAt     time.Time
}

const chatEchoWindow = time.Second

// Same reports whether other is an echo of m.
func (m ChatMessage) Same(other ChatMessage) bool {
	if m.SenderID != other.SenderID || m.Body != other.Body {
		return false
	}
	d := m.SentAt.Sub(other.SentAt)
	if d < 0 {
		d = -d
	}
	return d < chatEchoWindow
}
