package relay

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickAttendee
)

// Policy decides what happens to an attendee whose send queue is full.
type Policy interface {
	OnBackPressure() BackpressureAction
}

// DropPolicy sheds the frame and keeps the attendee; signaling frames are
// re-sent by peers (re-offers) or tolerable to lose (presence).
type DropPolicy struct{}

func (DropPolicy) OnBackPressure() BackpressureAction { return DropFrame }

// KickPolicy evicts slow attendees outright.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure() BackpressureAction { return KickAttendee }
