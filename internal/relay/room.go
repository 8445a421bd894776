package relay

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/domain"
)

type sessionID string

type attendee struct {
	userID domain.UserID
	conn   *Conn
}

// room is the threadsafe attendance set for one meeting code. It never closes
// connection resources; the hub owns those.
type room struct {
	code domain.MeetingCode

	mu     sync.RWMutex
	bySID  map[sessionID]attendee
	byUser map[domain.UserID]sessionID
}

func newRoom(code domain.MeetingCode) *room {
	return &room{
		code:   code,
		bySID:  make(map[sessionID]attendee),
		byUser: make(map[domain.UserID]sessionID),
	}
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// add registers the attendee and returns the user ids present before it.
func (r *room) add(sid sessionID, userID domain.UserID, c *Conn) []domain.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := make([]domain.UserID, 0, len(r.bySID))
	for _, a := range r.bySID {
		existing = append(existing, a.userID)
	}
	r.bySID[sid] = attendee{userID: userID, conn: c}
	r.byUser[userID] = sid
	log.Info().Str("module", "relay.room").Str("code", string(r.code)).
		Str("user", string(userID)).Int("existing", len(existing)).Msg("attendee added")
	return existing
}

func (r *room) remove(sid sessionID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.bySID[sid]
	if !ok {
		return "", false
	}
	if r.byUser[a.userID] == sid {
		delete(r.byUser, a.userID)
	}
	delete(r.bySID, sid)
	return a.userID, true
}

// PublishResult reports fan-out delivery and backpressure to the hub.
type publishResult struct {
	sentTo  int
	dropped []sessionID
}

// broadcast sends data to every attendee; from "" means include everyone.
func (r *room) broadcast(from sessionID, data []byte) publishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := publishResult{}
	for sid, a := range r.bySID {
		if sid == from {
			continue
		}
		if err := a.conn.TrySend(data); err != nil {
			res.dropped = append(res.dropped, sid)
			continue
		}
		res.sentTo++
	}
	return res
}

// broadcastAll includes the sender, used for presence echoes and end-meeting.
func (r *room) broadcastAll(data []byte) publishResult {
	return r.broadcast("", data)
}

// unicast delivers data to the attendee registered under userID.
func (r *room) unicast(userID domain.UserID, data []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.byUser[userID]
	if !ok {
		return false
	}
	return r.bySID[sid].conn.TrySend(data) == nil
}

func (r *room) sids() []sessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sessionID, 0, len(r.bySID))
	for sid := range r.bySID {
		out = append(out, sid)
	}
	return out
}
