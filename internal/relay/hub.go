// Package relay implements the meeting signaling relay: rooms keyed by
// meeting code, token-checked admission, unicast negotiation frames and
// broadcast presence. Media never transits the relay; peers connect to each
// other directly.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/domain"
	"github.com/Rudra9905/Studify/internal/meetings"
	"github.com/Rudra9905/Studify/internal/signal"
)

type sessionInfo struct {
	code   domain.MeetingCode
	userID domain.UserID
}

type Hub struct {
	meetings *meetings.Service
	policy   Policy
	limiter  *JoinRateLimiter

	mu       sync.RWMutex
	rooms    map[domain.MeetingCode]*room
	sessions map[sessionID]sessionInfo
	conns    map[sessionID]*Conn
	cancels  map[sessionID]context.CancelFunc
}

func NewHub(svc *meetings.Service, policy Policy, limiter *JoinRateLimiter) *Hub {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Hub{
		meetings: svc,
		policy:   policy,
		limiter:  limiter,
		rooms:    make(map[domain.MeetingCode]*room),
		sessions: make(map[sessionID]sessionInfo),
		conns:    make(map[sessionID]*Conn),
		cancels:  make(map[sessionID]context.CancelFunc),
	}
}

// HandleConn takes ownership of an upgraded websocket and pumps it until the
// attendee leaves or the connection drops.
func (h *Hub) HandleConn(ctx context.Context, ws *websocket.Conn) {
	sid := sessionID(uuid.NewString())
	conn := newConn(ws)

	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.conns[sid] = conn
	h.cancels[sid] = cancel
	h.mu.Unlock()

	log.Info().Str("module", "relay").Str("sid", string(sid)).Msg("new signaling connection")

	go conn.writePump(ctx)
	conn.readPump(ctx, sid, h)
}

func (h *Hub) handle(sid sessionID, c *Conn, data []byte) {
	msg, err := signal.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "relay").Msg("dropping malformed frame")
		return
	}

	switch msg.Type {
	case signal.TypeJoin:
		h.handleJoin(sid, c, msg)
	case signal.TypeLeave:
		h.onDisconnect(sid)
	case signal.TypeOffer, signal.TypeAnswer, signal.TypeICECandidate:
		h.handleRelay(sid, msg)
	case signal.TypeRaiseHand, signal.TypeChatMessage:
		h.handleBroadcast(sid, msg)
	case signal.TypeMicState, signal.TypeCamState:
		h.handleMediaState(sid, msg)
	case signal.TypeEndMeeting:
		h.handleEndMeeting(sid, msg)
	default:
		log.Warn().Str("module", "relay").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

func (h *Hub) rejectJoin(sid sessionID, c *Conn, reason string) {
	h.sendMessage(sid, c, errorMessage(reason))
	h.onDisconnect(sid)
}

func errorMessage(reason string) signal.Message {
	m, _ := signal.Message{Type: signal.TypeError}.WithPayload(signal.ErrorPayload{Message: reason})
	return m
}

func (h *Hub) handleJoin(sid sessionID, c *Conn, msg signal.Message) {
	code := domain.MeetingCode(msg.MeetingCode)
	userID := domain.UserID(msg.FromID)
	if code == "" || userID == "" {
		h.rejectJoin(sid, c, "join requires meetingCode and fromUserId")
		return
	}
	if !h.limiter.Allow(userID) {
		h.rejectJoin(sid, c, "too many join attempts, slow down")
		return
	}

	var p signal.JoinPayload
	if err := msg.DecodePayload(&p); err != nil || p.Token == "" {
		log.Warn().Str("module", "relay").Str("user", string(userID)).
			Str("code", string(code)).Msg("join without signaling token")
		h.rejectJoin(sid, c, "authentication required, join through the meeting API first")
		return
	}

	if err := h.meetings.CheckToken(context.Background(), code, p.Token); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("user", string(userID)).
			Str("code", string(code)).Msg("join rejected")
		switch {
		case errors.Is(err, meetings.ErrMeetingNotFound):
			h.rejectJoin(sid, c, "no active meeting with this code")
		default:
			h.rejectJoin(sid, c, "invalid signaling token, rejoin the meeting")
		}
		return
	}

	r := h.getOrCreateRoom(code)
	existing := r.add(sid, userID, c)

	h.mu.Lock()
	h.sessions[sid] = sessionInfo{code: code, userID: userID}
	h.mu.Unlock()

	// Roster first, so the joiner can start offering to everyone present.
	roster := signal.Message{
		Type:        signal.TypeExistingParticipants,
		MeetingCode: string(code),
	}
	roster.Participants = make([]string, 0, len(existing))
	for _, id := range existing {
		roster.Participants = append(roster.Participants, string(id))
	}
	h.sendMessage(sid, c, roster)

	if len(existing) > 0 {
		h.fanOut(r, sid, signal.Message{
			Type:        signal.TypeParticipantJoined,
			MeetingCode: string(code),
			UserID:      string(userID),
		})
	}

	log.Info().Str("module", "relay").Str("user", string(userID)).
		Str("code", string(code)).Int("peers", len(existing)).Msg("attendee joined")
}

// handleRelay forwards negotiation frames to their addressee only.
func (h *Hub) handleRelay(sid sessionID, msg signal.Message) {
	info, r, ok := h.roomOf(sid)
	if !ok || msg.ToID == "" {
		return
	}
	// Never trust the envelope's claimed sender.
	msg.FromID = string(info.userID)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !r.unicast(domain.UserID(msg.ToID), data) {
		log.Debug().Str("module", "relay").Str("to", msg.ToID).
			Str("type", string(msg.Type)).Msg("unicast target not in room")
	}
}

func (h *Hub) handleBroadcast(sid sessionID, msg signal.Message) {
	info, r, ok := h.roomOf(sid)
	if !ok {
		return
	}
	msg.FromID = string(info.userID)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.applyPolicy(r, r.broadcastAll(data))
}

// handleMediaState normalizes mic-state/cam-state to {userId, isOn} before
// rebroadcast so receivers need not trust sender-filled fields.
func (h *Hub) handleMediaState(sid sessionID, msg signal.Message) {
	info, r, ok := h.roomOf(sid)
	if !ok {
		return
	}
	isOn := msg.Bool()
	out := signal.Message{
		Type:        msg.Type,
		MeetingCode: string(info.code),
		UserID:      string(info.userID),
		IsOn:        &isOn,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	h.applyPolicy(r, r.broadcastAll(data))
}

// handleEndMeeting broadcasts the terminal signal to everyone, host included,
// then drops the whole room.
func (h *Hub) handleEndMeeting(sid sessionID, msg signal.Message) {
	info, r, ok := h.roomOf(sid)
	if !ok {
		return
	}
	log.Info().Str("module", "relay").Str("code", string(info.code)).
		Str("host", string(info.userID)).Int("attendees", r.size()).Msg("ending meeting")

	out := signal.Message{
		Type:        signal.TypeEndMeeting,
		MeetingCode: string(info.code),
		FromID:      string(info.userID),
	}
	data, _ := json.Marshal(out)
	r.broadcastAll(data)

	h.mu.Lock()
	delete(h.rooms, info.code)
	sids := r.sids()
	for _, s := range sids {
		delete(h.sessions, s)
	}
	h.mu.Unlock()
}

func (h *Hub) onDisconnect(sid sessionID) {
	h.mu.Lock()
	info, wasJoined := h.sessions[sid]
	delete(h.sessions, sid)
	conn := h.conns[sid]
	delete(h.conns, sid)
	cancel := h.cancels[sid]
	delete(h.cancels, sid)
	var r *room
	if wasJoined {
		r = h.rooms[info.code]
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if r == nil {
		return
	}

	if _, ok := r.remove(sid); !ok {
		return
	}
	if r.size() == 0 {
		h.mu.Lock()
		if h.rooms[info.code] == r && r.size() == 0 {
			delete(h.rooms, info.code)
		}
		h.mu.Unlock()
	} else {
		h.fanOut(r, sid, signal.Message{
			Type:        signal.TypeParticipantLeft,
			MeetingCode: string(info.code),
			UserID:      string(info.userID),
		})
	}
	log.Info().Str("module", "relay").Str("user", string(info.userID)).
		Str("code", string(info.code)).Msg("attendee left")
}

func (h *Hub) getOrCreateRoom(code domain.MeetingCode) *room {
	h.mu.RLock()
	r, ok := h.rooms[code]
	h.mu.RUnlock()
	if ok {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.rooms[code]; ok {
		return r
	}
	r = newRoom(code)
	h.rooms[code] = r
	return r
}

func (h *Hub) roomOf(sid sessionID) (sessionInfo, *room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info, ok := h.sessions[sid]
	if !ok {
		return sessionInfo{}, nil, false
	}
	r, ok := h.rooms[info.code]
	return info, r, ok
}

func (h *Hub) fanOut(r *room, from sessionID, msg signal.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.applyPolicy(r, r.broadcast(from, data))
}

func (h *Hub) sendMessage(sid sessionID, c *Conn, msg signal.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.TrySend(data); err != nil {
		log.Debug().Err(err).Str("module", "relay").Str("sid", string(sid)).Msg("send failed")
	}
}

func (h *Hub) applyPolicy(r *room, res publishResult) {
	if len(res.dropped) == 0 {
		return
	}
	switch h.policy.OnBackPressure() {
	case KickAttendee:
		for _, sid := range res.dropped {
			h.onDisconnect(sid)
		}
	case DropFrame, NoAction:
	}
}

// Rooms reports active meeting codes and their attendance, for the status API.
func (h *Hub) Rooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for code, r := range h.rooms {
		out[string(code)] = r.size()
	}
	return out
}
