// Package meet implements the attendee side of a meeting: one Session per
// attendance, holding the signaling transport, the per-peer negotiation
// engine and the presence state. Everything the session does flows through a
// single ordered event queue, so negotiation frames for one peer are always
// applied in arrival order and callbacks never race each other.
package meet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/domain"
	"github.com/Rudra9905/Studify/internal/meetings"
	"github.com/Rudra9905/Studify/internal/rtc"
	"github.com/Rudra9905/Studify/internal/signal"
)

// MediaSource acquires local capture tracks on demand. Implementations map
// device failures to classified acquisition errors. Populate registers the
// source's codecs on the media engine backing every peer connection.
type MediaSource interface {
	Populate(*webrtc.MediaEngine) error
	AudioTrack() (webrtc.TrackLocal, error)
	VideoTrack() (webrtc.TrackLocal, error)
	ScreenTrack() (webrtc.TrackLocal, error)
	Close() error
}

// Options configures a Session. MeetingCode, LocalID and Authorizer are
// required; Transport defaults to a websocket transport against SignalingURL,
// Media may be nil for a receive-only attendee.
type Options struct {
	MeetingCode  string
	LocalID      string
	DisplayName  string
	SignalingURL string
	STUNServers  []string

	Authorizer Authorizer
	Transport  Transport
	Media      MediaSource
	Events     Events
}

const (
	eventQueueSize  = 64
	deadlinePoll    = 3 * time.Second
	recentChatCap   = 32
	endCallTimeout  = 10 * time.Second
	chatPruneWindow = 2 * time.Second
)

// Session is the coordination core for one attendance of one meeting.
type Session struct {
	meetingCode string
	localID     string
	displayName string

	transport Transport
	auth      Authorizer
	media     MediaSource
	events    Events

	api       *webrtc.API
	rtcConfig webrtc.Configuration

	state atomic.Int32
	queue chan event
	done  chan struct{}
	once  sync.Once

	// Everything below is owned by the event loop.
	peers       *registry
	grant       *meetings.Grant
	localAudio  webrtc.TrackLocal
	localVideo  webrtc.TrackLocal
	localScreen webrtc.TrackLocal
	micOn       bool
	camOn       bool
	screenOn    bool
	handRaised  bool
	recentChats []domain.ChatMessage
	endSeen     bool

	rosterMu sync.RWMutex
	roster   map[string]domain.Participant

	log zerolog.Logger
}

func NewSession(opts Options) (*Session, error) {
	if opts.MeetingCode == "" {
		return nil, fmt.Errorf("meeting code required")
	}
	if opts.LocalID == "" {
		return nil, fmt.Errorf("local user id required")
	}
	if opts.Authorizer == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	tr := opts.Transport
	if tr == nil {
		if opts.SignalingURL == "" {
			return nil, fmt.Errorf("signaling url required")
		}
		tr = NewWSTransport(opts.SignalingURL, opts.MeetingCode, opts.LocalID)
	}

	var populate func(*webrtc.MediaEngine) error
	if opts.Media != nil {
		populate = opts.Media.Populate
	}
	api, err := rtc.NewAPI(populate)
	if err != nil {
		return nil, fmt.Errorf("media engine: %w", err)
	}

	s := &Session{
		meetingCode: opts.MeetingCode,
		localID:     opts.LocalID,
		displayName: opts.DisplayName,
		transport:   tr,
		auth:        opts.Authorizer,
		media:       opts.Media,
		events:      opts.Events,
		api:         api,
		rtcConfig:   rtc.Configuration(opts.STUNServers),
		queue:       make(chan event, eventQueueSize),
		done:        make(chan struct{}),
		roster:      make(map[string]domain.Participant),
		log: log.With().Str("module", "meet.session").
			Str("meeting", opts.MeetingCode).
			Str("user", opts.LocalID).Logger(),
	}
	s.peers = newRegistry(s.buildPeer)
	s.state.Store(int32(StateInitializing))
	return s, nil
}

// State is safe to call from any goroutine.
func (s *Session) State() State { return State(s.state.Load()) }

// Participants returns a snapshot of the remote roster.
func (s *Session) Participants() []domain.Participant {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()
	out := make([]domain.Participant, 0, len(s.roster))
	for _, p := range s.roster {
		out = append(out, p)
	}
	return out
}

// Join authorizes against the meeting service, connects the signaling
// channel and starts the event loop. The session reaches ACTIVE when the
// relay's roster arrives. Join may be called once.
func (s *Session) Join(ctx context.Context) error {
	if !s.transition(StateInitializing, StateJoining) {
		return ErrAlreadyJoined
	}

	grant, err := s.auth.Authorize(ctx, s.meetingCode, s.localID)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.grant = grant

	err = s.transport.Connect(ctx, grant.SignalingToken, TransportHandlers{
		OnMessage: func(msg signal.Message) { s.enqueue(evInbound{msg: msg}) },
		OnClosed:  func(err error) { s.enqueue(evTransportClosed{err: err}) },
	})
	if err != nil {
		s.setState(StateFailed)
		return err
	}

	go s.run()
	s.log.Info().Msg("joining meeting")
	return nil
}

// Leave exits the meeting and tears down all peers. Idempotent.
func (s *Session) Leave() { s.enqueue(evLeave{}) }

// EndMeeting ends the meeting for everyone. Only the host may do this; other
// attendees get an error callback and nothing happens.
func (s *Session) EndMeeting() { s.enqueue(evEnd{}) }

// ToggleMic turns the outgoing microphone track on or off. Muting swaps the
// track out of the existing senders, so it never renegotiates.
func (s *Session) ToggleMic(on bool) { s.enqueue(evMic{on: on}) }

// ToggleCam mirrors ToggleMic for the camera track.
func (s *Session) ToggleCam(on bool) { s.enqueue(evCam{on: on}) }

// ShareScreen swaps the outgoing video to a screen capture track (or back).
func (s *Session) ShareScreen(on bool) { s.enqueue(evScreen{on: on}) }

// RaiseHand broadcasts the raised-hand flag.
func (s *Session) RaiseHand(raised bool) { s.enqueue(evHand{raised: raised}) }

// SendChat broadcasts a chat line to the meeting.
func (s *Session) SendChat(text string) { s.enqueue(evChat{text: text}) }

// --- event queue ---

type event interface{ isEvent() }

type evInbound struct{ msg signal.Message }
type evTransportClosed struct{ err error }
type evRemoteTrack struct {
	remoteID string
	track    *webrtc.TrackRemote
}
type evPeerFailed struct{ remoteID string }
type evMic struct{ on bool }
type evCam struct{ on bool }
type evScreen struct{ on bool }
type evHand struct{ raised bool }
type evChat struct{ text string }
type evLeave struct{}
type evEnd struct{}
type evFlush struct{ ch chan struct{} }

func (evInbound) isEvent()         {}
func (evTransportClosed) isEvent() {}
func (evRemoteTrack) isEvent()     {}
func (evPeerFailed) isEvent()      {}
func (evMic) isEvent()             {}
func (evCam) isEvent()             {}
func (evScreen) isEvent()          {}
func (evHand) isEvent()            {}
func (evChat) isEvent()            {}
func (evLeave) isEvent()           {}
func (evEnd) isEvent()             {}
func (evFlush) isEvent()           {}

func (s *Session) enqueue(ev event) {
	select {
	case s.queue <- ev:
	case <-s.done:
	}
}

// flush blocks until the loop has drained everything queued before it.
func (s *Session) flush() {
	ch := make(chan struct{})
	select {
	case s.queue <- evFlush{ch: ch}:
	case <-s.done:
		return
	}
	select {
	case <-ch:
	case <-s.done:
	}
}

func (s *Session) run() {
	ticker := time.NewTicker(deadlinePoll)
	defer ticker.Stop()
	for {
		select {
		case ev := <-s.queue:
			s.dispatch(ev)
		case <-ticker.C:
			s.checkDeadlines(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *Session) dispatch(ev event) {
	switch e := ev.(type) {
	case evInbound:
		s.handleMessage(e.msg)
	case evTransportClosed:
		s.handleTransportClosed(e.err)
	case evRemoteTrack:
		s.events.remoteTrack(e.remoteID, e.track)
	case evPeerFailed:
		s.dropPeer(e.remoteID, "peer connection failed")
	case evMic:
		s.handleMic(e.on)
	case evCam:
		s.handleCam(e.on)
	case evScreen:
		s.handleScreen(e.on)
	case evHand:
		s.handleHand(e.raised)
	case evChat:
		s.handleChatSend(e.text)
	case evLeave:
		s.handleLeave()
	case evEnd:
		s.handleEnd()
	case evFlush:
		close(e.ch)
	}
}

// --- state machine ---

func (s *Session) transition(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
	s.events.stateChange(from, to)
	return true
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	s.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
	s.events.stateChange(from, to)
}

// teardown closes every peer and the transport exactly once.
func (s *Session) teardown(final State) {
	s.once.Do(func() {
		s.peers.closeAll()
		s.transport.Disconnect()
		if s.media != nil {
			if err := s.media.Close(); err != nil {
				s.log.Warn().Err(err).Msg("close media source")
			}
		}
		s.setState(final)
		close(s.done)
		s.log.Info().Str("final", final.String()).Msg("session closed")
	})
}

// --- inbound signaling ---

func (s *Session) handleMessage(msg signal.Message) {
	switch msg.Type {
	case signal.TypeExistingParticipants:
		s.handleRoster(msg.Participants)
	case signal.TypeParticipantJoined:
		s.handleParticipantJoined(msg.UserID)
	case signal.TypeParticipantLeft:
		s.handleParticipantLeft(msg.UserID)
	case signal.TypeOffer:
		s.handleOffer(msg)
	case signal.TypeAnswer:
		s.handleAnswer(msg)
	case signal.TypeICECandidate:
		s.handleICE(msg)
	case signal.TypeRaiseHand:
		s.handleHandNotice(msg)
	case signal.TypeChatMessage:
		s.handleChatNotice(msg)
	case signal.TypeMicState:
		s.events.micState(msg.UserID, msg.Bool())
	case signal.TypeCamState:
		s.events.camState(msg.UserID, msg.Bool())
	case signal.TypeEndMeeting:
		s.handleRemoteEnd()
	case signal.TypeError:
		var p signal.ErrorPayload
		if err := msg.DecodePayload(&p); err == nil {
			s.events.errorf(fmt.Errorf("%w: relay: %s", ErrTransport, p.Message))
		}
	default:
		s.log.Debug().Str("type", string(msg.Type)).Msg("ignoring frame")
	}
}

// handleRoster moves the session to ACTIVE and, as the newcomer, offers to
// every participant already in the meeting.
func (s *Session) handleRoster(ids []string) {
	if !s.transition(StateJoining, StateActive) {
		s.log.Debug().Msg("roster outside JOINING ignored")
		return
	}
	s.log.Info().Int("present", len(ids)).Msg("meeting active")
	for _, id := range ids {
		s.addPeer(id, true)
	}
}

// handleParticipantJoined registers the newcomer and waits for their offer.
// Duplicate announcements for an id already present are dropped.
func (s *Session) handleParticipantJoined(id string) {
	if s.State() != StateActive || id == "" || id == s.localID {
		return
	}
	s.addPeer(id, false)
}

func (s *Session) handleParticipantLeft(id string) {
	if p, ok := s.peers.remove(id); ok {
		p.close()
	}
	s.rosterMu.Lock()
	_, known := s.roster[id]
	delete(s.roster, id)
	s.rosterMu.Unlock()
	if known {
		s.log.Info().Str("remote", id).Msg("participant left")
		s.events.participantLeft(id)
	}
}

func (s *Session) handleOffer(msg signal.Message) {
	if msg.FromID == "" {
		return
	}
	var p signal.SDPPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.log.Warn().Err(err).Str("remote", msg.FromID).Msg("bad offer payload")
		return
	}
	peer, err := s.ensurePeer(msg.FromID)
	if err != nil {
		s.events.errorf(err)
		return
	}
	if err := peer.acceptOffer(p); err != nil {
		s.events.errorf(err)
	}
}

func (s *Session) handleAnswer(msg signal.Message) {
	peer, ok := s.peers.get(msg.FromID)
	if !ok {
		s.log.Debug().Str("remote", msg.FromID).Msg("answer for unknown peer dropped")
		return
	}
	var p signal.SDPPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.log.Warn().Err(err).Str("remote", msg.FromID).Msg("bad answer payload")
		return
	}
	if err := peer.acceptAnswer(p); err != nil {
		s.events.errorf(err)
	}
}

func (s *Session) handleICE(msg signal.Message) {
	if msg.FromID == "" {
		return
	}
	var p signal.ICEPayload
	if err := msg.DecodePayload(&p); err != nil {
		s.log.Warn().Err(err).Str("remote", msg.FromID).Msg("bad candidate payload")
		return
	}
	// Candidates can outrun the offer; the peer buffers them until the
	// remote description lands.
	peer, err := s.ensurePeer(msg.FromID)
	if err != nil {
		s.events.errorf(err)
		return
	}
	if err := peer.addICE(p); err != nil {
		s.events.errorf(err)
	}
}

func (s *Session) handleHandNotice(msg signal.Message) {
	var p signal.RaiseHandPayload
	if err := msg.DecodePayload(&p); err != nil {
		return
	}
	s.events.raiseHand(msg.FromID, p.Raised)
}

// handleChatNotice delivers a broadcast chat line, suppressing the relay's
// echo of our own recent sends and duplicate deliveries within the echo
// window.
func (s *Session) handleChatNotice(msg signal.Message) {
	var p signal.ChatPayload
	if err := msg.DecodePayload(&p); err != nil {
		return
	}
	cm := domain.ChatMessage{
		SenderID:   domain.UserID(msg.FromID),
		SenderName: p.UserName,
		Body:       p.Message,
		SentAt:     p.Timestamp,
	}
	for _, seen := range s.recentChats {
		if cm.Same(seen) {
			return
		}
	}
	s.rememberChat(cm)
	s.events.chat(cm)
}

func (s *Session) rememberChat(cm domain.ChatMessage) {
	cutoff := cm.SentAt.Add(-chatPruneWindow)
	kept := s.recentChats[:0]
	for _, c := range s.recentChats {
		if c.SentAt.After(cutoff) {
			kept = append(kept, c)
		}
	}
	s.recentChats = append(kept, cm)
	if len(s.recentChats) > recentChatCap {
		s.recentChats = s.recentChats[len(s.recentChats)-recentChatCap:]
	}
}

// handleRemoteEnd reacts to the host ending the meeting for everyone.
func (s *Session) handleRemoteEnd() {
	if s.endSeen {
		return
	}
	s.endSeen = true
	s.log.Info().Msg("meeting ended by host")
	s.events.meetingEnded()
	s.setState(StateLeaving)
	s.teardown(StateLeft)
}

func (s *Session) handleTransportClosed(err error) {
	switch s.State() {
	case StateLeaving, StateLeft, StateFailed:
		return
	}
	if s.endSeen {
		return
	}
	s.log.Warn().Err(err).Msg("signaling channel lost")
	s.events.errorf(err)
	s.teardown(StateFailed)
}

// --- peers ---

func (s *Session) buildPeer(remoteID string) (*peerSession, error) {
	return newPeerSession(s.api, s.rtcConfig, s.localID, remoteID,
		s.transport.Send,
		func(id string, track *webrtc.TrackRemote) {
			s.enqueue(evRemoteTrack{remoteID: id, track: track})
		},
		func(id string) {
			s.enqueue(evPeerFailed{remoteID: id})
		})
}

// ensurePeer returns the peer for id, building it on first sighting with
// whatever local tracks are currently sending. The relay sheds frames under
// backpressure, so an inbound offer or candidate can be the first we hear
// of a participant whose joined announcement was dropped.
func (s *Session) ensurePeer(id string) (*peerSession, error) {
	peer, existed, err := s.peers.getOrCreate(id)
	if err != nil {
		return nil, err
	}
	if existed {
		return peer, nil
	}
	s.addToRoster(id)
	if err := peer.attachLocal(s.sendingAudio(), s.sendingVideo()); err != nil {
		s.events.errorf(err)
	}
	return peer, nil
}

func (s *Session) addPeer(id string, initiator bool) {
	if id == "" || id == s.localID {
		return
	}
	if _, ok := s.peers.get(id); ok {
		return
	}
	peer, err := s.ensurePeer(id)
	if err != nil {
		s.events.errorf(err)
		return
	}
	if initiator {
		if err := peer.offer(); err != nil {
			s.events.errorf(err)
		}
	}
}

func (s *Session) addToRoster(id string) {
	s.rosterMu.Lock()
	_, known := s.roster[id]
	if !known {
		s.roster[id] = domain.Participant{ID: domain.UserID(id)}
	}
	s.rosterMu.Unlock()
	if !known {
		s.log.Info().Str("remote", id).Msg("participant joined")
		s.events.participantJoined(id)
	}
}

func (s *Session) dropPeer(id, reason string) {
	if p, ok := s.peers.remove(id); ok {
		p.close()
		s.log.Warn().Str("remote", id).Str("reason", reason).Msg("peer dropped")
		s.events.errorf(fmt.Errorf("%w: %s: %s", ErrNegotiation, id, reason))
	}
}

func (s *Session) checkDeadlines(now time.Time) {
	var failed []string
	s.peers.forEach(func(id string, p *peerSession) {
		if p.checkDeadline(now) {
			failed = append(failed, id)
		}
	})
	for _, id := range failed {
		s.dropPeer(id, "negotiation timed out")
	}
}

// sendingAudio returns the track currently going out, nil when muted.
func (s *Session) sendingAudio() webrtc.TrackLocal {
	if !s.micOn {
		return nil
	}
	return s.localAudio
}

func (s *Session) sendingVideo() webrtc.TrackLocal {
	if s.screenOn {
		return s.localScreen
	}
	if !s.camOn {
		return nil
	}
	return s.localVideo
}

// --- local actions ---

func (s *Session) handleMic(on bool) {
	if s.State() != StateActive {
		s.log.Debug().Msg("mic toggle outside ACTIVE ignored")
		return
	}
	if on && s.localAudio == nil {
		if s.media == nil {
			s.events.errorf(fmt.Errorf("no media source configured"))
			return
		}
		track, err := s.media.AudioTrack()
		if err != nil {
			s.events.errorf(err)
			return
		}
		s.localAudio = track
	}
	s.micOn = on
	s.fanOutTrack(func(p *peerSession) (bool, error) { return p.setAudio(s.sendingAudio()) })
	s.broadcastState(signal.TypeMicState, on)
}

func (s *Session) handleCam(on bool) {
	if s.State() != StateActive {
		s.log.Debug().Msg("cam toggle outside ACTIVE ignored")
		return
	}
	if on && s.localVideo == nil {
		if s.media == nil {
			s.events.errorf(fmt.Errorf("no media source configured"))
			return
		}
		track, err := s.media.VideoTrack()
		if err != nil {
			s.events.errorf(err)
			return
		}
		s.localVideo = track
	}
	s.camOn = on
	if !s.screenOn {
		s.fanOutTrack(func(p *peerSession) (bool, error) { return p.setVideo(s.sendingVideo()) })
	}
	s.broadcastState(signal.TypeCamState, on)
}

func (s *Session) handleScreen(on bool) {
	if s.State() != StateActive {
		s.log.Debug().Msg("screen toggle outside ACTIVE ignored")
		return
	}
	if on && s.localScreen == nil {
		if s.media == nil {
			s.events.errorf(fmt.Errorf("no media source configured"))
			return
		}
		track, err := s.media.ScreenTrack()
		if err != nil {
			s.events.errorf(err)
			return
		}
		s.localScreen = track
	}
	s.screenOn = on
	s.fanOutTrack(func(p *peerSession) (bool, error) { return p.setVideo(s.sendingVideo()) })
}

// fanOutTrack applies a track change to every peer, re-offering only where a
// brand-new sender was created.
func (s *Session) fanOutTrack(apply func(*peerSession) (bool, error)) {
	s.peers.forEach(func(id string, p *peerSession) {
		needsOffer, err := apply(p)
		if err != nil {
			s.events.errorf(err)
			return
		}
		if needsOffer {
			if err := p.offer(); err != nil {
				s.events.errorf(err)
			}
		}
	})
}

func (s *Session) broadcastState(t signal.Type, on bool) {
	s.transport.Send(signal.Message{
		Type:   t,
		UserID: s.localID,
		IsOn:   &on,
	})
}

func (s *Session) handleHand(raised bool) {
	if s.State() != StateActive {
		return
	}
	s.handRaised = raised
	msg := signal.Message{Type: signal.TypeRaiseHand}
	msg, err := msg.WithPayload(signal.RaiseHandPayload{Raised: raised})
	if err != nil {
		s.events.errorf(err)
		return
	}
	s.transport.Send(msg)
}

func (s *Session) handleChatSend(text string) {
	if s.State() != StateActive || text == "" {
		return
	}
	now := time.Now()
	msg := signal.Message{Type: signal.TypeChatMessage}
	msg, err := msg.WithPayload(signal.ChatPayload{
		Message:   text,
		UserName:  s.displayName,
		Timestamp: now,
	})
	if err != nil {
		s.events.errorf(err)
		return
	}
	// Remember our own line so the relay's echo is suppressed.
	s.rememberChat(domain.ChatMessage{
		SenderID:   domain.UserID(s.localID),
		SenderName: s.displayName,
		Body:       text,
		SentAt:     now,
	})
	s.transport.Send(msg)
}

func (s *Session) handleLeave() {
	switch s.State() {
	case StateLeft, StateFailed:
		return
	}
	s.setState(StateLeaving)
	s.teardown(StateLeft)
}

// handleEnd ends the meeting for everyone. The backend is told first; the
// end-meeting broadcast only goes out once the meeting is actually closed
// there, so a non-host can never blast the room.
func (s *Session) handleEnd() {
	if s.State() != StateActive {
		return
	}
	if s.grant != nil && string(s.grant.Host.ID) != s.localID {
		s.events.errorf(fmt.Errorf("%w", ErrNotHost))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), endCallTimeout)
	defer cancel()
	if err := s.auth.End(ctx, s.meetingCode, s.localID); err != nil {
		s.events.errorf(err)
		return
	}
	s.endSeen = true
	s.transport.Send(signal.Message{Type: signal.TypeEndMeeting})
	s.events.meetingEnded()
	s.setState(StateLeaving)
	s.teardown(StateLeft)
}
