package meet

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/signal"
)

type negState int

// negStable covers both outcomes of a round: answer received by the offerer
// and answer sent by the answerer. Neither side stays in between, so one
// state serves for both.
const (
	negNew negState = iota
	negOfferSent
	negStable
	negRenegotiating
	negClosed
)

func (s negState) String() string {
	switch s {
	case negNew:
		return "NEW"
	case negOfferSent:
		return "OFFER_SENT"
	case negStable:
		return "STABLE"
	case negRenegotiating:
		return "RENEGOTIATING"
	case negClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// negotiationTimeout bounds how long an offer may stay unanswered before the
// peer is retried and, on a second miss, declared failed.
const negotiationTimeout = 12 * time.Second

// peerSession is one leg of the mesh: the negotiation state machine and
// peer connection for a single remote participant. All methods except the
// pion callbacks run on the owning session's event loop, so there is no lock.
type peerSession struct {
	localID  string
	remoteID string

	pc    *webrtc.PeerConnection
	state negState

	// Candidates that arrived before the remote description.
	pendingICE []webrtc.ICECandidateInit
	remoteSet  bool

	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender

	renegotiations int
	deadline       time.Time
	retried        bool

	send func(signal.Message)
	log  zerolog.Logger
}

func newPeerSession(api *webrtc.API, cfg webrtc.Configuration, localID, remoteID string,
	send func(signal.Message),
	onTrack func(remoteID string, track *webrtc.TrackRemote),
	onFailed func(remoteID string)) (*peerSession, error) {

	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", ErrNegotiation, err)
	}

	p := &peerSession{
		localID:  localID,
		remoteID: remoteID,
		pc:       pc,
		state:    negNew,
		send:     send,
		log: log.With().Str("module", "meet.peer").
			Str("remote", remoteID).Logger(),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		msg := signal.Message{Type: signal.TypeICECandidate, ToID: remoteID}
		msg, err := msg.WithPayload(signal.ICEPayload{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
		if err != nil {
			p.log.Warn().Err(err).Msg("encode ice candidate")
			return
		}
		send(msg)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		onTrack(remoteID, track)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug().Str("state", s.String()).Msg("connection state")
		if s == webrtc.PeerConnectionStateFailed {
			onFailed(remoteID)
		}
	})

	return p, nil
}

// attachLocal adds whatever local tracks exist before the first offer, so
// the initial negotiation already carries them.
func (p *peerSession) attachLocal(audio, video webrtc.TrackLocal) error {
	if audio != nil {
		s, err := p.pc.AddTrack(audio)
		if err != nil {
			return fmt.Errorf("%w: add audio track: %v", ErrNegotiation, err)
		}
		p.audioSender = s
	}
	if video != nil {
		s, err := p.pc.AddTrack(video)
		if err != nil {
			return fmt.Errorf("%w: add video track: %v", ErrNegotiation, err)
		}
		p.videoSender = s
	}
	return nil
}

// offer starts (or restarts) negotiation towards the remote peer.
func (p *peerSession) offer() error {
	return p.offerOpts(nil)
}

func (p *peerSession) offerOpts(opts *webrtc.OfferOptions) error {
	if p.state == negClosed {
		return nil
	}
	offer, err := p.pc.CreateOffer(opts)
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrNegotiation, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrNegotiation, err)
	}

	msg := signal.Message{Type: signal.TypeOffer, ToID: p.remoteID}
	msg, err = msg.WithPayload(signal.SDPPayload{Type: offer.Type.String(), SDP: offer.SDP})
	if err != nil {
		return fmt.Errorf("%w: encode offer: %v", ErrNegotiation, err)
	}
	p.send(msg)

	if p.state == negStable {
		p.state = negRenegotiating
		p.renegotiations++
	} else if p.state != negRenegotiating {
		p.state = negOfferSent
	}
	p.deadline = time.Now().Add(negotiationTimeout)
	p.log.Debug().Str("neg", p.state.String()).Msg("offer sent")
	return nil
}

// acceptOffer applies a remote offer and answers it. When both sides offered
// at once, the lexicographically smaller id keeps its offer: the smaller side
// ignores the colliding offer, the larger side rolls back and answers.
func (p *peerSession) acceptOffer(in signal.SDPPayload) error {
	if p.state == negClosed {
		return nil
	}
	if p.state == negOfferSent || p.state == negRenegotiating {
		if p.localID < p.remoteID {
			p.log.Debug().Msg("glare: keeping local offer")
			return nil
		}
		p.log.Debug().Msg("glare: rolling back local offer")
		if err := p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return fmt.Errorf("%w: rollback: %v", ErrNegotiation, err)
		}
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: in.SDP}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", ErrNegotiation, err)
	}
	p.remoteSet = true
	p.flushICE()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", ErrNegotiation, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", ErrNegotiation, err)
	}

	msg := signal.Message{Type: signal.TypeAnswer, ToID: p.remoteID}
	msg, err = msg.WithPayload(signal.SDPPayload{Type: answer.Type.String(), SDP: answer.SDP})
	if err != nil {
		return fmt.Errorf("%w: encode answer: %v", ErrNegotiation, err)
	}
	p.send(msg)

	p.state = negStable
	p.deadline = time.Time{}
	p.retried = false
	p.log.Debug().Msg("answered offer")
	return nil
}

// acceptAnswer completes a negotiation we started. Answers arriving with no
// offer in flight are stale and dropped.
func (p *peerSession) acceptAnswer(in signal.SDPPayload) error {
	if p.state != negOfferSent && p.state != negRenegotiating {
		p.log.Debug().Str("neg", p.state.String()).Msg("dropping stale answer")
		return nil
	}
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: in.SDP}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", ErrNegotiation, err)
	}
	p.remoteSet = true
	p.flushICE()
	p.state = negStable
	p.deadline = time.Time{}
	p.retried = false
	return nil
}

// addICE applies a trickled candidate, or buffers it until the remote
// description lands.
func (p *peerSession) addICE(in signal.ICEPayload) error {
	init := webrtc.ICECandidateInit{
		Candidate:        in.Candidate,
		SDPMid:           in.SDPMid,
		SDPMLineIndex:    in.SDPMLineIndex,
		UsernameFragment: in.UsernameFragment,
	}
	if !p.remoteSet {
		p.pendingICE = append(p.pendingICE, init)
		return nil
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("%w: add ice candidate: %v", ErrNegotiation, err)
	}
	return nil
}

func (p *peerSession) flushICE() {
	for _, c := range p.pendingICE {
		if err := p.pc.AddICECandidate(c); err != nil {
			p.log.Warn().Err(err).Msg("buffered candidate rejected")
		}
	}
	p.pendingICE = nil
}

// setAudio swaps the outgoing audio track without renegotiating when a sender
// already exists. It reports whether a fresh offer is required (first time
// this kind is sent).
func (p *peerSession) setAudio(track webrtc.TrackLocal) (needsOffer bool, err error) {
	if p.audioSender != nil {
		return false, p.replaceOn(p.audioSender, track)
	}
	if track == nil {
		return false, nil
	}
	s, err := p.pc.AddTrack(track)
	if err != nil {
		return false, fmt.Errorf("%w: add audio track: %v", ErrNegotiation, err)
	}
	p.audioSender = s
	return true, nil
}

// setVideo mirrors setAudio for the video sender.
func (p *peerSession) setVideo(track webrtc.TrackLocal) (needsOffer bool, err error) {
	if p.videoSender != nil {
		return false, p.replaceOn(p.videoSender, track)
	}
	if track == nil {
		return false, nil
	}
	s, err := p.pc.AddTrack(track)
	if err != nil {
		return false, fmt.Errorf("%w: add video track: %v", ErrNegotiation, err)
	}
	p.videoSender = s
	return true, nil
}

func (p *peerSession) replaceOn(sender *webrtc.RTPSender, track webrtc.TrackLocal) error {
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("%w: replace track: %v", ErrNegotiation, err)
	}
	return nil
}

// checkDeadline is polled by the session. A first miss retries the offer with
// an ICE restart; a second miss reports the peer as failed.
func (p *peerSession) checkDeadline(now time.Time) (failed bool) {
	if p.deadline.IsZero() || now.Before(p.deadline) || p.state == negClosed {
		return false
	}
	if !p.retried {
		p.retried = true
		p.log.Warn().Msg("negotiation timed out, retrying with ice restart")
		if err := p.offerOpts(&webrtc.OfferOptions{ICERestart: true}); err != nil {
			p.log.Warn().Err(err).Msg("retry offer failed")
			return true
		}
		return false
	}
	p.log.Warn().Msg("negotiation timed out twice, giving up")
	return true
}

func (p *peerSession) close() {
	if p.state == negClosed {
		return
	}
	p.state = negClosed
	p.deadline = time.Time{}
	if err := p.pc.Close(); err != nil {
		p.log.Warn().Err(err).Msg("close peer connection")
	}
}
