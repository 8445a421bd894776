package meet

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Rudra9905/Studify/internal/signal"
)

// TransportHandlers receive inbound frames and the unexpected-closure signal.
// Both are called from the transport's read goroutine.
type TransportHandlers struct {
	OnMessage func(signal.Message)
	OnClosed  func(err error)
}

// Transport is one logical signaling channel per meeting attendance. Send is
// best-effort: a closed channel swallows the frame with a local warning, so
// UI-triggered sends never crash on transient disconnects.
type Transport interface {
	Connect(ctx context.Context, token string, h TransportHandlers) error
	Send(msg signal.Message)
	Disconnect()
}

// WSTransport dials the relay's websocket endpoint.
type WSTransport struct {
	url         string
	meetingCode string
	localID     string

	handlers TransportHandlers

	mu      sync.Mutex
	conn    *websocket.Conn
	open    bool
	closing bool
}

func NewWSTransport(url, meetingCode, localID string) *WSTransport {
	return &WSTransport{url: url, meetingCode: meetingCode, localID: localID}
}

// Connect dials the relay and sends the join frame carrying the signaling
// token. It does not wait for acknowledgment; the relay's
// existing-participants message is the logical ack.
func (t *WSTransport) Connect(ctx context.Context, token string, h TransportHandlers) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.open = true
	t.closing = false
	t.handlers = h
	t.mu.Unlock()

	join := signal.Message{
		Type:        signal.TypeJoin,
		MeetingCode: t.meetingCode,
		FromID:      t.localID,
	}
	join, err = join.WithPayload(signal.JoinPayload{Token: token})
	if err != nil {
		t.Disconnect()
		return fmt.Errorf("%w: encode join: %v", ErrTransport, err)
	}
	t.Send(join)

	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.open = false
			deliberate := t.closing
			h := t.handlers
			t.mu.Unlock()
			if !deliberate && h.OnClosed != nil {
				h.OnClosed(fmt.Errorf("%w: %v", ErrTransport, err))
			}
			return
		}
		msg, err := signal.Decode(data)
		if err != nil {
			// Malformed frames are dropped, not propagated.
			log.Warn().Err(err).Str("module", "meet.transport").Msg("dropping malformed frame")
			continue
		}
		t.mu.Lock()
		h := t.handlers
		t.mu.Unlock()
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

// Send stamps the envelope with the meeting code and local id and writes it.
// No-op with a warning when the channel is not open.
func (t *WSTransport) Send(msg signal.Message) {
	msg.MeetingCode = t.meetingCode
	if msg.FromID == "" {
		msg.FromID = t.localID
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		log.Warn().Str("module", "meet.transport").
			Str("type", string(msg.Type)).Msg("send on closed channel dropped")
		return
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		log.Warn().Err(err).Str("module", "meet.transport").
			Str("type", string(msg.Type)).Msg("send failed")
	}
}

// Disconnect sends a leave frame if the channel is open, then closes it.
// Idempotent.
func (t *WSTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closing {
		return
	}
	t.closing = true
	if t.open {
		leave := signal.Message{
			Type:        signal.TypeLeave,
			MeetingCode: t.meetingCode,
			FromID:      t.localID,
		}
		_ = t.conn.WriteJSON(leave)
		t.open = false
	}
	_ = t.conn.Close()
}
