package meet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rudra9905/Studify/internal/signal"
)

// echoRelay upgrades one connection and exposes what it received.
type echoRelay struct {
	upgrader websocket.Upgrader
	received chan signal.Message
	conns    chan *websocket.Conn
}

func newEchoRelay() *echoRelay {
	return &echoRelay{
		received: make(chan signal.Message, 16),
		conns:    make(chan *websocket.Conn, 1),
	}
}

func (r *echoRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	r.conns <- ws
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := signal.Decode(data)
		if err != nil {
			continue
		}
		r.received <- msg
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvMessage(t *testing.T, ch chan signal.Message) signal.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return signal.Message{}
	}
}

func TestWSTransportSendsJoinFrameFirst(t *testing.T) {
	relay := newEchoRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	tr := NewWSTransport(wsURL(srv), "ABC123", "1")
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), "tok-9", TransportHandlers{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	join := recvMessage(t, relay.received)
	if join.Type != signal.TypeJoin {
		t.Fatalf("first frame type = %s, want %s", join.Type, signal.TypeJoin)
	}
	if join.MeetingCode != "ABC123" || join.FromID != "1" {
		t.Errorf("join envelope = %+v", join)
	}
	var p signal.JoinPayload
	if err := join.DecodePayload(&p); err != nil || p.Token != "tok-9" {
		t.Errorf("join token = %q (err %v), want %q", p.Token, err, "tok-9")
	}
}

func TestWSTransportStampsEnvelope(t *testing.T) {
	relay := newEchoRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	tr := NewWSTransport(wsURL(srv), "ABC123", "1")
	defer tr.Disconnect()
	if err := tr.Connect(context.Background(), "tok", TransportHandlers{}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	recvMessage(t, relay.received) // join

	tr.Send(signal.Message{Type: signal.TypeOffer, ToID: "2"})
	got := recvMessage(t, relay.received)
	if got.MeetingCode != "ABC123" || got.FromID != "1" || got.ToID != "2" {
		t.Errorf("stamped envelope = %+v", got)
	}
}

func TestWSTransportDispatchesInbound(t *testing.T) {
	relay := newEchoRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	inbound := make(chan signal.Message, 1)
	tr := NewWSTransport(wsURL(srv), "ABC123", "1")
	defer tr.Disconnect()
	err := tr.Connect(context.Background(), "tok", TransportHandlers{
		OnMessage: func(m signal.Message) { inbound <- m },
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	server := <-relay.conns
	if err := server.WriteJSON(signal.Message{Type: signal.TypeParticipantJoined, UserID: "2"}); err != nil {
		t.Fatalf("server write: %v", err)
	}

	got := recvMessage(t, inbound)
	if got.Type != signal.TypeParticipantJoined || got.UserID != "2" {
		t.Errorf("inbound = %+v", got)
	}
}

func TestWSTransportReportsUnexpectedClosure(t *testing.T) {
	relay := newEchoRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	closed := make(chan error, 1)
	tr := NewWSTransport(wsURL(srv), "ABC123", "1")
	err := tr.Connect(context.Background(), "tok", TransportHandlers{
		OnClosed: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	server := <-relay.conns
	server.Close()

	select {
	case err := <-closed:
		if !errors.Is(err, ErrTransport) {
			t.Errorf("closure error = %v, want ErrTransport", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired")
	}
}

func TestWSTransportDisconnectIsQuiet(t *testing.T) {
	relay := newEchoRelay()
	srv := httptest.NewServer(relay)
	defer srv.Close()

	closed := make(chan error, 1)
	tr := NewWSTransport(wsURL(srv), "ABC123", "1")
	err := tr.Connect(context.Background(), "tok", TransportHandlers{
		OnClosed: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	recvMessage(t, relay.received) // join

	tr.Disconnect()
	tr.Disconnect() // idempotent

	// The deliberate close sends a leave frame and must not fire OnClosed.
	leave := recvMessage(t, relay.received)
	if leave.Type != signal.TypeLeave {
		t.Errorf("frame on disconnect = %s, want %s", leave.Type, signal.TypeLeave)
	}
	select {
	case err := <-closed:
		t.Errorf("OnClosed fired on deliberate disconnect: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWSTransportConnectFailure(t *testing.T) {
	tr := NewWSTransport("ws://127.0.0.1:1/ws", "ABC123", "1")
	err := tr.Connect(context.Background(), "tok", TransportHandlers{})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("dial error = %v, want ErrTransport", err)
	}
}
