package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Rudra9905/Studify/internal/config"
	"github.com/Rudra9905/Studify/internal/meetings"
	"github.com/Rudra9905/Studify/internal/relay"
	"github.com/Rudra9905/Studify/internal/signal"
)

func newTestServer(t *testing.T) (*httptest.Server, *relay.Hub) {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = "release"
	svc := meetings.NewService(meetings.NewMemoryStore(), time.Hour)
	hub := relay.NewHub(svc, relay.DropPolicy{}, nil)
	r := SetupRouter(context.Background(), cfg, svc, hub)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub
}

func postJSON(t *testing.T, url string, body any, out any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func createMeeting(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var m struct {
		MeetingCode string `json:"meetingCode"`
	}
	resp := postJSON(t, srv.URL+"/api/meetings/createNormalMeeting", map[string]string{
		"hostUserId": "host-1",
		"hostName":   "Teacher",
		"title":      "standup",
	}, &m)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if m.MeetingCode == "" {
		t.Fatal("no meeting code in response")
	}
	return m.MeetingCode
}

func joinGrant(t *testing.T, srv *httptest.Server, code, userID string) meetings.Grant {
	t.Helper()
	var g meetings.Grant
	resp := postJSON(t, srv.URL+"/api/meetings/join", map[string]string{
		"meetingCode": code,
		"userId":      userID,
	}, &g)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d", resp.StatusCode)
	}
	return g
}

func dialSignaling(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/meet"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, msg signal.Message) {
	t.Helper()
	if err := ws.WriteJSON(msg); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func joinMeeting(t *testing.T, ws *websocket.Conn, code, userID, token string) {
	t.Helper()
	msg, err := signal.Message{
		Type:        signal.TypeJoin,
		MeetingCode: code,
		FromID:      userID,
	}.WithPayload(signal.JoinPayload{Token: token})
	if err != nil {
		t.Fatalf("encode join: %v", err)
	}
	sendFrame(t, ws, msg)
}

func readFrame(t *testing.T, ws *websocket.Conn) signal.Message {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	msg, err := signal.Decode(data)
	if err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return msg
}

func expectFrame(t *testing.T, ws *websocket.Conn, want signal.Type) signal.Message {
	t.Helper()
	msg := readFrame(t, ws)
	if msg.Type != want {
		t.Fatalf("frame type = %s, want %s (frame %+v)", msg.Type, want, msg)
	}
	return msg
}

func TestMeetingRESTLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	code := createMeeting(t, srv)

	resp, err := http.Get(srv.URL + "/api/meetings/status/" + code)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	g := joinGrant(t, srv, code, "student-1")
	if g.SignalingToken == "" || string(g.Host.ID) != "host-1" {
		t.Errorf("grant = %+v", g)
	}

	// Only the host may end.
	resp = postJSON(t, srv.URL+"/api/meetings/end?meetingCode="+code+"&userId=student-1", struct{}{}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("end by non-host = %d, want 403", resp.StatusCode)
	}
	resp = postJSON(t, srv.URL+"/api/meetings/end?meetingCode="+code+"&userId=host-1", struct{}{}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("end by host = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/meetings/status/" + code)
	if err != nil {
		t.Fatalf("status after end: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after end = %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/meetings/join", map[string]string{
		"meetingCode": "NOPE1234", "userId": "u1",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("join unknown code = %d, want 404", resp.StatusCode)
	}
}

func TestSignalingRosterAndRelay(t *testing.T) {
	srv, hub := newTestServer(t)
	code := createMeeting(t, srv)
	grantA := joinGrant(t, srv, code, "alice")
	grantB := joinGrant(t, srv, code, "bob")

	wsA := dialSignaling(t, srv)
	joinMeeting(t, wsA, code, "alice", grantA.SignalingToken)
	roster := expectFrame(t, wsA, signal.TypeExistingParticipants)
	if len(roster.Participants) != 0 {
		t.Fatalf("first joiner roster = %v, want empty", roster.Participants)
	}

	wsB := dialSignaling(t, srv)
	joinMeeting(t, wsB, code, "bob", grantB.SignalingToken)
	roster = expectFrame(t, wsB, signal.TypeExistingParticipants)
	if len(roster.Participants) != 1 || roster.Participants[0] != "alice" {
		t.Fatalf("second joiner roster = %v, want [alice]", roster.Participants)
	}

	joined := expectFrame(t, wsA, signal.TypeParticipantJoined)
	if joined.UserID != "bob" {
		t.Fatalf("participant-joined userId = %q, want bob", joined.UserID)
	}

	// Negotiation frames are unicast and re-stamped with the real sender.
	offer, err := signal.Message{
		Type: signal.TypeOffer, ToID: "alice", FromID: "spoofed",
	}.WithPayload(signal.SDPPayload{Type: "offer", SDP: "v=0"})
	if err != nil {
		t.Fatalf("encode offer: %v", err)
	}
	sendFrame(t, wsB, offer)
	got := expectFrame(t, wsA, signal.TypeOffer)
	if got.FromID != "bob" {
		t.Errorf("relayed offer fromUserId = %q, want bob", got.FromID)
	}

	answer, err := signal.Message{
		Type: signal.TypeAnswer, ToID: "bob",
	}.WithPayload(signal.SDPPayload{Type: "answer", SDP: "v=0"})
	if err != nil {
		t.Fatalf("encode answer: %v", err)
	}
	sendFrame(t, wsA, answer)
	got = expectFrame(t, wsB, signal.TypeAnswer)
	if got.FromID != "alice" {
		t.Errorf("relayed answer fromUserId = %q, want alice", got.FromID)
	}

	// Presence is normalized to {userId, isOn} and echoed to everyone.
	on := true
	sendFrame(t, wsB, signal.Message{Type: signal.TypeMicState, IsOn: &on})
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		mic := expectFrame(t, ws, signal.TypeMicState)
		if mic.UserID != "bob" || !mic.Bool() {
			t.Errorf("mic-state = %+v, want userId=bob isOn=true", mic)
		}
	}

	// Attendance shows up in the hub's room stats.
	if rooms := hub.Rooms(); rooms[code] != 2 {
		t.Errorf("room size = %d, want 2", rooms[code])
	}

	// Disconnect surfaces as participant-left for the rest of the room.
	wsB.Close()
	left := expectFrame(t, wsA, signal.TypeParticipantLeft)
	if left.UserID != "bob" {
		t.Errorf("participant-left userId = %q, want bob", left.UserID)
	}
}

func TestSignalingChatBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)
	code := createMeeting(t, srv)
	grantA := joinGrant(t, srv, code, "alice")
	grantB := joinGrant(t, srv, code, "bob")

	wsA := dialSignaling(t, srv)
	joinMeeting(t, wsA, code, "alice", grantA.SignalingToken)
	expectFrame(t, wsA, signal.TypeExistingParticipants)

	wsB := dialSignaling(t, srv)
	joinMeeting(t, wsB, code, "bob", grantB.SignalingToken)
	expectFrame(t, wsB, signal.TypeExistingParticipants)
	expectFrame(t, wsA, signal.TypeParticipantJoined)

	chat, err := signal.Message{Type: signal.TypeChatMessage}.WithPayload(signal.ChatPayload{
		Message: "hello", UserName: "Alice", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("encode chat: %v", err)
	}
	sendFrame(t, wsA, chat)

	// Chat is broadcast to the whole room, sender included; clients dedupe
	// their own echo.
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		got := expectFrame(t, ws, signal.TypeChatMessage)
		if got.FromID != "alice" {
			t.Errorf("chat fromUserId = %q, want alice", got.FromID)
		}
		var p signal.ChatPayload
		if err := got.DecodePayload(&p); err != nil || p.Message != "hello" {
			t.Errorf("chat payload = %+v (err %v)", p, err)
		}
	}
}

func TestSignalingEndMeetingDropsRoom(t *testing.T) {
	srv, hub := newTestServer(t)
	code := createMeeting(t, srv)
	grantA := joinGrant(t, srv, code, "alice")
	grantB := joinGrant(t, srv, code, "bob")

	wsA := dialSignaling(t, srv)
	joinMeeting(t, wsA, code, "alice", grantA.SignalingToken)
	expectFrame(t, wsA, signal.TypeExistingParticipants)

	wsB := dialSignaling(t, srv)
	joinMeeting(t, wsB, code, "bob", grantB.SignalingToken)
	expectFrame(t, wsB, signal.TypeExistingParticipants)
	expectFrame(t, wsA, signal.TypeParticipantJoined)

	sendFrame(t, wsA, signal.Message{Type: signal.TypeEndMeeting})

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		end := expectFrame(t, ws, signal.TypeEndMeeting)
		if end.FromID != "alice" {
			t.Errorf("end-meeting fromUserId = %q, want alice", end.FromID)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(hub.Rooms()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("room still present after end-meeting: %v", hub.Rooms())
}

func TestSignalingRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	code := createMeeting(t, srv)

	ws := dialSignaling(t, srv)
	sendFrame(t, ws, signal.Message{Type: signal.TypeJoin, MeetingCode: code, FromID: "mallory"})

	errFrame := expectFrame(t, ws, signal.TypeError)
	var p signal.ErrorPayload
	if err := errFrame.DecodePayload(&p); err != nil || p.Message == "" {
		t.Errorf("error payload = %+v (err %v)", p, err)
	}
}

func TestSignalingRejectsForeignToken(t *testing.T) {
	srv, _ := newTestServer(t)
	codeA := createMeeting(t, srv)
	codeB := createMeeting(t, srv)
	grantA := joinGrant(t, srv, codeA, "alice")

	ws := dialSignaling(t, srv)
	joinMeeting(t, ws, codeB, "alice", grantA.SignalingToken)
	expectFrame(t, ws, signal.TypeError)
}
