package relay

import (
	"errors"
	"testing"
)

// idleConn returns a Conn with no running write pump, so its queue fills up
// and backpressure becomes observable.
func idleConn() *Conn {
	return newConn(nil)
}

func TestRoomAddReportsExisting(t *testing.T) {
	r := newRoom("ABC123")

	existing := r.add("sid-1", "alice", idleConn())
	if len(existing) != 0 {
		t.Fatalf("first attendee saw %v, want empty", existing)
	}

	existing = r.add("sid-2", "bob", idleConn())
	if len(existing) != 1 || existing[0] != "alice" {
		t.Fatalf("second attendee saw %v, want [alice]", existing)
	}
	if r.size() != 2 {
		t.Errorf("size = %d, want 2", r.size())
	}
}

func TestRoomRemove(t *testing.T) {
	r := newRoom("ABC123")
	r.add("sid-1", "alice", idleConn())

	uid, ok := r.remove("sid-1")
	if !ok || uid != "alice" {
		t.Errorf("remove = (%q, %v), want (alice, true)", uid, ok)
	}
	if _, ok := r.remove("sid-1"); ok {
		t.Error("second remove reported success")
	}
	if r.size() != 0 {
		t.Errorf("size = %d, want 0", r.size())
	}
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	r := newRoom("ABC123")
	a := idleConn()
	b := idleConn()
	r.add("sid-a", "alice", a)
	r.add("sid-b", "bob", b)

	res := r.broadcast("sid-a", []byte("x"))
	if res.sentTo != 1 || len(res.dropped) != 0 {
		t.Errorf("broadcast result = %+v, want sentTo=1", res)
	}
	if len(a.send) != 0 {
		t.Error("sender received its own broadcast")
	}
	if len(b.send) != 1 {
		t.Errorf("receiver queue = %d frames, want 1", len(b.send))
	}

	res = r.broadcastAll([]byte("y"))
	if res.sentTo != 2 {
		t.Errorf("broadcastAll sentTo = %d, want 2", res.sentTo)
	}
}

func TestRoomUnicast(t *testing.T) {
	r := newRoom("ABC123")
	b := idleConn()
	r.add("sid-b", "bob", b)

	if !r.unicast("bob", []byte("x")) {
		t.Error("unicast to present user failed")
	}
	if r.unicast("ghost", []byte("x")) {
		t.Error("unicast to absent user reported success")
	}
	if len(b.send) != 1 {
		t.Errorf("bob queue = %d frames, want 1", len(b.send))
	}
}

func TestRoomBroadcastReportsBackpressure(t *testing.T) {
	r := newRoom("ABC123")
	slow := idleConn()
	r.add("sid-slow", "slow", slow)

	// Fill the queue; the next broadcast must surface the drop.
	for i := 0; i < sendQueueSize; i++ {
		if err := slow.TrySend([]byte("fill")); err != nil {
			t.Fatalf("fill send %d: %v", i, err)
		}
	}
	if err := slow.TrySend([]byte("over")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("overflow send = %v, want ErrBackpressure", err)
	}

	res := r.broadcastAll([]byte("x"))
	if res.sentTo != 0 || len(res.dropped) != 1 || res.dropped[0] != "sid-slow" {
		t.Errorf("broadcast result = %+v, want dropped [sid-slow]", res)
	}
}
