package ws

import (
	"sync"
	"testing"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

func testConn() *Conn {
	return &Conn{send: make(chan ServerMessage, 32)}
}

func drain(c *Conn) []ServerMessage {
	var out []ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastOpSkipsSubmitter(t *testing.T) {
	h := NewHub(nil)
	submitter, other := testConn(), testConn()
	h.Join("doc-1", submitter)
	h.Join("doc-1", other)

	h.BroadcastOp("doc-1", submitter, engine.Operation{ID: "op-1", DocumentID: "doc-1"})

	if msgs := drain(submitter); len(msgs) != 0 {
		t.Fatalf("submitter received its own broadcast: %+v", msgs)
	}
	msgs := drain(other)
	if len(msgs) != 1 || msgs[0].Type != "op_broadcast" || msgs[0].Op.ID != "op-1" {
		t.Fatalf("other conn got %+v, want one op_broadcast for op-1", msgs)
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	h := NewHub(nil)
	inRoom, elsewhere := testConn(), testConn()
	h.Join("doc-1", inRoom)
	h.Join("doc-2", elsewhere)

	h.BroadcastPresence("doc-1", []replication.PresenceRecord{{UserID: "alice"}})

	if msgs := drain(elsewhere); len(msgs) != 0 {
		t.Fatalf("doc-2 conn received doc-1 presence: %+v", msgs)
	}
	if msgs := drain(inRoom); len(msgs) != 1 || msgs[0].Type != "presence" {
		t.Fatalf("doc-1 conn got %+v, want one presence message", msgs)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	c := testConn()
	h.Join("doc-1", c)
	h.Leave("doc-1", c)

	h.BroadcastOp("doc-1", nil, engine.Operation{ID: "op-1"})
	if msgs := drain(c); len(msgs) != 0 {
		t.Fatalf("left conn still received broadcast: %+v", msgs)
	}
}

// 广播和 Join/Leave 并发跑：遍历的必须是持锁拷贝出来的切片，
// 否则 map 并发读写会直接 fatal（go test -race 下必现）。
func TestBroadcastConcurrentWithJoinLeave(t *testing.T) {
	h := NewHub(nil)
	stay := testConn()
	h.Join("doc-1", stay)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c := testConn()
			h.Join("doc-1", c)
			h.Leave("doc-1", c)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.BroadcastOp("doc-1", nil, engine.Operation{ID: "op-1", DocumentID: "doc-1"})
			h.BroadcastPresence("doc-1", []replication.PresenceRecord{{UserID: "alice"}})
			drain(stay)
		}
	}()
	wg.Wait()
}
