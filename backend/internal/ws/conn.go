package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/oplog"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/relay"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

const presenceTTL = 600 * time.Second

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	svc      *relay.Service
	sem      *oplog.Semaphore
	docID    string
	userID   string
	clientID string
	send     chan ServerMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, svc *relay.Service, sem *oplog.Semaphore, userID, clientID string) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		svc:      svc,
		sem:      sem,
		userID:   userID,
		clientID: clientID,
		send:     make(chan ServerMessage, 32),
	}
}

// SendEnqueue 入队出站消息；队列满了直接丢弃，不阻塞广播方。
func (c *Conn) SendEnqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) handleOpSubmit(ctx context.Context, msg ClientMessage) {
	if msg.Op == nil {
		c.SendEnqueue(ServerMessage{Type: "error", Error: "MISSING_OP"})
		return
	}
	submitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	if err := c.sem.Acquire(submitCtx); err != nil {
		c.SendEnqueue(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	defer c.sem.Release()

	op := *msg.Op
	if op.DocumentID == "" {
		op.DocumentID = c.docID
	}
	if err := c.svc.Submit(submitCtx, op); err != nil {
		c.SendEnqueue(ServerMessage{Type: "error", Error: err.Error()})
		return
	}
	c.SendEnqueue(ServerMessage{Type: "op_applied", DocID: op.DocumentID, OpID: op.ID})
	c.hub.BroadcastOp(op.DocumentID, c, op)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.send)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%s, doc=%s): %v", c.userID, c.docID, err)
			return
		}
		switch msg.Type {
		case "join":
			if msg.DocID == "" {
				c.SendEnqueue(ServerMessage{Type: "error", Error: "MISSING_DOC_ID"})
				continue
			}
			if c.docID != "" && c.docID != msg.DocID {
				// 切换文档：先离开旧房间
				c.hub.Leave(c.docID, c)
			}
			c.docID = msg.DocID
			c.hub.Join(c.docID, c)
			c.writePresence(ctx, 0, false, "")

			fields, stats, err := c.svc.Content(ctx, c.docID)
			if err != nil {
				log.Printf("load document error (doc=%s): %v", c.docID, err)
				c.SendEnqueue(ServerMessage{Type: "error", Error: "LOAD_DOC_FAILED"})
				continue
			}
			c.SendEnqueue(ServerMessage{
				Type:      "join",
				DocID:     c.docID,
				Fields:    fields,
				Stats:     &stats,
				ShareLink: replication.ShareLink(c.docID),
			})

		case "op_submit":
			c.handleOpSubmit(ctx, msg)

		case "presence", "heartbeat":
			c.writePresence(ctx, msg.Cursor, msg.IsTyping, msg.Field)
			members, err := c.hub.presence.List(ctx, c.docID)
			if err != nil {
				log.Printf("list presence error (doc=%s): %v", c.docID, err)
				continue
			}
			c.hub.BroadcastPresence(c.docID, members)

		case "load":
			fields, stats, err := c.svc.Content(ctx, c.docID)
			if err != nil {
				log.Printf("load document error (doc=%s): %v", c.docID, err)
				c.SendEnqueue(ServerMessage{Type: "error", Error: "LOAD_DOC_FAILED"})
				continue
			}
			c.SendEnqueue(ServerMessage{Type: "load", DocID: c.docID, Fields: fields, Stats: &stats})

		case "save":
			if err := c.svc.SaveSnapshots(ctx, c.docID); err != nil {
				log.Printf("save snapshots error (doc=%s): %v", c.docID, err)
				c.SendEnqueue(ServerMessage{Type: "save", DocID: c.docID, Error: "SAVE_FAILED"})
				continue
			}
			c.SendEnqueue(ServerMessage{Type: "save", DocID: c.docID})

		default:
			c.SendEnqueue(ServerMessage{Type: "ignored", Error: "unknown message type"})
		}
	}
}

func (c *Conn) writePresence(ctx context.Context, cursor int, typing bool, field string) {
	if c.docID == "" {
		return
	}
	rec := replication.PresenceRecord{
		UserID:      c.userID,
		Cursor:      cursor,
		ActiveField: field,
		IsOnline:    true,
		IsTyping:    typing,
		LastSeenAt:  time.Now(),
	}
	if err := c.hub.presence.Set(ctx, c.docID, rec, presenceTTL); err != nil {
		log.Printf("presence write error (doc=%s user=%s): %v", c.docID, c.userID, err)
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
