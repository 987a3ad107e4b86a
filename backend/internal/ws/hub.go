package ws

import (
	"sync"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

// Hub 维护 docID → 连接集合。房间里存的是连接不是用户：
// 一个用户可开多个标签页/设备，广播要逐连接发。
type Hub struct {
	presence replication.PresenceStore

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub(p replication.PresenceStore) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// snapshot 持锁拷贝房间成员。广播必须遍历拷贝：
// 直接遍历房间 map 会和 Join/Leave 的写并发，触发运行时 fatal。
func (h *Hub) snapshot(docID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[docID]
	conns := make([]*Conn, 0, len(room))
	for c := range room {
		conns = append(conns, c)
	}
	return conns
}

// BroadcastOp 把已应用的操作推给房间内除 except 之外的所有连接。
// 提交者自己拿的是 op_applied 回执，不再收一遍广播。
func (h *Hub) BroadcastOp(docID string, except *Conn, op engine.Operation) {
	msg := ServerMessage{Type: "op_broadcast", DocID: docID, Op: &op}
	for _, c := range h.snapshot(docID) {
		if c == except {
			continue
		}
		c.SendEnqueue(msg)
	}
}

// BroadcastPresence 把在线名单推给房间内所有连接。
func (h *Hub) BroadcastPresence(docID string, members []replication.PresenceRecord) {
	msg := ServerMessage{Type: "presence", DocID: docID, Members: members}
	for _, c := range h.snapshot(docID) {
		c.SendEnqueue(msg)
	}
}
