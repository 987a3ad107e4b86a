package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/oplog"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/relay"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub *Hub
	svc *relay.Service
	sem *oplog.Semaphore
}

func NewManager(hub *Hub, svc *relay.Service, sem *oplog.Semaphore) *Manager {
	return &Manager{hub: hub, svc: svc, sem: sem}
}

func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.String(http.StatusBadRequest, "missing userId")
		return
	}
	clientID := c.Query("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.svc, m.sem, userID, clientID)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.SendEnqueue(ServerMessage{Type: "welcome"})

	// 读循环阻塞到连接关闭
	wsConn.readLoop(c.Request.Context())

	// 连接走了：离开房间，尽力写一条离线记录
	if wsConn.docID != "" {
		m.hub.Leave(wsConn.docID, wsConn)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rec := replication.PresenceRecord{UserID: userID, IsOnline: false, LastSeenAt: time.Now()}
		if err := m.hub.presence.Set(ctx, wsConn.docID, rec, presenceTTL); err != nil {
			log.Printf("offline presence write error (doc=%s user=%s): %v", wsConn.docID, userID, err)
		}
	}
}
