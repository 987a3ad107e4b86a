package ws

import (
	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

type ClientMessage struct {
	Type string `json:"type"`
	// join 时必填，之后的消息沿用连接上记住的文档
	DocID string `json:"docId,omitempty"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	ClientID string `json:"clientId,omitempty"`
	UserID   string `json:"userId,omitempty"`

	// op_submit
	Op *engine.Operation `json:"op,omitempty"`

	// presence / heartbeat
	Field    string `json:"field,omitempty"`
	Cursor   int    `json:"cursorPosition,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

type ServerMessage struct {
	Type  string `json:"type"`
	DocID string `json:"docId,omitempty"`
	// op_applied 的回执：哪个操作被接受了
	OpID string `json:"opId,omitempty"`
	// op_broadcast：推送给房间内其他连接的已应用操作
	Op *engine.Operation `json:"op,omitempty"`

	Fields    map[string]string            `json:"fields,omitempty"`
	Stats     *engine.DocumentStats        `json:"stats,omitempty"`
	Members   []replication.PresenceRecord `json:"members,omitempty"`
	ShareLink string                       `json:"shareLink,omitempty"`
	Content   string                       `json:"content,omitempty"`
	Error     string                       `json:"error,omitempty"`
}
