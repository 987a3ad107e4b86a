// Package replication 负责把本地操作搬进共享日志、把远端操作幂等地搬回来，
// 以及发布/收集在线状态。日志和 presence 存储是外部服务，这里只定义接口。
package replication

import (
	"context"
	"time"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
)

// Entry 日志里的一条记录。LogID 是日志后端分配的键，
// 和操作自己的 ID 不是一回事：去重只认操作 ID，不认 LogID。
type Entry struct {
	LogID string
	Op    engine.Operation
}

// OpLog 按文档命名空间的追加日志。约定：只追加、不改写、按操作 ID 去重。
type OpLog interface {
	// Append 追加一条操作。
	Append(ctx context.Context, op engine.Operation) error
	// LoadAll 一次性读出全部历史，按时间戳递增排序。
	LoadAll(ctx context.Context) ([]Entry, error)
	// Subscribe 订阅新条目，返回取消函数。后端必须保证 LoadAll 和
	// Subscribe 之间追加的条目不丢：要么从 LoadAll 观察到的位置续读，
	// 要么重放可能重叠的条目——重叠无害，消费方按操作 ID 去重。
	Subscribe(ctx context.Context, deliver func(Entry)) (cancel func(), err error)
}

// PresenceRecord 每个用户在每篇文档里一条，整条覆盖写，不追加。
type PresenceRecord struct {
	UserID      string    `json:"userId"`
	Cursor      int       `json:"cursorPosition"`
	ActiveField string    `json:"activeField"`
	IsOnline    bool      `json:"isOnline"`
	IsTyping    bool      `json:"isTyping"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// DefaultFreshnessWindow 超过这个窗口没有心跳就视为掉线，
// 与记录里的 IsOnline 标志无关（客户端可能没来得及写离线就断了）。
const DefaultFreshnessWindow = 30 * time.Second

// Stale 判断记录是否过期。
func (r PresenceRecord) Stale(window time.Duration, now time.Time) bool {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return now.Sub(r.LastSeenAt) > window
}

// PresenceStore 在线状态存储。一条记录对应 (documentID, userID)，覆盖写。
type PresenceStore interface {
	Set(ctx context.Context, docID string, rec PresenceRecord, ttl time.Duration) error
	List(ctx context.Context, docID string) ([]PresenceRecord, error)
}
