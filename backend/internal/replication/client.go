package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
)

const (
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultPresenceTTL       = 60 * time.Second
)

var (
	ErrClosed         = errors.New("CLIENT_CLOSED")
	ErrAlreadyStarted = errors.New("CLIENT_ALREADY_STARTED")
)

type ClientOptions struct {
	HeartbeatInterval time.Duration
	PresenceTTL       time.Duration
}

// Client 把本地操作发布到日志，把远端条目幂等地回放给上层。
// processed 记录已处理过的操作 ID；lastTS 记录已处理条目的最大时间戳，
// 订阅阶段只投递时间戳更大、且 ID 没见过的条目。
type Client struct {
	oplog    OpLog
	presence PresenceStore

	documentID string
	userID     string
	clientID   string
	opts       ClientOptions

	mu           sync.Mutex
	processed    map[string]struct{}
	lastTS       time.Time
	lastPresence PresenceRecord
	started      bool
	closed       bool
	cancelSub    func()
	stopBeat     chan struct{}
}

func NewClient(oplog OpLog, presence PresenceStore, documentID, userID, clientID string, opts ClientOptions) *Client {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.PresenceTTL <= 0 {
		opts.PresenceTTL = DefaultPresenceTTL
	}
	return &Client{
		oplog:      oplog,
		presence:   presence,
		documentID: documentID,
		userID:     userID,
		clientID:   clientID,
		opts:       opts,
		processed:  make(map[string]struct{}),
		stopBeat:   make(chan struct{}),
	}
}

// Publish 把操作追加到日志。发送之前就把 ID 标成已处理，
// 这样订阅收到自己写入的回声时不会再应用一遍；
// 发送失败则把标记撤掉，让调用方的重试路径可以重发。没有自动重试。
func (c *Client) Publish(ctx context.Context, op engine.Operation) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.processed[op.ID] = struct{}{}
	c.mu.Unlock()

	if err := c.oplog.Append(ctx, op); err != nil {
		c.mu.Lock()
		delete(c.processed, op.ID)
		c.mu.Unlock()
		return fmt.Errorf("publish op %s: %w", op.ID, err)
	}
	return nil
}

// Start 先做一次全量读（重建状态），读完再开实时订阅，
// 避免同一条目被处理两次、或者时间戳更小的实时条目抢在历史前面。
// 订阅建好之后启动心跳循环。
func (c *Client) Start(ctx context.Context, onOp func(engine.Operation), onPresence func([]PresenceRecord)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	entries, err := c.oplog.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, e := range entries {
		c.mu.Lock()
		if _, dup := c.processed[e.Op.ID]; dup {
			c.mu.Unlock()
			continue
		}
		c.processed[e.Op.ID] = struct{}{}
		if e.Op.CreatedAt.After(c.lastTS) {
			c.lastTS = e.Op.CreatedAt
		}
		c.mu.Unlock()
		// 历史回放不跳过自己的操作：本地状态是空的，
		// 以前会话写进日志的操作也要重放回来。
		onOp(e.Op)
	}

	cancel, err := c.oplog.Subscribe(ctx, func(e Entry) {
		c.deliver(e, onOp)
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrClosed
	}
	c.cancelSub = cancel
	c.mu.Unlock()

	go c.heartbeatLoop(onPresence)
	return nil
}

// deliver 实时条目的过滤：时间戳要比已处理的大、ID 没见过、
// 并且不是自己发出的（本地应用在 Publish 时已经发生过了）。
func (c *Client) deliver(e Entry, onOp func(engine.Operation)) {
	op := e.Op
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, dup := c.processed[op.ID]; dup {
		c.mu.Unlock()
		return
	}
	if !op.CreatedAt.After(c.lastTS) && op.OriginClientID != c.clientID {
		// 时间戳不比已处理的新：历史阶段已经覆盖过的窗口，丢弃
		c.mu.Unlock()
		return
	}
	c.processed[op.ID] = struct{}{}
	if op.CreatedAt.After(c.lastTS) {
		c.lastTS = op.CreatedAt
	}
	own := op.OriginClientID == c.clientID
	c.mu.Unlock()

	if own {
		return
	}
	onOp(op)
}

// UpdatePresence 覆盖写自己的在线状态，并留底给心跳定时重发。
func (c *Client) UpdatePresence(ctx context.Context, cursor int, typing bool, field string) error {
	rec := PresenceRecord{
		UserID:      c.userID,
		Cursor:      cursor,
		ActiveField: field,
		IsOnline:    true,
		IsTyping:    typing,
		LastSeenAt:  time.Now(),
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.lastPresence = rec
	c.mu.Unlock()
	return c.presence.Set(ctx, c.documentID, rec, c.opts.PresenceTTL)
}

// heartbeatLoop 固定间隔重发一次 presence，并把房间内的在线名单回调给上层。
// Teardown 之后醒来的那一次 tick 必须什么都不做。
func (c *Client) heartbeatLoop(onPresence func([]PresenceRecord)) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopBeat:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			rec := c.lastPresence
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			rec.UserID = c.userID
			rec.IsOnline = true
			rec.LastSeenAt = time.Now()
			if err := c.presence.Set(ctx, c.documentID, rec, c.opts.PresenceTTL); err != nil {
				log.Printf("presence heartbeat failed (doc=%s user=%s): %v", c.documentID, c.userID, err)
			}
			if onPresence != nil {
				if members, err := c.presence.List(ctx, c.documentID); err == nil {
					onPresence(members)
				} else {
					log.Printf("presence list failed (doc=%s): %v", c.documentID, err)
				}
			}
			cancel()
		}
	}
}

// Teardown 一次性的收尾：退订日志、停掉心跳、尽力写一条离线状态。
// 重复调用是 no-op。
func (c *Client) Teardown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancelSub
	rec := c.lastPresence
	close(c.stopBeat)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	rec.UserID = c.userID
	rec.IsOnline = false
	rec.LastSeenAt = time.Now()
	if err := c.presence.Set(ctx, c.documentID, rec, c.opts.PresenceTTL); err != nil {
		// 尽力而为：离线标记写失败也不影响 teardown 完成，
		// presence 记录的 TTL 过期后对端一样会把我们当作掉线。
		log.Printf("offline presence write failed (doc=%s user=%s): %v", c.documentID, c.userID, err)
	}
	return nil
}

// Processed 某个操作 ID 是否已处理（测试钩子）。
func (c *Client) Processed(opID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[opID]
	return ok
}
