package replication

import (
	"context"
	"log"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/undo"
)

// Session 是一篇文档在一个客户端上的组合根：
// 多字段引擎 + 撤销管理器 + 复制客户端，全部在这里接线，没有环境全局量。
// 本地编辑：引擎产出操作 → 撤销管理器记账 → 客户端发布；
// 远端条目：客户端去重 → 引擎应用。
type Session struct {
	documentID string
	userID     string
	clientID   string

	engine  *engine.MultiFieldEngine
	history *undo.Manager
	client  *Client
}

type SessionOptions struct {
	Fields []string
	Undo   undo.Options
	Client ClientOptions
}

func NewSession(oplog OpLog, presence PresenceStore, documentID, userID, clientID string, opts SessionOptions) *Session {
	return &Session{
		documentID: documentID,
		userID:     userID,
		clientID:   clientID,
		engine:     engine.NewMultiFieldEngine(documentID, clientID, opts.Fields),
		history:    undo.NewManager(clientID, userID, opts.Undo),
		client:     NewClient(oplog, presence, documentID, userID, clientID, opts.Client),
	}
}

// Start 全量回放历史、开订阅、起心跳。onPresence 可以传 nil。
func (s *Session) Start(ctx context.Context, onPresence func([]PresenceRecord)) error {
	return s.client.Start(ctx, func(op engine.Operation) {
		if err := s.engine.Apply(op); err != nil {
			// 未知字段等路由失败：上报后丢弃这一条，已有状态不动。
			log.Printf("apply remote op failed: %v", err)
		}
	}, onPresence)
}

// InsertChar 本地插入。索引越界时引擎不产出操作，这里也就什么都不发生。
func (s *Session) InsertChar(ctx context.Context, field, value string, visibleIndex int) error {
	op, err := s.engine.InsertChar(field, value, visibleIndex)
	if err != nil {
		return err
	}
	if op == nil {
		return nil
	}
	s.history.Track(*op)
	return s.client.Publish(ctx, *op)
}

// DeleteChar 本地删除。
func (s *Session) DeleteChar(ctx context.Context, field string, visibleIndex int) error {
	op, err := s.engine.DeleteChar(field, visibleIndex)
	if err != nil {
		return err
	}
	if op == nil {
		return nil
	}
	s.history.Track(*op)
	return s.client.Publish(ctx, *op)
}

// Undo 撤销产生的逆操作走应用+广播，但不再 Track：
// 它们不是新的编辑，不能清掉重做历史。
func (s *Session) Undo(ctx context.Context, field string) error {
	return s.applyAndPublish(ctx, s.history.Undo(field))
}

// Redo 同 Undo。
func (s *Session) Redo(ctx context.Context, field string) error {
	return s.applyAndPublish(ctx, s.history.Redo(field))
}

func (s *Session) applyAndPublish(ctx context.Context, ops []engine.Operation) error {
	for _, op := range ops {
		if err := s.engine.Apply(op); err != nil {
			return err
		}
	}
	// 先全部本地应用再发布：发布失败时本地状态是完整的，
	// 调用方拿到错误后重试发布即可。
	for _, op := range ops {
		if err := s.client.Publish(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// Flush 把某字段未关闭的批次立刻关掉。
func (s *Session) Flush(field string) { s.history.Flush(field) }

func (s *Session) CanUndo(field string) bool { return s.history.CanUndo(field) }
func (s *Session) CanRedo(field string) bool { return s.history.CanRedo(field) }

// Content 读取某字段的可见内容。
func (s *Session) Content(field string) (string, error) {
	return s.engine.VisibleContent(field)
}

// Stats 文档级统计视图。
func (s *Session) Stats() engine.DocumentStats { return s.engine.Stats() }

// UpdatePresence 透传给复制客户端。
func (s *Session) UpdatePresence(ctx context.Context, cursor int, typing bool, field string) error {
	return s.client.UpdatePresence(ctx, cursor, typing, field)
}

// ShareLink 这篇文档的分享链接。
func (s *Session) ShareLink() string { return ShareLink(s.documentID) }

// Teardown 一次性收尾：撤销定时器和复制客户端一起停。
func (s *Session) Teardown(ctx context.Context) error {
	s.history.Close()
	return s.client.Teardown(ctx)
}
