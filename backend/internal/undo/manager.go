// Package undo 把本地操作按时间和类型分批，提供撤销/重做。
// 它只依赖操作类型，不直接改动字符集：撤销产生的逆操作由调用方
// 交给引擎应用、再广播出去。
package undo

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
)

const (
	DefaultBatchTimeout = 500 * time.Millisecond
	DefaultMaxDepth     = 100
)

// Step 一个撤销单元：同一用户、同一字段、同一类型、时间上连续的一批操作。
type Step struct {
	ID         string
	Field      string
	UserID     string
	Operations []engine.Operation
	CreatedAt  time.Time
}

type Options struct {
	BatchTimeout time.Duration
	MaxDepth     int
}

// Manager 按字段维护 undo/redo 两个有界栈和一个未关闭的批次。
// 批次靠定时器关闭；定时器回调先校验存活标记，管理器关闭或批次
// 已被顶替后再触发都是 no-op。
type Manager struct {
	mu       sync.Mutex
	clientID string
	userID   string
	opts     Options
	fields   map[string]*fieldHistory
	closed   bool
}

type fieldHistory struct {
	undo  []*Step
	redo  []*Step
	batch *openBatch
}

type openBatch struct {
	step    *Step
	kind    engine.OpKind
	lastAdd time.Time
	timer   *time.Timer
	live    bool
}

func NewManager(clientID, userID string, opts Options) *Manager {
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Manager{
		clientID: clientID,
		userID:   userID,
		opts:     opts,
		fields:   make(map[string]*fieldHistory),
	}
}

func (m *Manager) history(field string) *fieldHistory {
	fh, ok := m.fields[field]
	if !ok {
		fh = &fieldHistory{}
		m.fields[field] = fh
	}
	return fh
}

// Track 记录一个本地操作。非本地来源的操作直接忽略（只有自己的编辑可撤销）。
// 批次开着、字段和类型相同、且距上次追加不超时 → 并入当前批次并重置定时器；
// 否则关掉旧批次、开一个新的。
func (m *Manager) Track(op engine.Operation) {
	if op.OriginClientID != m.clientID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	fh := m.history(op.Field)
	now := time.Now()
	if b := fh.batch; b != nil && b.kind == op.Kind && now.Sub(b.lastAdd) <= m.opts.BatchTimeout {
		b.step.Operations = append(b.step.Operations, op)
		b.lastAdd = now
		b.timer.Reset(m.opts.BatchTimeout)
		return
	}

	m.closeBatchLocked(fh)
	b := &openBatch{
		step: &Step{
			ID:         uuid.NewString(),
			Field:      op.Field,
			UserID:     m.userID,
			Operations: []engine.Operation{op},
			CreatedAt:  now,
		},
		kind:    op.Kind,
		lastAdd: now,
		live:    true,
	}
	field := op.Field
	b.timer = time.AfterFunc(m.opts.BatchTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		fh := m.fields[field]
		// 存活检查：管理器已关闭、批次已被关闭或顶替时，晚到的定时器什么都不做。
		if m.closed || fh == nil || fh.batch != b || !b.live {
			return
		}
		m.closeBatchLocked(fh)
	})
	fh.batch = b
}

// closeBatchLocked 把当前批次压入 undo 栈并清空 redo 栈。
// 新的本地编辑会让之前的重做历史失效。
func (m *Manager) closeBatchLocked(fh *fieldHistory) {
	b := fh.batch
	if b == nil {
		return
	}
	b.live = false
	b.timer.Stop()
	fh.batch = nil

	fh.undo = pushBounded(fh.undo, b.step, m.opts.MaxDepth)
	fh.redo = nil
}

// pushBounded 栈满时丢掉最老的一个。
func pushBounded(stack []*Step, s *Step, max int) []*Step {
	stack = append(stack, s)
	if len(stack) > max {
		stack = stack[1:]
	}
	return stack
}

// Flush 显式关闭某个字段的未完成批次。
func (m *Manager) Flush(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fh, ok := m.fields[field]; ok {
		m.closeBatchLocked(fh)
	}
}

// Undo 弹出最近一个撤销单元，按逆序为其中每个操作合成逆操作返回，
// 调用方负责应用和广播。原始单元被压入 redo 栈。
//
// 逆操作规则：
//   - insert 的逆是引用同一个字符的 delete
//   - delete 的逆是在原位置重插同一个值（不是重新取位置），字符 ID 换新的，
//     因为墓碑不可复活；同时把单元里这条 delete 改成指向新字符，
//     这样之后 redo 删掉的才是刚刚重插出来的那个字符
func (m *Manager) Undo(field string) []engine.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	fh, ok := m.fields[field]
	if !ok {
		return nil
	}
	m.closeBatchLocked(fh)
	if len(fh.undo) == 0 {
		return nil
	}
	step := fh.undo[len(fh.undo)-1]
	fh.undo = fh.undo[:len(fh.undo)-1]

	now := time.Now()
	inverse := make([]engine.Operation, 0, len(step.Operations))
	for i := len(step.Operations) - 1; i >= 0; i-- {
		op := step.Operations[i]
		switch op.Kind {
		case engine.KindInsert:
			inverse = append(inverse, engine.Operation{
				ID:             uuid.NewString(),
				Kind:           engine.KindDelete,
				Field:          op.Field,
				Position:       op.Position,
				Value:          op.Value,
				CharID:         op.CharID,
				OriginClientID: op.OriginClientID,
				DocumentID:     op.DocumentID,
				CreatedAt:      now,
			})
		case engine.KindDelete:
			freshChar := uuid.NewString()
			inverse = append(inverse, engine.Operation{
				ID:             uuid.NewString(),
				Kind:           engine.KindInsert,
				Field:          op.Field,
				Position:       op.Position,
				Value:          op.Value,
				CharID:         freshChar,
				OriginClientID: op.OriginClientID,
				DocumentID:     op.DocumentID,
				CreatedAt:      now,
			})
			step.Operations[i].CharID = freshChar
		}
	}

	fh.redo = pushBounded(fh.redo, step, m.opts.MaxDepth)
	return inverse
}

// Redo 弹出最近一个重做单元，按原顺序用新的操作 ID / 时间戳重新签发，
// 返回给调用方应用和广播，单元压回 undo 栈。
// 重发的 insert 换新的字符 ID（旧字符是墓碑），并回写到单元里，
// 保证之后再 Undo 时删的是这次插出来的字符。
func (m *Manager) Redo(field string) []engine.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	fh, ok := m.fields[field]
	if !ok || len(fh.redo) == 0 {
		return nil
	}
	step := fh.redo[len(fh.redo)-1]
	fh.redo = fh.redo[:len(fh.redo)-1]

	now := time.Now()
	reissued := make([]engine.Operation, 0, len(step.Operations))
	for i := range step.Operations {
		op := step.Operations[i]
		op.ID = uuid.NewString()
		op.CreatedAt = now
		if op.Kind == engine.KindInsert {
			op.CharID = uuid.NewString()
			step.Operations[i].CharID = op.CharID
		}
		reissued = append(reissued, op)
	}

	fh.undo = pushBounded(fh.undo, step, m.opts.MaxDepth)
	return reissued
}

// CanUndo 未关闭的批次也算：用户刚输入完还没触发超时，撤销按钮就应该可用。
func (m *Manager) CanUndo(field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	fh, ok := m.fields[field]
	return ok && (len(fh.undo) > 0 || fh.batch != nil)
}

func (m *Manager) CanRedo(field string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	fh, ok := m.fields[field]
	return ok && len(fh.redo) > 0
}

// Depth 返回某字段 undo/redo 栈深度（未关闭的批次计入 undo）。
func (m *Manager) Depth(field string) (undoDepth, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fh, ok := m.fields[field]
	if !ok {
		return 0, 0
	}
	undoDepth = len(fh.undo)
	if fh.batch != nil {
		undoDepth++
	}
	return undoDepth, len(fh.redo)
}

// Close 停掉所有批次定时器。之后 Track 不再接收操作，晚到的定时器回调是 no-op。
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, fh := range m.fields {
		if fh.batch != nil {
			fh.batch.live = false
			fh.batch.timer.Stop()
			fh.batch = nil
		}
	}
}
