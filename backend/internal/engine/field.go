package engine

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/position"
)

// FieldEngine 持有一个字段的全部字符和操作日志。
// characters 按 charID 索引；operations 按到达顺序追加，只增不改。
// 远端投递和心跳都跑在各自的 goroutine 上，所以和参考实现的 docState 一样用读写锁保护。
type FieldEngine struct {
	mu         sync.RWMutex
	field      string
	documentID string
	clientID   string

	characters map[string]*Character
	operations []Operation
	applied    map[string]struct{}

	insertCount int
	deleteCount int
}

func NewFieldEngine(field, documentID, clientID string) *FieldEngine {
	return &FieldEngine{
		field:      field,
		documentID: documentID,
		clientID:   clientID,
		characters: make(map[string]*Character),
		applied:    make(map[string]struct{}),
	}
}

func (e *FieldEngine) Field() string { return e.field }

// InsertChar 在可见序列的 visibleIndex 处插入一个字符。
// 左右邻居取自当前可见（未打墓碑）序列，位置键由两个邻居夹出来。
// 越界时返回 nil：这次请求没有任何效果，调用方自己决定要不要重试。
func (e *FieldEngine) InsertChar(value string, visibleIndex int) *Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	visible := e.visibleLocked()
	if visibleIndex < 0 || visibleIndex > len(visible) {
		log.Printf("insert out of range (field=%s, index=%d, len=%d)", e.field, visibleIndex, len(visible))
		return nil
	}

	var prev, next string
	if visibleIndex > 0 {
		prev = visible[visibleIndex-1].Position
	}
	if visibleIndex < len(visible) {
		next = visible[visibleIndex].Position
	}

	op := Operation{
		ID:             uuid.NewString(),
		Kind:           KindInsert,
		Field:          e.field,
		Position:       position.Generate(prev, next, e.clientID),
		Value:          value,
		CharID:         uuid.NewString(),
		OriginClientID: e.clientID,
		DocumentID:     e.documentID,
		CreatedAt:      time.Now(),
	}
	e.applyLocked(op)
	return &op
}

// DeleteChar 删除可见序列 visibleIndex 处的字符。
// 删除操作带上原始 Value/Position，对端收到时即使没见过这个字符也能自愈。
func (e *FieldEngine) DeleteChar(visibleIndex int) *Operation {
	e.mu.Lock()
	defer e.mu.Unlock()

	visible := e.visibleLocked()
	if visibleIndex < 0 || visibleIndex >= len(visible) {
		log.Printf("delete out of range (field=%s, index=%d, len=%d)", e.field, visibleIndex, len(visible))
		return nil
	}

	target := visible[visibleIndex]
	op := Operation{
		ID:             uuid.NewString(),
		Kind:           KindDelete,
		Field:          e.field,
		Position:       target.Position,
		Value:          target.Value,
		CharID:         target.ID,
		OriginClientID: e.clientID,
		DocumentID:     e.documentID,
		CreatedAt:      time.Now(),
	}
	e.applyLocked(op)
	return &op
}

// Apply 应用一个操作（本地或远端）。重复的 ID 静默忽略。
func (e *FieldEngine) Apply(op Operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyLocked(op)
}

func (e *FieldEngine) applyLocked(op Operation) {
	if _, ok := e.applied[op.ID]; ok {
		return
	}
	e.applied[op.ID] = struct{}{}
	e.operations = append(e.operations, op)

	switch op.Kind {
	case KindInsert:
		e.insertCount++
		// 同一个 charID 的插入只落地一次；已经存在的字符保持现状
		//（尤其是已打的墓碑不能被复活，否则不同到达顺序会发散）。
		if _, ok := e.characters[op.CharID]; !ok {
			e.characters[op.CharID] = &Character{
				ID:             op.CharID,
				Value:          op.Value,
				Position:       op.Position,
				OriginClientID: op.OriginClientID,
			}
		}
	case KindDelete:
		e.deleteCount++
		ch := e.characters[op.CharID]
		if ch == nil {
			// charID 没见过：先按 (position, value) 找一遍，
			// 兼容引用方式不同的历史操作。
			ch = e.findByPositionValueLocked(op.Position, op.Value)
		}
		if ch == nil {
			// 插入还没到，删除先到了。合成这个字符并立刻打墓碑，
			// 之后真正的插入到达时会因为 charID 已存在而不再落地。
			ch = &Character{
				ID:             op.CharID,
				Value:          op.Value,
				Position:       op.Position,
				OriginClientID: op.OriginClientID,
			}
			e.characters[ch.ID] = ch
		}
		ch.Deleted = true
	}
}

func (e *FieldEngine) findByPositionValueLocked(pos, value string) *Character {
	for _, ch := range e.characters {
		if ch.Position == pos && ch.Value == value {
			return ch
		}
	}
	return nil
}

// VisibleContent 是规范读取路径：过滤墓碑、按位置键排序、拼接。
// 只要应用过的操作集合相同，任何到达顺序下这里的结果都一样。
func (e *FieldEngine) VisibleContent() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out string
	for _, ch := range e.visibleLocked() {
		out += ch.Value
	}
	return out
}

// visibleLocked 返回按位置排序的未删除字符。调用方必须持有锁。
func (e *FieldEngine) visibleLocked() []*Character {
	chars := make([]*Character, 0, len(e.characters))
	for _, ch := range e.characters {
		if !ch.Deleted {
			chars = append(chars, ch)
		}
	}
	sort.Slice(chars, func(i, j int) bool {
		return position.Compare(chars[i].Position, chars[j].Position) < 0
	})
	return chars
}

// Rebuild 清空派生状态，把操作日志完整重放一遍。
// 用来校验增量状态和全量重放一致（收敛性的测试钩子）。
func (e *FieldEngine) Rebuild() {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops := e.operations
	e.characters = make(map[string]*Character)
	e.applied = make(map[string]struct{})
	e.operations = nil
	e.insertCount = 0
	e.deleteCount = 0
	for _, op := range ops {
		e.applyLocked(op)
	}
}

// Stats 派生统计，只读视图。
func (e *FieldEngine) Stats() FieldStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := FieldStats{Inserts: e.insertCount, Deletes: e.deleteCount}
	for _, ch := range e.characters {
		if ch.Deleted {
			s.Tombstoned++
		} else {
			s.Live++
		}
	}
	return s
}

// CharCount 字符集大小（含墓碑）。只会单调增长。
func (e *FieldEngine) CharCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.characters)
}

// OpCount 操作日志长度。
func (e *FieldEngine) OpCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.operations)
}
