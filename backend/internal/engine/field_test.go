package engine

import (
	"math/rand"
	"testing"
)

func newTestEngine(clientID string) *FieldEngine {
	return NewFieldEngine("content", "doc-1", clientID)
}

// typeString 逐字符插入，返回产生的操作。
func typeString(t *testing.T, e *FieldEngine, s string) []Operation {
	t.Helper()
	ops := make([]Operation, 0, len(s))
	for i, r := range []rune(s) {
		op := e.InsertChar(string(r), i)
		if op == nil {
			t.Fatalf("InsertChar(%q, %d) returned nil", string(r), i)
		}
		ops = append(ops, *op)
	}
	return ops
}

func TestFieldEngine_InsertAndRead(t *testing.T) {
	e := newTestEngine("a")
	typeString(t, e, "hello")
	if got := e.VisibleContent(); got != "hello" {
		t.Fatalf("VisibleContent() = %q, want %q", got, "hello")
	}
}

func TestFieldEngine_InsertOutOfRange(t *testing.T) {
	e := newTestEngine("a")
	if op := e.InsertChar("x", 5); op != nil {
		t.Fatalf("InsertChar out of range returned %+v, want nil", op)
	}
	if op := e.InsertChar("x", -1); op != nil {
		t.Fatalf("InsertChar negative index returned %+v, want nil", op)
	}
	if got := e.VisibleContent(); got != "" {
		t.Fatalf("VisibleContent() = %q, want empty", got)
	}
}

func TestFieldEngine_DeleteOutOfRange(t *testing.T) {
	e := newTestEngine("a")
	typeString(t, e, "hi")
	if op := e.DeleteChar(2); op != nil {
		t.Fatalf("DeleteChar(2) returned %+v, want nil", op)
	}
	if op := e.DeleteChar(-1); op != nil {
		t.Fatalf("DeleteChar(-1) returned %+v, want nil", op)
	}
	if got := e.VisibleContent(); got != "hi" {
		t.Fatalf("VisibleContent() = %q, want %q", got, "hi")
	}
}

// 规范场景：插入 H、i，删掉下标 0，剩下 "i"。
func TestFieldEngine_Scenario(t *testing.T) {
	e := newTestEngine("a")
	e.InsertChar("H", 0)
	e.InsertChar("i", 1)
	if got := e.VisibleContent(); got != "Hi" {
		t.Fatalf("VisibleContent() = %q, want %q", got, "Hi")
	}
	if op := e.DeleteChar(0); op == nil {
		t.Fatal("DeleteChar(0) returned nil")
	}
	if got := e.VisibleContent(); got != "i" {
		t.Fatalf("VisibleContent() = %q, want %q", got, "i")
	}
}

// 收敛性：同一个操作集合的任意排列，应用到独立引擎上可见内容相同。
func TestFieldEngine_ConvergenceUnderPermutation(t *testing.T) {
	src := newTestEngine("a")
	ops := typeString(t, src, "concurrent")
	if del := src.DeleteChar(3); del == nil {
		t.Fatal("DeleteChar(3) returned nil")
	} else {
		ops = append(ops, *del)
	}
	want := src.VisibleContent()

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 20; round++ {
		shuffled := make([]Operation, len(ops))
		copy(shuffled, ops)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		replica := NewFieldEngine("content", "doc-1", "b")
		for _, op := range shuffled {
			replica.Apply(op)
		}
		if got := replica.VisibleContent(); got != want {
			t.Fatalf("round %d: VisibleContent() = %q, want %q", round, got, want)
		}
	}
}

// 幂等性：同一个操作应用两次和一次的结果相同。
func TestFieldEngine_IdempotentApply(t *testing.T) {
	src := newTestEngine("a")
	ops := typeString(t, src, "abc")

	replica := NewFieldEngine("content", "doc-1", "b")
	for _, op := range ops {
		replica.Apply(op)
		replica.Apply(op)
	}
	if got := replica.VisibleContent(); got != "abc" {
		t.Fatalf("VisibleContent() = %q, want %q", got, "abc")
	}
	if n := replica.OpCount(); n != len(ops) {
		t.Fatalf("OpCount() = %d, want %d", n, len(ops))
	}
}

// 墓碑单调性：删除之后字符集大小不减，墓碑数不减。
func TestFieldEngine_TombstoneMonotonic(t *testing.T) {
	e := newTestEngine("a")
	typeString(t, e, "abc")
	before := e.CharCount()

	e.DeleteChar(0)
	if after := e.CharCount(); after < before {
		t.Fatalf("CharCount() dropped from %d to %d after delete", before, after)
	}
	if s := e.Stats(); s.Tombstoned != 1 {
		t.Fatalf("Tombstoned = %d, want 1", s.Tombstoned)
	}

	e.DeleteChar(0)
	if s := e.Stats(); s.Tombstoned != 2 {
		t.Fatalf("Tombstoned = %d, want 2", s.Tombstoned)
	}
}

// 自愈删除：删除先于对应插入到达，字符被合成出来并直接打墓碑，
// 随后插入到达也不能复活它。
func TestFieldEngine_SelfHealingDelete(t *testing.T) {
	src := newTestEngine("a")
	ins := src.InsertChar("X", 0)
	del := src.DeleteChar(0)

	replica := NewFieldEngine("content", "doc-1", "b")
	replica.Apply(*del)
	if got := replica.VisibleContent(); got != "" {
		t.Fatalf("VisibleContent() = %q, want empty after dangling delete", got)
	}
	if replica.CharCount() != 1 {
		t.Fatalf("CharCount() = %d, want 1 (synthesized tombstone)", replica.CharCount())
	}

	replica.Apply(*ins)
	if got := replica.VisibleContent(); got != "" {
		t.Fatalf("VisibleContent() = %q, late insert must not revive tombstone", got)
	}
}

// 按 (position, value) 的后备查找：charID 对不上但位置和值都匹配时命中同一个字符。
func TestFieldEngine_DeleteByPositionValueFallback(t *testing.T) {
	e := newTestEngine("a")
	ins := e.InsertChar("X", 0)

	del := Operation{
		ID:             "op-legacy-delete",
		Kind:           KindDelete,
		Field:          "content",
		Position:       ins.Position,
		Value:          ins.Value,
		CharID:         "legacy-char-id",
		OriginClientID: "b",
		DocumentID:     "doc-1",
	}
	e.Apply(del)
	if got := e.VisibleContent(); got != "" {
		t.Fatalf("VisibleContent() = %q, want empty", got)
	}
	// 命中了已有字符，不应该另外合成一个。
	if e.CharCount() != 1 {
		t.Fatalf("CharCount() = %d, want 1", e.CharCount())
	}
}

// Rebuild：全量重放后的可见内容与增量状态一致。
func TestFieldEngine_RebuildEqualsIncremental(t *testing.T) {
	e := newTestEngine("a")
	typeString(t, e, "rebuild me")
	e.DeleteChar(2)
	e.InsertChar("Z", 1)

	want := e.VisibleContent()
	opCount := e.OpCount()

	e.Rebuild()
	if got := e.VisibleContent(); got != want {
		t.Fatalf("after Rebuild: VisibleContent() = %q, want %q", got, want)
	}
	if n := e.OpCount(); n != opCount {
		t.Fatalf("after Rebuild: OpCount() = %d, want %d", n, opCount)
	}
}
