package relay_test

import (
	"context"
	"testing"
	"time"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/oplog"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/relay"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

func newMemService(logs map[string]*oplog.MemoryLog) *relay.Service {
	return relay.NewService(func(docID string) replication.OpLog {
		l, ok := logs[docID]
		if !ok {
			l = oplog.NewMemoryLog()
			logs[docID] = l
		}
		return l
	}, nil, nil)
}

func insertOp(id, docID, value, position string, ts time.Time) engine.Operation {
	return engine.Operation{
		ID:             id,
		Kind:           engine.KindInsert,
		Field:          "content",
		Position:       position,
		Value:          value,
		CharID:         "char-" + id,
		OriginClientID: "client-a",
		DocumentID:     docID,
		CreatedAt:      ts,
	}
}

func TestSubmitAppliesAndAppends(t *testing.T) {
	logs := make(map[string]*oplog.MemoryLog)
	svc := newMemService(logs)
	ctx := context.Background()

	op := insertOp("op-1", "doc-1", "H", "1.0.client-a", time.Now())
	if err := svc.Submit(ctx, op); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	fields, stats, err := svc.Content(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if fields["content"] != "H" {
		t.Fatalf("content = %q, want H", fields["content"])
	}
	if stats.Total.Inserts != 1 {
		t.Fatalf("total inserts = %d, want 1", stats.Total.Inserts)
	}
	if logs["doc-1"].Len() != 1 {
		t.Fatalf("log length = %d, want 1", logs["doc-1"].Len())
	}
}

// 同一个操作重复提交：引擎去重，日志可以出现重复条目，内容不变。
func TestSubmitDuplicateOpIdempotent(t *testing.T) {
	logs := make(map[string]*oplog.MemoryLog)
	svc := newMemService(logs)
	ctx := context.Background()

	op := insertOp("op-1", "doc-1", "H", "1.0.client-a", time.Now())
	_ = svc.Submit(ctx, op)
	_ = svc.Submit(ctx, op)

	fields, stats, _ := svc.Content(ctx, "doc-1")
	if fields["content"] != "H" || stats.Total.Inserts != 1 {
		t.Fatalf("duplicate submit changed state: content=%q inserts=%d", fields["content"], stats.Total.Inserts)
	}
}

func TestSubmitMissingDocID(t *testing.T) {
	svc := newMemService(make(map[string]*oplog.MemoryLog))
	op := insertOp("op-1", "", "H", "1.0.client-a", time.Now())
	if err := svc.Submit(context.Background(), op); err == nil {
		t.Fatal("Submit without doc ID accepted")
	}
}

// 服务重启（新 Service，同一份日志）之后首次访问要重放历史。
func TestDocStateRebuiltFromLog(t *testing.T) {
	logs := make(map[string]*oplog.MemoryLog)
	ctx := context.Background()

	svc := newMemService(logs)
	base := time.Now()
	_ = svc.Submit(ctx, insertOp("op-1", "doc-1", "H", "1.0.client-a", base))
	_ = svc.Submit(ctx, insertOp("op-2", "doc-1", "i", "2.0.client-a", base.Add(time.Millisecond)))

	restarted := newMemService(logs)
	fields, _, err := restarted.Content(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Content after restart: %v", err)
	}
	if fields["content"] != "Hi" {
		t.Fatalf("rebuilt content = %q, want Hi", fields["content"])
	}
}

func TestDocumentsIsolated(t *testing.T) {
	logs := make(map[string]*oplog.MemoryLog)
	svc := newMemService(logs)
	ctx := context.Background()

	_ = svc.Submit(ctx, insertOp("op-1", "doc-1", "A", "1.0.client-a", time.Now()))
	_ = svc.Submit(ctx, insertOp("op-2", "doc-2", "B", "1.0.client-a", time.Now()))

	f1, _, _ := svc.Content(ctx, "doc-1")
	f2, _, _ := svc.Content(ctx, "doc-2")
	if f1["content"] != "A" || f2["content"] != "B" {
		t.Fatalf("cross-document leak: doc-1=%q doc-2=%q", f1["content"], f2["content"])
	}
}

func TestSaveSnapshotsWithoutStore(t *testing.T) {
	svc := newMemService(make(map[string]*oplog.MemoryLog))
	if err := svc.SaveSnapshots(context.Background(), "doc-1"); err == nil {
		t.Fatal("SaveSnapshots without a store succeeded")
	}
}
