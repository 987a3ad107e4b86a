// Package relay 中继服务端：代浏览器客户端持有共享日志，
// 服务端自己也维护一份引擎状态，用来应答全量加载和落快照。
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/oplog"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/store"
)

// serverClientID 服务端引擎只应用远端操作，从不生成，
// 这个 clientID 不会出现在任何操作上。
const serverClientID = "relay-server"

type docState struct {
	eng *engine.MultiFieldEngine
	log replication.OpLog
}

// Service 持有所有文档的服务端状态。
// newLog 按文档构造日志后端；snapshots/dispatcher 可以为 nil（对应能力关闭）。
type Service struct {
	mu   sync.RWMutex
	docs map[string]*docState

	newLog     func(docID string) replication.OpLog
	snapshots  *store.SnapshotStore
	dispatcher *oplog.KafkaDispatcher
}

func NewService(newLog func(string) replication.OpLog, snapshots *store.SnapshotStore, dispatcher *oplog.KafkaDispatcher) *Service {
	return &Service{
		docs:       make(map[string]*docState),
		newLog:     newLog,
		snapshots:  snapshots,
		dispatcher: dispatcher,
	}
}

// getOrCreateDoc 第一次见到的文档先把历史日志重放进服务端引擎。
func (s *Service) getOrCreateDoc(ctx context.Context, docID string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds != nil {
		return ds, nil
	}

	ds = &docState{
		eng: engine.NewMultiFieldEngine(docID, serverClientID, nil),
		log: s.newLog(docID),
	}
	entries, err := ds.log.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load doc %s: %w", docID, err)
	}
	for _, e := range entries {
		if err := ds.eng.Apply(e.Op); err != nil {
			return nil, err
		}
	}
	s.docs[docID] = ds
	return ds, nil
}

// Submit 应用一个客户端提交的操作：进服务端引擎（按 ID 去重）、
// 追加到共享日志、扇出到 Kafka。
func (s *Service) Submit(ctx context.Context, op engine.Operation) error {
	if op.DocumentID == "" {
		return errors.New("MISSING_DOC_ID")
	}
	ds, err := s.getOrCreateDoc(ctx, op.DocumentID)
	if err != nil {
		return err
	}
	if err := ds.eng.Apply(op); err != nil {
		return err
	}
	if err := ds.log.Append(ctx, op); err != nil {
		return fmt.Errorf("append op %s: %w", op.ID, err)
	}

	if s.dispatcher != nil {
		evtCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		// 扇出降级不算提交失败
		_ = s.dispatcher.Enqueue(evtCtx, oplog.OpEvent{
			EventType:   "OP_APPLIED",
			DocID:       op.DocumentID,
			Op:          op,
			PublishedAt: time.Now(),
		})
	}
	return nil
}

// Content 返回每个字段的可见内容和统计。
func (s *Service) Content(ctx context.Context, docID string) (map[string]string, engine.DocumentStats, error) {
	ds, err := s.getOrCreateDoc(ctx, docID)
	if err != nil {
		return nil, engine.DocumentStats{}, err
	}
	fields := make(map[string]string)
	for _, f := range ds.eng.Fields() {
		content, err := ds.eng.VisibleContent(f)
		if err != nil {
			return nil, engine.DocumentStats{}, err
		}
		fields[f] = content
	}
	return fields, ds.eng.Stats(), nil
}

// SaveSnapshots 把每个字段当前的可见内容落到 MySQL。
// 版本号取该字段已应用的操作数，单调递增，同版本重复保存幂等。
func (s *Service) SaveSnapshots(ctx context.Context, docID string) error {
	if s.snapshots == nil {
		return errors.New("snapshot store not configured")
	}
	ds, err := s.getOrCreateDoc(ctx, docID)
	if err != nil {
		return err
	}
	stats := ds.eng.Stats()
	for _, f := range ds.eng.Fields() {
		content, err := ds.eng.VisibleContent(f)
		if err != nil {
			return err
		}
		fs := stats.Fields[f]
		revision := uint64(fs.Inserts + fs.Deletes)
		if err := s.snapshots.Save(ctx, docID, f, revision, content); err != nil {
			return err
		}
	}
	return nil
}
