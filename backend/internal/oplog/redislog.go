package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

// RedisLog 用一条 Redis Stream 承载一篇文档的操作日志。
// XAdd 追加、XRange 全量读、XRead 阻塞订阅。
type RedisLog struct {
	rdb   redis.UniversalClient
	docID string

	mu     sync.Mutex
	lastID string // 订阅的续读位置；没做过 LoadAll 就从 "$" 开始只收新条目
}

func NewRedisLog(rdb redis.UniversalClient, docID string) *RedisLog {
	return &RedisLog{rdb: rdb, docID: docID, lastID: "$"}
}

func (l *RedisLog) Append(ctx context.Context, op engine.Operation) error {
	b, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal op %s: %w", op.ID, err)
	}
	return l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(l.docID),
		Values: map[string]interface{}{"op": b},
	}).Err()
}

func (l *RedisLog) LoadAll(ctx context.Context) ([]replication.Entry, error) {
	msgs, err := l.rdb.XRange(ctx, streamKey(l.docID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", streamKey(l.docID), err)
	}

	entries := make([]replication.Entry, 0, len(msgs))
	for _, msg := range msgs {
		e, err := decodeEntry(msg)
		if err != nil {
			// 单条坏数据不让整个历史读失败，跳过并上报。
			log.Printf("skip bad log entry %s: %v", msg.ID, err)
			continue
		}
		entries = append(entries, e)
	}
	if len(msgs) > 0 {
		l.mu.Lock()
		l.lastID = msgs[len(msgs)-1].ID
		l.mu.Unlock()
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Op.CreatedAt.Before(entries[j].Op.CreatedAt)
	})
	return entries, nil
}

// Subscribe 后台 goroutine 反复 XRead 续读新条目，cancel 取消。
func (l *RedisLog) Subscribe(ctx context.Context, deliver func(replication.Entry)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			l.mu.Lock()
			last := l.lastID
			l.mu.Unlock()

			res, err := l.rdb.XRead(subCtx, &redis.XReadArgs{
				Streams: []string{streamKey(l.docID), last},
				Block:   5 * time.Second,
			}).Result()
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue // 阻塞超时，没有新条目
				}
				log.Printf("xread %s: %v", streamKey(l.docID), err)
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range res {
				for _, msg := range stream.Messages {
					l.mu.Lock()
					l.lastID = msg.ID
					l.mu.Unlock()
					e, err := decodeEntry(msg)
					if err != nil {
						log.Printf("skip bad log entry %s: %v", msg.ID, err)
						continue
					}
					deliver(e)
				}
			}
		}
	}()

	return cancel, nil
}

func decodeEntry(msg redis.XMessage) (replication.Entry, error) {
	raw, ok := msg.Values["op"].(string)
	if !ok {
		return replication.Entry{}, errors.New("missing op field")
	}
	var op engine.Operation
	if err := json.Unmarshal([]byte(raw), &op); err != nil {
		return replication.Entry{}, err
	}
	return replication.Entry{LogID: msg.ID, Op: op}, nil
}
