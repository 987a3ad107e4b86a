// Package oplog 提供操作日志的几个后端：
// 内存版（单进程/测试）、Redis Stream 版（跨进程共享）、
// 以及把已应用操作扇出到 Kafka 的派发器。
package oplog

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

// MemoryLog 进程内的追加日志。订阅者在 Append 的调用 goroutine 上同步收到条目。
type MemoryLog struct {
	mu      sync.Mutex
	entries []replication.Entry
	seq     int
	subs    map[int]func(replication.Entry)
	nextSub int
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{subs: make(map[int]func(replication.Entry))}
}

func (l *MemoryLog) Append(ctx context.Context, op engine.Operation) error {
	l.mu.Lock()
	l.seq++
	e := replication.Entry{LogID: "mem-" + strconv.Itoa(l.seq), Op: op}
	l.entries = append(l.entries, e)
	subs := make([]func(replication.Entry), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
	return nil
}

// LoadAll 返回全部历史，按操作时间戳递增排序（到达顺序只做并列时的决胜）。
func (l *MemoryLog) LoadAll(ctx context.Context) ([]replication.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]replication.Entry, len(l.entries))
	copy(out, l.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Op.CreatedAt.Before(out[j].Op.CreatedAt)
	})
	return out, nil
}

// Subscribe 持锁先把已有条目重放给新订阅者，再注册。
// 重放和注册在同一次持锁里完成，LoadAll 和 Subscribe 之间追加的条目
// 不会被漏掉；和历史重叠的部分由消费方按操作 ID 去重。
func (l *MemoryLog) Subscribe(ctx context.Context, deliver func(replication.Entry)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		deliver(e)
	}
	id := l.nextSub
	l.nextSub++
	l.subs[id] = deliver
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}, nil
}

// Len 日志长度（测试钩子）。
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
