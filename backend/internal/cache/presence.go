// Package cache 基于 Redis 的 presence 存储。
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/replication"
)

// RedisPresence 实现 replication.PresenceStore。
// 房间集合记录谁来过，带 TTL 的记录键决定谁还在线：
// 记录键存活（心跳在续）就算在线，过期就自动掉出名单。
type RedisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

// Set 覆盖写一条 presence 记录。
func (p *RedisPresence) Set(ctx context.Context, docID string, rec replication.PresenceRecord, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := p.rdb.Pipeline()
	// 为房间添加成员
	pipe.SAdd(ctx, roomKey(docID), rec.UserID)
	// 覆盖写记录，TTL 即新鲜度窗口
	pipe.Set(ctx, recordKey(docID, rec.UserID), b, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// List 返回房间里记录键尚未过期的成员。
func (p *RedisPresence) List(ctx context.Context, docID string) ([]replication.PresenceRecord, error) {
	userIDs, err := p.rdb.SMembers(ctx, roomKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	// 管道批量取记录；Exec 在任何键缺失时会带回 redis.Nil，逐条判断。
	cmds := make([]*redis.StringCmd, 0, len(userIDs))
	pipe := p.rdb.Pipeline()
	for _, uid := range userIDs {
		cmds = append(cmds, pipe.Get(ctx, recordKey(docID, uid)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]replication.PresenceRecord, 0, len(userIDs))
	for i, cmd := range cmds {
		b, err := cmd.Bytes()
		if err != nil {
			continue // 记录过期：这个成员已经掉线
		}
		var rec replication.PresenceRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			log.Printf("bad presence record (doc=%s user=%s): %v", docID, userIDs[i], err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
