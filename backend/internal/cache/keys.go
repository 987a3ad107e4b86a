package cache

import "fmt"

// 键语义：
// - roomKey(docID):           房间候选成员集合（Set<userId>）
// - recordKey(docID,userID):  成员的 presence 记录（String JSON，带 TTL）
//   记录键的 TTL 就是新鲜度窗口：心跳停了键自然过期，成员就从在线名单里消失。

const (
	keyRoomFmt   = "presence:room:%s"      // Set<userId>
	keyRecordFmt = "presence:record:%s:%s" // String JSON with TTL
)

func roomKey(docID string) string                  { return fmt.Sprintf(keyRoomFmt, docID) }
func recordKey(docID string, userID string) string { return fmt.Sprintf(keyRecordFmt, docID, userID) }
