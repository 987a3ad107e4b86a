package engine

import "time"

// OpKind 操作类型标签。insert / delete 共用一个 Operation 结构，
// 按 Kind 做穷举分支，不允许出现第三种取值。
type OpKind string

const (
	KindInsert OpKind = "insert"
	KindDelete OpKind = "delete"
)

// Character 是字段里的一个字符。
// 删除只打墓碑（Deleted=true），字符一旦创建就永远不会被物理移除，
// 这样乱序到达的删除操作仍然能找到它引用的字符。
type Character struct {
	ID             string `json:"id"`
	Value          string `json:"value"`
	Position       string `json:"position"`
	OriginClientID string `json:"originClientId"`
	Deleted        bool   `json:"deleted"`
}

// Operation 是在客户端之间复制的最小单位。
// ID 全局唯一，同时也是去重键：同一个 ID 应用第二次必须是 no-op。
// 删除操作除了 CharID 还带上原始的 Value/Position，
// 这样即使对应的插入还没到达，接收方也能先合成字符再打墓碑。
type Operation struct {
	ID             string    `json:"id"`
	Kind           OpKind    `json:"kind"`
	Field          string    `json:"field"`
	Position       string    `json:"position"`
	Value          string    `json:"value,omitempty"`
	CharID         string    `json:"charId,omitempty"`
	OriginClientID string    `json:"originClientId"`
	DocumentID     string    `json:"documentId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// FieldStats 单个字段的统计，只是派生的只读视图。
type FieldStats struct {
	Inserts    int `json:"inserts"`
	Deletes    int `json:"deletes"`
	Live       int `json:"live"`
	Tombstoned int `json:"tombstoned"`
}

// DocumentStats 整篇文档的统计。
type DocumentStats struct {
	Fields map[string]FieldStats `json:"fields"`
	Total  FieldStats            `json:"total"`
}
