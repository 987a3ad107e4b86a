package engine

import (
	"fmt"
	"sort"
)

// DefaultFields 一篇文档的四个逻辑字段。
var DefaultFields = []string{"content", "title", "description", "tags"}

// MultiFieldEngine 按字段名持有一组 FieldEngine，自身没有独立状态。
// 注册表在构造时定死，之后只读，所以这里不需要再加锁。
type MultiFieldEngine struct {
	documentID string
	clientID   string
	fields     map[string]*FieldEngine
}

// NewMultiFieldEngine 为 fields 里的每个字段建一个引擎。
// fields 传 nil 时使用 DefaultFields。
func NewMultiFieldEngine(documentID, clientID string, fields []string) *MultiFieldEngine {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	m := &MultiFieldEngine{
		documentID: documentID,
		clientID:   clientID,
		fields:     make(map[string]*FieldEngine, len(fields)),
	}
	for _, f := range fields {
		m.fields[f] = NewFieldEngine(f, documentID, clientID)
	}
	return m
}

func (m *MultiFieldEngine) DocumentID() string { return m.documentID }
func (m *MultiFieldEngine) ClientID() string   { return m.clientID }

// Fields 返回字段名列表（排好序，方便展示和测试）。
func (m *MultiFieldEngine) Fields() []string {
	names := make([]string, 0, len(m.fields))
	for name := range m.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsertChar 路由到对应字段的引擎。字段不存在返回错误；
// 索引越界时引擎返回 nil 操作，这里原样透传（nil, nil）。
func (m *MultiFieldEngine) InsertChar(field, value string, visibleIndex int) (*Operation, error) {
	fe, ok := m.fields[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	return fe.InsertChar(value, visibleIndex), nil
}

// DeleteChar 同 InsertChar。
func (m *MultiFieldEngine) DeleteChar(field string, visibleIndex int) (*Operation, error) {
	fe, ok := m.fields[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	return fe.DeleteChar(visibleIndex), nil
}

// Apply 按 op.Field 路由。未知字段必须上报错误，不允许静默吞掉，
// 更不允许并进别的字段。
func (m *MultiFieldEngine) Apply(op Operation) error {
	fe, ok := m.fields[op.Field]
	if !ok {
		return fmt.Errorf("apply: unknown field %q (op=%s)", op.Field, op.ID)
	}
	fe.Apply(op)
	return nil
}

// VisibleContent 读取单个字段的可见内容。
func (m *MultiFieldEngine) VisibleContent(field string) (string, error) {
	fe, ok := m.fields[field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", field)
	}
	return fe.VisibleContent(), nil
}

// Rebuild 把所有字段的操作日志重放一遍。
func (m *MultiFieldEngine) Rebuild() {
	for _, fe := range m.fields {
		fe.Rebuild()
	}
}

// Stats 汇总各字段的统计。派生视图，不是权威状态。
func (m *MultiFieldEngine) Stats() DocumentStats {
	out := DocumentStats{Fields: make(map[string]FieldStats, len(m.fields))}
	for name, fe := range m.fields {
		s := fe.Stats()
		out.Fields[name] = s
		out.Total.Inserts += s.Inserts
		out.Total.Deletes += s.Deletes
		out.Total.Live += s.Live
		out.Total.Tombstoned += s.Tombstoned
	}
	return out
}
