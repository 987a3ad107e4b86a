package undo

import (
	"fmt"

	"github.com/sahilsaleem2907/flowly-task/backend/internal/engine"
)

// Describe 生成一条人类可读的批次摘要，给历史面板用。
// 纯函数，不碰任何栈状态，对正确性没有影响。
func Describe(s *Step) string {
	if s == nil || len(s.Operations) == 0 {
		return "empty step"
	}

	inserts, deletes := 0, 0
	var text string
	for _, op := range s.Operations {
		switch op.Kind {
		case engine.KindInsert:
			inserts++
			text += op.Value
		case engine.KindDelete:
			deletes++
		}
	}

	switch {
	case deletes == 0 && inserts > 0:
		return fmt.Sprintf("insert %q in %s", truncate(text, 20), s.Field)
	case inserts == 0 && deletes > 0:
		return fmt.Sprintf("delete %d chars in %s", deletes, s.Field)
	default:
		return fmt.Sprintf("edit %d ops in %s", len(s.Operations), s.Field)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
