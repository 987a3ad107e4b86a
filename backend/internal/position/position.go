// Package position 实现分数式位置键（fractional position）。
// 任意两个已有键之间都能再生成一个新键，插入字符时不需要给兄弟节点重新编号。
package position

import (
	"math"
	"strconv"
	"strings"
)

// 键的格式："<整数部分>.<小数部分>.<clientID>"
// 数值部分决定排序，clientID 作为并发生成时的决胜项：
// 两个客户端在同一缝隙各自生成键，数值可能相同，但 clientID 不同，排序仍然一致。
const (
	rootInteger = 1
	sep         = "."
)

// Root 返回空字段的第一个键。
func Root(clientID string) string {
	return strconv.Itoa(rootInteger) + sep + "0" + sep + clientID
}

// Generate 在 prev 和 next 之间生成一个新键。prev/next 传空串表示该侧没有邻居。
//   - 两侧都空：根键
//   - 只有 prev：整数部分 +1，小数部分清零（追加到末尾）
//   - 只有 next：整数部分 -1，小数部分清零（插到最前）
//   - 两侧都有：取两个数值的中点
func Generate(prev, next, clientID string) string {
	switch {
	case prev == "" && next == "":
		return Root(clientID)
	case next == "":
		n := numericPart(prev)
		return formatInt(int64(math.Floor(n))+1, clientID)
	case prev == "":
		n := numericPart(next)
		return formatInt(int64(math.Floor(n))-1, clientID)
	default:
		lo := numericPart(prev)
		hi := numericPart(next)
		// 浮点中点：同一缝隙反复插入会向边界收敛，最终耗尽精度。
		// 长寿命文档应换成任意精度的数位序列键，这里保留数值中点的实现上限。
		mid := lo + (hi-lo)/2
		return formatFloat(mid, clientID)
	}
}

// Compare 比较两个键，返回 -1/0/1。
// 先比数值部分；数值相同再按剩余组件做字典序；
// 两边都解析不出数值时退化为原始字符串比较，保证历史格式的键之间也有全序。
func Compare(a, b string) int {
	na, oka := parseNumeric(a)
	nb, okb := parseNumeric(b)
	if !oka || !okb {
		return strings.Compare(a, b)
	}
	if na < nb {
		return -1
	}
	if na > nb {
		return 1
	}
	return strings.Compare(tail(a), tail(b))
}

// numericPart 解析失败时返回 0，只给 Generate 内部使用；
// Generate 的输入必然是本包产出的键。
func numericPart(key string) float64 {
	n, _ := parseNumeric(key)
	return n
}

// parseNumeric 取键的前两段拼成浮点数值。
func parseNumeric(key string) (float64, bool) {
	parts := strings.SplitN(key, sep, 3)
	if len(parts) < 2 {
		n, err := strconv.ParseFloat(key, 64)
		return n, err == nil
	}
	n, err := strconv.ParseFloat(parts[0]+sep+parts[1], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// tail 返回数值部分之后的剩余组件（通常就是 clientID）。
func tail(key string) string {
	parts := strings.SplitN(key, sep, 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func formatInt(n int64, clientID string) string {
	return strconv.FormatInt(n, 10) + sep + "0" + sep + clientID
}

func formatFloat(n float64, clientID string) string {
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if !strings.Contains(s, sep) {
		s += sep + "0"
	}
	return s + sep + clientID
}
