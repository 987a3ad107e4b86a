package position

import "testing"

func TestGenerate_Root(t *testing.T) {
	got := Generate("", "", "client-a")
	if got != "1.0.client-a" {
		t.Fatalf("Generate(\"\", \"\") = %q, want %q", got, "1.0.client-a")
	}
}

func TestGenerate_AppendAndPrepend(t *testing.T) {
	root := Generate("", "", "a")

	after := Generate(root, "", "a")
	if Compare(root, after) >= 0 {
		t.Fatalf("append: Compare(%q, %q) = %d, want < 0", root, after, Compare(root, after))
	}

	before := Generate("", root, "a")
	if Compare(before, root) >= 0 {
		t.Fatalf("prepend: Compare(%q, %q) = %d, want < 0", before, root, Compare(before, root))
	}
}

func TestGenerate_Midpoint(t *testing.T) {
	lo := Generate("", "", "a")
	hi := Generate(lo, "", "a")

	mid := Generate(lo, hi, "a")
	if Compare(lo, mid) >= 0 || Compare(mid, hi) >= 0 {
		t.Fatalf("midpoint %q not strictly between %q and %q", mid, lo, hi)
	}
}

// 同一缝隙反复插入：每次的新键都要严格落在上一个键和右边界之间。
func TestGenerate_RepeatedSameGap(t *testing.T) {
	lo := Generate("", "", "a")
	hi := Generate(lo, "", "a")

	prev := lo
	for i := 0; i < 30; i++ {
		mid := Generate(prev, hi, "a")
		if Compare(prev, mid) >= 0 || Compare(mid, hi) >= 0 {
			t.Fatalf("round %d: %q not strictly between %q and %q", i, mid, prev, hi)
		}
		prev = mid
	}
}

// 数值相同的键靠 clientID 决胜，两个客户端排序结果一致。
func TestCompare_ClientTieBreak(t *testing.T) {
	a := Generate("", "", "alpha")
	b := Generate("", "", "beta")
	if Compare(a, b) != -1 {
		t.Fatalf("Compare(%q, %q) = %d, want -1", a, b, Compare(a, b))
	}
	if Compare(b, a) != 1 {
		t.Fatalf("Compare(%q, %q) = %d, want 1", b, a, Compare(b, a))
	}
	if Compare(a, a) != 0 {
		t.Fatalf("Compare(%q, %q) = %d, want 0", a, a, Compare(a, a))
	}
}

// 解析不出数值的历史格式键退化成字符串比较，依然是全序。
func TestCompare_RawFallback(t *testing.T) {
	if Compare("zz-legacy", "aa-legacy") != 1 {
		t.Fatalf("Compare fallback = %d, want 1", Compare("zz-legacy", "aa-legacy"))
	}
	if Compare("aa-legacy", "aa-legacy") != 0 {
		t.Fatalf("Compare fallback equal = %d, want 0", Compare("aa-legacy", "aa-legacy"))
	}
}

func TestCompare_NumericBeforeLexical(t *testing.T) {
	// "2.0.x" 与 "10.0.x"：按数值比较 2 < 10，不能按字符串比较。
	if Compare("2.0.x", "10.0.x") != -1 {
		t.Fatalf("Compare(2, 10) = %d, want -1", Compare("2.0.x", "10.0.x"))
	}
}
