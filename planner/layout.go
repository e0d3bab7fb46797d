// CLAUDE:SUMMARY Layout enumeration: every anchor, prefix/tail split and chain order.
package planner

// layout is one arrangement of the inputs: the anchor at offset 0, a
// prefix chain inside the anchor's prefix region and a tail chain after it.
type layout struct {
	anchor int
	prefix []int
	tail   []int
}

// seq flattens the layout for the declared-order tie-break.
func (l layout) seq() []int {
	out := make([]int, 0, 1+len(l.prefix)+1+len(l.tail))
	out = append(out, l.anchor)
	out = append(out, l.prefix...)
	out = append(out, -1)
	return append(out, l.tail...)
}

func lessSeq(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// layouts enumerates every layout of n inputs.
func layouts(n int) []layout {
	var out []layout
	for a := 0; a < n; a++ {
		rest := make([]int, 0, n-1)
		for i := 0; i < n; i++ {
			if i != a {
				rest = append(rest, i)
			}
		}
		for mask := 0; mask < 1<<len(rest); mask++ {
			var pre, tail []int
			for j, r := range rest {
				if mask&(1<<j) != 0 {
					pre = append(pre, r)
				} else {
					tail = append(tail, r)
				}
			}
			for _, pp := range permutations(pre) {
				for _, tp := range permutations(tail) {
					out = append(out, layout{anchor: a, prefix: pp, tail: tp})
				}
			}
		}
	}
	return out
}

// permutations returns every ordering of s in lexicographic order when s
// is sorted.
func permutations(s []int) [][]int {
	if len(s) <= 1 {
		return [][]int{append([]int(nil), s...)}
	}
	var out [][]int
	for i := range s {
		rest := make([]int, 0, len(s)-1)
		rest = append(rest, s[:i]...)
		rest = append(rest, s[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{s[i]}, p...))
		}
	}
	return out
}
