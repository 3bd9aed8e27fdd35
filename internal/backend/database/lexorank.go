package database

// Ranks are variable-length strings over '0'..'z' compared byte-wise, so a
// new rank can always be found between two neighbours without renumbering.
const (
	minRankChar = '0'
	maxRankChar = 'z'
)

// Next returns a rank sorting after prev. An empty prev yields the first rank.
func Next(prev string) string {
	return Between(prev, "")
}

// IsBetween reports whether rank lies strictly between prev and next. Empty
// bounds are open; with both bounds open no rank qualifies.
func IsBetween(prev, rank, next string) bool {
	switch {
	case prev == "" && next == "":
		return false
	case prev == "":
		return rank < next
	case next == "":
		return prev < rank
	default:
		return prev < rank && rank < next
	}
}

// Between returns a rank strictly between prev and next. An empty next is
// unbounded. Inverted bounds are treated as if next were unbounded.
func Between(prev, next string) string {
	if next != "" && prev >= next {
		next = ""
	}

	out := make([]byte, 0, len(prev)+1)
	for i := 0; ; i++ {
		lo := byte(minRankChar)
		if i < len(prev) {
			lo = prev[i]
		}
		hi := byte(maxRankChar)
		if next != "" && i < len(next) {
			hi = next[i]
		}

		if lo+1 < hi {
			return string(append(out, lo+(hi-lo)/2))
		}
		out = append(out, lo)
		if lo < hi && next != "" {
			// the remaining positions only need to exceed prev
			next = ""
		}
	}
}

// Reorder computes ranks for ids in the requested order, returning only the
// ids whose stored rank no longer fits between its new neighbours.
func Reorder(existing map[string]string, order []string) map[string]string {
	updates := make(map[string]string, len(order))
	rankOf := func(idx int) string {
		if idx < 0 || idx >= len(order) {
			return ""
		}
		if r, ok := updates[order[idx]]; ok {
			return r
		}
		return existing[order[idx]]
	}

	for i, id := range order {
		prev, next := rankOf(i-1), rankOf(i+1)
		if cur := existing[id]; cur != "" && IsBetween(prev, cur, next) {
			continue
		}
		updates[id] = Between(prev, next)
	}
	return updates
}
