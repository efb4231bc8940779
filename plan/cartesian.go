package plan

// cartesianAborted is not referenced; lazyCartesian reports an
// exceeded cap through its aborted result.
var cartesianAborted = struct{}{}

// lazyCartesian calls yield once per combination of sets, in declared
// column order, stopping early the moment yield itself returns false
// or the running combination count exceeds limit; aborted is true only
// in the second case. It never builds the full product slice.
func lazyCartesian(sets [][]any, limit int, yield func(combo []any) bool) (count int, aborted bool) {
	combo := make([]any, len(sets))
	var rec func(i int) bool
	rec = func(i int) bool {
		if i == len(sets) {
			count++
			if count > limit {
				aborted = true
				return false
			}
			return yield(combo)
		}
		for _, v := range sets[i] {
			combo[i] = v
			if !rec(i + 1) {
				return false
			}
		}
		return true
	}
	rec(0)
	return count, aborted
}
