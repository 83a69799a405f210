package changes

// DefaultProximity is the largest line distance at which a deletion and the
// addition right after it are treated as one modification.
const DefaultProximity = 2

// Merge collapses each deletion that is immediately followed by an addition
// within DefaultProximity lines into a single modification.
func Merge(list []AtomicChange) []AtomicChange {
	return MergeWithin(list, DefaultProximity)
}

// MergeWithin is Merge with an explicit proximity threshold. The scan is
// greedy and never backtracks: a deletion pairs with at most the one addition
// that directly follows it.
func MergeWithin(list []AtomicChange, proximity int) []AtomicChange {
	if len(list) == 0 {
		return list
	}

	merged := make([]AtomicChange, 0, len(list))
	for i := 0; i < len(list); i++ {
		cur := list[i]
		if i+1 < len(list) && pairs(cur, list[i+1], proximity) {
			next := list[i+1]
			merged = append(merged, Modification(
				*cur.OldLine, cur.Old(),
				*next.NewLine, next.New(),
				cur.Context,
			))
			i++
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

func pairs(del, add AtomicChange, proximity int) bool {
	if del.Kind != KindDeletion || add.Kind != KindAddition {
		return false
	}
	if del.OldLine == nil || add.NewLine == nil {
		return false
	}
	d := *del.OldLine - *add.NewLine
	if d < 0 {
		d = -d
	}
	return d <= proximity
}
