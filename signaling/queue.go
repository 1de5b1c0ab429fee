package signaling

import "github.com/jiconf/focus/source"

// AddRemoveQueue is the merging-queue variant from spec.md §4.2:
// consecutive enqueued operations of the same kind collapse into one entry;
// an Add followed by a Remove (or vice versa) stays as two distinct
// entries.
type AddRemoveQueue struct {
	entries []Op
}

// Enqueue appends op, merging it into the last entry if both are the same
// kind (Add/Remove).
func (q *AddRemoveQueue) Enqueue(op Op) {
	if n := len(q.entries); n > 0 && q.entries[n-1].Add == op.Add {
		q.entries[n-1].Delta = mergeOpMaps(q.entries[n-1].Delta, op.Delta, op.Add)
		return
	}
	q.entries = append(q.entries, op)
}

// Drain returns and clears all queued entries, in enqueue order.
func (q *AddRemoveQueue) Drain() []Op {
	out := q.entries
	q.entries = nil
	return out
}

// Len reports the number of queued entries.
func (q *AddRemoveQueue) Len() int { return len(q.entries) }

func mergeOpMaps(a, b source.ConferenceSourceMap, add bool) source.ConferenceSourceMap {
	out := a.Clone()
	for id, set := range b {
		if add {
			out[id] = out[id].Union(set)
			continue
		}
		remaining := out[id].Diff(set)
		if remaining.Empty() {
			delete(out, id)
		} else {
			out[id] = remaining
		}
	}
	return out
}
