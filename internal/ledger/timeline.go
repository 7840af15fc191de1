package ledger

// Timeline is the undo/redo controller: a current snapshot plus two stacks
// of prior snapshots. The past stack holds older states (oldest first), the
// future stack holds states that were undone (oldest undo first).
//
// Timeline is not safe for concurrent use; callers serialize access.
type Timeline struct {
	current  History
	past     []History
	future   []History
	revision int64
}

// NewTimeline starts a timeline at the given snapshot with empty stacks.
// Stacks live for one process lifetime; they are never persisted.
func NewTimeline(initial History) *Timeline {
	return &Timeline{current: initial}
}

// Current returns the current snapshot.
func (t *Timeline) Current() History { return t.current }

// Revision increments on every state change (mutate, undo, redo, reset).
func (t *Timeline) Revision() int64 { return t.revision }

// CanUndo reports whether an undo would change state.
func (t *Timeline) CanUndo() bool { return len(t.past) > 0 }

// CanRedo reports whether a redo would change state.
func (t *Timeline) CanRedo() bool { return len(t.future) > 0 }

// Apply records the current snapshot on the past stack, drops the entire
// future stack (a new edit invalidates any redo branch) and installs the
// mutated snapshot as current.
func (t *Timeline) Apply(mutate func(History) History) History {
	t.past = append(t.past, t.current)
	t.future = nil
	t.current = mutate(t.current)
	t.revision++
	return t.current
}

// Undo steps back to the most recent past snapshot, pushing the current one
// onto the front of the future stack. Returns false without changing state
// when there is nothing to undo.
func (t *Timeline) Undo() (History, bool) {
	if len(t.past) == 0 {
		return t.current, false
	}
	prev := t.past[len(t.past)-1]
	t.past = t.past[:len(t.past)-1]
	t.future = append([]History{t.current}, t.future...)
	t.current = prev
	t.revision++
	return t.current, true
}

// Redo re-applies the oldest undone snapshot, pushing the current one onto
// the past stack. Returns false without changing state when there is
// nothing to redo.
func (t *Timeline) Redo() (History, bool) {
	if len(t.future) == 0 {
		return t.current, false
	}
	next := t.future[0]
	t.future = t.future[1:]
	t.past = append(t.past, t.current)
	t.current = next
	t.revision++
	return t.current, true
}

// Reset replaces the current snapshot without recording it on either stack.
// Used when adopting a remote snapshot; an undo afterwards restores the
// state from before the adoption.
func (t *Timeline) Reset(h History) {
	t.current = h
	t.revision++
}
