package domain

// PendingChangeSet is the local buffer of unflushed edits.
// Repeated edits to one field collapse into a single entry.
type PendingChangeSet map[string]any

// Clone returns an independent copy.
func (c PendingChangeSet) Clone() PendingChangeSet {
	out := make(PendingChangeSet, len(c))
	for k, v := range c {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out[k] = v
	}
	return out
}

// Fields returns the change set as a plain field map for the wire.
func (c PendingChangeSet) Fields() map[string]any {
	return map[string]any(c.Clone())
}
