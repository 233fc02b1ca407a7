package spesh

// This file implements the InlineTable component: read-only per-candidate
// descriptors of regions of the specialized bytecode that correspond to
// inlined callees. Like DeoptTable, it is immutable after publication.
//
// Invariant: inline regions are non-overlapping and sorted at a given
// nesting level, but multiple InlineDescriptors may cover the same offset
// at different nesting levels -- that's how multi-level inlining is
// represented. inlinesAt preserves the stored iteration order, which is
// required for correct uninlining: descriptors are stored innermost-scope
// first, so for any matching offset the descriptor for the currently
// executing, most-deeply-nested inline is encountered before the
// descriptors of the scopes that inline is nested inside of. That first
// match is the frame a resumed interpreter must land in; later matches
// splice in progressively outer frames, ending with the outermost inline
// directly below the candidate's own frame.

// HasInlines reports whether the candidate has any inlined regions at all.
func (c *Candidate) HasInlines() bool {
	return len(c.Inlines) > 0
}

// inlineIterator walks a Candidate's InlineTable looking for descriptors
// whose range contains a given specialized offset, in stored order.
type inlineIterator struct {
	inlines []InlineDescriptor
	offset  uint32
	pos     int
}

func (c *Candidate) inlinesAt(offset uint32) *inlineIterator {
	return &inlineIterator{inlines: c.Inlines, offset: offset}
}

// next returns the next matching descriptor and true, or nil and false when
// exhausted.
func (it *inlineIterator) next() (*InlineDescriptor, bool) {
	for it.pos < len(it.inlines) {
		d := &it.inlines[it.pos]
		it.pos++
		if d.Contains(it.offset) {
			return d, true
		}
	}
	return nil, false
}
