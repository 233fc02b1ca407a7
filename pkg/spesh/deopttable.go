package spesh

// This file implements the DeoptTable component: a read-only, per-candidate
// mapping between specialized-bytecode offsets and generic-bytecode
// offsets. A deopt index names a (generic_offset, specialized_offset) pair.
// The table is immutable once a Candidate is published, so it may be read
// from any thread without synchronization (see SPEC_FULL.md §5).

// GenericOffset returns the generic-bytecode offset for deopt index idx.
func (c *Candidate) GenericOffset(idx uint32) uint32 {
	return c.Deopts[2*idx]
}

// SpecializedOffset returns the specialized-bytecode offset for deopt
// index idx.
func (c *Candidate) SpecializedOffset(idx uint32) uint32 {
	return c.Deopts[2*idx+1]
}

// FindDeoptIdxBySpecializedOffset scans the deopt table for an entry whose
// specialized-bytecode offset equals offset, returning its index, or -1 if
// none matches. This is the non-JIT branch of the inactive-frame lookup in
// §4.3: for a frame sitting in the caller chain, offset is the frame's
// ReturnAddress, which is already a byte offset into the specialized bytecode.
func (c *Candidate) FindDeoptIdxBySpecializedOffset(offset uint32) int32 {
	n := c.NumDeopts()
	for i := 0; i < n; i++ {
		if c.Deopts[2*i+1] == offset {
			return int32(i)
		}
	}
	return -1
}
