package spesh

import "github.com/scovit/spesh/internal/logflags"

// FrameReconstructor rebuilds the 0..N uninlined frames a single
// specialized frame's InlineTable implies are "really" running at a given
// offset, splicing them into the caller chain in place of the flattened
// inline. This is the component that lets the interpreter resume as if no
// specialization or inlining had ever happened.
type FrameReconstructor struct {
	Allocator FrameAllocator
}

// Uninline is the core of FrameReconstructor. outer is the frame running
// specialized code; offset is the current specialized-bytecode position
// used to find matching inline descriptors; deoptOffset is the generic
// bytecode offset execution must resume at once unwound past outer (for the
// active-frame / deopt-one case, this becomes the interpreter's new PC; for
// the inactive-frame / deopt-all case, it becomes the first-matched
// (innermost) uninlined frame's return address, or outer's when no inline
// matches). callee, if non-nil, is the child
// frame whose Caller pointer must be rewired -- its presence distinguishes
// the deopt-all path (outer is not the active frame) from the deopt-one
// path (outer is becoming, or already is, the active frame).
//
// Every frame Uninline allocates is rooted by being assigned into a local
// variable that stays live for the rest of the call and, as soon as it's
// constructed, into another frame's Caller field -- mirroring the
// MVMROOT-guarded allocations in the original (outer, callee, the previous
// uninlined frame and the invokee static frame all have to survive any GC
// that a CreateForDeopt call might trigger).
//
// The first matching descriptor's frame is the one the interpreter resumes
// in (or, for the deopt-all path, the one spliced in directly below callee):
// since InlineDescriptors are stored innermost-scope-first (see
// inlinetable.go), that first match is always the currently-executing,
// most-deeply-nested inline -- exactly the frame a resumed interpreter must
// land in. Each subsequent match splices in one level further out, ending
// with the outermost inline, whose frame becomes outer's direct callee.
func (r *FrameReconstructor) Uninline(tc *ThreadContext, outer *Frame, cand *Candidate, offset, deoptOffset uint32, callee *Frame) {
	var lastUninlined *Frame
	var lastResReg uint16
	var lastResType ReturnType
	var lastReturnDeoptIdx uint32

	it := cand.inlinesAt(offset)
	for d, ok := it.next(); ok; d, ok = it.next() {
		codeRef := outer.Work[d.CodeRefReg].Value
		code, isCode := codeRef.(*CodeObject)
		if !isCode || code == nil {
			fatalf(outer.StaticFrame, "Deopt: did not find code object when uninlining")
		}
		usf := d.StaticFrame

		uf := r.Allocator.CreateForDeopt(usf, code)

		if usf.NumLocals > 0 {
			copy(uf.Work, outer.Work[d.LocalsStart:int(d.LocalsStart)+int(usf.NumLocals)])
		}
		if usf.NumLexicals > 0 {
			copy(uf.Env, outer.Env[d.LexicalsStart:int(d.LexicalsStart)+int(usf.NumLexicals)])
		}

		if d.DeoptNamedUsedBitField != 0 {
			uf.Params.NamedUsed.BitField = d.DeoptNamedUsedBitField
		}

		if lastUninlined != nil {
			// Multi-level un-inline: switch this newly created frame
			// back to deopt'd code and wire the previous uninlined
			// frame's caller to it.
			uf.EffectiveSpeshSlots = nil
			uf.SpeshCand = nil

			uf.ReturnAddress = cand.GenericOffset(lastReturnDeoptIdx)
			uf.ReturnType = lastResType
			if lastResType == ReturnVoid {
				uf.ReturnValue = nil
			} else {
				uf.ReturnValue = &uf.Work[lastResReg]
			}
			lastUninlined.Caller = uf
		} else if callee != nil {
			// First uninlined frame, mid-call-stack (deopt-all):
			// tweak the callee's caller to the uninlined frame
			// instead of the frame holding the inlining.
			callee.Caller = uf
			uf.ReturnAddress = deoptOffset
			uf.ReturnType = outer.ReturnType
			if uf.ReturnType == ReturnVoid {
				uf.ReturnValue = nil
			} else {
				origReg := regIndex(outer, outer.ReturnValue)
				retReg := origReg - d.LocalsStart
				uf.ReturnValue = &uf.Work[retReg]
			}
		} else {
			// First uninlined frame, deopt-one case: this is
			// where the interpreter gets retargeted.
			tc.CurFrame = uf
			tc.CurrentFrameNr = uf.SequenceNr
			*tc.InterpCurOp = deoptOffset
			*tc.InterpBytecodeStart = usf.Bytecode
			*tc.InterpRegBase = uf.Work
			*tc.InterpCU = CompUnit{ID: usf.CUID}
		}

		lastUninlined = uf
		lastResReg = d.ResReg
		lastResType = d.ResType
		lastReturnDeoptIdx = d.ReturnDeoptIdx
	}

	if lastUninlined != nil {
		outer.ReturnAddress = cand.GenericOffset(lastReturnDeoptIdx)
		outer.ReturnType = lastResType
		if lastResType == ReturnVoid {
			outer.ReturnValue = nil
		} else {
			outer.ReturnValue = &outer.Work[lastResReg]
		}
		lastUninlined.Caller = outer
		if logflags.Deopt() {
			logflags.DeoptLogger().Debugf("uninlined into %s (cuid %s)", outer.StaticFrame.Name, outer.StaticFrame.CUID)
		}
		return
	}

	// Weren't in an inline after all.
	if callee != nil {
		outer.ReturnAddress = deoptOffset
	} else {
		*tc.InterpCurOp = deoptOffset
		*tc.InterpBytecodeStart = outer.StaticFrame.Bytecode
	}
}

// regIndex returns the index of reg within f.Work, used to translate a
// return-value pointer from the outer frame's register file into an
// inlined frame's own, by subtracting the inline's LocalsStart.
func regIndex(f *Frame, reg *Register) uint16 {
	for i := range f.Work {
		if &f.Work[i] == reg {
			return uint16(i)
		}
	}
	fatalf(f.StaticFrame, "Deopt: return value register not found in frame's work array")
	return 0
}
