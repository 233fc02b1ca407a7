package spesh

import (
	"fmt"

	"github.com/scovit/spesh/internal/logflags"
)

// DeoptIndexCache memoizes the inactive-frame deopt-index lookup performed
// by FindInactiveFrameDeoptIdx (see SPEC_FULL.md §4.3): a resolved index
// for a given (candidate, return-address-offset) pair never changes once
// found, so a cache only ever needs to be invalidated by candidate
// retirement (handled naturally: a retired candidate's frames stop being
// looked up at all). A nil cache is always correct, only slower.
type DeoptIndexCache interface {
	Get(cand *Candidate, retOffset uint32) (int32, bool)
	Add(cand *Candidate, retOffset uint32, idx int32)
}

// Deoptimizer implements the public deopt entrypoints: DeoptOne,
// DeoptOneDirect and DeoptAll.
type Deoptimizer struct {
	Reconstructor *FrameReconstructor
	Cache         DeoptIndexCache
}

// NewDeoptimizer constructs a Deoptimizer bound to the given frame
// allocator. cache may be nil.
func NewDeoptimizer(allocator FrameAllocator, cache DeoptIndexCache) *Deoptimizer {
	return &Deoptimizer{
		Reconstructor: &FrameReconstructor{Allocator: allocator},
		Cache:         cache,
	}
}

// clearDynlexCache invalidates a frame's dynamic-lexical-lookup cache.
// Uninlining can move what it points to, so it must be cleared whenever a
// frame's specialized-code generation is discarded.
func clearDynlexCache(f *Frame) {
	if f.Extra != nil {
		f.Extra.DynlexCacheName = ""
		f.Extra.DynlexCacheReg = nil
	}
}

func deoptNamedArgsUsed(f *Frame) {
	if f.SpeshCand != nil && f.SpeshCand.DeoptNamedUsedBitField != 0 {
		f.Params.NamedUsed.BitField = f.SpeshCand.DeoptNamedUsedBitField
	}
}

// materializeObject would re-materialize one partial-escape-analysis
// replaced object. Per spec.md's explicit Non-goal, this is not specified
// here -- any deopt point bearing PEA records aborts, exactly as the
// original's MVM_panic(1, "Deopt: materialize_object NYI").
func materializeObject(f *Frame, infoIdx uint32) {
	fatalf(f.StaticFrame, "Deopt: materialize_object NYI")
}

// materializeReplacedObjects materializes every PEA-replaced object that
// needs to exist by deoptOffset. The scan itself is fully implemented; only
// the leaf materializer is a stub (see materializeObject).
func materializeReplacedObjects(f *Frame, deoptOffset uint32) {
	cand := f.SpeshCand
	for _, pt := range cand.DeoptPEA {
		if pt.DeoptPointIdx == deoptOffset {
			materializeObject(f, pt.MaterializeInfoIdx)
		}
	}
}

// deoptFrame performs the common tail of DeoptOne/DeoptOneDirect: replay
// named-arg bits and PEA materialization, then either uninline or do the
// simple retarget, and finally clear the frame's specialization.
func (d *Deoptimizer) deoptFrame(tc *ThreadContext, f *Frame, deoptOffset, deoptTarget uint32) {
	deoptNamedArgsUsed(f)
	materializeReplacedObjects(f, deoptOffset)

	if f.SpeshCand.HasInlines() {
		// Uninlining creates heap frames and links them via Caller,
		// so the whole call stack from f down must already be
		// heap-resident (no heap object may point at a stack frame).
		f = d.Reconstructor.Allocator.ForceToHeap(f)
		d.Reconstructor.Uninline(tc, f, f.SpeshCand, deoptOffset, deoptTarget, nil)
		f.EffectiveSpeshSlots = nil
		f.SpeshCand = nil
	} else {
		*tc.InterpCurOp = deoptTarget
		*tc.InterpBytecodeStart = f.StaticFrame.Bytecode
		f.EffectiveSpeshSlots = nil
		f.SpeshCand = nil
	}
	if logflags.Deopt() {
		logflags.DeoptLogger().Debugf("completed deopt in %s (cuid %s)", f.StaticFrame.Name, f.StaticFrame.CUID)
	}
}

// DeoptOne de-optimizes the currently executing frame, provided it is
// specialized and at a valid de-optimization point. Typically used when a
// guard fails. deoptTarget is the generic-bytecode offset to resume at.
func (d *Deoptimizer) DeoptOne(tc *ThreadContext, deoptTarget uint32) {
	f := tc.CurFrame
	if tc.Profiling && tc.Profiler != nil {
		tc.Profiler.LogDeoptOne(tc)
	}
	if logflags.Deopt() {
		logflags.DeoptLogger().Debugf("deopt one requested in %s (cuid %s)", f.StaticFrame.Name, f.StaticFrame.CUID)
	}
	clearDynlexCache(f)
	if f.SpeshCand == nil {
		fatalf(f.StaticFrame, "deopt_one failed")
	}
	// InterpCurOp is maintained as an offset relative to
	// InterpBytecodeStart rather than a raw pointer (see ThreadContext),
	// so -- while f is executing specialized code -- it already equals
	// the specialized-bytecode offset the original derives by
	// subtracting candidate.bytecode from the interpreter's raw PC.
	deoptOffset := *tc.InterpCurOp
	d.deoptFrame(tc, tc.CurFrame, deoptOffset, deoptTarget)
	CheckCallerChain(tc.CurFrame)
}

// DeoptOneDirect is identical to DeoptOne but both offsets are supplied by
// the caller, used when the JIT knows the exact point without consulting
// the interpreter's program counter.
func (d *Deoptimizer) DeoptOneDirect(tc *ThreadContext, deoptOffset, deoptTarget uint32) {
	f := tc.CurFrame
	if tc.Profiling && tc.Profiler != nil {
		tc.Profiler.LogDeoptOne(tc)
	}
	if logflags.Deopt() {
		logflags.DeoptLogger().Debugf("deopt one direct requested in %s (cuid %s)", f.StaticFrame.Name, f.StaticFrame.CUID)
	}
	clearDynlexCache(f)
	if f.SpeshCand == nil {
		fatalf(f.StaticFrame, "deopt_one_direct failed")
	}
	d.deoptFrame(tc, f, deoptOffset, deoptTarget)
	CheckCallerChain(tc.CurFrame)
}

// FindInactiveFrameDeoptIdx finds the currently active deopt index for a
// frame that is *not* the one currently running on the call chain but sits
// further up it. Returns -1 if none can be resolved.
func (d *Deoptimizer) FindInactiveFrameDeoptIdx(tc *ThreadContext, f *Frame) int32 {
	cand := f.SpeshCand
	retOffset := f.ReturnAddress

	if d.Cache != nil {
		if idx, ok := d.Cache.Get(cand, retOffset); ok {
			return idx
		}
	}

	var idx int32 = -1
	if cand.JitCode != nil {
		jitIdx := tc.JIT.GetActiveDeoptIdx(cand.JitCode, f)
		if int(jitIdx) < len(cand.JitCode.Deopts) {
			idx = cand.JitCode.Deopts[jitIdx].Idx
		}
	} else {
		idx = cand.FindDeoptIdxBySpecializedOffset(retOffset)
	}

	if idx >= 0 && d.Cache != nil {
		d.Cache.Add(cand, retOffset, idx)
	}
	if logflags.Deopt() {
		if idx >= 0 {
			logflags.DeoptLogger().Debugf("found deopt index %d for inactive frame %s", idx, f.StaticFrame.Name)
		} else {
			logflags.DeoptLogger().Debugf("can't find deopt index for inactive frame %s", f.StaticFrame.Name)
		}
	}
	return idx
}

// DeoptAll de-optimizes every specialized frame on the call chain. Used
// when a global invariant changed (e.g. a type was mixed into) that could
// invalidate assumptions anywhere on the stack.
//
// The current (top) frame is not itself rewound here -- only its ancestors
// -- because the current frame is handled by the guard-level DeoptOne path
// when needed. DeoptAll only guarantees that any future return *into* an
// ancestor lands in generic bytecode.
func (d *Deoptimizer) DeoptAll(tc *ThreadContext) {
	l := d.Reconstructor.Allocator.ForceToHeap(tc.CurFrame)
	f := tc.CurFrame.Caller

	if tc.Profiling && tc.Profiler != nil {
		tc.Profiler.LogDeoptAll(tc)
	}
	if logflags.Deopt() {
		logflags.DeoptLogger().Debugf("deopt all requested in %s (cuid %s)", l.StaticFrame.Name, l.StaticFrame.CUID)
	}

	for f != nil {
		clearDynlexCache(f)
		if f.SpeshCand != nil {
			deoptIdx := d.FindInactiveFrameDeoptIdx(tc, f)
			if deoptIdx >= 0 {
				deoptOffset := f.SpeshCand.SpecializedOffset(uint32(deoptIdx))
				deoptTarget := f.SpeshCand.GenericOffset(uint32(deoptIdx))
				if f.SpeshCand.HasInlines() {
					d.Reconstructor.Uninline(tc, f, f.SpeshCand, deoptOffset, deoptTarget, l)
				} else {
					f.ReturnAddress = deoptTarget
				}

				deoptNamedArgsUsed(f)
				f.EffectiveSpeshSlots = nil
				if f.SpeshCand.JitCode != nil {
					f.SpeshCand = nil
					f.JitEntryLabel = nil
					// Known wart, preserved for bug-compatibility
					// (see SPEC_FULL.md §9 and the original's own
					// "XXX This break is wrong and hides a bug"):
					// stopping here skips deopting any further
					// ancestors above this JIT-bearing frame.
					break
				}
				f.SpeshCand = nil
			}
		}
		l = f
		f = f.Caller
	}

	CheckCallerChain(tc.CurFrame)
	if logflags.Deopt() {
		logflags.DeoptLogger().Debug("deopt all completed")
	}
}

// CheckCallerChain is a debug-only assertion (gated behind the deopt
// logger's debug level, like the rest of this package's tracing) that walks
// f's Caller chain looking for a cycle, ported from the original's
// MVM_CHECK_CALLER_CHAIN macro. It panics on a detected cycle instead of
// silently corrupting the interpreter's notion of the call stack.
func CheckCallerChain(f *Frame) {
	if !logflags.Deopt() {
		return
	}
	seen := make(map[*Frame]bool)
	for cur := f; cur != nil; cur = cur.Caller {
		if seen[cur] {
			panic(fmt.Sprintf("caller chain cycle detected at frame %s (cuid %s)", cur.StaticFrame.Name, cur.StaticFrame.CUID))
		}
		seen[cur] = true
	}
}
