// Package spesh implements the speculative-specialization core of the
// interpreter: the planner that decides which (static frame, callsite,
// argument-type tuple) triples are worth specializing, and the deoptimizer
// that unwinds specialized (and possibly inlined) execution back to generic
// bytecode when a guard fails.
//
// The bytecode interpreter, JIT backend, garbage collector, profiler,
// statistics collector and frame allocator are external collaborators;
// this package only depends on the narrow interfaces it needs from them
// (see collaborators.go).
package spesh

// ReturnType identifies the native representation a frame's return value is
// stored in. It mirrors MVMReturnType from the original runtime.
type ReturnType uint8

const (
	ReturnVoid ReturnType = iota
	ReturnObj
	ReturnInt
	ReturnNum
	ReturnStr
)

// CodeObject is the invokee held in a register when an inline's owning
// static frame needs to be recreated as a real frame. Its identity (not its
// contents) is what FrameReconstructor cares about.
type CodeObject struct {
	StaticFrame *StaticFrame
}

// StaticFrame is the compiled representation of a source-level subroutine.
// It is treated as opaque by this package except for the fields the planner
// and deoptimizer read directly.
type StaticFrame struct {
	Name string
	CUID string

	Bytecode      []byte
	NumLocals     uint16
	NumLexicals   uint16
	Specializable bool
	BytecodeSize  uint32

	// Threshold is this frame's own hot-call-count threshold override.
	// Zero means "use the planner's configured default"
	// (config.Config.ThresholdFor).
	Threshold uint32

	Facts *SpeshFacts
}

// SpeshFacts bundles the statistics gathered for a StaticFrame together with
// the arg-guard tree that routes (callsite, type-tuple) to a live candidate.
// Statistics collection itself is out of scope here; SpeshStats is the
// read-only snapshot the planner consumes.
type SpeshFacts struct {
	Stats    *SpeshStats
	ArgGuard ArgGuard
}

// ArgGuard routes a (callsite, type-tuple) pair to the live Candidate
// specialized for it, if any. Implementations must be safe to query
// concurrently with specializer-side mutation from the planner's point of
// view: the planner only ever calls Lookup.
type ArgGuard interface {
	// Lookup reports whether some candidate already exists for the given
	// callsite/type-tuple pair.
	Lookup(cs *Callsite, typeTuple []StatsType) (*Candidate, bool)
}

// Callsite is an opaque handle identifying a call shape (argument count,
// per-argument flags). It is never constructed by this package.
type Callsite struct {
	ID        uint64
	FlagCount uint16
	ArgFlags  []CallsiteArgFlag
}

// CallsiteArgFlag marks per-argument properties of a Callsite entry.
type CallsiteArgFlag uint8

const (
	CallsiteArgObj CallsiteArgFlag = 1 << iota
	CallsiteArgInt
	CallsiteArgNum
	CallsiteArgStr
)

// InlineDescriptor describes a region of a Candidate's specialized bytecode
// that corresponds to an inlined callee. Descriptors are stored innermost
// scope first: a nested scope's descriptor precedes the descriptor of the
// scope(s) it is nested inside of, so that uninlining's first match at a
// given offset is always the currently-executing, most-deeply-nested inline.
type InlineDescriptor struct {
	// Start/End bound the region this inline covers in the specialized
	// bytecode. The range is half-open on the low side and closed on the
	// high side: an offset o matches when Start < o <= End.
	Start, End uint32

	StaticFrame *StaticFrame
	// CodeRefReg is the register in the outer frame's work array holding
	// the invokee code object for this inline.
	CodeRefReg uint16

	LocalsStart   uint16
	LexicalsStart uint16

	ResReg  uint16
	ResType ReturnType

	// ReturnDeoptIdx names the deopt-table index, in the *caller's*
	// (outer candidate's) deopt table, identifying where in generic
	// bytecode this inlined call must return to.
	ReturnDeoptIdx uint32

	// DeoptNamedUsedBitField, if non-zero, is installed on the
	// reconstructed frame's named-argument-used mask.
	DeoptNamedUsedBitField uint64
}

// Contains reports whether offset falls within this inline's region, using
// the half-open-low/closed-high convention documented on Start/End.
func (d *InlineDescriptor) Contains(offset uint32) bool {
	return offset > d.Start && offset <= d.End
}

// DeoptPEAPoint names a deopt point at which a partial-escape-analysis
// replaced object must be materialized before the frame can resume in
// generic code. Materialization itself is not specified (see
// materializeObject).
type DeoptPEAPoint struct {
	DeoptPointIdx      uint32
	MaterializeInfoIdx uint32
}

// Candidate is one specialized compilation of a StaticFrame for a specific
// callsite shape and argument-type tuple.
type Candidate struct {
	StaticFrame *StaticFrame

	SpecializedBytecode []byte

	// Deopts is a flat sequence of (generic_offset, specialized_offset)
	// pairs indexed by deopt-index: Deopts[2*i] is the generic offset,
	// Deopts[2*i+1] is the specialized offset, for deopt index i.
	Deopts []uint32

	// Inlines is nil when this candidate has no inlined callees.
	Inlines []InlineDescriptor

	JitCode *JitCode

	DeoptPEA []DeoptPEAPoint

	DeoptNamedUsedBitField uint64
}

// NumDeopts returns the number of deopt-index entries in Deopts.
func (c *Candidate) NumDeopts() int {
	return len(c.Deopts) / 2
}

// JitCode is the external JIT backend's compiled representation of a
// Candidate. Only its deopt-index-lookup contract is used here.
type JitCode struct {
	Deopts []JitDeopt
}

// JitDeopt is one entry of a JitCode's parallel deopts array.
type JitDeopt struct {
	Idx int32
}

// FrameExtra holds the dynamic-lexical-lookup cache that must be invalidated
// whenever a frame's generation of specialized code is discarded.
type FrameExtra struct {
	DynlexCacheName string
	DynlexCacheReg  *Register
}

// NamedUsed tracks which named arguments have been consumed, as a bit field.
type NamedUsed struct {
	BitField uint64
}

// Register is a single VM register slot. Its representation is irrelevant
// to this package beyond identity/addressability: reconstruction copies
// register windows wholesale and reseats return-value pointers into them.
type Register struct {
	Value any
}

// Frame is a runtime activation. Only the fields the deoptimizer and
// reconstructor touch are modeled; everything else about a frame (argument
// binding, exception handlers, ...) belongs to the interpreter.
type Frame struct {
	StaticFrame *StaticFrame
	Code        *CodeObject

	Work []Register
	Env  []Register

	// Caller is an owning reference to the parent activation. Frame
	// graphs built by this package are acyclic: CheckCallerChain can
	// detect a programming error that makes them otherwise.
	Caller *Frame

	ReturnAddress uint32
	ReturnType    ReturnType
	// ReturnValue points into Work (or is nil for ReturnVoid) once set.
	ReturnValue *Register

	SpeshCand           *Candidate
	EffectiveSpeshSlots []Register
	JitEntryLabel       *uint32

	Params struct {
		NamedUsed NamedUsed
	}

	Extra *FrameExtra

	// SequenceNr is an opaque identity the interpreter uses to track the
	// "current" frame; it is copied onto ThreadContext.CurrentFrameNr
	// when a frame becomes active.
	SequenceNr uint64
}

// IsSpecialized reports whether the frame is currently executing in
// specialized code.
func (f *Frame) IsSpecialized() bool {
	return f.SpeshCand != nil
}
