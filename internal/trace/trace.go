// Package trace builds a synthetic frame graph and thread context from a
// YAML description, and replays one deopt operation against it. It backs
// speshctl's `deopt-trace` subcommand and speshrepl's in-memory scenarios,
// giving both a scriptable way to reproduce the scenarios spec.md §8
// describes without a live interpreter.
package trace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scovit/spesh/pkg/spesh"
)

// CandidateDoc describes one Candidate attached to a synthetic frame.
type CandidateDoc struct {
	Deopts  []uint32 `yaml:"deopts"`
	JIT     bool     `yaml:"jit"`
	JITIdx  int32    `yaml:"jit_idx"`
	Inlines []struct {
		Start       uint32 `yaml:"start"`
		End         uint32 `yaml:"end"`
		CalleeName  string `yaml:"callee"`
		CodeRefReg  uint16 `yaml:"code_ref_reg"`
		LocalsStart uint16 `yaml:"locals_start"`
	} `yaml:"inlines"`
}

// FrameDoc describes one synthetic Frame in the trace, by name.
type FrameDoc struct {
	Name          string        `yaml:"name"`
	CUID          string        `yaml:"cuid"`
	BytecodeSize  uint32        `yaml:"bytecode_size"`
	NumLocals     uint16        `yaml:"num_locals"`
	Caller        string        `yaml:"caller"` // name of the caller frame, "" for the root
	ReturnAddress uint32        `yaml:"return_address"`
	Candidate     *CandidateDoc `yaml:"candidate"`
}

// OpDoc names which deopt entrypoint to replay and its parameters.
type OpDoc struct {
	Kind        string `yaml:"kind"` // "deopt_one", "deopt_one_direct", "deopt_all"
	Frame       string `yaml:"frame"`
	Target      uint32 `yaml:"target"`
	DeoptOffset uint32 `yaml:"deopt_offset"`
}

// Doc is the on-disk shape of a trace fixture: a named set of frames, listed
// in any order and wired by Caller, plus the operation to replay against
// the frame Op.Frame names (the current frame).
type Doc struct {
	Frames []FrameDoc `yaml:"frames"`
	Op     OpDoc      `yaml:"op"`
}

// Load reads a trace fixture from path.
func Load(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type fakeJIT struct{ idx int32 }

func (j fakeJIT) GetActiveDeoptIdx(code *spesh.JitCode, f *spesh.Frame) int32 { return j.idx }

type heapAllocator struct{}

func (heapAllocator) CreateForDeopt(sf *spesh.StaticFrame, code *spesh.CodeObject) *spesh.Frame {
	return &spesh.Frame{
		StaticFrame: sf,
		Code:        code,
		Work:        make([]spesh.Register, sf.NumLocals),
		Env:         make([]spesh.Register, sf.NumLexicals),
	}
}

func (heapAllocator) ForceToHeap(f *spesh.Frame) *spesh.Frame { return f }

// Build constructs the static frames, candidates and Frame graph a Doc
// describes, wiring Caller links by name.
func Build(doc *Doc) (map[string]*spesh.StaticFrame, map[string]*spesh.Frame, error) {
	sfs := make(map[string]*spesh.StaticFrame, len(doc.Frames))
	frames := make(map[string]*spesh.Frame, len(doc.Frames))

	for _, fd := range doc.Frames {
		sf := &spesh.StaticFrame{
			Name:         fd.Name,
			CUID:         fd.CUID,
			BytecodeSize: fd.BytecodeSize,
			NumLocals:    fd.NumLocals,
			Bytecode:     make([]byte, fd.BytecodeSize+1),
		}
		sfs[fd.Name] = sf
	}

	for _, fd := range doc.Frames {
		sf := sfs[fd.Name]
		f := &spesh.Frame{
			StaticFrame:   sf,
			Work:          make([]spesh.Register, fd.NumLocals),
			ReturnAddress: fd.ReturnAddress,
		}
		if fd.Candidate != nil {
			cand := &spesh.Candidate{StaticFrame: sf, Deopts: fd.Candidate.Deopts}
			if fd.Candidate.JIT {
				cand.JitCode = &spesh.JitCode{Deopts: []spesh.JitDeopt{{Idx: fd.Candidate.JITIdx}}}
			}
			for _, id := range fd.Candidate.Inlines {
				callee, ok := sfs[id.CalleeName]
				if !ok {
					return nil, nil, fmt.Errorf("inline refers to unknown frame %q", id.CalleeName)
				}
				cand.Inlines = append(cand.Inlines, spesh.InlineDescriptor{
					Start: id.Start, End: id.End, StaticFrame: callee,
					CodeRefReg: id.CodeRefReg, LocalsStart: id.LocalsStart,
				})
			}
			f.SpeshCand = cand
		}
		frames[fd.Name] = f
	}

	for _, fd := range doc.Frames {
		if fd.Caller != "" {
			caller, ok := frames[fd.Caller]
			if !ok {
				return nil, nil, fmt.Errorf("frame %q names unknown caller %q", fd.Name, fd.Caller)
			}
			frames[fd.Name].Caller = caller
		}
	}

	return sfs, frames, nil
}

// Result is what Replay/Scenario operations report back: the frame chain's
// post-op state, in caller order starting from the thread context's current
// frame (after a DeoptOne that uninlines, that is the innermost uninlined frame).
type Result struct {
	Chain []FrameState
}

// FrameState summarizes one frame after the operation, for printing.
type FrameState struct {
	Name          string
	Specialized   bool
	ReturnAddress uint32
}

func chainFrom(f *spesh.Frame) *Result {
	var states []FrameState
	for ; f != nil; f = f.Caller {
		states = append(states, FrameState{
			Name:          f.StaticFrame.Name,
			Specialized:   f.IsSpecialized(),
			ReturnAddress: f.ReturnAddress,
		})
	}
	return &Result{Chain: states}
}

// Scenario is a built (frames wired, ThreadContext live) trace, kept around
// so a caller can run more than one deopt operation against it
// interactively -- unlike Replay, which builds, runs doc.Op exactly once,
// and discards everything.
type Scenario struct {
	Frames map[string]*spesh.Frame
	Cur    *spesh.Frame
	TC     *spesh.ThreadContext
	D      *spesh.Deoptimizer
}

// NewScenario builds doc's frame graph and a ThreadContext rooted at the
// frame doc.Op.Frame names, ready for DeoptOne/DeoptAll to be called
// against it directly.
func NewScenario(doc *Doc) (*Scenario, error) {
	_, frames, err := Build(doc)
	if err != nil {
		return nil, err
	}
	cur, ok := frames[doc.Op.Frame]
	if !ok {
		return nil, fmt.Errorf("op names unknown frame %q", doc.Op.Frame)
	}

	var pc uint32
	var bcStart []byte
	var regBase []spesh.Register
	var cu spesh.CompUnit
	tc := &spesh.ThreadContext{
		CurFrame:            cur,
		InterpCurOp:         &pc,
		InterpBytecodeStart: &bcStart,
		InterpRegBase:       &regBase,
		InterpCU:            &cu,
		JIT:                 fakeJIT{idx: 0},
	}

	return &Scenario{
		Frames: frames,
		Cur:    cur,
		TC:     tc,
		D:      spesh.NewDeoptimizer(heapAllocator{}, nil),
	}, nil
}

// DeoptOne runs Deoptimizer.DeoptOne against the scenario's current frame.
func (s *Scenario) DeoptOne(target uint32) { s.D.DeoptOne(s.TC, target) }

// DeoptAll runs Deoptimizer.DeoptAll against the scenario's current frame.
func (s *Scenario) DeoptAll() { s.D.DeoptAll(s.TC) }

// Chain reports the current post-operation state of the scenario's frame
// chain, starting from the current frame.
func (s *Scenario) Chain() *Result { return chainFrom(s.TC.CurFrame) }

// Replay builds doc's scenario and runs the single operation doc.Op names
// against it, returning the resulting caller chain. This is the one-shot
// entrypoint speshctl's `deopt-trace` subcommand uses; speshrepl instead
// keeps a Scenario alive across several interactive DeoptOne/DeoptAll calls.
func Replay(doc *Doc) (*Result, error) {
	sc, err := NewScenario(doc)
	if err != nil {
		return nil, err
	}

	switch doc.Op.Kind {
	case "deopt_one":
		sc.DeoptOne(doc.Op.Target)
	case "deopt_one_direct":
		sc.D.DeoptOneDirect(sc.TC, doc.Op.DeoptOffset, doc.Op.Target)
	case "deopt_all":
		sc.DeoptAll()
	default:
		return nil, fmt.Errorf("unknown op kind %q", doc.Op.Kind)
	}

	return sc.Chain(), nil
}
