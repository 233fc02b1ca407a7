package spesh

import (
	"testing"

	"github.com/scovit/spesh/internal/logflags"
)

func threadCtx(cur *Frame, jit JITBackend) *ThreadContext {
	var pc uint32
	var bcStart []byte
	var regBase []Register
	var cu CompUnit
	return &ThreadContext{
		CurFrame:            cur,
		InterpCurOp:         &pc,
		InterpBytecodeStart: &bcStart,
		InterpRegBase:       &regBase,
		InterpCU:            &cu,
		JIT:                 jit,
	}
}

// Scenario 1: single-level deopt-one, no inlines.
func TestDeoptOneSimple(t *testing.T) {
	sf := &StaticFrame{Name: "f", CUID: "cu", Bytecode: make([]byte, 200)}
	cand := &Candidate{StaticFrame: sf, Deopts: []uint32{10, 40, 30, 80}}
	f := makeFrame(sf, 2, 0)
	f.SpeshCand = cand

	var pc uint32 = 80
	tc := threadCtx(f, nil)
	tc.InterpCurOp = &pc

	d := NewDeoptimizer(&fakeAllocator{}, nil)
	d.DeoptOne(tc, 10)

	if f.SpeshCand != nil {
		t.Errorf("spesh_cand should be cleared after deopt_one")
	}
	if *tc.InterpCurOp != 10 {
		t.Errorf("InterpCurOp = %d, want 10", *tc.InterpCurOp)
	}
}

func TestDeoptOneFailsWithoutCandidate(t *testing.T) {
	sf := &StaticFrame{Name: "f", CUID: "cu"}
	f := makeFrame(sf, 0, 0)
	tc := threadCtx(f, nil)
	d := NewDeoptimizer(&fakeAllocator{}, nil)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for deopt_one on unspecialized frame")
		}
		if _, ok := r.(*DeoptInvariantError); !ok {
			t.Fatalf("expected *DeoptInvariantError, got %T: %v", r, r)
		}
	}()
	d.DeoptOne(tc, 0)
}

type fakeJIT struct{ idx int32 }

func (j fakeJIT) GetActiveDeoptIdx(code *JitCode, f *Frame) int32 { return j.idx }

// Scenario 3: deopt-all with JIT residue. Current frame's caller chain is
// cur -> A -> B -> C, where B carries JIT code. deopt_all must deopt A
// (the nearest ancestor, processed first); B also gets its spesh_cand
// cleared (it's processed too) but the walk then breaks, so C -- anything
// beyond the JIT-bearing frame -- is never reached and keeps its candidate.
// This reproduces the original's documented "XXX This break is wrong and
// hides a bug" behavior bug-for-bug.
func TestDeoptAllJITResidueWart(t *testing.T) {
	sfA := &StaticFrame{Name: "A", CUID: "cu", Bytecode: make([]byte, 100)}
	sfB := &StaticFrame{Name: "B", CUID: "cu", Bytecode: make([]byte, 100)}
	sfC := &StaticFrame{Name: "C", CUID: "cu", Bytecode: make([]byte, 100)}
	sfCur := &StaticFrame{Name: "cur", CUID: "cu"}

	candA := &Candidate{StaticFrame: sfA, Deopts: []uint32{5, 9}}
	candB := &Candidate{StaticFrame: sfB, Deopts: []uint32{5, 9}, JitCode: &JitCode{Deopts: []JitDeopt{{Idx: 0}}}}
	candC := &Candidate{StaticFrame: sfC, Deopts: []uint32{5, 9}}

	frameA := makeFrame(sfA, 0, 0)
	frameA.SpeshCand = candA
	frameA.ReturnAddress = 9 // specialized offset matching candA's single deopt entry

	frameB := makeFrame(sfB, 0, 0)
	frameB.SpeshCand = candB
	frameB.ReturnAddress = 9

	frameC := makeFrame(sfC, 0, 0)
	frameC.SpeshCand = candC
	frameC.ReturnAddress = 9

	cur := makeFrame(sfCur, 0, 0) // the "current" frame deopt_all never rewinds itself

	cur.Caller = frameA
	frameA.Caller = frameB
	frameB.Caller = frameC

	tc := threadCtx(cur, fakeJIT{idx: 0})
	d := NewDeoptimizer(&fakeAllocator{}, nil)

	d.DeoptAll(tc)

	if frameA.SpeshCand != nil {
		t.Errorf("A (nearest ancestor) should have been deopted")
	}
	if frameB.SpeshCand != nil {
		t.Errorf("B (JIT-bearing) should also have its spesh_cand cleared before the break")
	}
	if frameC.SpeshCand == nil {
		t.Errorf("C should NOT be touched: the break after B's JIT residue stops the walk (documented wart)")
	}
}

func TestCheckCallerChainDetectsCycle(t *testing.T) {
	logflags.Setup("deopt")
	defer logflags.Setup("")

	sf := &StaticFrame{Name: "loop", CUID: "cu"}
	f1 := makeFrame(sf, 0, 0)
	f2 := makeFrame(sf, 0, 0)
	f1.Caller = f2
	f2.Caller = f1 // cycle

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on caller-chain cycle")
		}
	}()
	CheckCallerChain(f1)
}
