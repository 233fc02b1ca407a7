package trace

import "testing"

func TestReplayDeoptAllJITResidue(t *testing.T) {
	doc := &Doc{
		Frames: []FrameDoc{
			{Name: "cur", CUID: "cu", BytecodeSize: 10, Caller: "A"},
			{Name: "A", CUID: "cu", BytecodeSize: 100, Caller: "B", ReturnAddress: 9,
				Candidate: &CandidateDoc{Deopts: []uint32{5, 9}}},
			{Name: "B", CUID: "cu", BytecodeSize: 100, Caller: "C", ReturnAddress: 9,
				Candidate: &CandidateDoc{Deopts: []uint32{5, 9}, JIT: true}},
			{Name: "C", CUID: "cu", BytecodeSize: 100, ReturnAddress: 9,
				Candidate: &CandidateDoc{Deopts: []uint32{5, 9}}},
		},
		Op: OpDoc{Kind: "deopt_all", Frame: "cur"},
	}

	result, err := Replay(doc)
	if err != nil {
		t.Fatal(err)
	}

	byName := map[string]FrameState{}
	for _, fs := range result.Chain {
		byName[fs.Name] = fs
	}

	if byName["A"].Specialized {
		t.Error("A should have been deopted")
	}
	if byName["B"].Specialized {
		t.Error("B (JIT-bearing) should also have been deopted")
	}
	if !byName["C"].Specialized {
		t.Error("C should remain specialized (the documented JIT-residue wart)")
	}
}

func TestScenarioSupportsMultipleOps(t *testing.T) {
	doc := &Doc{
		Frames: []FrameDoc{
			{Name: "f", CUID: "cu", BytecodeSize: 200,
				Candidate: &CandidateDoc{Deopts: []uint32{10, 40, 30, 80}}},
		},
		Op: OpDoc{Kind: "deopt_one", Frame: "f", Target: 10},
	}

	sc, err := NewScenario(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !sc.Cur.IsSpecialized() {
		t.Fatal("expected the built frame to start specialized")
	}

	*sc.TC.InterpCurOp = 80
	sc.DeoptOne(10)

	chain := sc.Chain()
	if len(chain.Chain) != 1 || chain.Chain[0].Specialized {
		t.Fatalf("expected a single deopted frame, got %+v", chain.Chain)
	}

	// A second operation against the same live scenario.
	sc.DeoptAll()

	chain = sc.Chain()
	if len(chain.Chain) != 1 || chain.Chain[0].Specialized {
		t.Fatalf("expected a single deopted frame after the second op, got %+v", chain.Chain)
	}
}

func TestBuildRejectsUnknownCaller(t *testing.T) {
	doc := &Doc{
		Frames: []FrameDoc{
			{Name: "f", Caller: "ghost"},
		},
	}
	if _, _, err := Build(doc); err == nil {
		t.Fatal("expected an error for a frame naming an unknown caller")
	}
}
