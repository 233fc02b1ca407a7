package spesh

// fakeAllocator is a minimal FrameAllocator for tests: Go values are always
// heap-allocated by the runtime, so ForceToHeap is simply identity; only
// CreateForDeopt needs real behavior (sizing the new frame's register
// files to its static frame's local/lexical counts).
type fakeAllocator struct {
	created []*Frame
}

func (a *fakeAllocator) CreateForDeopt(sf *StaticFrame, code *CodeObject) *Frame {
	f := &Frame{
		StaticFrame: sf,
		Code:        code,
		Work:        make([]Register, sf.NumLocals),
		Env:         make([]Register, sf.NumLexicals),
	}
	a.created = append(a.created, f)
	return f
}

func (a *fakeAllocator) ForceToHeap(f *Frame) *Frame {
	return f
}

func intReg(v int) Register { return Register{Value: v} }

func makeFrame(sf *StaticFrame, numWork, numEnv int) *Frame {
	return &Frame{
		StaticFrame: sf,
		Work:        make([]Register, numWork),
		Env:         make([]Register, numEnv),
	}
}
