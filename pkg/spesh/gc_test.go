package spesh

import "testing"

type collectingWorklist struct {
	seen []Collectable
}

func (w *collectingWorklist) Add(slot *Collectable) {
	w.seen = append(w.seen, *slot)
}

func TestPlanGCMarkNilPlan(t *testing.T) {
	w := &collectingWorklist{}
	PlanGCMark(nil, w) // must not panic
	if len(w.seen) != 0 {
		t.Errorf("expected nothing marked for a nil plan")
	}
}

func TestPlanGCMarkMarksFrameAndObjArgTypes(t *testing.T) {
	objType := Collectable("ObjType")
	decontType := Collectable("DecontType")
	sf := &StaticFrame{Name: "f"}
	cs := &Callsite{ID: 1, FlagCount: 2, ArgFlags: []CallsiteArgFlag{CallsiteArgObj, CallsiteArgInt}}

	plan := &SpeshPlan{
		Planned: []*Planned{
			{
				SF: sf,
				CS: &SpeshStatsByCallsite{CS: cs},
				TypeTuple: []StatsType{
					{Type: objType, DecontType: decontType},
					{TypeName: "Int"},
				},
			},
		},
	}

	w := &collectingWorklist{}
	PlanGCMark(plan, w)

	if len(w.seen) != 3 { // sf, type, decont-type; the Int-flagged arg is skipped
		t.Fatalf("expected 3 marks (frame + obj type + decont type), got %d: %v", len(w.seen), w.seen)
	}
	if w.seen[0] != Collectable(sf) {
		t.Errorf("first mark should be the static frame, got %v", w.seen[0])
	}
}

type fakeHeapSnapshot struct {
	edges []string
}

func (s *fakeHeapSnapshot) AddCollectableCached(obj Collectable, label string, cache *uint64) {
	s.edges = append(s.edges, label)
}

func TestPlanGCDescribeEmitsOneEdgePerCertainPlan(t *testing.T) {
	sf := &StaticFrame{Name: "f"}
	plan := &SpeshPlan{
		Planned: []*Planned{
			{SF: sf, CS: &SpeshStatsByCallsite{CS: &Callsite{}}},
		},
	}
	ss := &fakeHeapSnapshot{}
	PlanGCDescribe(plan, ss)

	if len(ss.edges) != 1 || ss.edges[0] != "staticframe" {
		t.Errorf("expected one staticframe edge, got %v", ss.edges)
	}
}
