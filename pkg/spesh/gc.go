package spesh

// PlanGCMark exposes every object a SpeshPlan references to the garbage
// collector's root-marking worklist: each Planned's static frame, and, when
// a type tuple is present, the type/decont-type of every argument position
// whose callsite flag has the Obj bit set.
func PlanGCMark(plan *SpeshPlan, worklist GCWorklist) {
	if plan == nil {
		return
	}
	for _, p := range plan.Planned {
		sfSlot := Collectable(p.SF)
		worklist.Add(&sfSlot)
		if p.TypeTuple != nil {
			cs := p.CS.CS
			for j := 0; j < int(cs.FlagCount); j++ {
				if cs.ArgFlags[j]&CallsiteArgObj != 0 {
					typeSlot := p.TypeTuple[j].Type
					decontSlot := p.TypeTuple[j].DecontType
					worklist.Add(&typeSlot)
					worklist.Add(&decontSlot)
				}
			}
		}
	}
}

// PlanGCDescribe walks the same references as PlanGCMark but for
// heap-snapshotting, using one cache id per edge label so the snapshot
// writer only interns each label string once.
func PlanGCDescribe(plan *SpeshPlan, ss HeapSnapshotState) {
	if plan == nil {
		return
	}
	var sfCache, typeCache, decontCache uint64
	for _, p := range plan.Planned {
		ss.AddCollectableCached(p.SF, "staticframe", &sfCache)
		if p.TypeTuple != nil {
			cs := p.CS.CS
			for j := 0; j < int(cs.FlagCount); j++ {
				if cs.ArgFlags[j]&CallsiteArgObj != 0 {
					ss.AddCollectableCached(p.TypeTuple[j].Type, "argument type", &typeCache)
					ss.AddCollectableCached(p.TypeTuple[j].DecontType, "argument decont type", &decontCache)
				}
			}
		}
	}
}
