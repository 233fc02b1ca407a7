package spesh

import (
	"github.com/scovit/spesh/internal/config"
	"github.com/scovit/spesh/internal/logflags"
)

// PlannedKind distinguishes the two ways a specialization can be justified:
// a dominant observed argument-type tuple, or simply raw call-count
// pressure regardless of argument types.
type PlannedKind uint8

const (
	PlannedObservedTypes PlannedKind = iota
	PlannedCertain
)

// Planned is one specialization PlanBuilder has decided is worth producing.
// The two kinds share every field; TypeTuple/TypeStats are nil for
// PlannedCertain.
type Planned struct {
	Kind PlannedKind
	SF   *StaticFrame
	CS   *SpeshStatsByCallsite

	// TypeTuple is a private copy (the plan owns it, independent of the
	// statistics snapshot's lifetime) of the observed argument types,
	// nil for PlannedCertain.
	TypeTuple []StatsType
	// TypeStats is the evidence this planned specialization is based on:
	// exactly one bucket for PlannedObservedTypes, empty for
	// PlannedCertain.
	TypeStats []*SpeshStatsByType

	MaxDepth uint32
}

// SpeshPlan is an ordered (descending max-depth) list of specializations to
// produce, handed off to the (out-of-scope) specializer.
type SpeshPlan struct {
	Planned []*Planned
}

// Counters tallies how many specializations of each kind a Plan call
// issued, for the caller's own bookkeeping/telemetry.
type Counters struct {
	Certain      uint64
	ObservedType uint64
	OSR          uint64
}

// PlanBuilder turns a batch of updated static frames' statistics into a
// SpeshPlan.
type PlanBuilder struct {
	Config *config.Config
}

// NewPlanBuilder constructs a PlanBuilder with the given threshold config.
// A nil config uses config.Default().
func NewPlanBuilder(cfg *config.Config) *PlanBuilder {
	if cfg == nil {
		cfg = config.Default()
	}
	return &PlanBuilder{Config: cfg}
}

func (b *PlanBuilder) threshold(sf *StaticFrame) uint32 {
	if sf.Threshold != 0 {
		return sf.Threshold
	}
	return b.Config.ThresholdFor(sf.CUID + "/" + sf.Name)
}

// copyTypeTuple makes a private copy of an observed argument type tuple so
// the plan's lifetime doesn't depend on the statistics snapshot's.
func copyTypeTuple(toCopy []StatsType) []StatsType {
	out := make([]StatsType, len(toCopy))
	copy(out, toCopy)
	return out
}

// addPlanned appends a specialization to plan, provided it doesn't already
// exist (this may happen due to further evidence being logged while a
// previous specialization for the same triple was being produced) and the
// frame isn't too large to specialize at all.
func (b *PlanBuilder) addPlanned(plan *SpeshPlan, kind PlannedKind, sf *StaticFrame,
	csStats *SpeshStatsByCallsite, typeTuple []StatsType, typeStats []*SpeshStatsByType) {

	if sf.BytecodeSize > b.Config.MaxBytecodeSize {
		return
	}
	if sf.Facts != nil && sf.Facts.ArgGuard != nil {
		if _, exists := sf.Facts.ArgGuard.Lookup(csStats.CS, typeTuple); exists {
			return
		}
	}

	p := &Planned{
		Kind:      kind,
		SF:        sf,
		CS:        csStats,
		TypeTuple: typeTuple,
		TypeStats: typeStats,
	}
	if len(typeStats) > 0 {
		p.MaxDepth = typeStats[0].MaxDepth
		for _, ts := range typeStats[1:] {
			if ts.MaxDepth > p.MaxDepth {
				p.MaxDepth = ts.MaxDepth
			}
		}
	} else {
		p.MaxDepth = csStats.MaxDepth
	}
	plan.Planned = append(plan.Planned, p)
}

// planForCS considers the statistics of a given callsite+static-frame
// pairing and plans specializations to produce for it.
func (b *PlanBuilder) planForCS(plan *SpeshPlan, sf *StaticFrame, byCS *SpeshStatsByCallsite, counters *Counters) {
	unaccountedHits := byCS.Hits
	unaccountedOSRHits := byCS.OSRHits

	var certain, observed, osr uint64

	if sf.Specializable {
		for i := range byCS.ByType {
			byType := &byCS.ByType[i]
			var hitPercent, osrHitPercent uint32
			if byCS.Hits != 0 {
				hitPercent = 100 * byType.Hits / byCS.Hits
			}
			if byCS.OSRHits != 0 {
				osrHitPercent = 100 * byType.OSRHits / byCS.OSRHits
			}
			if byCS.CS != nil && (hitPercent >= b.Config.TTObsPercent || osrHitPercent >= b.Config.TTObsPercentOSR) {
				evidence := []*SpeshStatsByType{byType}
				b.addPlanned(plan, PlannedObservedTypes, sf, byCS, copyTypeTuple(byType.ArgTypes), evidence)
				observed++
				if hitPercent < b.Config.TTObsPercent {
					osr++
				}
				unaccountedHits -= byType.Hits
				unaccountedOSRHits -= byType.OSRHits
			}
			// else: TODO derived specialization planning
		}
	}

	if (unaccountedHits != 0 && unaccountedHits >= b.threshold(sf)) || unaccountedOSRHits >= b.Config.MinOSRCallsite {
		b.addPlanned(plan, PlannedCertain, sf, byCS, nil, nil)
		certain++
		if unaccountedHits == 0 || unaccountedHits < b.threshold(sf) {
			osr++
		}
	}

	if counters != nil {
		counters.Certain += certain
		counters.ObservedType += observed
		counters.OSR += osr
	}
	if logflags.Plan() {
		logflags.PlanLogger().Debugf("plan_for_cs %s: certain=%d observed=%d osr=%d", sf.Name, certain, observed, osr)
	}
}

// planForSF considers the statistics of a given static frame and plans
// specializations for it.
func (b *PlanBuilder) planForSF(plan *SpeshPlan, sf *StaticFrame, counters *Counters) {
	ss := sf.Facts.Stats
	threshold := b.threshold(sf)
	if ss.Hits >= threshold || ss.OSRHits >= b.Config.MinOSRStaticFrame {
		for i := range ss.ByCallsite {
			byCS := &ss.ByCallsite[i]
			if byCS.Hits >= threshold || byCS.OSRHits >= b.Config.MinOSRCallsite {
				b.planForCS(plan, sf, byCS, counters)
			}
		}
	}
}

// TwiddleStackDepths reconciles caller/callee depths: max stack depth is a
// decent heuristic for specialization order, but sometimes misleading,
// producing a planned callee with a lower maximum than its caller. This
// boosts the depth of any callee in such a situation so callers specialize
// before callees.
func TwiddleStackDepths(planned []*Planned) {
	if len(planned) < 2 {
		return
	}
	for _, p := range planned {
		for _, sbt := range p.TypeStats {
			for _, sbo := range sbt.ByOffset {
				for _, inv := range sbo.Invokes {
					for _, q := range planned {
						if q.SF == inv.SF {
							q.MaxDepth = p.MaxDepth + 1
						}
					}
				}
			}
		}
	}
}

// SortPlan sorts planned in descending order of MaxDepth. Ported as the
// original's in-place Hoare-partition quicksort (rather than sort.Slice) to
// preserve its exact behavior on already-sorted and duplicate-heavy inputs:
// stability is explicitly not required, only that depth order holds.
func SortPlan(planned []*Planned) {
	quicksortByDepthDesc(planned)
}

func quicksortByDepthDesc(a []*Planned) {
	n := len(a)
	if n < 2 {
		return
	}
	pivot := a[n/2].MaxDepth
	i, j := 0, n-1
	for {
		for a[i].MaxDepth > pivot {
			i++
		}
		for a[j].MaxDepth < pivot {
			j--
		}
		if i >= j {
			break
		}
		a[i], a[j] = a[j], a[i]
		i++
		j--
	}
	quicksortByDepthDesc(a[:i])
	quicksortByDepthDesc(a[i:])
}

// Plan forms a specialization plan from considering all frames whose
// statistics have changed.
func (b *PlanBuilder) Plan(updatedStaticFrames []*StaticFrame) (*SpeshPlan, Counters) {
	plan := &SpeshPlan{}
	var counters Counters
	for _, sf := range updatedStaticFrames {
		b.planForSF(plan, sf, &counters)
	}
	TwiddleStackDepths(plan.Planned)
	SortPlan(plan.Planned)
	if logflags.Plan() {
		logflags.PlanLogger().Debugf("plan complete: %d planned, certain=%d observed=%d osr=%d",
			len(plan.Planned), counters.Certain, counters.ObservedType, counters.OSR)
	}
	return plan, counters
}
