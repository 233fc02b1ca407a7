// Package argguard implements the decision structure that routes a
// (callsite, argument-type-tuple) pair to the live specialized candidate
// for it, if any. The plan builder's admission filter (spesh.PlanBuilder)
// consults it to reject duplicate work; the (out-of-scope) specializer is
// the only writer.
//
// It is built atop github.com/derekparker/trie -- delve's own prefix-trie
// dependency, used there for command-name completion -- repurposed here as
// a flat key/value store keyed by a serialized callsite-id/type-tuple
// string rather than for prefix search. That's a deliberate reuse of a
// pack-adjacent dependency for its trie *structure* (a Trie is, after all,
// a map keyed by strings) rather than its usual fuzzy/prefix-search
// surface; see DESIGN.md for why a plain map was not used instead.
package argguard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/derekparker/trie"

	"github.com/scovit/spesh/pkg/spesh"
)

// Tree is an ArgGuard implementation for one static frame.
type Tree struct {
	mu sync.RWMutex
	t  *trie.Trie
}

// New constructs an empty arg-guard tree.
func New() *Tree {
	return &Tree{t: trie.New()}
}

// key serializes a (callsite, type-tuple) pair into the string the
// underlying trie is keyed by: the callsite identity plus, per argument,
// the type name and its concreteness and rw-container flags. Two argument
// tuples with the same types but
// different concreteness/container-ness are deliberately treated as
// distinct routes, matching the original's type-tuple equality semantics.
func key(cs *spesh.Callsite, typeTuple []spesh.StatsType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", cs.ID)
	for _, t := range typeTuple {
		b.WriteByte('|')
		b.WriteString(t.TypeName)
		if t.Concrete {
			b.WriteByte('c')
		}
		if t.RWCont {
			b.WriteByte('w')
		}
	}
	return b.String()
}

// Lookup implements spesh.ArgGuard.
func (g *Tree) Lookup(cs *spesh.Callsite, typeTuple []spesh.StatsType) (*spesh.Candidate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.t.Find(key(cs, typeTuple))
	if !ok {
		return nil, false
	}
	cand, ok := node.Meta().(*spesh.Candidate)
	return cand, ok
}

// Route installs cand as the live candidate for (cs, typeTuple). Called by
// the specializer once it has produced a candidate for a Planned entry;
// never called by the planner itself.
func (g *Tree) Route(cs *spesh.Callsite, typeTuple []spesh.StatsType, cand *spesh.Candidate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.t.Add(key(cs, typeTuple), cand)
}

// Remove retires the route for (cs, typeTuple), e.g. once its candidate has
// been deopted and is no longer the live choice for that shape.
func (g *Tree) Remove(cs *spesh.Callsite, typeTuple []spesh.StatsType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.t.Remove(key(cs, typeTuple))
}
