package argguard

import (
	"testing"

	"github.com/scovit/spesh/pkg/spesh"
)

func TestRouteAndLookup(t *testing.T) {
	g := New()
	cs := &spesh.Callsite{ID: 1}
	tt := []spesh.StatsType{{TypeName: "Int", Concrete: true}}
	cand := &spesh.Candidate{}

	if _, ok := g.Lookup(cs, tt); ok {
		t.Fatal("expected no route before Route is called")
	}

	g.Route(cs, tt, cand)
	got, ok := g.Lookup(cs, tt)
	if !ok || got != cand {
		t.Fatalf("Lookup after Route = %v, %v; want %v, true", got, ok, cand)
	}
}

func TestKeyDistinguishesConcreteness(t *testing.T) {
	g := New()
	cs := &spesh.Callsite{ID: 1}
	concrete := []spesh.StatsType{{TypeName: "Int", Concrete: true}}
	abstract := []spesh.StatsType{{TypeName: "Int", Concrete: false}}
	cand := &spesh.Candidate{}

	g.Route(cs, concrete, cand)
	if _, ok := g.Lookup(cs, abstract); ok {
		t.Fatal("abstract tuple should not match the route for the concrete one")
	}
}

func TestRemove(t *testing.T) {
	g := New()
	cs := &spesh.Callsite{ID: 2}
	tt := []spesh.StatsType{{TypeName: "Str"}}
	g.Route(cs, tt, &spesh.Candidate{})

	g.Remove(cs, tt)
	if _, ok := g.Lookup(cs, tt); ok {
		t.Fatal("expected no route after Remove")
	}
}
