// Package fixture reads a YAML statistics snapshot into the StaticFrame
// slice spesh.PlanBuilder consumes, for speshctl and speshrepl to share.
// It has no counterpart in a live interpreter: there, statistics come from
// the (out-of-scope) profiling collector, not a file on disk.
package fixture

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scovit/spesh/pkg/spesh"
)

// Doc is the on-disk shape a fixture file is read from: a flat list of
// static frames with their aggregated call statistics.
type Doc struct {
	Frames []struct {
		Name          string `yaml:"name"`
		CUID          string `yaml:"cuid"`
		Specializable bool   `yaml:"specializable"`
		BytecodeSize  uint32 `yaml:"bytecode_size"`
		Threshold     uint32 `yaml:"threshold"`
		Hits          uint32 `yaml:"hits"`
		OSRHits       uint32 `yaml:"osr_hits"`
		Callsites     []struct {
			ID       uint64 `yaml:"id"`
			Hits     uint32 `yaml:"hits"`
			OSRHits  uint32 `yaml:"osr_hits"`
			MaxDepth uint32 `yaml:"max_depth"`
		} `yaml:"callsites"`
	} `yaml:"frames"`
}

// Load reads path and builds the StaticFrame slice it describes.
func Load(path string) ([]*spesh.StaticFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var sfs []*spesh.StaticFrame
	for _, f := range doc.Frames {
		ss := &spesh.SpeshStats{Hits: f.Hits, OSRHits: f.OSRHits}
		for _, cs := range f.Callsites {
			ss.ByCallsite = append(ss.ByCallsite, spesh.SpeshStatsByCallsite{
				CS:       &spesh.Callsite{ID: cs.ID},
				Hits:     cs.Hits,
				OSRHits:  cs.OSRHits,
				MaxDepth: cs.MaxDepth,
			})
		}
		sfs = append(sfs, &spesh.StaticFrame{
			Name:          f.Name,
			CUID:          f.CUID,
			Specializable: f.Specializable,
			BytecodeSize:  f.BytecodeSize,
			Threshold:     f.Threshold,
			Facts:         &spesh.SpeshFacts{Stats: ss},
		})
	}
	return sfs, nil
}
