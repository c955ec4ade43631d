package stages

import (
	"fmt"
	"strings"
)

// Stage names in the fixed ingestion order.
const (
	Segment  = "segment"
	Parse    = "parse"
	Extract  = "extract"
	Enrich   = "enrich"
	Merge    = "merge"
	Classify = "classify"
)

// Spec declares one stage and the stages that must complete before it runs.
// The pipeline is defined entirely by the specs table below; adding or
// reordering stages is a data change.
type Spec struct {
	Name          string
	Prerequisites []string
}

var pipelineSpecs = []Spec{
	{Name: Segment},
	{Name: Parse, Prerequisites: []string{Segment}},
	{Name: Extract, Prerequisites: []string{Parse}},
	{Name: Enrich, Prerequisites: []string{Extract}},
	{Name: Merge, Prerequisites: []string{Enrich}},
	{Name: Classify, Prerequisites: []string{Merge}},
}

// Graph is a validated, read-only view of the stage dependency table.
type Graph struct {
	order   []string
	prereqs map[string][]string
	index   map[string]int
}

// New validates a spec table and builds a graph from it. Every prerequisite
// must name a stage declared earlier in the table, which guarantees the order
// is topological and the graph acyclic.
func New(specs []Spec) (*Graph, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("stage table is empty")
	}

	graph := &Graph{
		order:   make([]string, 0, len(specs)),
		prereqs: make(map[string][]string, len(specs)),
		index:   make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("stage %d: name is empty", i)
		}
		if _, exists := graph.index[name]; exists {
			return nil, fmt.Errorf("stage %q declared twice", name)
		}
		for _, prereq := range spec.Prerequisites {
			if _, known := graph.index[prereq]; !known {
				return nil, fmt.Errorf("stage %q: prerequisite %q is not a previously declared stage", name, prereq)
			}
		}
		graph.index[name] = i
		graph.order = append(graph.order, name)
		graph.prereqs[name] = append([]string(nil), spec.Prerequisites...)
	}
	return graph, nil
}

func mustNew(specs []Spec) *Graph {
	graph, err := New(specs)
	if err != nil {
		panic(err)
	}
	return graph
}

var defaultGraph = mustNew(pipelineSpecs)

// Default returns the fixed six-stage ingestion graph.
func Default() *Graph {
	return defaultGraph
}

// StageOrder returns the stage names in topological order.
func (g *Graph) StageOrder() []string {
	cp := make([]string, len(g.order))
	copy(cp, g.order)
	return cp
}

// Prerequisites returns the stages that must complete before the named stage,
// and whether the stage is known. The first stage has no prerequisites.
func (g *Graph) Prerequisites(stage string) ([]string, bool) {
	prereqs, ok := g.prereqs[stage]
	if !ok {
		return nil, false
	}
	cp := make([]string, len(prereqs))
	copy(cp, prereqs)
	return cp, true
}

// Known reports whether a stage name is part of the pipeline.
func (g *Graph) Known(stage string) bool {
	_, ok := g.index[stage]
	return ok
}

// First returns the entry stage of the pipeline.
func (g *Graph) First() string {
	return g.order[0]
}

// Terminal returns the final stage of the pipeline.
func (g *Graph) Terminal() string {
	return g.order[len(g.order)-1]
}
