// Package graph resolves dependency order over a flow's node/edge
// definition: validity, neighbor sets, downstream closures, and per-wave
// readiness.
package graph

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/quickops/jobflow/pkg/models"
)

// Edge is a directed dependency from Source to Target.
type Edge struct {
	Source string
	Target string
}

// Graph is an immutable view over a node/edge definition. Build one per
// flow execution; all methods are safe for concurrent readers.
type Graph struct {
	nodes        map[string]bool
	edges        []Edge
	dependencies map[string][]string // target -> sources
	dependents   map[string][]string // source -> targets
}

// New builds a graph from node ids and edges. Shape problems are reported
// by Validate, not here.
func New(nodeIDs []string, edges []Edge) *Graph {
	g := &Graph{
		nodes:        make(map[string]bool, len(nodeIDs)),
		edges:        edges,
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
	}

	for _, id := range nodeIDs {
		g.nodes[id] = true
	}

	for _, e := range edges {
		g.dependencies[e.Target] = append(g.dependencies[e.Target], e.Source)
		g.dependents[e.Source] = append(g.dependents[e.Source], e.Target)
	}

	return g
}

// FromFlow builds the graph of a flow definition.
func FromFlow(flow *models.JobFlow) *Graph {
	nodeIDs := make([]string, 0, len(flow.Nodes))
	for _, n := range flow.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	edges := make([]Edge, 0, len(flow.Edges))
	for _, e := range flow.Edges {
		edges = append(edges, Edge{Source: e.Source, Target: e.Target})
	}

	return New(nodeIDs, edges)
}

// Validate rejects dangling edge references, self-edges, and cycles. All
// problems found are aggregated into one error.
func (g *Graph) Validate() error {
	var result *multierror.Error

	for _, e := range g.edges {
		if !g.nodes[e.Source] {
			result = multierror.Append(result, fmt.Errorf("edge %s->%s references unknown node %q", e.Source, e.Target, e.Source))
		}

		if !g.nodes[e.Target] {
			result = multierror.Append(result, fmt.Errorf("edge %s->%s references unknown node %q", e.Source, e.Target, e.Target))
		}

		if e.Source == e.Target {
			result = multierror.Append(result, fmt.Errorf("node %q depends on itself", e.Source))
		}
	}

	// Dangling references poison the traversal; report them alone first.
	if result.ErrorOrNil() != nil {
		return result
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		result = multierror.Append(result, fmt.Errorf("dependency cycle: %v", cycle))
	}

	return result.ErrorOrNil()
}

// findCycle runs a DFS over every node, tracking the current path. It
// returns one cycle when found, nil otherwise.
func (g *Graph) findCycle() []string {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)

	state := make(map[string]int, len(g.nodes))

	var path []string

	var visit func(id string) []string

	visit = func(id string) []string {
		state[id] = onPath
		path = append(path, id)

		for _, next := range g.sortedDependents(id) {
			switch state[next] {
			case onPath:
				// Close the loop for a readable message.
				start := 0
				for i, p := range path {
					if p == next {
						start = i

						break
					}
				}

				return append(append([]string{}, path[start:]...), next)
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		state[id] = done
		path = path[:len(path)-1]

		return nil
	}

	for _, id := range g.sortedNodes() {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

// Dependencies returns the direct upstream nodes of a node.
func (g *Graph) Dependencies(nodeID string) []string {
	return sortedCopy(g.dependencies[nodeID])
}

// Dependents returns the direct downstream nodes of a node.
func (g *Graph) Dependents(nodeID string) []string {
	return sortedCopy(g.dependents[nodeID])
}

// DownstreamClosure returns every transitive downstream node, used for
// skip propagation after a failure.
func (g *Graph) DownstreamClosure(nodeID string) []string {
	closure := make(map[string]bool)
	toVisit := append([]string{}, g.dependents[nodeID]...)

	for len(toVisit) > 0 {
		current := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]

		if closure[current] {
			continue
		}

		closure[current] = true
		toVisit = append(toVisit, g.dependents[current]...)
	}

	ids := make([]string, 0, len(closure))
	for id := range closure {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// ReadyNodes returns nodes whose dependencies are all executed, excluding
// already executed or skipped nodes. Under the skip-downstream strategy a
// node with any failed dependency is withheld as well; fail-fast and
// continue leave failed-dependency handling to the engine.
func (g *Graph) ReadyNodes(executed, skipped, failed map[string]bool, strategy models.ErrorStrategy) []string {
	var ready []string

	for _, id := range g.sortedNodes() {
		if executed[id] || skipped[id] {
			continue
		}

		admissible := true

		for _, dep := range g.dependencies[id] {
			if !executed[dep] {
				admissible = false

				break
			}

			if failed[dep] && strategy == models.StrategySkipDownstream {
				admissible = false

				break
			}
		}

		if admissible {
			ready = append(ready, id)
		}
	}

	return ready
}

// Nodes returns all node ids.
func (g *Graph) Nodes() []string {
	return g.sortedNodes()
}

func (g *Graph) sortedNodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func (g *Graph) sortedDependents(id string) []string {
	return sortedCopy(g.dependents[id])
}

func sortedCopy(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)

	return out
}
