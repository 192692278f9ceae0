package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickops/jobflow/pkg/models"
)

// diamond builds {a->b, a->c, b->d, c->d}.
func diamond() *Graph {
	return New(
		[]string{"a", "b", "c", "d"},
		[]Edge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	)
}

func TestGraph_Validate_AcceptsDiamond(t *testing.T) {
	require.NoError(t, diamond().Validate())
}

func TestGraph_Validate_RejectsDanglingEdge(t *testing.T) {
	g := New([]string{"a"}, []Edge{{Source: "a", Target: "ghost"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown node "ghost"`)
}

func TestGraph_Validate_RejectsSelfEdge(t *testing.T) {
	g := New([]string{"a"}, []Edge{{Source: "a", Target: "a"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depends on itself")
}

func TestGraph_Validate_RejectsCycle(t *testing.T) {
	g := New(
		[]string{"a", "b", "c"},
		[]Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "a"},
		},
	)

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestGraph_Validate_ReportsAllDanglingEdges(t *testing.T) {
	g := New([]string{"a"}, []Edge{
		{Source: "a", Target: "ghost1"},
		{Source: "ghost2", Target: "a"},
	})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost1")
	assert.Contains(t, err.Error(), "ghost2")
}

func TestGraph_NeighborSets(t *testing.T) {
	g := diamond()

	assert.Empty(t, g.Dependencies("a"))
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	assert.Equal(t, []string{"b", "c"}, g.Dependencies("d"))

	assert.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	assert.Empty(t, g.Dependents("d"))
}

func TestGraph_DownstreamClosure(t *testing.T) {
	g := New(
		[]string{"a", "b", "c", "d", "e"},
		[]Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "e", Target: "d"},
		},
	)

	assert.Equal(t, []string{"b", "c", "d"}, g.DownstreamClosure("a"))
	assert.Equal(t, []string{"c", "d"}, g.DownstreamClosure("b"))
	assert.Empty(t, g.DownstreamClosure("c"))
	assert.Equal(t, []string{"d"}, g.DownstreamClosure("e"))
}

func TestGraph_ReadyNodes_InitialWave(t *testing.T) {
	g := diamond()

	ready := g.ReadyNodes(nil, nil, nil, models.StrategyContinue)
	assert.Equal(t, []string{"a"}, ready)
}

func TestGraph_ReadyNodes_AfterRoot(t *testing.T) {
	g := diamond()

	ready := g.ReadyNodes(map[string]bool{"a": true}, nil, nil, models.StrategyContinue)
	assert.Equal(t, []string{"b", "c"}, ready)
}

func TestGraph_ReadyNodes_JoinWaitsForAllDependencies(t *testing.T) {
	g := diamond()

	executed := map[string]bool{"a": true, "b": true}
	assert.Empty(t, g.ReadyNodes(executed, nil, nil, models.StrategyContinue))

	executed["c"] = true
	assert.Equal(t, []string{"d"}, g.ReadyNodes(executed, nil, nil, models.StrategyContinue))
}

func TestGraph_ReadyNodes_SkippedNodesAreWithheld(t *testing.T) {
	g := diamond()

	executed := map[string]bool{"a": true}
	skipped := map[string]bool{"b": true}

	assert.Equal(t, []string{"c"}, g.ReadyNodes(executed, skipped, nil, models.StrategyContinue))
}

func TestGraph_ReadyNodes_FailedDependencyByStrategy(t *testing.T) {
	g := diamond()

	// b failed but executed; c succeeded.
	executed := map[string]bool{"a": true, "b": true, "c": true}
	failed := map[string]bool{"b": true}

	// continue admits d despite the failed dependency.
	assert.Equal(t, []string{"d"}, g.ReadyNodes(executed, nil, failed, models.StrategyContinue))

	// skip-downstream withholds d: any failed dependency cuts the path.
	assert.Empty(t, g.ReadyNodes(executed, nil, failed, models.StrategySkipDownstream))
}

func TestFromFlow(t *testing.T) {
	flow := &models.JobFlow{
		ID:   "flow-1",
		Name: "pipeline",
		Nodes: []*models.FlowNode{
			{ID: "a", JobID: "job-a"},
			{ID: "b", JobID: "job-b"},
		},
		Edges: []*models.FlowEdge{
			{Source: "a", Target: "b"},
		},
	}

	g := FromFlow(flow)
	require.NoError(t, g.Validate())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
	assert.Equal(t, []string{"a"}, g.Dependencies("b"))
}
