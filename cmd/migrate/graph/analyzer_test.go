package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8n-migrator/migrator/common/workflow"
)

func refNode(id, name, targetValue, targetHint string) workflow.Node {
	return workflow.Node{
		ID:   id,
		Name: name,
		Type: "n8n-nodes-base.executeWorkflow",
		Parameters: map[string]interface{}{
			"workflowId": map[string]interface{}{
				"value":            targetValue,
				"cachedResultName": targetHint,
			},
		},
	}
}

func TestAnalyzeResolvesByNameFirst(t *testing.T) {
	parent := &workflow.Workflow{ID: "old-1", Name: "Parent", Nodes: []workflow.Node{
		refNode("n1", "Call Child", "old-999-stale", "Child"),
	}}
	child := &workflow.Workflow{ID: "old-2", Name: "Child"}

	g := Analyze([]*workflow.Workflow{parent, child})

	require.Len(t, g.Edges, 1)
	assert.Equal(t, 0, g.Edges[0].From)
	assert.Equal(t, 1, g.Edges[0].To)
	assert.Empty(t, g.Unresolved)
}

func TestAnalyzeFallsBackToOldID(t *testing.T) {
	parent := &workflow.Workflow{ID: "old-1", Name: "Parent", Nodes: []workflow.Node{
		refNode("n1", "Call Child", "old-2", ""),
	}}
	child := &workflow.Workflow{ID: "old-2", Name: "Child"}

	g := Analyze([]*workflow.Workflow{parent, child})

	require.Len(t, g.Edges, 1)
	assert.Equal(t, 1, g.Edges[0].To)
}

func TestAnalyzeReportsUnresolved(t *testing.T) {
	parent := &workflow.Workflow{ID: "old-1", Name: "Parent", Nodes: []workflow.Node{
		refNode("n1", "Call Ghost", "old-missing", "Ghost"),
	}}

	g := Analyze([]*workflow.Workflow{parent})

	assert.Empty(t, g.Edges)
	require.Len(t, g.Unresolved, 1)
	assert.Equal(t, "Ghost", g.Unresolved[0].Hint)
}

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	parent := &workflow.Workflow{ID: "1", Name: "Parent", Nodes: []workflow.Node{
		refNode("n1", "Call Child", "2", "Child"),
	}}
	child := &workflow.Workflow{ID: "2", Name: "Child"}

	g := Analyze([]*workflow.Workflow{parent, child})
	order := TopoSort(g)

	require.Len(t, order, 2)
	assert.Equal(t, 1, order[0]) // Child (index 1) before Parent (index 0)
	assert.Equal(t, 0, order[1])
}

func TestTopoSortBreaksTiesByName(t *testing.T) {
	a := &workflow.Workflow{ID: "1", Name: "Bravo"}
	b := &workflow.Workflow{ID: "2", Name: "Alpha"}
	c := &workflow.Workflow{ID: "3", Name: "Charlie"}

	g := Analyze([]*workflow.Workflow{a, b, c})
	order := TopoSort(g)

	require.Len(t, order, 3)
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"}, []string{
		g.Workflows[order[0]].Name, g.Workflows[order[1]].Name, g.Workflows[order[2]].Name,
	})
}

func TestFindCyclesDetectsTwoNodeCycle(t *testing.T) {
	a := &workflow.Workflow{ID: "1", Name: "A", Nodes: []workflow.Node{refNode("n1", "toB", "2", "B")}}
	b := &workflow.Workflow{ID: "2", Name: "B", Nodes: []workflow.Node{refNode("n2", "toA", "1", "A")}}

	g := Analyze([]*workflow.Workflow{a, b})

	require.Len(t, g.Cycles, 1)
	assert.ElementsMatch(t, []int{0, 1}, g.Cycles[0].Members)
}

func TestFindCyclesDetectsSelfLoop(t *testing.T) {
	a := &workflow.Workflow{ID: "1", Name: "Self", Nodes: []workflow.Node{refNode("n1", "toSelf", "1", "Self")}}

	g := Analyze([]*workflow.Workflow{a})

	require.Len(t, g.Cycles, 1)
	assert.Equal(t, []int{0}, g.Cycles[0].Members)
}

func TestAnalyzeCollapsesDuplicateEdges(t *testing.T) {
	parent := &workflow.Workflow{ID: "1", Name: "Parent", Nodes: []workflow.Node{
		refNode("n1", "toChild1", "2", "Child"),
		refNode("n2", "toChild2", "2", "Child"),
	}}
	child := &workflow.Workflow{ID: "2", Name: "Child"}

	g := Analyze([]*workflow.Workflow{parent, child})

	require.Len(t, g.Edges, 1)
	assert.Equal(t, 2, g.Edges[0].Count)
}

func TestTopoSortOrdersIndependentCyclesByTheirOwnDependency(t *testing.T) {
	// A<->B is one cycle, C<->D is another, and A additionally depends on
	// C. Plain name order would put A and B (alphabetically first) ahead of
	// C and D, violating A's real dependency on C.
	a := &workflow.Workflow{ID: "1", Name: "A", Nodes: []workflow.Node{
		refNode("n1", "toB", "2", "B"),
		refNode("n2", "toC", "3", "C"),
	}}
	b := &workflow.Workflow{ID: "2", Name: "B", Nodes: []workflow.Node{refNode("n3", "toA", "1", "A")}}
	c := &workflow.Workflow{ID: "3", Name: "C", Nodes: []workflow.Node{refNode("n4", "toD", "4", "D")}}
	d := &workflow.Workflow{ID: "4", Name: "D", Nodes: []workflow.Node{refNode("n5", "toC", "3", "C")}}

	g := Analyze([]*workflow.Workflow{a, b, c, d})
	order := TopoSort(g)

	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = g.Workflows[idx].Name
	}
	assert.Equal(t, []string{"C", "D", "A", "B"}, names)
}

func TestTopoSortStillReturnsAllMembersWithCycle(t *testing.T) {
	a := &workflow.Workflow{ID: "1", Name: "A", Nodes: []workflow.Node{refNode("n1", "toB", "2", "B")}}
	b := &workflow.Workflow{ID: "2", Name: "B", Nodes: []workflow.Node{refNode("n2", "toA", "1", "A")}}
	c := &workflow.Workflow{ID: "3", Name: "C"}

	g := Analyze([]*workflow.Workflow{a, b, c})
	order := TopoSort(g)

	assert.Len(t, order, 3)
	assert.ElementsMatch(t, []int{0, 1, 2}, order)
}
