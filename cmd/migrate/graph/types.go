// Package graph builds the dependency graph between loaded workflows and
// computes a deterministic migration order, grounded on the teacher's
// compiler.CompileWorkflowSchema (dependency/dependents edge construction
// plus DFS cycle validation) and on the from-scratch Kahn's-algorithm
// GetPushOrder found in the enthus-appdev-n8n-cli reference source.
package graph

import "github.com/n8n-migrator/migrator/common/workflow"

// Edge is a directed dependency: From invokes To via one or more
// reference-bearing nodes. Duplicate edges between the same (From,To) pair
// are collapsed to one, with Count tracking how many nodes contributed it;
// NodeID/NodeName/Hint/OldTarget describe the first node Analyze walked into
// that pair, representative rather than exhaustive, since ReferenceUpdater
// resolves every node independently off the workflow tree, not off Edge.
type Edge struct {
	From      int // index into Graph.Workflows
	To        int
	Count     int // number of reference-bearing nodes collapsed into this edge
	NodeID    string
	NodeName  string
	Hint      string // cachedResultName, for name-first resolution
	OldTarget string // workflowId.value, the pre-migration id
}

// UnresolvedRef is a reference edge whose target could not be matched to any
// loaded workflow, by either name hint or old id.
type UnresolvedRef struct {
	WorkflowName string
	NodeID       string
	NodeName     string
	Hint         string
	OldTarget    string
}

// Cycle is a set of workflow indices that depend on each other, directly or
// transitively, including single-node self-loops.
type Cycle struct {
	Members []int
}

// Graph is the result of Analyze: the loaded workflow set plus the edges
// between them and anything Analyze could not resolve or had to flag.
type Graph struct {
	Workflows []*workflow.Workflow
	Edges     []Edge
	Unresolved []UnresolvedRef
	Cycles    []Cycle

	// byName and byOldID back the resolution policy used when building
	// Edges: a reference whose cachedResultName matches a loaded workflow's
	// Name wins over one matched only by old id, per spec.md §4.2.
	byName  map[string]int
	byOldID map[string]int
}

// Stats summarizes a Graph for logging and the final report.
type Stats struct {
	WorkflowCount   int
	EdgeCount       int
	UnresolvedCount int
	CycleCount      int
}

func (g *Graph) Stats() Stats {
	return Stats{
		WorkflowCount:   len(g.Workflows),
		EdgeCount:       len(g.Edges),
		UnresolvedCount: len(g.Unresolved),
		CycleCount:      len(g.Cycles),
	}
}
