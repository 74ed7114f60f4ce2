package graph

import "github.com/n8n-migrator/migrator/common/workflow"

// Analyze indexes workflows by name and old id, then walks every
// reference-bearing node to build the edge set. Resolution is name-first:
// a reference whose cachedResultName matches a loaded workflow wins even if
// its workflowId.value also happens to collide with a different workflow's
// old id, since old ids are instance-local and names are the only stable
// cross-instance key (spec.md §4.2, step 3).
func Analyze(workflows []*workflow.Workflow) *Graph {
	g := &Graph{
		Workflows: workflows,
		byName:    make(map[string]int, len(workflows)),
		byOldID:   make(map[string]int, len(workflows)),
	}
	edgeIndex := make(map[[2]int]int) // (From,To) -> index into g.Edges

	for i, wf := range workflows {
		if wf.Name != "" {
			if _, exists := g.byName[wf.Name]; !exists {
				g.byName[wf.Name] = i
			}
		}
		if wf.ID != "" {
			g.byOldID[wf.ID] = i
		}
	}

	for i, wf := range workflows {
		for _, node := range wf.Nodes {
			if !workflow.IsReferenceBearing(node.Type) {
				continue
			}
			ref, ok := workflow.ReferenceRef(node.Parameters)
			if !ok {
				continue
			}

			target, resolved := g.resolve(ref)
			if !resolved {
				g.Unresolved = append(g.Unresolved, UnresolvedRef{
					WorkflowName: wf.Name,
					NodeID:       node.ID,
					NodeName:     node.Name,
					Hint:         ref.CachedResultName,
					OldTarget:    ref.Value,
				})
				continue
			}

			key := [2]int{i, target}
			if idx, exists := edgeIndex[key]; exists {
				g.Edges[idx].Count++
				continue
			}
			edgeIndex[key] = len(g.Edges)
			g.Edges = append(g.Edges, Edge{
				From:      i,
				To:        target,
				Count:     1,
				NodeID:    node.ID,
				NodeName:  node.Name,
				Hint:      ref.CachedResultName,
				OldTarget: ref.Value,
			})
		}
	}

	g.Cycles = findCycles(g)
	return g
}

// resolve applies the name-first, oldId-fallback policy: try
// cachedResultName against the loaded name index, then fall back to
// workflowId.value against the loaded old-id index.
func (g *Graph) resolve(ref workflow.WorkflowIDRef) (int, bool) {
	if ref.CachedResultName != "" {
		if idx, ok := g.byName[ref.CachedResultName]; ok {
			return idx, true
		}
	}
	if idx, ok := g.byOldID[ref.Value]; ok {
		return idx, true
	}
	return 0, false
}
