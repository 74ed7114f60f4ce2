package graph

import "sort"

// TopoSort returns workflow indices in dependency order: a workflow only
// appears after every workflow it references, so Phase 4a creates each
// dependency before its dependents. Ties are broken by workflow name for a
// deterministic, reviewable order across runs.
//
// Grounded on the enthus-appdev-n8n-cli reference source's GetPushOrder: a
// from-scratch Kahn's algorithm over a dependedBy/inDegree pair, generalized
// here with a name-based tie-break and residual-graph handling for members
// left over after the queue drains (the members of the cycles findCycles
// reports, plus any workflow that depends on one transitively).
func TopoSort(g *Graph) []int {
	n := len(g.Workflows)
	inDegree := make([]int, n)
	dependents := make([][]int, n) // dependents[i] = workflows that depend on i

	for _, e := range g.Edges {
		if e.From == e.To {
			continue // self-loop: not a real ordering constraint, reported as a cycle instead
		}
		dependents[e.To] = append(dependents[e.To], e.From)
		inDegree[e.From]++
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	sortByName(g, ready)

	order := make([]int, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []int
		for _, dep := range dependents[next] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sortByName(g, newlyReady)
		ready = mergeSorted(g, ready, newlyReady)
	}

	if len(order) < n {
		// Residual nodes are part of a cycle, or depend on one transitively.
		// leftoverOrder sorts this residual graph by its own SCC
		// condensation so every workflow still appears exactly once in the
		// returned order, letting the caller decide (per Config.Strict)
		// whether to proceed.
		seen := make(map[int]bool, len(order))
		for _, i := range order {
			seen[i] = true
		}
		var leftover []int
		for i := 0; i < n; i++ {
			if !seen[i] {
				leftover = append(leftover, i)
			}
		}
		order = append(order, leftoverOrder(g, leftover)...)
	}

	return order
}

// leftoverOrder topologically sorts the subgraph induced on leftover by
// condensing it into strongly connected components (via the same Tarjan
// implementation findCycles uses) and ordering those components
// dependency-first, tie-broken by name within each component. This is the
// residual-graph-SCC order: plain name order alone would ignore real
// dependency edges between two different cycles (or between a cycle and a
// node that merely depends on one), putting a dependent ahead of its
// dependency whenever its name happens to sort first.
func leftoverOrder(g *Graph, leftover []int) []int {
	sortByName(g, leftover) // deterministic DFS root order among independent components
	n := len(leftover)
	localOf := make(map[int]int, n)
	for local, global := range leftover {
		localOf[global] = local
	}

	adj := make([][]int, n)
	for _, e := range g.Edges {
		if e.From == e.To {
			continue
		}
		fromLocal, fromOK := localOf[e.From]
		toLocal, toOK := localOf[e.To]
		if !fromOK || !toOK {
			continue
		}
		adj[fromLocal] = append(adj[fromLocal], toLocal)
	}

	t := &tarjan{
		adj:     adj,
		index:   make([]int, n),
		low:     make([]int, n),
		onStack: make([]bool, n),
		visited: make([]bool, n),
	}
	for i := range t.index {
		t.index[i] = -1
	}
	for i := 0; i < n; i++ {
		if !t.visited[i] {
			t.strongConnect(i)
		}
	}

	// Tarjan finalizes a component only once everything it points to
	// (depends on) has already been finalized, so t.sccs already comes out
	// in dependency-first order for a "From depends on To" adjacency.
	out := make([]int, 0, n)
	for _, comp := range t.sccs {
		members := make([]int, len(comp))
		for i, local := range comp {
			members[i] = leftover[local]
		}
		sortByName(g, members)
		out = append(out, members...)
	}
	return out
}

func sortByName(g *Graph, idx []int) {
	sort.Slice(idx, func(a, b int) bool {
		return g.Workflows[idx[a]].Name < g.Workflows[idx[b]].Name
	})
}

func mergeSorted(g *Graph, a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	merged := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if g.Workflows[a[i]].Name <= g.Workflows[b[j]].Name {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
