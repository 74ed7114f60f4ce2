// Package rewrite substitutes new ids into the reference-bearing nodes of a
// workflow's parameter tree after Phase 4a has created every dependency and
// idmap knows its new id. The traversal pattern (explicit visited set passed
// as an argument, depth ceiling) is grounded on the teacher's compiler IR
// walk in cmd/workflow-runner/compiler/ir.go, adapted from a node-graph
// walk to a generic JSON-tree walk since n8n's parameter shapes are
// arbitrarily nested maps and slices rather than a fixed IR.
package rewrite

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/common/workflow"
)

// maxDepth bounds the recursive descent into a node's parameters, guarding
// against a pathological or malicious workflow file with deeply nested or
// cyclic-by-construction JSON (object graphs decoded from JSON are trees,
// never truly cyclic, but malformed input can still nest absurdly deep).
const maxDepth = 50

// Stats summarizes what Rewrite changed in one workflow.
type Stats struct {
	ReferencesRewritten  int
	ReferencesUnresolved int
}

// Rewrite returns a deep copy of wf with workflowId.value (and
// cachedResultName) substituted on every reference-bearing node using
// mapper, per spec.md §4.5's Rewrite(workflow, idMapper) -> (workflow',
// stats) contract: wf itself is left untouched so callers that already hold
// a pre-rewrite snapshot (Phase 4b's diff baseline, in particular) never see
// it mutate out from under them. A reference-bearing node's own parameters
// map is the common case, but some node types (branching, loop, and
// sub-workflow-in-expression constructs) embed a workflowId object deeper in
// the tree, so each node's full parameter tree is walked rather than only
// its top level. Unresolved references are left untouched and counted, not
// erased, so a partially-mappable workflow still uploads with its other
// references intact.
func Rewrite(wf *workflow.Workflow, mapper *idmap.Mapper) (*workflow.Workflow, Stats, error) {
	var stats Stats
	out := cloneWorkflow(wf)

	for i := range out.Nodes {
		node := &out.Nodes[i]
		if !workflow.IsReferenceBearing(node.Type) {
			continue
		}

		var walkErr error
		visited := make(map[uintptr]bool)
		Walk(node.Parameters, 0, visited, func(obj map[string]interface{}) {
			if walkErr != nil {
				return
			}
			ref, ok := extractRef(obj)
			if !ok {
				return
			}
			rec, resolved := mapper.Resolve(ref.CachedResultName, ref.Value)
			if !resolved {
				stats.ReferencesUnresolved++
				return
			}
			if err := setReference(obj, rec.NewID, rec.Name); err != nil {
				walkErr = fmt.Errorf("rewrite node %q in workflow %q: %w", node.Name, wf.Name, err)
				return
			}
			stats.ReferencesRewritten++
		})
		if walkErr != nil {
			return out, stats, walkErr
		}
	}
	return out, stats, nil
}

// cloneWorkflow deep-copies the parts of wf Rewrite might touch. Nodes get a
// fresh backing array and each node's Parameters tree is deep-copied via
// deepCopyValue, since setReference mutates a workflowId object in place and
// that object must not be shared with wf's original tree. Connections and
// Settings are opaque json.RawMessage the engine never mutates, and Tags are
// plain value structs, so both are safe to copy shallowly.
func cloneWorkflow(wf *workflow.Workflow) *workflow.Workflow {
	clone := *wf
	clone.Nodes = make([]workflow.Node, len(wf.Nodes))
	for i, n := range wf.Nodes {
		nc := n
		if n.Parameters != nil {
			nc.Parameters, _ = deepCopyValue(n.Parameters).(map[string]interface{})
		}
		if n.Extra != nil {
			extra := make(map[string]json.RawMessage, len(n.Extra))
			for k, v := range n.Extra {
				extra[k] = v
			}
			nc.Extra = extra
		}
		clone.Nodes[i] = nc
	}
	if wf.Tags != nil {
		clone.Tags = append([]workflow.Tag(nil), wf.Tags...)
	}
	return &clone
}

// deepCopyValue recursively copies a decoded-JSON value. Scalars
// (string/float64/bool/nil) are immutable in Go so they're returned as-is.
func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, cv := range val {
			out[k] = deepCopyValue(cv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, cv := range val {
			out[i] = deepCopyValue(cv)
		}
		return out
	default:
		return val
	}
}

// extractRef reads a workflowId reference directly from a candidate object
// node encountered during Walk, rather than from a node's top-level
// parameters map as workflow.ReferenceRef does for the common case.
func extractRef(obj map[string]interface{}) (workflow.WorkflowIDRef, bool) {
	raw, exists := obj["workflowId"]
	if !exists {
		return workflow.WorkflowIDRef{}, false
	}
	wrapped, ok := raw.(map[string]interface{})
	if !ok {
		return workflow.WorkflowIDRef{}, false
	}
	return workflow.ReferenceRef(map[string]interface{}{"workflowId": wrapped})
}

// setReference writes the new id and name back into the parameters.workflowId
// object in place, preserving mode and any other sibling keys untouched.
func setReference(params map[string]interface{}, newID, name string) error {
	raw, ok := params["workflowId"]
	if !ok {
		return fmt.Errorf("parameters has no workflowId")
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("parameters.workflowId is not an object")
	}
	obj["value"] = newID
	obj["cachedResultName"] = name
	return nil
}

// Walk recurses into an arbitrary decoded-JSON value (map[string]interface{}
// or []interface{}), invoking visit on every map it encounters. visited
// guards against revisiting the same map instance reached via two paths
// (n8n's parameter trees don't alias, but generic callers of Walk might hand
// in a tree that does); depth is the current descent and bails past
// maxDepth rather than looping forever on malformed input.
func Walk(value interface{}, depth int, visited map[uintptr]bool, visit func(map[string]interface{})) {
	if depth > maxDepth {
		return
	}
	switch v := value.(type) {
	case map[string]interface{}:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true
		visit(v)
		for _, child := range v {
			Walk(child, depth+1, visited, visit)
		}
	case []interface{}:
		for _, child := range v {
			Walk(child, depth+1, visited, visit)
		}
	}
}
