// Package workflow holds the domain types shared by every migration phase:
// loader, graph, idmap, upload, rewrite, and verify all speak this
// vocabulary, the way the teacher's common/sdk package is the shared IR
// vocabulary for compiler, coordinator, operators, and resolver.
package workflow

import (
	"encoding/json"
	"fmt"
)

// referenceBearingTypes is the known set of n8n node types that invoke
// another workflow by id. Keeping it as a single map means adding a new
// type (n8n ships new sub-workflow-invoking node types periodically) is a
// one-line change, per the "capability test in disguise" note in spec.md §9.
var referenceBearingTypes = map[string]bool{
	"n8n-nodes-base.executeWorkflow":       true,
	"@n8n/n8n-nodes-langchain.toolWorkflow": true,
}

// IsReferenceBearing reports whether a node type can carry a cross-workflow
// reference. Centralizing this predicate keeps graph, rewrite, and verify
// from drifting out of sync on what counts as an "elo".
func IsReferenceBearing(nodeType string) bool {
	return referenceBearingTypes[nodeType]
}

// Workflow is the unit of migration. Name is the stable cross-instance key;
// ID is opaque and instance-local (meaningless once migrated).
type Workflow struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Active bool   `json:"active,omitempty"`
	Nodes  []Node `json:"nodes"`
	// Connections and Settings are opaque per spec.md §3: the engine never
	// interprets node wiring or workflow-level settings, only passes them
	// through and (for Nodes) rewrites embedded references.
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Tags        []Tag           `json:"tags,omitempty"`

	// SourcePath is the file this workflow was loaded from; not part of the
	// n8n wire format, used for error messages and sourceFolder derivation.
	SourcePath string `json:"-"`
	// SourceFolder is the first directory under the load root on the way to
	// SourcePath ("" for a file directly in the root), used for default
	// tagging (SPEC_FULL.md §4.1).
	SourceFolder string `json:"-"`
}

// Tag mirrors n8n's tag shape (id + name) rather than a bare string, since
// the wire format always carries both; the engine only ever reads Name.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// TagNames returns the plain tag name set, the view every filter and graph
// component actually needs.
func (w Workflow) TagNames() []string {
	names := make([]string, 0, len(w.Tags))
	for _, t := range w.Tags {
		names = append(names, t.Name)
	}
	return names
}

// HasTag reports whether the workflow carries the given tag name.
func (w Workflow) HasTag(name string) bool {
	for _, t := range w.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Node is a single workflow step. The engine treats every node as opaque
// JSON except for the few fields it must read or rewrite on
// reference-bearing nodes, so Node round-trips arbitrary node shapes
// without loss.
type Node struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`

	// Parameters carries the node's full parameter map, decoded generically
	// (map[string]interface{}/[]interface{}) so ReferenceUpdater can recurse
	// into it without a type switch per n8n node type — see rewrite.Rewrite.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Extra preserves any other top-level node fields (position, typeVersion,
	// credentials, webhookId, ...) round-trip-safe without the engine ever
	// needing to name them individually.
	Extra map[string]json.RawMessage `json:"-"`
}

// nodeAlias avoids infinite recursion when Node's custom (Un)MarshalJSON
// delegates back into the standard encoding for the known fields.
type nodeAlias Node

// MarshalJSON round-trips Extra alongside the known fields, so a node field
// this engine doesn't know about (position, typeVersion, credentials, ...)
// survives an unmodified load-then-save untouched.
func (n Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(n.Extra)+4)
	for k, v := range n.Extra {
		out[k] = v
	}

	known, err := json.Marshal(nodeAlias(n))
	if err != nil {
		return nil, fmt.Errorf("marshal node known fields: %w", err)
	}
	var knownFields map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownFields); err != nil {
		return nil, fmt.Errorf("decode node known fields: %w", err)
	}
	for k, v := range knownFields {
		out[k] = v
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the known fields onto Node and stashes everything
// else in Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	var alias nodeAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*n = Node(alias)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, known := range []string{"id", "name", "type", "parameters"} {
		delete(all, known)
	}
	if len(all) > 0 {
		n.Extra = all
	}
	return nil
}

// WorkflowIDRef is the shape of the parameters.workflowId object on a
// reference-bearing node: the referenced workflow's old id, an optional
// name hint used for name-first resolution, and an opaque mode n8n itself
// interprets (e.g. "id" vs "list" vs "parameter") which this engine never
// inspects.
type WorkflowIDRef struct {
	Value            string `json:"value"`
	CachedResultName string `json:"cachedResultName,omitempty"`
	Mode             string `json:"mode,omitempty"`
}

// ReferenceRef extracts the workflowId reference from a reference-bearing
// node's parameters, if present and well-formed. Returns ok=false for any
// node whose parameters don't carry a workflowId.value — this is the single
// place that knows the shape of a reference, per spec.md §4.2 step 2.
func ReferenceRef(params map[string]interface{}) (ref WorkflowIDRef, ok bool) {
	raw, exists := params["workflowId"]
	if !exists {
		return WorkflowIDRef{}, false
	}
	obj, isObj := raw.(map[string]interface{})
	if !isObj {
		return WorkflowIDRef{}, false
	}
	value, hasValue := obj["value"].(string)
	if !hasValue || value == "" {
		return WorkflowIDRef{}, false
	}
	ref.Value = value
	if name, ok := obj["cachedResultName"].(string); ok {
		ref.CachedResultName = name
	}
	if mode, ok := obj["mode"].(string); ok {
		ref.Mode = mode
	}
	return ref, true
}
