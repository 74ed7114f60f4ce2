// Package verify runs Phase 6's post-migration integrity checks against the
// target n8n instance itself, not just this run's in-memory bookkeeping: a
// create or patch can return 200 and still not stick server-side, so C1-C4
// re-fetch from the target and compare against what this run believes
// happened. Dry runs have no target to query and fall back to the in-memory
// comparisons instead.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/common/httpclient"
	"github.com/n8n-migrator/migrator/common/workflow"
)

// Severity classifies a verification Issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is one verification finding.
type Issue struct {
	Check    string
	Severity Severity
	Workflow string
	Detail   string
}

// Result is the full output of a verification run.
type Result struct {
	Issues []Issue
}

// HasErrors reports whether any issue in r is error-severity.
func (r Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// targetSummary is one entry of GET /workflows' data list: enough to know a
// new id exists on the target instance and which name it currently carries.
type targetSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// targetWorkflow is the full body of GET /workflows/{id}, fetched per
// migrated workflow so C2 and C4 can compare against what the target
// instance actually holds rather than what this run's in-memory workflow
// set believes it sent.
type targetWorkflow struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Nodes []workflow.Node `json:"nodes"`
}

// Verify runs checks C1-C4 against the migrated workflow set, the final id
// mapping, and (unless dryRun) the target n8n instance itself.
//
//   - C1: every workflow that was supposed to be created has a new id that
//     actually exists on the target instance.
//   - C2: every reference-bearing node on the target's copy of a migrated
//     workflow resolves its workflowId.value to a real new id, not a
//     leftover old one.
//   - C3: the target's actual name for a mapped id matches the name this
//     run recorded for it, and no two distinct names in the mapping share
//     one new id.
//   - C4: the target's actual node count for a migrated workflow matches
//     its pre-migration source, proving Rewrite (and the server-side PATCH)
//     only touched reference fields.
func Verify(ctx context.Context, client *httpclient.Client, workflows []*workflow.Workflow, mapper *idmap.Mapper, expectedNodeCounts map[string]int, dryRun bool) Result {
	if dryRun || client == nil {
		return verifyLocal(workflows, mapper, expectedNodeCounts)
	}

	var result Result

	target, err := fetchTargetSummaries(ctx, client)
	if err != nil {
		result.Issues = append(result.Issues, Issue{
			Check: "C1-all-created", Severity: SeverityError,
			Detail: fmt.Sprintf("fetch target workflow list: %v", err),
		})
		return result
	}
	result.Issues = append(result.Issues, checkAllCreated(workflows, mapper, target)...)
	result.Issues = append(result.Issues, checkNoDuplicateNewIDs(mapper, target)...)

	bodies, err := fetchTargetBodies(ctx, client, mapper)
	if err != nil {
		result.Issues = append(result.Issues, Issue{
			Check: "C2-references-resolved", Severity: SeverityError,
			Detail: fmt.Sprintf("fetch target workflow bodies: %v", err),
		})
		return result
	}
	result.Issues = append(result.Issues, checkReferencesResolvedRemote(mapper, bodies, target)...)
	result.Issues = append(result.Issues, checkNodeCountsUnchangedRemote(workflows, mapper, expectedNodeCounts, bodies)...)

	return result
}

// verifyLocal is the dry-run fallback: no target exists to query, so it
// re-validates the in-memory workflow set and id mapping this run produced.
func verifyLocal(workflows []*workflow.Workflow, mapper *idmap.Mapper, expectedNodeCounts map[string]int) Result {
	var result Result
	result.Issues = append(result.Issues, checkAllCreatedLocal(workflows, mapper)...)
	result.Issues = append(result.Issues, checkReferencesResolvedLocal(workflows, mapper)...)
	result.Issues = append(result.Issues, checkNoDuplicateNewIDsLocal(mapper)...)
	result.Issues = append(result.Issues, checkNodeCountsUnchangedLocal(workflows, expectedNodeCounts)...)
	return result
}

func fetchTargetSummaries(ctx context.Context, client *httpclient.Client) (map[string]string, error) {
	index := make(map[string]string) // id -> name
	err := client.ListAll(ctx, "/workflows", func(raw json.RawMessage) error {
		var items []targetSummary
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode workflow list page: %w", err)
		}
		for _, item := range items {
			index[item.ID] = item.Name
		}
		return nil
	})
	return index, err
}

func fetchTargetBodies(ctx context.Context, client *httpclient.Client, mapper *idmap.Mapper) (map[string]targetWorkflow, error) {
	records, err := mapperRecords(mapper)
	if err != nil {
		return nil, err
	}

	bodies := make(map[string]targetWorkflow, len(records))
	for _, rec := range records {
		if rec.NewID == "" {
			continue
		}
		var tw targetWorkflow
		if _, err := client.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: "/workflows/" + rec.NewID}, &tw); err != nil {
			return nil, fmt.Errorf("fetch workflow %q (id=%s): %w", rec.Name, rec.NewID, err)
		}
		bodies[rec.NewID] = tw
	}
	return bodies, nil
}

func mapperRecords(mapper *idmap.Mapper) ([]idmap.Record, error) {
	data, err := mapper.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize id mapping: %w", err)
	}
	var records []idmap.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode id mapping: %w", err)
	}
	return records, nil
}

func checkAllCreated(workflows []*workflow.Workflow, mapper *idmap.Mapper, target map[string]string) []Issue {
	var issues []Issue
	for _, wf := range workflows {
		rec, ok := mapper.ByName(wf.Name)
		if !ok {
			issues = append(issues, Issue{
				Check: "C1-all-created", Severity: SeverityError,
				Workflow: wf.Name, Detail: "workflow has no recorded new id",
			})
			continue
		}
		if _, exists := target[rec.NewID]; !exists {
			issues = append(issues, Issue{
				Check: "C1-all-created", Severity: SeverityError,
				Workflow: wf.Name, Detail: fmt.Sprintf("new id %q not found on target instance", rec.NewID),
			})
		}
	}
	return issues
}

func checkNoDuplicateNewIDs(mapper *idmap.Mapper, target map[string]string) []Issue {
	records, err := mapperRecords(mapper)
	if err != nil {
		return []Issue{{Check: "C3-no-duplicate-ids", Severity: SeverityWarning, Detail: err.Error()}}
	}

	var issues []Issue
	seen := make(map[string]string)
	for _, rec := range records {
		if existingName, exists := seen[rec.NewID]; exists && existingName != rec.Name {
			issues = append(issues, Issue{
				Check: "C3-no-duplicate-ids", Severity: SeverityError,
				Workflow: rec.Name, Detail: fmt.Sprintf("new id %q also claimed by %q", rec.NewID, existingName),
			})
			continue
		}
		seen[rec.NewID] = rec.Name

		if targetName, exists := target[rec.NewID]; exists && targetName != rec.Name {
			issues = append(issues, Issue{
				Check: "C3-no-duplicate-ids", Severity: SeverityError,
				Workflow: rec.Name, Detail: fmt.Sprintf("target instance shows id %q as %q, not %q", rec.NewID, targetName, rec.Name),
			})
		}
	}
	return issues
}

func checkReferencesResolvedRemote(mapper *idmap.Mapper, bodies map[string]targetWorkflow, target map[string]string) []Issue {
	var issues []Issue
	for _, body := range bodies {
		for _, node := range body.Nodes {
			if !workflow.IsReferenceBearing(node.Type) {
				continue
			}
			ref, ok := workflow.ReferenceRef(node.Parameters)
			if !ok {
				continue
			}
			if _, exists := target[ref.Value]; exists {
				continue
			}
			issues = append(issues, Issue{
				Check: "C2-references-resolved", Severity: SeverityError,
				Workflow: body.Name,
				Detail:   fmt.Sprintf("node %q on target still points at unmapped id %q", node.Name, ref.Value),
			})
		}
	}
	return issues
}

func checkNodeCountsUnchangedRemote(workflows []*workflow.Workflow, mapper *idmap.Mapper, expected map[string]int, bodies map[string]targetWorkflow) []Issue {
	var issues []Issue
	for _, wf := range workflows {
		want, ok := expected[wf.Name]
		if !ok {
			continue
		}
		rec, ok := mapper.ByName(wf.Name)
		if !ok {
			continue // already flagged by C1
		}
		body, ok := bodies[rec.NewID]
		if !ok {
			continue // already flagged by C1
		}
		if got := len(body.Nodes); got != want {
			issues = append(issues, Issue{
				Check: "C4-node-count-unchanged", Severity: SeverityWarning,
				Workflow: wf.Name, Detail: fmt.Sprintf("node count changed: want %d, got %d", want, got),
			})
		}
	}
	return issues
}

func checkAllCreatedLocal(workflows []*workflow.Workflow, mapper *idmap.Mapper) []Issue {
	var issues []Issue
	for _, wf := range workflows {
		if _, ok := mapper.ByName(wf.Name); !ok {
			issues = append(issues, Issue{
				Check:    "C1-all-created",
				Severity: SeverityError,
				Workflow: wf.Name,
				Detail:   "workflow has no recorded new id",
			})
		}
	}
	return issues
}

func checkReferencesResolvedLocal(workflows []*workflow.Workflow, mapper *idmap.Mapper) []Issue {
	var issues []Issue
	for _, wf := range workflows {
		for _, node := range wf.Nodes {
			if !workflow.IsReferenceBearing(node.Type) {
				continue
			}
			ref, ok := workflow.ReferenceRef(node.Parameters)
			if !ok {
				continue
			}
			if _, found := mapper.ByOldID(ref.Value); found {
				continue
			}
			if _, found := mapper.ByName(ref.CachedResultName); found {
				continue
			}
			issues = append(issues, Issue{
				Check:    "C2-references-resolved",
				Severity: SeverityError,
				Workflow: wf.Name,
				Detail:   fmt.Sprintf("node %q still points at unmapped id %q", node.Name, ref.Value),
			})
		}
	}
	return issues
}

func checkNoDuplicateNewIDsLocal(mapper *idmap.Mapper) []Issue {
	records, err := mapperRecords(mapper)
	if err != nil {
		return []Issue{{Check: "C3-no-duplicate-ids", Severity: SeverityWarning, Detail: err.Error()}}
	}

	var issues []Issue
	seen := make(map[string]string)
	for _, rec := range records {
		if existingName, exists := seen[rec.NewID]; exists && existingName != rec.Name {
			issues = append(issues, Issue{
				Check:    "C3-no-duplicate-ids",
				Severity: SeverityError,
				Workflow: rec.Name,
				Detail:   fmt.Sprintf("new id %q also claimed by %q", rec.NewID, existingName),
			})
			continue
		}
		seen[rec.NewID] = rec.Name
	}
	return issues
}

func checkNodeCountsUnchangedLocal(workflows []*workflow.Workflow, expected map[string]int) []Issue {
	var issues []Issue
	for _, wf := range workflows {
		want, ok := expected[wf.Name]
		if !ok {
			continue
		}
		if got := len(wf.Nodes); got != want {
			issues = append(issues, Issue{
				Check:    "C4-node-count-unchanged",
				Severity: SeverityWarning,
				Workflow: wf.Name,
				Detail:   fmt.Sprintf("node count changed: want %d, got %d", want, got),
			})
		}
	}
	return issues
}
