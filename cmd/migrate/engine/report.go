package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/n8n-migrator/migrator/cmd/migrate/graph"
	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/cmd/migrate/upload"
	"github.com/n8n-migrator/migrator/cmd/migrate/verify"
)

// UploadOutcome is the report's serializable view of one workflow's
// create/patch result, stripped of the in-memory *workflow.Workflow pointer
// upload.Outcome carries.
type UploadOutcome struct {
	Workflow string `json:"workflow"`
	NewID    string `json:"newId,omitempty"`
	Created  bool   `json:"created"`
	Patched  bool   `json:"patched"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// UploadStatistics aggregates Uploads into the counts the CLI prints to the
// console, so the same numbers are also durable in the saved report instead
// of existing only as a printSummary side effect.
type UploadStatistics struct {
	Created int `json:"created"`
	Patched int `json:"patched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ConfigSummary is the subset of Config worth recording in a report: enough
// to reconstruct what a run was asked to do, without the credentials it was
// asked to do it with.
type ConfigSummary struct {
	SourcePath    string `json:"sourcePath"`
	TargetBaseURL string `json:"targetBaseUrl,omitempty"`
	TagFilter     string `json:"tagFilter,omitempty"`
	GlobFilter    string `json:"globFilter,omitempty"`
	FilterExpr    string `json:"filterExpr,omitempty"`
	DryRun        bool   `json:"dryRun"`
	SkipExisting  bool   `json:"skipExisting"`
	StopOnError   bool   `json:"stopOnError"`
	Verify        bool   `json:"verify"`
	Strict        bool   `json:"strict"`
}

// GraphNode is the report's serializable view of one loaded workflow, by
// position in graph.Graph.Workflows.
type GraphNode struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// GraphEdge is the report's serializable view of a graph.Edge, naming
// workflows instead of carrying their graph indices.
type GraphEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// CycleInfo is the report's serializable view of a graph.Cycle.
type CycleInfo struct {
	Workflows []string `json:"workflows"`
}

// Report is the final record of a migration run, suitable for printing to
// the console and for writing to disk when Config.SaveReportPath is set.
// Its shape follows spec.md §3/§6's MigrationReport schema.
type Report struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"durationNanos"`
	Config    ConfigSummary `json:"config"`
	DryRun    bool          `json:"dryRun"`

	GraphStats graph.Stats `json:"graphStats"`
	GraphNodes []GraphNode `json:"graphNodes,omitempty"`
	GraphEdges []GraphEdge `json:"graphEdges,omitempty"`
	Cycles     []CycleInfo `json:"cycles,omitempty"`

	Uploads          []UploadOutcome  `json:"uploads"`
	UploadStatistics UploadStatistics `json:"uploadStatistics"`

	Mappings []idmap.Record `json:"mappings,omitempty"`

	VerificationIssues []verify.Issue `json:"verificationIssues,omitempty"`

	Succeeded bool `json:"succeeded"`

	startedAt time.Time
}

func newReport(g *graph.Graph, cfg Config) *Report {
	r := &Report{
		DryRun:    cfg.DryRun,
		Timestamp: now(),
		startedAt: now(),
		Config: ConfigSummary{
			SourcePath:    cfg.SourcePath,
			TargetBaseURL: cfg.TargetBaseURL,
			TagFilter:     cfg.TagFilter,
			GlobFilter:    cfg.GlobFilter,
			FilterExpr:    cfg.FilterExpr,
			DryRun:        cfg.DryRun,
			SkipExisting:  cfg.SkipExisting,
			StopOnError:   cfg.StopOnError,
			Verify:        cfg.Verify,
			Strict:        cfg.Strict,
		},
		GraphStats: g.Stats(),
	}

	for i, wf := range g.Workflows {
		r.GraphNodes = append(r.GraphNodes, GraphNode{Index: i, Name: wf.Name})
	}
	for _, e := range g.Edges {
		r.GraphEdges = append(r.GraphEdges, GraphEdge{
			From:  g.Workflows[e.From].Name,
			To:    g.Workflows[e.To].Name,
			Count: e.Count,
		})
	}
	for _, c := range g.Cycles {
		names := make([]string, 0, len(c.Members))
		for _, idx := range c.Members {
			names = append(names, g.Workflows[idx].Name)
		}
		r.Cycles = append(r.Cycles, CycleInfo{Workflows: names})
	}
	return r
}

func (r *Report) recordUploads(outcomes []upload.Outcome) {
	for _, o := range outcomes {
		uo := UploadOutcome{
			Workflow: o.Workflow.Name,
			NewID:    o.NewID,
			Created:  o.Created,
			Patched:  o.Patched,
			Skipped:  o.Skipped,
		}
		if o.Err != nil {
			uo.Error = o.Err.Error()
		}
		r.Uploads = append(r.Uploads, uo)
	}
}

// recordMappings attaches the run's final id mapping to the report, drawing
// on idmap.Mapper.Serialize rather than leaving it dead code known only to
// mapper_test.go.
func (r *Report) recordMappings(mapper *idmap.Mapper) error {
	data, err := mapper.Serialize()
	if err != nil {
		return fmt.Errorf("serialize id mapping for report: %w", err)
	}
	var records []idmap.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode id mapping for report: %w", err)
	}
	r.Mappings = records
	return nil
}

func (r *Report) finalize() {
	r.Duration = now().Sub(r.startedAt)

	r.UploadStatistics = UploadStatistics{}
	for _, u := range r.Uploads {
		switch {
		case u.Error != "":
			r.UploadStatistics.Failed++
		case u.Skipped:
			r.UploadStatistics.Skipped++
		default:
			if u.Created {
				r.UploadStatistics.Created++
			}
			if u.Patched {
				r.UploadStatistics.Patched++
			}
		}
	}

	r.Succeeded = true
	for _, u := range r.Uploads {
		if u.Error != "" {
			r.Succeeded = false
		}
	}
	for _, issue := range r.VerificationIssues {
		if issue.Severity == verify.SeverityError {
			r.Succeeded = false
		}
	}
}

// now is the report's only source of wall-clock time, kept to one call site
// so a future test fixture can override it without reaching into time.Now
// scattered across the package.
var now = time.Now

// WriteReport serializes r as indented JSON to path.
func WriteReport(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report to %s: %w", path, err)
	}
	return nil
}
