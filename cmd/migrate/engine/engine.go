package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/n8n-migrator/migrator/cmd/migrate/graph"
	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/cmd/migrate/loader"
	"github.com/n8n-migrator/migrator/cmd/migrate/rewrite"
	"github.com/n8n-migrator/migrator/cmd/migrate/upload"
	"github.com/n8n-migrator/migrator/cmd/migrate/verify"
	"github.com/n8n-migrator/migrator/common/httpclient"
	"github.com/n8n-migrator/migrator/common/logger"
)

// Migrate runs the full pipeline — load, analyze, upload (create), rewrite,
// upload (patch), and optionally verify — and returns a Report describing
// what happened. It is the single entry point the CLI (and tests) call.
func Migrate(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	filter := &loader.Filter{Tag: cfg.TagFilter, Glob: cfg.GlobFilter, Expr: cfg.FilterExpr}
	if err := filter.Compile(); err != nil {
		return nil, &ConfigError{Reason: err.Error()}
	}

	workflows, err := loader.Load(os.DirFS(cfg.SourcePath), ".", filter)
	if err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}
	log.Info("loaded workflows", "count", len(workflows))

	expectedNodeCounts := make(map[string]int, len(workflows))
	for _, wf := range workflows {
		expectedNodeCounts[wf.Name] = len(wf.Nodes)
	}

	g := graph.Analyze(workflows)
	log.Info("analyzed dependency graph",
		"workflows", g.Stats().WorkflowCount,
		"edges", g.Stats().EdgeCount,
		"cycles", g.Stats().CycleCount,
		"unresolved", g.Stats().UnresolvedCount,
	)
	if len(g.Unresolved) > 0 && cfg.Strict {
		first := g.Unresolved[0]
		return nil, &AnalysisError{Workflow: first.WorkflowName, Hint: first.Hint, OldID: first.OldTarget}
	}
	if len(g.Cycles) > 0 && cfg.Strict {
		return nil, &ConfigError{Reason: fmt.Sprintf("dependency cycles present and strict mode is enabled: %d cycle(s)", len(g.Cycles))}
	}

	report := newReport(g, cfg)

	order := graph.TopoSort(g)

	client := httpclient.New(cfg.httpClientConfig(), log)
	if !cfg.DryRun {
		client.ProbeUpdateMethod(ctx, "00000000-0000-0000-0000-000000000000")
	}

	mapper := idmap.New()
	uploadSvc := upload.New(client, mapper, log, upload.Config{
		DryRun:              cfg.DryRun,
		SkipExisting:        cfg.SkipExisting,
		StopOnError:         cfg.StopOnError,
		InterRequestDelayMs: cfg.InterRequestDelayMs,
	})

	existingNames, err := fetchExistingNames(ctx, client, cfg)
	if err != nil {
		return nil, fmt.Errorf("fetch existing workflows: %w", err)
	}

	outcomes, err := uploadSvc.CreateAll(ctx, order, workflows, existingNames)
	report.recordUploads(outcomes)
	if err != nil {
		report.finalize()
		return report, err
	}

	for n, idx := range order {
		wf := workflows[idx]
		rewritten, _, err := rewrite.Rewrite(wf, mapper)
		if err != nil {
			return report, err
		}
		// workflows[idx] is updated so every later phase (Verify's local
		// fallback in particular) sees reference ids resolved, and
		// outcomes[n] carries the same pointer so PatchAll can diff against
		// it; CreateAll built outcomes in lockstep with order, so index n
		// lines up with order[n] exactly.
		workflows[idx] = rewritten
		outcomes[n].Rewritten = rewritten
	}

	patchErr := uploadSvc.PatchAll(ctx, outcomes)
	report.Uploads = nil
	report.recordUploads(outcomes) // re-recorded: PatchAll mutates outcomes' Patched flags in place
	if patchErr != nil {
		report.finalize()
		return report, patchErr
	}

	if err := report.recordMappings(mapper); err != nil {
		return report, err
	}

	if cfg.Verify {
		result := verify.Verify(ctx, client, workflows, mapper, expectedNodeCounts, cfg.DryRun)
		report.VerificationIssues = result.Issues
		if result.HasErrors() {
			log.Error("verification found errors", "count", len(result.Issues))
		}
	}

	if cfg.SaveReportPath != "" {
		report.finalize()
		if err := WriteReport(report, cfg.SaveReportPath); err != nil {
			return report, err
		}
	}

	report.finalize()
	return report, nil
}

// fetchExistingNames lists workflows already on the target instance by name,
// used for the SkipExisting policy in Phase 4a. Dry runs skip the call
// entirely since nothing will actually be created either way.
func fetchExistingNames(ctx context.Context, client *httpclient.Client, cfg Config) (map[string]string, error) {
	if cfg.DryRun || !cfg.SkipExisting {
		return nil, nil
	}

	existing := make(map[string]string)
	err := client.ListAll(ctx, "/workflows", func(raw json.RawMessage) error {
		var items []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode workflow list page: %w", err)
		}
		for _, item := range items {
			existing[item.Name] = item.ID
		}
		return nil
	})
	return existing, err
}
