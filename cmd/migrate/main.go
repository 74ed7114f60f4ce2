// Command migrate moves a tree of exported n8n workflow JSON files onto a
// target n8n instance, remapping cross-workflow references to the new
// instance's ids along the way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/n8n-migrator/migrator/cmd/migrate/engine"
	"github.com/n8n-migrator/migrator/common/httpclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(2)
	}

	report, err := engine.Migrate(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	printSummary(report)
	if !report.Succeeded {
		os.Exit(1)
	}
}

func parseFlags(args []string) (engine.Config, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)

	sourcePath := fs.String("source", "", "directory of exported n8n workflow JSON files")
	targetURL := fs.String("target-url", "", "base URL of the target n8n instance's API")
	apiKey := fs.String("api-key", "", "X-N8N-API-KEY value for the target instance")
	basicUser := fs.String("basic-user", "", "basic auth username, if the target instance uses basic auth instead of an api key")
	basicPass := fs.String("basic-pass", "", "basic auth password")
	tag := fs.String("tag", "", "only migrate workflows carrying this tag")
	glob := fs.String("glob", "", "only migrate workflows whose name matches this glob")
	filterExpr := fs.String("filter", "", "CEL expression narrowing which workflows are migrated")
	dryRun := fs.Bool("dry-run", false, "plan the migration without writing to the target instance")
	skipExisting := fs.Bool("skip-existing", false, "skip workflows that already exist on the target instance by name")
	stopOnError := fs.Bool("stop-on-error", false, "abort the run on the first failed create or patch")
	verify := fs.Bool("verify", true, "run post-migration integrity checks")
	strict := fs.Bool("strict", false, "fail fast on unresolved references or dependency cycles instead of proceeding")
	reportPath := fs.String("report", "", "write a JSON migration report to this path")
	delayMs := fs.Int("inter-request-delay-ms", 500, "pause this many milliseconds between writes to the target instance")
	ratePerMinute := fs.Int("rate-per-minute", 100, "maximum requests per minute sent to the target instance")
	logLevel := fs.String("log-level", "info", "debug, info, warn, or error")
	logFormat := fs.String("log-format", "console", "console or json")

	if err := fs.Parse(args); err != nil {
		return engine.Config{}, err
	}

	cfg := engine.Config{
		SourcePath:          *sourcePath,
		TargetBaseURL:       *targetURL,
		APIKey:              *apiKey,
		BasicUser:           *basicUser,
		BasicPass:           *basicPass,
		TagFilter:           *tag,
		GlobFilter:          *glob,
		FilterExpr:          *filterExpr,
		DryRun:              *dryRun,
		SkipExisting:        *skipExisting,
		StopOnError:         *stopOnError,
		Verify:              *verify,
		Strict:              *strict,
		SaveReportPath:      *reportPath,
		InterRequestDelayMs: *delayMs,
		RatePerMinute:       ratePerMinuteOrDefault(*ratePerMinute),
		LogLevel:            *logLevel,
		LogFormat:           *logFormat,
	}
	if *basicUser != "" {
		cfg.AuthMode = httpclient.AuthBasic
	}

	cfg = engine.LoadFromEnv(cfg)
	return cfg, nil
}

func ratePerMinuteOrDefault(v int) int {
	if v <= 0 {
		return 100
	}
	return v
}

func printSummary(r *engine.Report) {
	s := r.UploadStatistics
	fmt.Printf("migration complete: %d created, %d patched, %d skipped, %d failed\n", s.Created, s.Patched, s.Skipped, s.Failed)
	if len(r.Cycles) > 0 {
		fmt.Printf("warning: %d dependency cycle(s) detected\n", len(r.Cycles))
	}
	if len(r.VerificationIssues) > 0 {
		fmt.Printf("verification: %d issue(s) found\n", len(r.VerificationIssues))
	}
	if !r.Succeeded {
		if data, err := json.MarshalIndent(r, "", "  "); err == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
}
