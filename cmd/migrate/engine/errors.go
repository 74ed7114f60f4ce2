package engine

import "fmt"

// ConfigError signals a problem with the run's configuration (missing
// credentials, unreadable source path, conflicting flags). Always fatal,
// always raised before any phase runs.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }

// AnalysisError signals a reference target that could not be resolved
// during dependency analysis while running in strict mode. Non-strict runs
// record the same condition as a graph.UnresolvedRef instead of failing.
type AnalysisError struct {
	Workflow string
	Hint     string
	OldID    string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("workflow %q references unresolvable target (hint=%q, oldId=%q)", e.Workflow, e.Hint, e.OldID)
}
