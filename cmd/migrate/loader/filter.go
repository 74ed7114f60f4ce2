package loader

import (
	"fmt"
	"path/filepath"

	"github.com/google/cel-go/cel"

	"github.com/n8n-migrator/migrator/common/workflow"
)

// Filter narrows the set of workflows a Load call returns. A workflow must
// pass every non-empty predicate to be included, per SPEC_FULL.md §4.1:
// tag and glob filters are simple membership/pattern checks, while Expr is
// a CEL boolean expression evaluated against the decoded workflow for
// filtering logic neither a tag nor a glob can express (e.g. "active
// workflows with more than 10 nodes").
//
// CEL compilation and evaluation here mirrors the teacher's
// condition.Evaluator: an environment exposing the candidate as a variable,
// compiled once by Compile and kept on the Filter, since the same Expr is
// evaluated against every candidate workflow in a load.
type Filter struct {
	Tag  string
	Glob string
	Expr string

	program cel.Program
}

// Compile prepares f's CEL expression, if any, for repeated evaluation.
// Call once before passing f to Load.
func (f *Filter) Compile() error {
	if f.Expr == "" {
		return nil
	}
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("active", cel.BoolType),
		cel.Variable("nodeCount", cel.IntType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("sourceFolder", cel.StringType),
	)
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(f.Expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile filter expression %q: %w", f.Expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("build filter program: %w", err)
	}
	f.program = prg
	return nil
}

// Match reports whether wf passes every predicate set on f.
func (f *Filter) Match(wf *workflow.Workflow) (bool, error) {
	if f.Tag != "" && !wf.HasTag(f.Tag) {
		return false, nil
	}
	if f.Glob != "" {
		matched, err := filepath.Match(f.Glob, wf.Name)
		if err != nil {
			return false, fmt.Errorf("glob filter %q: %w", f.Glob, err)
		}
		if !matched {
			return false, nil
		}
	}
	if f.program != nil {
		out, _, err := f.program.Eval(map[string]interface{}{
			"name":         wf.Name,
			"active":       wf.Active,
			"nodeCount":    int64(len(wf.Nodes)),
			"tags":         wf.TagNames(),
			"sourceFolder": wf.SourceFolder,
		})
		if err != nil {
			return false, fmt.Errorf("evaluate filter expression for %q: %w", wf.Name, err)
		}
		result, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("filter expression did not return a boolean, got %T", out.Value())
		}
		if !result {
			return false, nil
		}
	}
	return true, nil
}
