// Package upload drives the two-phase write to the target n8n instance:
// Phase 4a creates every workflow (so every workflow has a new id to
// resolve against), then Phase 4b patches each one again with its
// reference-bearing nodes rewritten to point at those new ids. Grounded on
// the teacher's OrchestratorClient.applyOperation/MaterializeWorkflowForRun
// pattern of applying a sequence of staged writes against one HTTP client.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/common/httpclient"
	"github.com/n8n-migrator/migrator/common/logger"
	"github.com/n8n-migrator/migrator/common/workflow"
)

// Outcome is the per-workflow result of one upload phase call.
type Outcome struct {
	Workflow *workflow.Workflow
	NewID    string
	Created  bool
	Patched  bool
	Skipped  bool
	Err      error

	// Rewritten is the post-rewrite.Rewrite copy of Workflow, set by the
	// engine between Phase 4a and Phase 4b once reference ids are known.
	// rewrite.Rewrite returns a deep copy rather than mutating Workflow in
	// place, so Workflow itself still reflects exactly what was sent on
	// create and is a safe "before" baseline for the patch diff.
	Rewritten *workflow.Workflow
}

// createPayload is the wire body for POST /workflows: n8n rejects an id or
// active field on create, so neither is sent. Tags are not sent either: the
// body carries name, nodes, connections, and settings only.
type createPayload struct {
	Name        interface{} `json:"name"`
	Nodes       interface{} `json:"nodes"`
	Connections interface{} `json:"connections,omitempty"`
	Settings    interface{} `json:"settings,omitempty"`
}

type createResponse struct {
	ID string `json:"id"`
}

// Service performs the create and patch passes against one target instance.
type Service struct {
	client              *httpclient.Client
	mapper              *idmap.Mapper
	log                 *logger.Logger
	dryRun              bool
	skipExisting        bool
	stopOnError         bool
	interRequestDelay   time.Duration
}

// Config configures a Service.
type Config struct {
	DryRun              bool
	SkipExisting        bool
	StopOnError         bool
	InterRequestDelayMs int
}

// New builds a Service bound to client and mapper for one migration run.
func New(client *httpclient.Client, mapper *idmap.Mapper, log *logger.Logger, cfg Config) *Service {
	return &Service{
		client:            client,
		mapper:            mapper,
		log:               log,
		dryRun:            cfg.DryRun,
		skipExisting:      cfg.SkipExisting,
		stopOnError:       cfg.StopOnError,
		interRequestDelay: time.Duration(cfg.InterRequestDelayMs) * time.Millisecond,
	}
}

// CreateAll runs Phase 4a over workflows in the given order, recording each
// successful create in the Service's Mapper. It stops at the first error
// when stopOnError is set; otherwise it continues and reports every outcome.
// If ctx is cancelled between workflows, it returns the outcomes so far
// together with the context's error.
func (s *Service) CreateAll(ctx context.Context, order []int, workflows []*workflow.Workflow, existingNames map[string]string) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(order))

	for n, idx := range order {
		wf := workflows[idx]
		log := s.log.WithWorkflow(wf.Name)

		if n > 0 {
			s.delay(ctx)
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		if existingID, exists := existingNames[wf.Name]; exists {
			if s.skipExisting {
				log.Info("skipping existing workflow")
				outcomes = append(outcomes, Outcome{Workflow: wf, NewID: existingID, Skipped: true})
				if err := s.mapper.Record(idmap.Record{Name: wf.Name, OldID: wf.ID, NewID: existingID}); err != nil {
					return outcomes, err
				}
				continue
			}
		}

		newID, err := s.create(ctx, wf)
		if err != nil {
			createErr := &CreateError{Workflow: wf.Name, Cause: err}
			log.Error("create failed", "error", createErr)
			outcomes = append(outcomes, Outcome{Workflow: wf, Err: createErr})
			if s.stopOnError {
				return outcomes, createErr
			}
			continue
		}

		log.Info("created workflow", "newId", newID)
		outcomes = append(outcomes, Outcome{Workflow: wf, NewID: newID, Created: true})
		if err := s.mapper.Record(idmap.Record{Name: wf.Name, OldID: wf.ID, NewID: newID}); err != nil {
			return outcomes, err
		}
	}

	return outcomes, nil
}

func (s *Service) create(ctx context.Context, wf *workflow.Workflow) (string, error) {
	if s.dryRun {
		return "dry-run-" + wf.Name, nil
	}

	body := createPayload{Name: wf.Name, Nodes: wf.Nodes, Connections: wf.Connections, Settings: wf.Settings}
	var resp createResponse
	if _, err := s.client.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: "/workflows", Body: body}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create response for %q carried no id", wf.Name)
	}
	return resp.ID, nil
}

// PatchAll runs Phase 4b: for every outcome that was actually created (not
// skipped, not dry-run) and has a Rewritten copy attached, it diffs the
// rewritten workflow against what was sent on create and PATCHes only if the
// diff is non-empty, per SPEC_FULL.md §4.4's "skip the call if nothing
// changed" rule. If ctx is cancelled between workflows, it returns the
// context's error.
func (s *Service) PatchAll(ctx context.Context, outcomes []Outcome) error {
	for n := range outcomes {
		o := &outcomes[n]
		if o.Err != nil || o.Skipped || !o.Created {
			continue
		}
		if n > 0 {
			s.delay(ctx)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		log := s.log.WithWorkflow(o.Workflow.Name)
		patched, err := s.patch(ctx, *o)
		if err != nil {
			patchErr := &PatchError{Workflow: o.Workflow.Name, Cause: err}
			log.Error("patch failed", "error", patchErr)
			if s.stopOnError {
				return patchErr
			}
			continue
		}
		o.Patched = patched
	}
	return nil
}

func (s *Service) patch(ctx context.Context, o Outcome) (bool, error) {
	if s.dryRun || o.Rewritten == nil {
		return false, nil
	}

	// o.Workflow still reflects exactly what Phase 4a sent, since
	// rewrite.Rewrite never mutates it — it returns o.Rewritten instead.
	before := createPayload{Name: o.Workflow.Name, Nodes: o.Workflow.Nodes, Connections: o.Workflow.Connections, Settings: o.Workflow.Settings}
	after := createPayload{Name: o.Rewritten.Name, Nodes: o.Rewritten.Nodes, Connections: o.Rewritten.Connections, Settings: o.Rewritten.Settings}

	diff, err := mergePatchBody(before, after)
	if err != nil {
		return false, fmt.Errorf("compute patch diff: %w", err)
	}
	if diff == nil {
		return false, nil
	}

	method := s.client.UpdateMethod()
	if method == "" {
		method = http.MethodPut
	}

	// The whole point of a JSON Merge Patch is a smaller request body than
	// the full document, so the diff itself is sent, not after. RawMessage
	// marshals to exactly its own bytes, so this doesn't get re-encoded.
	if _, err := s.client.Do(ctx, httpclient.Request{
		Method: method,
		Path:   "/workflows/" + o.NewID,
		Body:   json.RawMessage(diff),
	}, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) delay(ctx context.Context) {
	if s.interRequestDelay <= 0 {
		return
	}
	select {
	case <-time.After(s.interRequestDelay):
	case <-ctx.Done():
	}
}
