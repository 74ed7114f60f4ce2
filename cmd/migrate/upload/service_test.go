package upload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8n-migrator/migrator/cmd/migrate/idmap"
	"github.com/n8n-migrator/migrator/common/httpclient"
	"github.com/n8n-migrator/migrator/common/logger"
	"github.com/n8n-migrator/migrator/common/workflow"
)

func newTestService(t *testing.T, handler http.HandlerFunc, cfg Config) (*Service, *idmap.Mapper) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Config{
		BaseURL:       srv.URL,
		AuthMode:      httpclient.AuthAPIKey,
		APIKey:        "key",
		RatePerMinute: 6000,
		MaxRetries:    1,
	}, logger.New("error", "console"))

	mapper := idmap.New()
	return New(client, mapper, logger.New("error", "console"), cfg), mapper
}

func TestCreateAllRecordsMapping(t *testing.T) {
	s, mapper := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(createResponse{ID: "new-1"})
	}, Config{})

	wfs := []*workflow.Workflow{{ID: "old-1", Name: "Parent", Nodes: []workflow.Node{{Type: "x"}}}}
	outcomes, err := s.CreateAll(context.Background(), []int{0}, wfs, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Created)
	assert.Equal(t, "new-1", outcomes[0].NewID)

	rec, ok := mapper.ByOldID("old-1")
	require.True(t, ok)
	assert.Equal(t, "new-1", rec.NewID)
}

func TestCreateAllSkipsExisting(t *testing.T) {
	called := false
	s, mapper := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, Config{SkipExisting: true})

	wfs := []*workflow.Workflow{{ID: "old-1", Name: "Parent", Nodes: []workflow.Node{{Type: "x"}}}}
	outcomes, err := s.CreateAll(context.Background(), []int{0}, wfs, map[string]string{"Parent": "existing-id"})
	require.NoError(t, err)
	assert.False(t, called)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)

	rec, ok := mapper.ByName("Parent")
	require.True(t, ok)
	assert.Equal(t, "existing-id", rec.NewID)
}

func TestCreateAllDryRunMakesNoCalls(t *testing.T) {
	called := false
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, Config{DryRun: true})

	wfs := []*workflow.Workflow{{Name: "Parent", Nodes: []workflow.Node{{Type: "x"}}}}
	outcomes, err := s.CreateAll(context.Background(), []int{0}, wfs, nil)
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, outcomes[0].Created)
}

func TestCreateAllStopsOnErrorWhenConfigured(t *testing.T) {
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, Config{StopOnError: true})

	wfs := []*workflow.Workflow{
		{Name: "A", Nodes: []workflow.Node{{Type: "x"}}},
		{Name: "B", Nodes: []workflow.Node{{Type: "x"}}},
	}
	_, err := s.CreateAll(context.Background(), []int{0, 1}, wfs, nil)
	require.Error(t, err)
}

func TestPatchAllSkipsEmptyDiff(t *testing.T) {
	called := false
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, Config{})

	wf := &workflow.Workflow{Name: "Parent", Nodes: []workflow.Node{{Type: "x", ID: "n1"}}}
	rewritten := &workflow.Workflow{Name: "Parent", Nodes: wf.Nodes}
	outcomes := []Outcome{{Workflow: wf, NewID: "new-1", Created: true, Rewritten: rewritten}}

	err := s.PatchAll(context.Background(), outcomes)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestPatchAllSendsDiffWhenNodesChanged(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}
	s, _ := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}, Config{})

	wf := &workflow.Workflow{Name: "Parent", Nodes: []workflow.Node{{Type: "n8n-nodes-base.executeWorkflow", ID: "n1", Parameters: map[string]interface{}{
		"workflowId": map[string]interface{}{"value": "old-2"},
	}}}}
	rewritten := &workflow.Workflow{Name: "Parent", Nodes: []workflow.Node{{Type: "n8n-nodes-base.executeWorkflow", ID: "n1", Parameters: map[string]interface{}{
		"workflowId": map[string]interface{}{"value": "new-2"},
	}}}}
	outcomes := []Outcome{{Workflow: wf, NewID: "new-1", Created: true, Rewritten: rewritten}}

	err := s.PatchAll(context.Background(), outcomes)
	require.NoError(t, err)
	assert.Equal(t, "/workflows/new-1", gotPath)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.True(t, outcomes[0].Patched)
	// the body is the merge patch diff, not the full rewritten document — no
	// top-level "connections"/"settings" key should appear since neither
	// changed.
	_, hasConnections := gotBody["connections"]
	assert.False(t, hasConnections)
	require.Contains(t, gotBody, "nodes")
}
