package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8n-migrator/migrator/common/httpclient"
)

func writeWorkflowFile(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

// newCreatePatchServer is a minimal fake target instance: it remembers every
// created workflow's document by id so that, once verify.Verify round-trips
// to the target, GET /workflows and GET /workflows/{id} have something real
// to report back instead of an empty list.
func newCreatePatchServer(t *testing.T) (*httptest.Server, *int, *int) {
	t.Helper()
	creates, patches := 0, 0
	docs := make(map[string]map[string]interface{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/workflows":
			creates++
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			id := "new-id-" + strconv.Itoa(creates)
			body["id"] = id
			docs[id] = body
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"id": id})
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/workflows/"):
			patches++
			id := strings.TrimPrefix(r.URL.Path, "/workflows/")
			var patch map[string]interface{}
			json.NewDecoder(r.Body).Decode(&patch)
			doc, ok := docs[id]
			if !ok {
				doc = map[string]interface{}{"id": id}
			}
			for k, v := range patch {
				doc[k] = v
			}
			docs[id] = doc
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/workflows":
			items := make([]map[string]interface{}, 0, len(docs))
			for id, doc := range docs {
				items = append(items, map[string]interface{}{"id": id, "name": doc["name"]})
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"data": items, "nextCursor": nil})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/workflows/"):
			id := strings.TrimPrefix(r.URL.Path, "/workflows/")
			doc, ok := docs[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(doc)
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"data":[],"nextCursor":null}`))
		}
	}))
	return srv, &creates, &patches
}

func TestMigrateScenarioS1HappyPath(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "parent.json", `{"name":"Parent","nodes":[{"id":"n1","name":"Call Child","type":"n8n-nodes-base.executeWorkflow","parameters":{"workflowId":{"value":"old-2","cachedResultName":"Child"}}}]}`)
	writeWorkflowFile(t, dir, "child.json", `{"id":"old-2","name":"Child","nodes":[{"id":"n1","name":"Start","type":"n8n-nodes-base.start"}]}`)

	srv, creates, _ := newCreatePatchServer(t)
	defer srv.Close()

	report, err := Migrate(context.Background(), Config{
		SourcePath:    dir,
		TargetBaseURL: srv.URL,
		AuthMode:      httpclient.AuthAPIKey,
		APIKey:        "key",
		Verify:        true,
		RatePerMinute: 6000,
	})
	require.NoError(t, err)
	assert.True(t, report.Succeeded)
	assert.Equal(t, 2, *creates)
	assert.Len(t, report.Uploads, 2)
}

func TestMigrateScenarioDryRunMakesNoNetworkCalls(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "a.json", `{"name":"A","nodes":[{"id":"n1","name":"Start","type":"n8n-nodes-base.start"}]}`)

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	report, err := Migrate(context.Background(), Config{
		SourcePath: dir,
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Uploads, 1)
}

func TestMigrateRejectsMissingSourcePath(t *testing.T) {
	_, err := Migrate(context.Background(), Config{DryRun: true})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMigrateStrictModeRejectsUnresolvedReference(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "a.json", `{"name":"A","nodes":[{"id":"n1","name":"Call Ghost","type":"n8n-nodes-base.executeWorkflow","parameters":{"workflowId":{"value":"missing","cachedResultName":"Ghost"}}}]}`)

	_, err := Migrate(context.Background(), Config{
		SourcePath: dir,
		DryRun:     true,
		Strict:     true,
	})
	require.Error(t, err)
	var analysisErr *AnalysisError
	assert.ErrorAs(t, err, &analysisErr)
}

func TestMigrateStopOnErrorHaltsOnFirstCreateFailure(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "a.json", `{"name":"A","nodes":[{"id":"n1","name":"Start","type":"n8n-nodes-base.start"}]}`)
	writeWorkflowFile(t, dir, "b.json", `{"name":"B","nodes":[{"id":"n1","name":"Start","type":"n8n-nodes-base.start"}]}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Migrate(context.Background(), Config{
		SourcePath:    dir,
		TargetBaseURL: srv.URL,
		AuthMode:      httpclient.AuthAPIKey,
		APIKey:        "key",
		StopOnError:   true,
		RatePerMinute: 6000,
	})
	require.Error(t, err)
}
