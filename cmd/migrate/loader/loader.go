// Package loader reads a directory tree of exported n8n workflow JSON files
// into the in-memory Workflow set every later phase operates on, applying
// tag/glob/CEL filters and source-folder default tagging along the way.
package loader

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/n8n-migrator/migrator/common/workflow"
)

// Load walks root for *.json files, decodes each as a workflow, applies
// filter if non-nil, and returns the surviving set sorted by SourcePath for
// a deterministic, reviewable load order. A name collision across two
// distinct files is always an error, filter or not, since it would corrupt
// graph.Analyze's name index silently.
func Load(fsys fs.FS, root string, filter *Filter) ([]*workflow.Workflow, error) {
	var paths []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source path %q: %w", root, err)
	}
	sort.Strings(paths)

	seenNames := make(map[string][]string)
	var result []*workflow.Workflow

	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var wf workflow.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, &ParseError{Path: path, Detail: err.Error()}
		}
		if wf.Name == "" {
			return nil, &SchemaError{Path: path, MissingField: "name"}
		}
		if len(wf.Nodes) == 0 {
			return nil, &SchemaError{Path: path, MissingField: "nodes"}
		}

		wf.SourcePath = path
		wf.SourceFolder = sourceFolder(root, path)
		applyDefaultTag(&wf)

		seenNames[wf.Name] = append(seenNames[wf.Name], path)
		if len(seenNames[wf.Name]) > 1 {
			return nil, &DuplicateNameError{Name: wf.Name, Paths: seenNames[wf.Name]}
		}

		if filter != nil {
			match, err := filter.Match(&wf)
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", path, err)
			}
			if !match {
				continue
			}
		}

		wfCopy := wf
		result = append(result, &wfCopy)
	}

	return result, nil
}

// sourceFolder returns the path segment directly under root that contains
// path, or "" if the file sits directly in root.
func sourceFolder(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return parts[0]
}

// applyDefaultTag tags a workflow with its source folder name when it
// carries no tags of its own, so workflows organized into per-team or
// per-project directories retain that grouping as a tag even though n8n's
// export format has no directory concept. The tag is set on the loaded
// workflow, where the tag and CEL filters see it; the create payload sends
// no tags, so it does not reach the target instance.
func applyDefaultTag(wf *workflow.Workflow) {
	if len(wf.Tags) > 0 || wf.SourceFolder == "" {
		return
	}
	wf.Tags = append(wf.Tags, workflow.Tag{Name: wf.SourceFolder})
}
