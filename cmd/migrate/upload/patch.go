package upload

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// mergePatchBody returns the RFC 7396 JSON Merge Patch that turns before
// into after, or nil if they are equivalent (no PATCH call is worth
// making). Grounded on the teacher's materializer, which decodes patches
// with the same evanphx/json-patch/v5 package in the opposite direction
// (applying a patch rather than generating one).
func mergePatchBody(before, after interface{}) ([]byte, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("marshal before state: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("marshal after state: %w", err)
	}

	patch, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil, fmt.Errorf("create merge patch: %w", err)
	}

	if isEmptyPatch(patch) {
		return nil, nil
	}
	return patch, nil
}

func isEmptyPatch(patch []byte) bool {
	var m map[string]interface{}
	if err := json.Unmarshal(patch, &m); err != nil {
		return false
	}
	return len(m) == 0
}
