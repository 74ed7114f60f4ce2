package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
)

// page is the minimal envelope shape n8n's list endpoints return: the items
// live under "data", and the cursor for the next page lives on the envelope
// itself, not inside the data slice. Confirmed against the terraform-provider
// n8n client's WorkflowsResponse{Data, NextCursor} shape — a prior migration
// tool bug class was reading the cursor off the last list item instead.
type page struct {
	Data       json.RawMessage `json:"data"`
	NextCursor *string         `json:"nextCursor"`
}

// ListAll drives cursor pagination against path, passing each page's raw
// "data" array to decodeItems, until NextCursor comes back nil or empty.
func (c *Client) ListAll(ctx context.Context, path string, decodeItems func(json.RawMessage) error) error {
	cursor := ""
	for {
		query := map[string]string{"limit": "50"}
		if cursor != "" {
			query["cursor"] = cursor
		}

		var p page
		if _, err := c.Do(ctx, Request{Method: "GET", Path: path, Query: query}, &p); err != nil {
			return fmt.Errorf("list page (cursor=%q): %w", cursor, err)
		}

		if err := decodeItems(p.Data); err != nil {
			return fmt.Errorf("decode page items (cursor=%q): %w", cursor, err)
		}

		if p.NextCursor == nil || *p.NextCursor == "" {
			return nil
		}
		cursor = *p.NextCursor
	}
}
