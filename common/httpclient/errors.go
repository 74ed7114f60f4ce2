package httpclient

import "fmt"

// RemoteError wraps a non-2xx, non-401/403 response from the target API.
// 5xx is retried by Do before being returned wrapped in this type; 4xx is
// returned immediately.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error: status=%d body=%s", e.Status, truncate(e.Body, 500))
}

// AuthError signals a 401/403. Do never retries this; callers should treat
// it as fatal to the whole run.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: status=%d", e.Status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
