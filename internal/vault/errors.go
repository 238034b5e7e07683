package vault

import (
	"fmt"
)

// ResolutionError reports a failure to resolve credentials from Vault:
// unreachable server, non-200 response, or a malformed/incomplete payload.
// The Vault token never appears in the error text.
type ResolutionError struct {
	Op         string // "fetch" or "parse"
	Path       string
	StatusCode int // 0 when no HTTP response was received
	Body       string
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vault: %s %s: status %d: %s", e.Op, e.Path, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("vault: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("vault: %s %s failed", e.Op, e.Path)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
