package backend

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthorized means the backend rejected the token (or none was
	// available). The session is invalidated before this is returned; the
	// caller must route the user back to login.
	ErrUnauthorized = errors.New("session is not authorized")

	// ErrUnavailable wraps network failures and 5xx responses. Callers keep
	// whatever data they already display.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrConflict means the exchange was mutated by another actor between
	// the client's read and this call. The caller must refetch the list
	// rather than retry the stale transition.
	ErrConflict = errors.New("exchange state conflict")

	ErrNotFound = errors.New("not found")
)

// ValidationError carries per-field messages from a 4xx response so forms can
// surface them inline next to the offending input.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}
