// Package journal persists a history of node events (device lifecycle
// changes, link changes, output topology changes) so operators can see
// what a node has been doing after the fact.
//
// The journal is write-behind: the recorder consumes the manager's
// event stream and persists entries off the hot path. Losing an entry
// under load is acceptable, delaying a connect is not.
package journal

import (
	"context"
	"time"
)

// Entry is a single journalled node event.
type Entry struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Address  string         `json:"address,omitempty"`
	OutputID string         `json:"output_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which journal entries to return.
type Filter struct {
	Kind     string // optional: filter by event kind ("device.state_changed", ...)
	Address  string // optional: filter by device address
	OutputID string // optional: filter by output
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// ListResult contains paginated journal results.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines journal storage operations.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// Prune deletes entries older than the cutoff and reports how many
	// were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
