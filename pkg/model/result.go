package model

import "time"

// Operation labels reported by an adapter upsert.
const (
	OperationCreated = "created"
	OperationUpdated = "updated"
)

// UpsertResult identifies the external item an upsert produced or refreshed.
type UpsertResult struct {
	ExternalID  string `json:"external_id"`
	ContainerID string `json:"container_id"`
	DedupKey    string `json:"dedup_key"`
	Operation   string `json:"operation"` // created or updated
	Link        string `json:"link,omitempty"`
}

// ChangedItem is one externally-changed item found during an incremental
// fetch, reduced to the fields conflict detection needs.
type ChangedItem struct {
	ExternalID string    `json:"external_id"`
	DedupKey   string    `json:"dedup_key"`
	Title      string    `json:"title"`
	UpdatedAt  time.Time `json:"updated_at"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// ChangeSet is the result of one incremental fetch against one service.
// Items are filtered to those carrying this engine's dedup marker; the
// container may hold manually-created items with no provenance.
type ChangeSet struct {
	Items       []ChangedItem `json:"items"`
	NewCursor   string        `json:"new_cursor,omitempty"`
	ChangeCount int           `json:"change_count"`
	FullResync  bool          `json:"full_resync,omitempty"`
}

// Health statuses reported by adapter health checks.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Health is the outcome of a single adapter health check. Failures are
// reported in Detail, never returned as errors.
type Health struct {
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Healthy reports whether the check passed.
func (h Health) Healthy() bool {
	return h.Status == StatusHealthy
}
