package offline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Operation types
// ---------------------------------------------------------------------------

// OpType is the kind of write a queued operation replays
type OpType string

const (
	// OpInsert creates a record
	OpInsert OpType = "insert"
	// OpUpdate overwrites a record
	OpUpdate OpType = "update"
	// OpDelete removes a record
	OpDelete OpType = "delete"
)

// IsValid checks if the operation type is valid
func (t OpType) IsValid() bool {
	switch t {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// String returns the string representation
func (t OpType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// QueuedOperation
// ---------------------------------------------------------------------------

// QueuedOperation is one client write waiting for replay against the
// backend. The queue assigns ID, QueuedAt and Retries on Add; the store
// assigns Seq, which fixes the replay order.
type QueuedOperation struct {
	// ID is the operation identity the store is keyed by
	ID string `json:"id"`
	// Seq is the monotonic enqueue sequence number
	Seq uint64 `json:"seq"`
	// Table is the backend table the write targets
	Table string `json:"table"`
	// Type selects insert, update or delete
	Type OpType `json:"type"`
	// Payload is the record as the client wrote it
	Payload json.RawMessage `json:"payload"`
	// OrgID is the owning organization
	OrgID uuid.UUID `json:"org_id"`
	// QueuedAt is when the operation entered the queue
	QueuedAt time.Time `json:"queued_at"`
	// Retries counts failed replay attempts so far
	Retries int `json:"retries"`
}
