package types

import (
	"fmt"
	"time"
)

// PendingUpdate is a field edit applied locally and waiting to be pushed to
// the authoritative store.
type PendingUpdate struct {
	ID        string    `json:"id"`
	RecordID  int64     `json:"recordId"`
	Field     Field     `json:"field"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	CreatedAt time.Time `json:"createdAt"`
	Synced    bool      `json:"synced"`
}

// PendingID builds the queue key for an edit. The nanosecond stamp keeps
// rapid repeated edits to the same field distinct.
func PendingID(recordID int64, f Field, at time.Time) string {
	return fmt.Sprintf("%d-%s-%d", recordID, f, at.UTC().UnixNano())
}
