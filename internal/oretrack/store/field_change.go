package store

import (
	"time"

	"github.com/BrandonDHaskell/oretrack/internal/oretrack/types"
)

// FieldChange is one accepted update, kept as an append-only audit row.
type FieldChange struct {
	RecordID  int64       `json:"recordId"`
	Field     types.Field `json:"field"`
	OldValue  string      `json:"oldValue"`
	NewValue  string      `json:"newValue"`
	ChangedAt time.Time   `json:"changedAt"`
}
