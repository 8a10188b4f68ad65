package sqlutil

import (
	"database/sql"
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// FromNullRawMessage returns the JSON document or nil when the column is NULL.
func FromNullRawMessage(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	return val.RawMessage
}

// ToEpochMillis converts sql.NullTime to epoch millis, zero when NULL.
func ToEpochMillis(val sql.NullTime) int64 {
	if !val.Valid {
		return 0
	}
	return val.Time.UnixMilli()
}
