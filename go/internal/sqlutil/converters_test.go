package sqlutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
)

func TestRawMessageConversions(t *testing.T) {
	assert.Nil(t, FromNullRawMessage(pqtype.NullRawMessage{}))
	assert.Nil(t, FromNullRawMessage(pqtype.NullRawMessage{Valid: true}))

	doc := json.RawMessage(`{"phase":"voting"}`)
	wrapped := pqtype.NullRawMessage{RawMessage: doc, Valid: true}
	assert.JSONEq(t, string(doc), string(FromNullRawMessage(wrapped)))
}

func TestTimeConversions(t *testing.T) {
	assert.Zero(t, ToEpochMillis(sql.NullTime{}))

	ts := time.UnixMilli(1_700_000_000_123)
	nt := sql.NullTime{Time: ts, Valid: true}
	assert.Equal(t, int64(1_700_000_000_123), ToEpochMillis(nt))
}
