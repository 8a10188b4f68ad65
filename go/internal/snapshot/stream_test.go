package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/wordparty/go/internal/models"
)

func TestDecodeEnvelope(t *testing.T) {
	data := []byte(`{
		"eventId": "evt-1",
		"eventType": "GameStateUpdated",
		"roomId": "room-1",
		"timestamp": "2023-11-14T22:13:20Z",
		"payload": {
			"phase": "voting",
			"currentRound": 2,
			"currentPrompt": {"text": "Worst superpower"},
			"phaseStartTime": 1700000000000,
			"phaseDuration": 25,
			"votes": {"a": "b"}
		}
	}`)

	env, state, ok, err := DecodeEnvelope(data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "room-1", env.RoomID)
	assert.Equal(t, models.PhaseVoting, state.Phase)
	assert.Equal(t, "Worst superpower", state.CurrentPrompt.Display())
	assert.Equal(t, int64(1_700_000_000_000), state.UpdatedAt, "timestamp fills a missing updatedAt")
	assert.Equal(t, 1, state.Votes.Len())
}

func TestDecodeEnvelope_IgnoresOtherEvents(t *testing.T) {
	_, _, ok, err := DecodeEnvelope([]byte(`{"eventType":"PlayerJoined","payload":{}}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `nope`},
		{"missing payload", `{"eventId":"e","eventType":"GameStateUpdated"}`},
		{"payload not an object", `{"eventType":"GameStateUpdated","payload":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok, err := DecodeEnvelope([]byte(tt.data))
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDecodeEnvelope_FloatTimingFields(t *testing.T) {
	data := `{"eventType":"GameStateUpdated","roomId":"room-1","payload":{
		"phase":"voting","currentRound":"2","phaseStartTime":1700000000000.0,"phaseDuration":25.0}}`

	_, state, ok, err := DecodeEnvelope([]byte(data))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, state.CurrentRound)
	assert.Equal(t, int64(1_700_000_000_000), state.PhaseStartTime)
	assert.Equal(t, 25, state.PhaseDuration)
}
