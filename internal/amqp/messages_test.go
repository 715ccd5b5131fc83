package amqp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerCommittedMessageRoundTrip(t *testing.T) {
	msg := NewLedgerCommittedMessage("alice", 202603, []string{"a", "b"})

	data, err := msg.ToJSON()
	require.NoError(t, err)

	got, err := LedgerCommittedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, msg.YearMonth, got.YearMonth)
	assert.Equal(t, []string{"a", "b"}, got.EntryIDs)
	assert.False(t, got.Timestamp.IsZero())
}

func TestLedgerCommittedMessageFromBadJSON(t *testing.T) {
	_, err := LedgerCommittedMessageFromJSON([]byte("not json"))
	assert.Error(t, err)
}
