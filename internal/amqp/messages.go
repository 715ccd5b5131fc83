package amqp

import (
	"encoding/json"
	"time"

	"budsjett/internal/core"
)

// LedgerCommittedMessage announces that a month's staged transactions were
// committed to the ledger. It carries only the entry ids; the worker fetches
// the full entries from the database before exporting them.
type LedgerCommittedMessage struct {
	UserID    string         `json:"userId"`
	YearMonth core.YearMonth `json:"yearMonth"`
	EntryIDs  []string       `json:"entryIds"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewLedgerCommittedMessage creates a commit announcement for the given entries.
func NewLedgerCommittedMessage(userID string, ym core.YearMonth, entryIDs []string) *LedgerCommittedMessage {
	return &LedgerCommittedMessage{
		UserID:    userID,
		YearMonth: ym,
		EntryIDs:  entryIDs,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerCommittedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerCommittedMessageFromJSON creates a message from JSON bytes
func LedgerCommittedMessageFromJSON(data []byte) (*LedgerCommittedMessage, error) {
	var msg LedgerCommittedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
