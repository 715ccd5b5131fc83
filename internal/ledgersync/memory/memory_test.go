package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budsjett/internal/core"
)

func TestAppendAndEntries(t *testing.T) {
	s := New()

	ref, err := s.Append(context.Background(), core.LedgerEntry{ID: "a", Title: "Coffee"})
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)

	ref, err = s.Append(context.Background(), core.LedgerEntry{ID: "b", Title: "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, "mem:2", ref)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Coffee", entries[0].Title)
}

func TestAppendFailing(t *testing.T) {
	s := New()
	s.SetFailing(true)

	_, err := s.Append(context.Background(), core.LedgerEntry{ID: "a"})
	assert.Error(t, err)
	assert.Empty(t, s.Entries())
}
