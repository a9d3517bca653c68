package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	require.NotEqual(t, id, NewID())
}

func TestNewMessageIDSortsInCreationOrder(t *testing.T) {
	now := time.Now()
	prev := NewMessageID(now)
	for i := 0; i < 100; i++ {
		next := NewMessageID(now)
		require.Less(t, prev, next)
		prev = next
	}
}
