package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_LogMessageAccepted(t *testing.T) {
	mock := &mockWriter{}
	logger := NewLogger(10, mock)

	logger.LogMessageAccepted(42, "alice", "AES-GCM", 1, 5*time.Millisecond, map[string]interface{}{"chunks": 3})

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeMessageAccepted, events[0].EventType)
	assert.Equal(t, int64(42), events[0].MessageID)
	assert.Equal(t, "alice", events[0].Identity)
	assert.True(t, events[0].Success)
}

func TestAuditLogger_LogMessageRejected(t *testing.T) {
	mock := &mockWriter{}
	logger := NewLogger(10, mock)

	logger.LogMessageRejected(7, "bob", "ENTITYAUTH_VERIFICATION_FAILED", errors.New("bad signature"), time.Millisecond, nil)

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeMessageRejected, events[0].EventType)
	assert.Equal(t, "ENTITYAUTH_VERIFICATION_FAILED", events[0].ErrorKind)
	assert.Equal(t, "bad signature", events[0].Error)
	assert.False(t, events[0].Success)
}

func TestAuditLogger_LogReplayRejected(t *testing.T) {
	mock := &mockWriter{}
	logger := NewLogger(10, mock)

	logger.LogReplayRejected(99, "carol", time.Millisecond)

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeReplayRejected, events[0].EventType)
	assert.Equal(t, "MESSAGE_REPLAYED", events[0].ErrorKind)
}

func TestAuditLogger_RedactsConfiguredMetadataKeys(t *testing.T) {
	mock := &mockWriter{}
	logger := NewLoggerWithRedaction(10, mock, []string{"session_seed"})

	logger.LogMessageAccepted(1, "alice", "AES-GCM", 1, 0, map[string]interface{}{
		"session_seed": "super-secret",
		"chunks":       3,
	})

	events := logger.GetEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "[REDACTED]", events[0].Metadata["session_seed"])
	assert.Equal(t, 3, events[0].Metadata["chunks"])
}

func TestAuditLogger_MaxEventsEvictsOldest(t *testing.T) {
	mock := &mockWriter{}
	logger := NewLogger(2, mock)

	logger.LogMessageAccepted(1, "a", "", 0, 0, nil)
	logger.LogMessageAccepted(2, "b", "", 0, 0, nil)
	logger.LogMessageAccepted(3, "c", "", 0, 0, nil)

	events := logger.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].MessageID)
	assert.Equal(t, int64(3), events[1].MessageID)
}
