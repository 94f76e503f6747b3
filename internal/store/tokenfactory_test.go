package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kenneth/msl/internal/msl"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisTokenFactory(t *testing.T) *RedisTokenFactory {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenFactory(client)
}

func TestRedisTokenFactory_RevocationRoundTrip(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()

	reason, revoked, err := tf.IsEntityRevoked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Empty(t, reason)

	require.NoError(t, tf.RevokeEntity(ctx, "alice", "key compromised"))

	reason, revoked, err = tf.IsEntityRevoked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, "key compromised", reason)
}

func TestRedisTokenFactory_MasterTokenRevocation(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()
	mt := &msl.MasterToken{SerialNumber: 42}

	_, revoked, err := tf.IsMasterTokenRevoked(ctx, mt)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, tf.RevokeMasterToken(ctx, 42, "renewal abuse"))
	reason, revoked, err := tf.IsMasterTokenRevoked(ctx, mt)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, "renewal abuse", reason)
}

func TestRedisTokenFactory_AcceptNonReplayableID_FirstIDAlwaysAccepted(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	mt := &msl.MasterToken{SerialNumber: 1}

	accepted, replay, unrecoverable, err := tf.AcceptNonReplayableID(context.Background(), mt, 5)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.False(t, replay)
	assert.False(t, unrecoverable)
}

func TestRedisTokenFactory_AcceptNonReplayableID_RejectsReplay(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()
	mt := &msl.MasterToken{SerialNumber: 1}

	_, _, _, err := tf.AcceptNonReplayableID(ctx, mt, 5)
	require.NoError(t, err)

	accepted, replay, unrecoverable, err := tf.AcceptNonReplayableID(ctx, mt, 5)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.True(t, replay)
	assert.False(t, unrecoverable)
}

func TestRedisTokenFactory_AcceptNonReplayableID_RejectsFarAhead(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()
	mt := &msl.MasterToken{SerialNumber: 1}

	_, _, _, err := tf.AcceptNonReplayableID(ctx, mt, 5)
	require.NoError(t, err)

	accepted, replay, unrecoverable, err := tf.AcceptNonReplayableID(ctx, mt, 5+msl.AcceptanceWindow+1)
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.False(t, replay)
	assert.True(t, unrecoverable)
}

func TestRedisTokenFactory_AcceptNonReplayableID_AcceptsWithinWindow(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()
	mt := &msl.MasterToken{SerialNumber: 1}

	_, _, _, err := tf.AcceptNonReplayableID(ctx, mt, 100)
	require.NoError(t, err)

	accepted, replay, unrecoverable, err := tf.AcceptNonReplayableID(ctx, mt, 100+msl.AcceptanceWindow)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.False(t, replay)
	assert.False(t, unrecoverable)
}

func TestRedisTokenFactory_AcceptNonReplayableID_IsolatedPerSerialNumber(t *testing.T) {
	tf := newTestRedisTokenFactory(t)
	ctx := context.Background()

	_, _, _, err := tf.AcceptNonReplayableID(ctx, &msl.MasterToken{SerialNumber: 1}, 5)
	require.NoError(t, err)

	accepted, _, _, err := tf.AcceptNonReplayableID(ctx, &msl.MasterToken{SerialNumber: 2}, 5)
	require.NoError(t, err)
	assert.True(t, accepted, "a fresh serial number has its own sequence")
}
