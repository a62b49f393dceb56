package leader

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/pkg/logger"
)

func newElection(t *testing.T) (*RedisLeaderElection, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLeaderElection(client, 30*time.Second, logger.NewNop()), mr
}

func TestOnlyOneLeader(t *testing.T) {
	election, _ := newElection(t)
	ctx := context.Background()

	ok, err := election.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = election.BecomeLeader(ctx, "node-2")
	require.NoError(t, err)
	assert.False(t, ok)

	isLeader, err := election.IsLeader(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, isLeader)

	isLeader, err = election.IsLeader(ctx, "node-2")
	require.NoError(t, err)
	assert.False(t, isLeader)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	election, mr := newElection(t)
	ctx := context.Background()

	_, err := election.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)

	require.NoError(t, election.ReleaseLeadership(ctx, "node-2"))
	assert.True(t, mr.Exists(leaderKey))

	require.NoError(t, election.ReleaseLeadership(ctx, "node-1"))
	assert.False(t, mr.Exists(leaderKey))

	ok, err := election.BecomeLeader(ctx, "node-2")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, election.ReleaseLeadership(ctx, "node-2"))
}

func TestLeaseExpires(t *testing.T) {
	election, mr := newElection(t)
	ctx := context.Background()

	_, err := election.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)

	mr.FastForward(31 * time.Second)

	isLeader, err := election.IsLeader(ctx, "node-1")
	require.NoError(t, err)
	assert.False(t, isLeader)
}
