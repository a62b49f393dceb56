package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"
)

var testTiers = []domain.IncrementTier{
	{From: 100000, Increment: 5000},
	{From: 0, Increment: 500},
	{From: 10000, Increment: 1000},
}

func TestIncrementFor(t *testing.T) {
	rules := NewIncrementRules(nil, testTiers, 1000, logger.NewNop())
	require.NoError(t, rules.LoadRules(context.Background()))

	assert.Equal(t, int64(500), rules.IncrementFor(0))
	assert.Equal(t, int64(500), rules.IncrementFor(9999))
	assert.Equal(t, int64(1000), rules.IncrementFor(10000))
	assert.Equal(t, int64(5000), rules.IncrementFor(250000))

	empty := NewIncrementRules(nil, nil, 1000, logger.NewNop())
	assert.Equal(t, int64(1000), empty.IncrementFor(42))
}

func TestLoadRulesSeedsAndReadsRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	rules := NewIncrementRules(client, testTiers, 1000, logger.NewNop())
	require.NoError(t, rules.LoadRules(ctx))
	assert.True(t, mr.Exists(incrementRulesKey))

	require.NoError(t, mr.Set(incrementRulesKey, `[{"from":0,"increment":250}]`))
	other := NewIncrementRules(client, testTiers, 1000, logger.NewNop())
	require.NoError(t, other.LoadRules(ctx))
	assert.Equal(t, int64(250), other.IncrementFor(500000))

	require.NoError(t, mr.Set(incrementRulesKey, `[{"from":0,"increment":0},{"from":5000,"increment":-10},{"from":20000,"increment":2000}]`))
	require.NoError(t, other.LoadRules(ctx))
	assert.Equal(t, int64(1000), other.IncrementFor(0))
	assert.Equal(t, int64(1000), other.IncrementFor(10000))
	assert.Equal(t, int64(2000), other.IncrementFor(20000))

	require.NoError(t, mr.Set(incrementRulesKey, `not json`))
	assert.Error(t, other.LoadRules(ctx))
}
