package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(client, 5*time.Minute, logger.NewTestLogger(t))
}

func sampleRanking() *review.Ranking {
	score := 4.5
	return &review.Ranking{
		CycleID: "cycle-1",
		Phase:   review.PhaseApplication,
		Entries: []review.RankingEntry{{
			Rank:          1,
			ApplicationID: "app-1",
			ApplicantName: "Ada",
			Stage:         review.StageSubmitted,
			ScoreSummary:  review.ScoreSummary{WeightedScore: &score, ReviewCount: 2},
		}},
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

var appKey = review.RankingKey{CycleID: "cycle-1", Phase: review.PhaseApplication}

// ==========================
// miniredis
// ==========================

func TestCache_PutThenGet(t *testing.T) {
	_, cache := setupMiniredis(t)
	ctx := context.Background()

	got, gen, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, gen)

	require.NoError(t, cache.PutRanking(ctx, appKey, gen, sampleRanking()))

	got, _, err = cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "app-1", got.Entries[0].ApplicationID)
	assert.InDelta(t, 4.5, *got.Entries[0].WeightedScore, 1e-9)
}

func TestCache_InvalidateHidesOlderGenerations(t *testing.T) {
	_, cache := setupMiniredis(t)
	ctx := context.Background()

	_, gen, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)

	// a write lands while the ranking is being built
	require.NoError(t, cache.Invalidate(ctx, "cycle-1", review.PhaseApplication))
	require.NoError(t, cache.PutRanking(ctx, appKey, gen, sampleRanking()))

	got, current, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(1), current)
}

func TestCache_TracksAreSeparate(t *testing.T) {
	_, cache := setupMiniredis(t)
	ctx := context.Background()
	designKey := review.RankingKey{CycleID: "cycle-1", Phase: review.PhaseApplication, Track: "design"}

	require.NoError(t, cache.PutRanking(ctx, designKey, 0, sampleRanking()))

	got, _, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, _, err = cache.GetRanking(ctx, designKey)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// invalidation covers every track of the phase
	require.NoError(t, cache.Invalidate(ctx, "cycle-1", review.PhaseApplication))
	got, _, err = cache.GetRanking(ctx, designKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_EntriesExpire(t *testing.T) {
	mr, cache := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, cache.PutRanking(ctx, appKey, 0, sampleRanking()))
	mr.FastForward(6 * time.Minute)

	got, _, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_CorruptEntryIsAMiss(t *testing.T) {
	mr, cache := setupMiniredis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(cache.rankingKey(appKey, 0), "{not json"))

	got, gen, err := cache.GetRanking(ctx, appKey)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, gen)
}

// ==========================
// redismock
// ==========================

func TestCache_GenerationReadError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectGet("review:gen:cycle-1:application").SetErr(errors.New("connection refused"))

	_, _, err := cache.GetRanking(context.Background(), appKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_InvalidateError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectIncr("review:gen:cycle-1:interview_round1").SetErr(errors.New("READONLY"))

	err := cache.Invalidate(context.Background(), "cycle-1", review.PhaseInterviewRound1)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_ReadsCurrentGeneration(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := New(client, time.Minute, logger.NewTestLogger(t))

	mock.ExpectGet("review:gen:cycle-1:application").SetVal("7")
	mock.ExpectGet("review:ranking:cycle-1:application:_all:7").RedisNil()

	got, gen, err := cache.GetRanking(context.Background(), appKey)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, int64(7), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}
