package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestLedger(t *testing.T, capacity int64) (*Ledger, *RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, DefaultKey)
	l := New(store, Config{Capacity: capacity, TrimInterval: time.Hour}, logging.Discard())
	return l, store, mr
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestNew_Defaults(t *testing.T) {
	l := New(nil, Config{}, nil)

	assert.Equal(t, int64(DefaultCapacity), l.Capacity())
	assert.Equal(t, DefaultTrimInterval, l.cfg.TrimInterval)
}

func TestRecordSample_WriteBehindFlush(t *testing.T) {
	l, store, _ := newTestLedger(t, 10)
	ctx := context.Background()

	require.NoError(t, l.RecordSample(ctx, "1000", "100", "90"))
	require.NoError(t, l.RecordSample(ctx, "1000", "100", "75"))

	samples, err := store.Samples(ctx)
	require.NoError(t, err)
	assert.Empty(t, samples, "nothing is flushed while the window is open")

	require.NoError(t, l.RecordSample(ctx, "2000", "100", "99"))

	samples, err = store.Samples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, models.QuotaSample{WindowEnd: 1000, Used: 25, Limit: 100}, samples[0])

	pending, ok := l.Pending()
	require.True(t, ok)
	assert.Equal(t, models.QuotaSample{WindowEnd: 2000, Used: 1, Limit: 100}, pending)
}

func TestRecordSample_AbsentValuesAreNoOps(t *testing.T) {
	tests := []struct {
		name                    string
		reset, limit, remaining string
	}{
		{"missing reset", "", "100", "50"},
		{"missing limit", "1000", "", "50"},
		{"missing remaining", "1000", "100", ""},
		{"all missing", "", "", ""},
		{"unparseable reset", "soon", "100", "50"},
		{"unparseable remaining", "1000", "100", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store, _ := newTestLedger(t, 10)
			ctx := context.Background()

			require.NoError(t, l.RecordSample(ctx, "500", "10", "5"))
			before, _ := l.Pending()

			require.NoError(t, l.RecordSample(ctx, tt.reset, tt.limit, tt.remaining))

			after, ok := l.Pending()
			require.True(t, ok)
			assert.Equal(t, before, after, "window state must not change")

			count, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, count, "no store write expected")
		})
	}
}

func TestRecordSample_NoStateBeforeFirstSignal(t *testing.T) {
	l, _, _ := newTestLedger(t, 10)

	require.NoError(t, l.RecordSample(context.Background(), "", "", ""))

	_, ok := l.Pending()
	assert.False(t, ok)
}

func TestRecordSample_FinalWindowNeverFlushed(t *testing.T) {
	l, store, _ := newTestLedger(t, 10)
	ctx := context.Background()

	require.NoError(t, l.RecordSample(ctx, "1000", "100", "50"))
	require.NoError(t, l.RecordSample(ctx, "2000", "100", "40"))
	require.NoError(t, l.RecordSample(ctx, "3000", "100", "30"))

	samples, err := store.Samples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, int64(1000), samples[0].WindowEnd)
	assert.Equal(t, int64(2000), samples[1].WindowEnd)
}

func TestRecordSample_IdenticalUsageInDifferentWindows(t *testing.T) {
	l, store, _ := newTestLedger(t, 10)
	ctx := context.Background()

	for _, reset := range []string{"1000", "2000", "3000"} {
		require.NoError(t, l.RecordSample(ctx, reset, "100", "60"))
	}

	samples, err := store.Samples(ctx)
	require.NoError(t, err)
	assert.Len(t, samples, 2, "equal usage must not collapse into one member")
}

func TestRecordHeaders(t *testing.T) {
	l, store, _ := newTestLedger(t, 10)
	ctx := context.Background()

	h := http.Header{}
	h.Set(HeaderReset, "1700000000")
	h.Set(HeaderLimit, "500")
	h.Set(HeaderRemaining, "480")
	require.NoError(t, l.RecordHeaders(ctx, h))

	h.Set(HeaderReset, "1700003600")
	h.Set(HeaderRemaining, "499")
	require.NoError(t, l.RecordHeaders(ctx, h))

	samples, err := store.Samples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, models.QuotaSample{WindowEnd: 1700000000, Used: 20, Limit: 500}, samples[0])

	require.NoError(t, l.RecordHeaders(ctx, nil))
	require.NoError(t, l.RecordHeaders(ctx, http.Header{}))
}

func TestRecordSample_StoreFailureIsReturned(t *testing.T) {
	l, _, mr := newTestLedger(t, 10)
	ctx := context.Background()

	require.NoError(t, l.RecordSample(ctx, "1000", "100", "50"))
	mr.Close()

	err := l.RecordSample(ctx, "2000", "100", "50")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush quota window 1000")

	// The new window is still tracked.
	pending, ok := l.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(2000), pending.WindowEnd)
}

func TestRecordSample_ConcurrentUpdatesAreNotTorn(t *testing.T) {
	l, store, _ := newTestLedger(t, 1000)
	ctx := context.Background()

	// Every signal in window 1000 satisfies used == limit/2, so any
	// interleaving that mixes fields from two calls would break it.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			limit := int64(100 + 2*i)
			_ = l.RecordSample(ctx, "1000", itoa(limit), itoa(limit/2))
		}(i)
	}
	wg.Wait()

	require.NoError(t, l.RecordSample(ctx, "2000", "10", "10"))

	samples, err := store.Samples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, samples[0].Limit/2, samples[0].Used)
}

func TestTrim_CapacityHoldsForRandomSequences(t *testing.T) {
	faker := gofakeit.New(42)

	for round := 0; round < 5; round++ {
		capacity := int64(faker.Number(1, 20))
		l, store, _ := newTestLedger(t, capacity)
		ctx := context.Background()

		reset := int64(1700000000)
		calls := faker.Number(1, 120)
		for i := 0; i < calls; i++ {
			if faker.Bool() {
				reset += int64(faker.Number(1, 3600))
			}
			limit := int64(faker.Number(1, 1000))
			remaining := int64(faker.Number(0, int(limit)))
			require.NoError(t, l.RecordSample(ctx, itoa(reset), itoa(limit), itoa(remaining)))
		}

		require.NoError(t, l.Trim(ctx))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, count, capacity, "round %d", round)
	}
}

func TestTrim_KeepsNewestWindows(t *testing.T) {
	l, store, _ := newTestLedger(t, 3)
	ctx := context.Background()

	for i := int64(1); i <= 6; i++ {
		require.NoError(t, store.Add(ctx, models.QuotaSample{WindowEnd: i * 100, Used: i, Limit: 10}))
	}
	require.NoError(t, l.Trim(ctx))

	samples, err := l.Samples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, []int64{400, 500, 600}, []int64{samples[0].WindowEnd, samples[1].WindowEnd, samples[2].WindowEnd})
}

func TestTrim_StoreFailure(t *testing.T) {
	l, _, mr := newTestLedger(t, 3)
	mr.Close()

	assert.Error(t, l.Trim(context.Background()))
}

func TestStart_TrimsOnceAndStops(t *testing.T) {
	l, store, _ := newTestLedger(t, 2)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Add(ctx, models.QuotaSample{WindowEnd: i, Used: 1, Limit: 1}))
	}

	require.NoError(t, l.Start(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Second Start is a no-op.
	require.NoError(t, l.Start(ctx))

	l.Stop()
	l.Stop()
}

func TestTrimLoop_RunsOnInterval(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client, DefaultKey)
	l := New(store, Config{Capacity: 1, TrimInterval: 20 * time.Millisecond}, logging.Discard())
	ctx := context.Background()

	require.NoError(t, l.Start(ctx))
	defer l.Stop()

	for i := int64(1); i <= 4; i++ {
		require.NoError(t, store.Add(ctx, models.QuotaSample{WindowEnd: i, Used: 1, Limit: 1}))
	}

	assert.Eventually(t, func() bool {
		members, err := mr.ZMembers(DefaultKey)
		return err == nil && len(members) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStop_WithoutStart(t *testing.T) {
	l, _, _ := newTestLedger(t, 2)
	l.Stop()
}

func TestShared_ConstructsOnce(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client, "ratelimit:shared-test")
	ctx := context.Background()

	first, err := Shared(ctx, store, Config{Capacity: 5}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(first.Stop)

	second, err := Shared(ctx, nil, Config{Capacity: 99}, nil)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(5), second.Capacity())
}
