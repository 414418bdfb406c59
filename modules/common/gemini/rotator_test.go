package gemini

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

func testKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = string(rune('a'+i)) + "-key"
	}
	return keys
}

func TestNewRoundRobinRejectsEmptyPool(t *testing.T) {
	_, err := NewRoundRobin(nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestRoundRobinAlternatesForTwoKeys(t *testing.T) {
	rr, err := NewRoundRobin([]string{"first", "second"})
	require.NoError(t, err)

	var got []int
	for i := 0; i < 6; i++ {
		cred, err := rr.Next(context.Background())
		require.NoError(t, err)
		got = append(got, cred.Index)
	}
	assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, got)
}

func TestRoundRobinCopiesKeys(t *testing.T) {
	keys := []string{"a", "b"}
	rr, err := NewRoundRobin(keys)
	require.NoError(t, err)
	keys[0] = "mutated"

	cred, _ := rr.Next(context.Background())
	assert.Equal(t, "a", cred.Key)
}

func TestRoundRobinFairnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		m := rapid.IntRange(0, 200).Draw(t, "m")

		rr, err := NewRoundRobin(testKeys(n))
		if err != nil {
			t.Fatalf("new: %v", err)
		}

		counts := make([]int, n)
		for k := 0; k < m; k++ {
			cred, _ := rr.Next(context.Background())
			if cred.Index != k%n {
				t.Fatalf("call %d used index %d, want %d", k, cred.Index, k%n)
			}
			counts[cred.Index]++
		}

		lo, hi := m/n, (m+n-1)/n
		for i, c := range counts {
			if c < lo || c > hi {
				t.Fatalf("index %d used %d times, want [%d,%d]", i, c, lo, hi)
			}
		}
	})
}

func TestRoundRobinConcurrentCallsNeverCollide(t *testing.T) {
	const n, perKey = 3, 200
	rr, err := NewRoundRobin(testKeys(n))
	require.NoError(t, err)

	// 시작 커서를 0이 아닌 값으로
	_, _ = rr.Next(context.Background())
	initial := rr.Cursor()

	results := make([]int, n*perKey)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			cred, err := rr.Next(context.Background())
			results[i] = cred.Index
			return err
		})
	}
	require.NoError(t, g.Wait())

	counts := make([]int, n)
	for _, idx := range results {
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, n)
		counts[idx]++
	}
	// 모든 pre-advance 값이 서로 다르면 각 인덱스는 정확히 perKey 번
	for i, c := range counts {
		assert.Equal(t, perKey, c, "index %d", i)
	}
	assert.Equal(t, (initial+len(results))%n, rr.Cursor())
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisRoundRobinSharesCursor(t *testing.T) {
	mr, rdb := newTestRedis(t)

	a, err := NewRedisRoundRobin(rdb, "relay:gemini:cursor", []string{"k0", "k1", "k2"}, zap.NewNop())
	require.NoError(t, err)
	b, err := NewRedisRoundRobin(rdb, "relay:gemini:cursor", []string{"k0", "k1", "k2"}, zap.NewNop())
	require.NoError(t, err)

	var got []int
	for _, r := range []Rotator{a, b, a, b} {
		cred, err := r.Next(context.Background())
		require.NoError(t, err)
		got = append(got, cred.Index)
	}
	assert.Equal(t, []int{0, 1, 2, 0}, got)

	v, err := mr.Get("relay:gemini:cursor")
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestRedisRoundRobinFallsBackToLocal(t *testing.T) {
	mr, rdb := newTestRedis(t)
	rr, err := NewRedisRoundRobin(rdb, "cursor", []string{"k0", "k1"}, zap.NewNop())
	require.NoError(t, err)

	mr.Close()

	first, err := rr.Next(context.Background())
	require.NoError(t, err)
	second, err := rr.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)
}

func TestRedisRoundRobinHonoursCancelledContext(t *testing.T) {
	mr, rdb := newTestRedis(t)
	rr, err := NewRedisRoundRobin(rdb, "cursor", []string{"k0"}, nil)
	require.NoError(t, err)
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rr.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRedisRoundRobinValidates(t *testing.T) {
	_, rdb := newTestRedis(t)

	_, err := NewRedisRoundRobin(rdb, "cursor", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)

	_, err = NewRedisRoundRobin(nil, "cursor", []string{"k"}, nil)
	assert.Error(t, err)

	_, err = NewRedisRoundRobin(rdb, "", []string{"k"}, nil)
	assert.Error(t, err)
}
