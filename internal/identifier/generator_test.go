package identifier

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock is shared across goroutines; sleeps advance it so retried
// candidates land in fresh millisecond buckets, matching real time passing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGenerator(clock *fakeClock, intn func(int) int) (*Generator, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	var mu sync.Mutex
	g := New(zap.NewNop())
	g.now = clock.Now
	if intn != nil {
		g.intn = intn
	}
	g.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		*sleeps = append(*sleeps, d)
		mu.Unlock()
		clock.Advance(d)
		return nil
	}
	return g, sleeps
}

func neverExists(context.Context, string) (bool, error) { return false, nil }

func TestTimeRandomPadding(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700000000042)}
	g, _ := newTestGenerator(clock, func(int) int { return 7 })

	number, err := g.TimeRandom(context.Background(), neverExists)
	require.NoError(t, err)

	assert.Len(t, number, 10)
	assert.Equal(t, "0000042", number[:7], "ms part is 7 left-padded digits")
	assert.Equal(t, "007", number[7:], "random part is 3 left-padded digits")
}

func TestTimeRandomRandomPartRange(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1700009999999)}

	for _, r := range []int{0, 999} {
		g, _ := newTestGenerator(clock, func(int) int { return r })
		number, err := g.TimeRandom(context.Background(), neverExists)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%03d", r), number[7:])
	}
}

func TestTimeRandomBackoffAndFallback(t *testing.T) {
	start := time.UnixMilli(1712345678901)
	clock := &fakeClock{now: start}
	g, sleeps := newTestGenerator(clock, nil)

	calls := 0
	alwaysTaken := func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}

	number, err := g.TimeRandom(context.Background(), alwaysTaken)
	require.NoError(t, err, "retry exhaustion never errors")

	assert.Equal(t, DefaultMaxRetries, calls)
	assert.Equal(t, []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		15 * time.Millisecond,
		20 * time.Millisecond,
		25 * time.Millisecond,
	}, *sleeps, "linear backoff, 5ms per attempt index")

	// Fallback: last 10 digits of the clock after all backoffs (75ms total).
	want := fmt.Sprintf("%010d", start.Add(75*time.Millisecond).UnixMilli()%10_000_000_000)
	assert.Equal(t, want, number)
}

func TestTimeRandomRetriesWithFreshCandidate(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1712345678901)}
	g, sleeps := newTestGenerator(clock, func(int) int { return 123 })

	var seen []string
	exists := func(_ context.Context, number string) (bool, error) {
		seen = append(seen, number)
		return len(seen) == 1, nil
	}

	number, err := g.TimeRandom(context.Background(), exists)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1], "second attempt uses a fresh timestamp")
	assert.Equal(t, seen[1], number)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, *sleeps)
}

func TestTimeRandomPropagatesExistenceCheckError(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(1712345678901)}
	g, _ := newTestGenerator(clock, nil)

	boom := fmt.Errorf("connection refused")
	_, err := g.TimeRandom(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestTimeRandomConcurrentUniqueness(t *testing.T) {
	const n = 1000

	clock := &fakeClock{now: time.UnixMilli(1712345678000)}
	g, _ := newTestGenerator(clock, nil)
	g.intn = rand.New(rand.NewSource(42)).Intn
	g.maxRetries = 10

	// The store is the "would be inserted" stage: a candidate that passes
	// the existence check is claimed atomically, like the DB unique
	// constraint would.
	var mu sync.Mutex
	claimed := make(map[string]bool, n)
	checkAndClaim := func(_ context.Context, number string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if claimed[number] {
			return true, nil
		}
		claimed[number] = true
		return false, nil
	}

	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := g.TimeRandom(context.Background(), checkAndClaim)
			assert.NoError(t, err)
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	unique := make(map[string]bool, n)
	for number := range results {
		assert.Len(t, number, 10)
		unique[number] = true
	}
	assert.Len(t, unique, n, "no duplicate identifiers under concurrent load")
}

func TestSequentialFormatting(t *testing.T) {
	pattern := regexp.MustCompile(`^GRN-\d{4}-\d{4}$`)

	tests := []struct {
		name string
		last string
		want string
	}{
		{"first of series", "", "GRN-2026-0001"},
		{"increments last", "GRN-2026-0041", "GRN-2026-0042"},
		{"restarts on new year", "GRN-2025-0099", "GRN-2026-0001"},
		{"ignores malformed last", "GRN/2026/12", "GRN-2026-0001"},
		{"ignores foreign prefix", "INV-2026-0007", "GRN-2026-0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sequential("GRN", 2026, tt.last)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Regexp(t, pattern, got)
		})
	}
}

func TestSequentialValidation(t *testing.T) {
	_, err := Sequential("", 2026, "")
	assert.Error(t, err)

	_, err = Sequential("GRN", 26, "")
	assert.Error(t, err)
}

func TestSequentialNormalizesPrefix(t *testing.T) {
	got, err := Sequential(" grn ", 2026, "GRN-2026-0009")
	require.NoError(t, err)
	assert.Equal(t, "GRN-2026-0010", got)
}
