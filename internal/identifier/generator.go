package identifier

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRetries bounds the collision-retry loop of TimeRandom.
	DefaultMaxRetries = 5

	// retryBackoffStep gives the linear backoff 5, 10, 15, ... ms.
	retryBackoffStep = 5 * time.Millisecond

	msModulo      = 10_000_000 // 7 trailing digits of the epoch-ms counter
	randCeiling   = 1000       // random suffix in [0, 999]
	sequentialPad = 4
)

// ExistsFunc reports whether a candidate number is already taken within the
// caller's shop. It is the only persistence dependency of the generator.
type ExistsFunc func(ctx context.Context, number string) (bool, error)

// Generator produces shop-scoped business identifiers. The time+random
// policy is best-effort: true uniqueness is enforced by the compound-unique
// constraint on (shop_id, number) at insert time.
type Generator struct {
	log        *zap.Logger
	maxRetries int

	// injectable for tests
	now   func() time.Time
	intn  func(n int) int
	sleep func(ctx context.Context, d time.Duration) error
}

func New(log *zap.Logger) *Generator {
	return &Generator{
		log:        log.Named("identifier"),
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
		intn:       rand.Intn,
		sleep:      sleepCtx,
	}
}

// TimeRandom builds a 10-digit candidate from the 7 trailing digits of the
// epoch-millisecond clock plus a 3-digit random suffix, re-rolling with
// linear backoff while the candidate is taken. The millisecond component
// cycles every 10^7 ms (~2.8 hours); the random suffix gives each
// millisecond bucket 1000 variants.
//
// After maxRetries collisions it falls back to the last 10 digits of the
// current epoch-millisecond timestamp without re-checking uniqueness, so the
// only error this returns is a failed existence check.
func (g *Generator) TimeRandom(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		candidate := g.candidate()

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check identifier %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}

		g.log.Debug("identifier collision",
			zap.String("candidate", candidate),
			zap.Int("attempt", attempt),
		)

		if err := g.sleep(ctx, retryBackoffStep*time.Duration(attempt+1)); err != nil {
			return "", err
		}
	}

	fallback := g.fallback()
	g.log.Warn("identifier retries exhausted, using timestamp fallback",
		zap.String("number", fallback),
	)
	return fallback, nil
}

func (g *Generator) candidate() string {
	ms := g.now().UnixMilli() % msModulo
	return fmt.Sprintf("%07d%03d", ms, g.intn(randCeiling))
}

func (g *Generator) fallback() string {
	return fmt.Sprintf("%010d", g.now().UnixMilli()%10_000_000_000)
}

// Sequential formats the next number in a {PREFIX}-{YEAR}-{NNNN} series
// given the highest existing number of that series. An empty or foreign-year
// lastNumber restarts the sequence at 1.
//
// Two concurrent creators can observe the same lastNumber and compute the
// same next value; the database unique constraint is the backstop and the
// caller maps its violation to a conflict.
func Sequential(prefix string, year int, lastNumber string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("sequential identifier prefix is empty")
	}
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("invalid sequential identifier year: %d", year)
	}

	seq := 0
	if lastNumber != "" {
		if lastYear, lastSeq, ok := parseSequential(prefix, lastNumber); ok && lastYear == year {
			seq = lastSeq
		}
	}

	return fmt.Sprintf("%s-%04d-%0*d", prefix, year, sequentialPad, seq+1), nil
}

// SequentialPattern returns the SQL LIKE pattern matching every number of a
// {PREFIX}-{YEAR}- series, for use in max-number lookups.
func SequentialPattern(prefix string, year int) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	return fmt.Sprintf("%s-%04d-%%", prefix, year)
}

func parseSequential(prefix, number string) (year, seq int, ok bool) {
	rest, found := strings.CutPrefix(number, prefix+"-")
	if !found {
		return 0, 0, false
	}
	parts := strings.SplitN(rest, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.Atoi(parts[1])
	if err != nil || seq < 0 {
		return 0, 0, false
	}
	return year, seq, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
