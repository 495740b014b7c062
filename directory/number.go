package directory

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/warp/movement-ledger/ledger"
)

const (
	minAccountNumber = 100000
	maxAccountNumber = 999999

	DefaultMaxAttempts = 50
)

// NumberGenerator draws six-digit account numbers until Exists reports a
// free one, giving up after MaxAttempts draws.
type NumberGenerator struct {
	Exists      func(ctx context.Context, number string) (bool, error)
	MaxAttempts int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewNumberGenerator seeds from the clock. Tests pass their own source
// through WithSource.
func NewNumberGenerator(exists func(ctx context.Context, number string) (bool, error), maxAttempts int) *NumberGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &NumberGenerator{
		Exists:      exists,
		MaxAttempts: maxAttempts,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *NumberGenerator) WithSource(src rand.Source) *NumberGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rnd = rand.New(src)
	return g
}

func (g *NumberGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.MaxAttempts; attempt++ {
		number := g.draw()
		taken, err := g.Exists(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check account number %s: %w", number, err)
		}
		if !taken {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ledger.ErrAccountNumberExhausted, g.MaxAttempts)
}

func (g *NumberGenerator) draw() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return strconv.Itoa(minAccountNumber + g.rnd.Intn(maxAccountNumber-minAccountNumber+1))
}
