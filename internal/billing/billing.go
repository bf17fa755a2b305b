package billing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"pharmapos/backend/internal/store"
)

const (
	DefaultPrefix      = "B"
	DefaultDigits      = 3
	DefaultMaxAttempts = 30
)

type Config struct {
	Prefix      string
	Digits      int
	MaxAttempts int
}

// Probe is the part of the sale store the allocator needs. Inside a unit of
// work it is the UnitOfWork itself, so probes see the same snapshot.
type Probe interface {
	ExistsByBillNumber(ctx context.Context, bill string) (bool, error)
	CountSales(ctx context.Context) (int, error)
}

// Allocator draws short bill numbers of the form <prefix><n>, n zero padded
// to Digits, from 1..10^Digits-1.
type Allocator struct {
	prefix      string
	digits      int
	maxAttempts int
	max         int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAllocator(cfg Config, src rand.Source) *Allocator {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Digits < 1 || cfg.Digits > 9 {
		cfg.Digits = DefaultDigits
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>1|1)
	}

	max := 1
	for range cfg.Digits {
		max *= 10
	}

	return &Allocator{
		prefix:      cfg.Prefix,
		digits:      cfg.Digits,
		maxAttempts: cfg.MaxAttempts,
		max:         max - 1,
		rng:         rand.New(src),
	}
}

func (a *Allocator) Format(n int) string {
	return fmt.Sprintf("%s%0*d", a.prefix, a.digits, n)
}

// Allocate probes random candidates up to MaxAttempts times, then falls back
// to count+1 clamped to the largest value. A taken fallback is fatal.
func (a *Allocator) Allocate(ctx context.Context, probe Probe) (string, error) {
	for range a.maxAttempts {
		candidate := a.Format(a.draw())
		exists, err := probe.ExistsByBillNumber(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}

	count, err := probe.CountSales(ctx)
	if err != nil {
		return "", err
	}
	fallback := a.Format(min(count+1, a.max))
	exists, err := probe.ExistsByBillNumber(ctx, fallback)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %d sales for %d bill numbers", store.ErrAllocationExhausted, count, a.max)
	}
	return fallback, nil
}

func (a *Allocator) draw() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng.IntN(a.max) + 1
}
