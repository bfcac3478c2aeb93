// Package rng provides a goroutine-safe pseudo-random source that can be
// seeded deterministically in tests.
package rng

import (
	"math/rand"
	"sync"
	"time"
)

type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func New(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded returns a source seeded from the wall clock.
func NewTimeSeeded() *Rand {
	return New(time.Now().UnixNano())
}

func (r *Rand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Intn(n)
}

func (r *Rand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Perm(n)
}

func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r.Shuffle(n, swap)
}
