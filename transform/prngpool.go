package transform

import (
	"math/rand"
	"sync"
	"sync/atomic"
)

// prngPool is the concurrent PRNG pool from spec.md §4.2/§5/§9: a worker
// pops a *rand.Rand (a fresh one is created if the pool is empty), uses it
// for exactly one sample, and pushes it back. sync.Pool already implements
// pop-or-create/push with lock-free fast paths, so it is the pool; this
// type only adds deterministic-from-seed creation.
type prngPool struct {
	pool    sync.Pool
	seed    int64
	created int64
}

func newPRNGPool(seed int64) *prngPool {
	p := &prngPool{seed: seed}
	p.pool.New = func() any {
		n := atomic.AddInt64(&p.created, 1)
		return rand.New(rand.NewSource(p.seed + n))
	}
	return p
}

func (p *prngPool) get() *rand.Rand {
	return p.pool.Get().(*rand.Rand)
}

func (p *prngPool) put(r *rand.Rand) {
	p.pool.Put(r)
}
