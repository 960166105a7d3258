// Package transform implements the pull-through transform chain of
// spec.md §4.2-§4.5: a generic per-sample, per-stream transform dispatcher
// (Chain) plus the Crop, Scale and Mean variants it drives.
package transform

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/go-logr/logr"

	"github.com/Noofbiz/blockreader/corpus"
)

// Upstream is what a Chain pulls from: either a randomizer.BlockRandomizer
// or another Chain.
type Upstream interface {
	GetNextSequences(count int) (corpus.Sequences, error)
}

// Variant is one transform kind (Crop, Scale, Mean). Apply receives a
// sample's decoded bytes and layout for the stream it was configured
// against, plus a PRNG it may use for stochastic choices (crop offset,
// hflip coin, scale interpolation pick), and returns the transformed bytes
// and their new layout.
type Variant interface {
	Apply(data []byte, layout corpus.SampleLayout, rng *rand.Rand) ([]byte, corpus.SampleLayout, error)
}

// StreamTransform binds a Variant to the index, within each sample's
// per-stream slice, of the stream it should transform.
type StreamTransform struct {
	StreamIndex int
	Variant     Variant
}

// Chain is the TransformerChain base behavior: it forwards
// GetNextSequences upstream, then applies every configured StreamTransform
// to every sample in the returned batch, in parallel across samples with
// an ordered-by-index barrier for output assembly (spec.md §4.2, §5).
type Chain struct {
	upstream Upstream
	streams  []StreamTransform
	pool     *prngPool
	workers  int
	log      logr.Logger
}

// Option configures a Chain at construction.
type Option func(*Chain)

// WithWorkers overrides the worker pool size (default runtime.NumCPU()).
func WithWorkers(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLog attaches a logger for per-batch bookkeeping (spec.md §5).
func WithLog(log logr.Logger) Option {
	return func(c *Chain) { c.log = log }
}

// WithSeed seeds the Chain's PRNG pool so stochastic transforms (random
// crop, hflip, interpolation choice) are reproducible from the
// configuration surface's top-level seed (spec.md §6).
func WithSeed(seed int64) Option {
	return func(c *Chain) { c.pool = newPRNGPool(seed) }
}

// New builds a Chain pulling from upstream and applying streams, in order,
// to every sample it forwards.
func New(upstream Upstream, streams []StreamTransform, opts ...Option) *Chain {
	c := &Chain{
		upstream: upstream,
		streams:  streams,
		pool:     newPRNGPool(0),
		workers:  runtime.NumCPU(),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetNextSequences pulls one batch from upstream and transforms it.
// Buffers produced by a Variant.Apply call are owned by the Chain and are
// only guaranteed valid until the next call to GetNextSequences.
func (c *Chain) GetNextSequences(count int) (corpus.Sequences, error) {
	seqs, err := c.upstream.GetNextSequences(count)
	if err != nil {
		return corpus.Sequences{}, err
	}
	n := len(seqs.Samples)
	if n == 0 {
		return seqs, nil
	}

	workers := c.workers
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				errs[idx] = c.transformSample(seqs.Samples[idx])
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, e := range errs {
		if e != nil {
			return corpus.Sequences{}, fmt.Errorf("transform: sample %d: %w", i, e)
		}
	}
	c.log.V(2).Info("batch transformed", "samples", n, "streams", len(c.streams))
	return seqs, nil
}

// transformSample applies every configured StreamTransform to one sample,
// in stream order, replacing each SequenceData in place.
func (c *Chain) transformSample(sample []corpus.SequenceData) error {
	for _, st := range c.streams {
		if st.StreamIndex < 0 || st.StreamIndex >= len(sample) {
			return fmt.Errorf("transform: stream index %d out of range [0, %d)", st.StreamIndex, len(sample))
		}
		sd := sample[st.StreamIndex]
		rng := c.pool.get()
		data, layout, err := st.Variant.Apply(sd.Data, sd.Layout, rng)
		c.pool.put(rng)
		if err != nil {
			return err
		}
		sample[st.StreamIndex] = corpus.SequenceData{
			Data:            data,
			NumberOfSamples: sd.NumberOfSamples,
			Layout:          layout,
		}
	}
	return nil
}
