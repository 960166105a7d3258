package transform_test

import (
	"math/rand"
	"testing"

	"github.com/Noofbiz/blockreader/corpus"
	"github.com/Noofbiz/blockreader/memfixture"
	"github.com/Noofbiz/blockreader/transform"
)

var chainStream = []corpus.StreamDescription{
	{ID: 0, Name: "id", Layout: corpus.SampleLayout{Width: 1, Height: 1, Channels: 1, ElementType: corpus.Float32}},
}

// identityVariant returns its input unchanged; used to verify that Chain
// preserves sample order under its worker pool regardless of which
// goroutine happens to finish first.
type identityVariant struct{}

func (identityVariant) Apply(data []byte, layout corpus.SampleLayout, rng *rand.Rand) ([]byte, corpus.SampleLayout, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, layout, nil
}

// sequentialUpstream pulls ids [0, n) from a Fixture in order, standing in
// for a randomizer.BlockRandomizer so Chain's worker pool can be exercised
// without pulling in the randomizer package.
type sequentialUpstream struct {
	fix *memfixture.Fixture
	n   int
}

func (u *sequentialUpstream) GetNextSequences(count int) (corpus.Sequences, error) {
	ids := make([]int, 0, count)
	for len(ids) < count && len(ids) < u.n {
		ids = append(ids, len(ids))
	}
	samples, err := u.fix.GetSequencesByID(ids)
	if err != nil {
		return corpus.Sequences{}, err
	}
	return corpus.Sequences{Samples: samples, EndOfEpoch: true}, nil
}

func TestChain_PreservesOrderAcrossWorkers(t *testing.T) {
	fix := memfixture.New([]int{50}, chainStream)
	chain := transform.New(&sequentialUpstream{fix: fix, n: 50}, []transform.StreamTransform{{StreamIndex: 0, Variant: identityVariant{}}})

	seqs, err := chain.GetNextSequences(50)
	if err != nil {
		t.Fatalf("GetNextSequences() = %v", err)
	}
	if len(seqs.Samples) != 50 {
		t.Fatalf("len(seqs.Samples) = %d, want 50", len(seqs.Samples))
	}
	for i, sample := range seqs.Samples {
		want := memfixture.SyntheticBytes(i, chainStream[0].Layout)
		if string(sample[0].Data) != string(want) {
			t.Fatalf("sample %d: data mismatch after identity transform", i)
		}
	}
}

func TestChain_PropagatesUpstreamError(t *testing.T) {
	chain := transform.New(errorUpstream{}, nil)
	if _, err := chain.GetNextSequences(1); err == nil {
		t.Fatalf("GetNextSequences() = nil error, want upstream error propagated")
	}
}

type errorUpstream struct{}

func (errorUpstream) GetNextSequences(count int) (corpus.Sequences, error) {
	return corpus.Sequences{}, errSentinel
}

var errSentinel = &sentinelErr{}

type sentinelErr struct{}

func (*sentinelErr) Error() string { return "upstream failed" }

func TestChain_RejectsOutOfRangeStreamIndex(t *testing.T) {
	fix := memfixture.New([]int{1}, chainStream)
	chain := transform.New(&sequentialUpstream{fix: fix, n: 1}, []transform.StreamTransform{{StreamIndex: 5, Variant: identityVariant{}}})
	if _, err := chain.GetNextSequences(1); err == nil {
		t.Fatalf("GetNextSequences() = nil error, want out-of-range rejection")
	}
}
