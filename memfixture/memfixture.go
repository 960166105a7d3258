// Package memfixture provides an in-memory corpus.Deserializer used by this
// module's own tests in place of the out-of-scope on-disk deserializer. It
// plays the role the teacher's CSV fixtures play in datasets' test suite:
// a small, deterministic stand-in for a real, much larger data source.
package memfixture

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Noofbiz/blockreader/corpus"
)

// CallKind distinguishes a RequireChunk call from a ReleaseChunk call in
// the Fixture's call log.
type CallKind int

const (
	Require CallKind = iota
	Release
)

func (k CallKind) String() string {
	if k == Require {
		return "require"
	}
	return "release"
}

// Call is one logged RequireChunk/ReleaseChunk invocation.
type Call struct {
	Kind  CallKind
	Chunk int
}

// Fixture is a synthetic, single-sample-per-sequence (frame mode) corpus:
// samplesPerChunk[k] sequences belong to physical chunk k. Every
// (sequence, stream) pair's bytes are a deterministic function of the
// sequence id, so pipeline stages that should be lossless (identity crop,
// identity scale, no mean) can be checked byte-for-byte.
type Fixture struct {
	mu sync.Mutex

	timeline corpus.Timeline
	streams  []corpus.StreamDescription
	calls    []Call
	epochs   []corpus.EpochConfiguration
}

// New builds a Fixture with len(samplesPerChunk) chunks, chunk k holding
// samplesPerChunk[k] sequences, each exposing the given streams.
func New(samplesPerChunk []int, streams []corpus.StreamDescription) *Fixture {
	var tl corpus.Timeline
	id := 0
	for chunk, n := range samplesPerChunk {
		for i := 0; i < n; i++ {
			tl = append(tl, corpus.SequenceDescription{ID: id, ChunkID: chunk, NumberOfSamples: 1})
			id++
		}
	}
	return &Fixture{timeline: tl, streams: streams}
}

func (f *Fixture) GetSequenceDescriptions() (corpus.Timeline, error) {
	return f.timeline, nil
}

func (f *Fixture) StartEpoch(cfg corpus.EpochConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.epochs = append(f.epochs, cfg)
	return nil
}

func (f *Fixture) RequireChunk(originalChunkIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Kind: Require, Chunk: originalChunkIndex})
	return nil
}

func (f *Fixture) ReleaseChunk(originalChunkIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Kind: Release, Chunk: originalChunkIndex})
	return nil
}

func (f *Fixture) GetSequencesByID(ids []int) ([][]corpus.SequenceData, error) {
	out := make([][]corpus.SequenceData, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(f.timeline) {
			return nil, fmt.Errorf("memfixture: sequence id %d out of range [0, %d)", id, len(f.timeline))
		}
		row := make([]corpus.SequenceData, len(f.streams))
		for si, sd := range f.streams {
			row[si] = corpus.SequenceData{
				Data:            SyntheticBytes(id, sd.Layout),
				NumberOfSamples: 1,
				Layout:          sd.Layout,
			}
		}
		out[i] = row
	}
	return out, nil
}

// Calls returns a copy of the RequireChunk/ReleaseChunk call log, in order.
func (f *Fixture) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Epochs returns a copy of every EpochConfiguration passed to StartEpoch.
func (f *Fixture) Epochs() []corpus.EpochConfiguration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]corpus.EpochConfiguration, len(f.epochs))
	copy(out, f.epochs)
	return out
}

// SyntheticBytes deterministically encodes id into a buffer shaped like
// layout: every scalar element equals id (mod the element type's range for
// UInt8), so byte-for-byte comparisons can check that a stage left data
// unchanged.
func SyntheticBytes(id int, layout corpus.SampleLayout) []byte {
	n := layout.Elements()
	buf := make([]byte, n*layout.ElementType.Size())
	switch layout.ElementType {
	case corpus.Float32:
		bits := math.Float32bits(float32(id))
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(buf[i*4:], bits)
		}
	case corpus.Float64:
		bits := math.Float64bits(float64(id))
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], bits)
		}
	case corpus.UInt8:
		v := byte(id % 256)
		for i := 0; i < n; i++ {
			buf[i] = v
		}
	}
	return buf
}
