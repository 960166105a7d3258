// Package corpus defines the data model shared by every stage of the
// pipeline: the corpus timeline as seen by the deserializer, the chunk
// and randomized-chunk bookkeeping the randomizer produces, and the
// sample/minibatch transport types that flow downstream.
package corpus

import "fmt"

// ElementType identifies the scalar type a stream's samples are stored as.
type ElementType int

const (
	Float32 ElementType = iota
	Float64
	UInt8
)

// Size returns the size in bytes of a single element of this type.
func (e ElementType) Size() int {
	switch e {
	case Float32:
		return 4
	case Float64:
		return 8
	case UInt8:
		return 1
	default:
		return 0
	}
}

func (e ElementType) String() string {
	switch e {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case UInt8:
		return "u8"
	default:
		return fmt.Sprintf("elementType(%d)", int(e))
	}
}

// StorageType identifies how a stream's samples are physically laid out.
type StorageType int

const (
	Dense StorageType = iota
	SparseCSC
)

func (s StorageType) String() string {
	if s == SparseCSC {
		return "sparse_csc"
	}
	return "dense"
}

// SampleLayout is the logical shape of a single sample: width-by-height
// with a channel count, plus the scalar type the bytes are stored as.
type SampleLayout struct {
	Width       int
	Height      int
	Channels    int
	ElementType ElementType
}

// Elements returns the number of scalar elements in one sample of this layout.
func (l SampleLayout) Elements() int {
	return l.Width * l.Height * l.Channels
}

// Bytes returns the number of bytes one sample of this layout occupies.
func (l SampleLayout) Bytes() int {
	return l.Elements() * l.ElementType.Size()
}

// StreamDescription names one feature stream in the corpus, e.g. "features"
// or "labels", and the physical shape/type/storage its samples use.
type StreamDescription struct {
	ID      int
	Name    string
	Storage StorageType
	Layout  SampleLayout
}

// SequenceDescription is one logical record of the corpus as enumerated by
// the deserializer. Sequence ids are monotonic (0, 1, 2, ...); ChunkID is
// the physical chunk the sequence belongs to in the original timeline.
type SequenceDescription struct {
	ID              int
	ChunkID         int
	NumberOfSamples int
}

// Timeline is the deserializer's full enumeration of the corpus, read once
// at construction time.
type Timeline []SequenceDescription

// Validate checks the invariants spec'd for an input timeline: sequence ids
// form 0,1,2,..., chunk ids are non-decreasing and change by at most one
// per step, every sequence has at least one sample, and (since this
// pipeline implements frame mode only) every sequence has exactly one
// sample.
func (t Timeline) Validate() error {
	for i, seq := range t {
		if seq.ID != i {
			return fmt.Errorf("corpus: timeline invalid: sequence at position %d has id %d, want %d", i, seq.ID, i)
		}
		if seq.NumberOfSamples < 1 {
			return fmt.Errorf("corpus: timeline invalid: sequence %d has %d samples, want >= 1", seq.ID, seq.NumberOfSamples)
		}
		if seq.NumberOfSamples != 1 {
			return fmt.Errorf("corpus: timeline invalid: sequence %d has %d samples, frame mode requires exactly 1", seq.ID, seq.NumberOfSamples)
		}
		if i > 0 {
			prev := t[i-1]
			if seq.ChunkID < prev.ChunkID || seq.ChunkID > prev.ChunkID+1 {
				return fmt.Errorf("corpus: timeline invalid: chunk id jumps from %d to %d between sequences %d and %d", prev.ChunkID, seq.ChunkID, prev.ID, seq.ID)
			}
		} else if seq.ChunkID != 0 {
			return fmt.Errorf("corpus: timeline invalid: first sequence must belong to chunk 0, got %d", seq.ChunkID)
		}
	}
	return nil
}

// NumChunks returns one past the highest chunk id present in the timeline,
// i.e. the number of physical chunks. An empty timeline has zero chunks.
func (t Timeline) NumChunks() int {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1].ChunkID + 1
}

// ChunkInformation indexes, for chunk k in the original timeline, the
// position of its first sequence and first sample. A ChunkInformation
// slice built from a Timeline always carries a trailing sentinel element
// whose positions equal the totals, so info[k+1].FirstX - info[k].FirstX
// gives the width of chunk k even for the last real chunk.
type ChunkInformation struct {
	FirstSequencePosition int
	FirstSamplePosition   int
}

// BuildChunkInformation scans t once and returns one ChunkInformation per
// chunk plus a terminating sentinel.
func BuildChunkInformation(t Timeline) []ChunkInformation {
	n := t.NumChunks()
	info := make([]ChunkInformation, 0, n+1)
	samplePos := 0
	chunkID := -1
	for _, seq := range t {
		if seq.ChunkID != chunkID {
			info = append(info, ChunkInformation{
				FirstSequencePosition: seq.ID,
				FirstSamplePosition:   samplePos,
			})
			chunkID = seq.ChunkID
		}
		samplePos += seq.NumberOfSamples
	}
	info = append(info, ChunkInformation{
		FirstSequencePosition: len(t),
		FirstSamplePosition:   samplePos,
	})
	return info
}

// RandomizedChunk records, for one physical chunk, where it landed on the
// randomized timeline and the window of randomized-chunk indices allowed
// to contribute sequences at its position.
type RandomizedChunk struct {
	OriginalChunkIndex int
	SequencePosition   int
	SamplePosition     int
	WindowBegin        int
	WindowEnd          int
}

// SequenceData is a decoded sample payload for one stream: the raw bytes
// (owned by the deserializer, or by a transformer once a transform has run)
// plus the shape they're laid out as.
type SequenceData struct {
	Data            []byte
	NumberOfSamples int
	Layout          SampleLayout
	Storage         StorageType
}

// Sequences is the batch transport type passed between pipeline stages: one
// entry per sample, each holding one SequenceData per configured stream, in
// stream order.
type Sequences struct {
	Samples     [][]SequenceData
	EndOfEpoch  bool
}

// StreamBuffer is one stream's contiguous minibatch-sized buffer plus the
// layout every sample within it shares.
type StreamBuffer struct {
	Buffer       []byte
	Layout       SampleLayout
	MinibatchLen int
}

// Minibatch is the packed output of FrameModePacker: one StreamBuffer per
// output stream, named by the stream's descriptor name. Count is the
// number of real (non-padding) samples packed into columns
// [0, Count); it is less than a StreamBuffer's MinibatchLen only for a
// partial terminal minibatch, and is zero once an epoch has nothing left
// to deliver.
type Minibatch struct {
	Streams      map[string]*StreamBuffer
	Count        int
	AtEndOfEpoch bool
}

// EpochConfiguration carries the per-epoch parameters a BlockRandomizer
// needs to reposition itself and compute a worker's share of the corpus.
// UseSweepSize is the TotalSizeInSamples sentinel meaning "one sweep".
const UseSweepSize = -1

type EpochConfiguration struct {
	EpochIndex         int
	TotalSizeInSamples int
	MinibatchSize      int
	WorkerRank         int
	NumberOfWorkers    int
}
