package pack

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Noofbiz/blockreader/corpus"
)

// Upstream is what a FrameModePacker pulls from: a transform.Chain, or a
// randomizer.BlockRandomizer directly if no transforms are configured.
type Upstream interface {
	GetNextSequences(count int) (corpus.Sequences, error)
}

// OutputStream names one stream FrameModePacker packs into the Minibatch it
// produces, and the position within each sample's per-stream slice its
// (already transformed) bytes come from.
type OutputStream struct {
	StreamIndex int
	corpus.StreamDescription
}

// FrameModePacker consumes minibatchSize single-sample sequences from an
// Upstream and produces one corpus.Minibatch containing, per output
// stream, a contiguous buffer of minibatchSize*sampleElements*elementSize
// bytes plus a shared layout descriptor (spec.md §4.6).
//
// Stream buffers are allocated once at construction via a
// corpus.MemoryProvider and reused across minibatches, matching the
// teacher's habit (datasets.PredictionBatchFlat) of flattening a batch
// into one contiguous buffer per field rather than a slice-of-slices.
type FrameModePacker struct {
	upstream      Upstream
	streams       []OutputStream
	provider      corpus.MemoryProvider
	minibatchSize int
	buffers       map[string]*corpus.StreamBuffer
}

// New builds a FrameModePacker. It rejects any OutputStream whose Storage
// is corpus.SparseCSC: packed output must be dense (spec.md §4.6), though a
// sparse *input* stream is accepted and densified in GetMinibatch.
func New(upstream Upstream, streams []OutputStream, provider corpus.MemoryProvider, minibatchSize int) (*FrameModePacker, error) {
	if minibatchSize <= 0 {
		return nil, fmt.Errorf("pack: minibatchSize must be > 0, got %d", minibatchSize)
	}
	buffers := make(map[string]*corpus.StreamBuffer, len(streams))
	for _, st := range streams {
		if st.Storage == corpus.SparseCSC {
			return nil, fmt.Errorf("pack: output stream %q cannot be sparse", st.Name)
		}
		elemSize := st.Layout.ElementType.Size()
		buf, err := provider.Alloc(elemSize, st.Layout.Elements()*minibatchSize)
		if err != nil {
			return nil, errors.Wrapf(err, "pack: allocating buffer for stream %q", st.Name)
		}
		buffers[st.Name] = &corpus.StreamBuffer{
			Buffer:       buf,
			Layout:       st.Layout,
			MinibatchLen: minibatchSize,
		}
	}
	return &FrameModePacker{
		upstream:      upstream,
		streams:       streams,
		provider:      provider,
		minibatchSize: minibatchSize,
		buffers:       buffers,
	}, nil
}

// GetMinibatch pulls up to minibatchSize transformed samples from upstream
// and packs them column-by-column into the reused stream buffers. A
// partial terminal minibatch at end of epoch is still returned, with
// AtEndOfEpoch set (spec.md §4.6 "End-of-epoch").
func (p *FrameModePacker) GetMinibatch() (*corpus.Minibatch, error) {
	seqs, err := p.upstream.GetNextSequences(p.minibatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "pack: pulling next sequences")
	}
	n := len(seqs.Samples)
	for _, st := range p.streams {
		sb := p.buffers[st.Name]
		sampleBytes := sb.Layout.Bytes()
		for i := 0; i < n; i++ {
			if st.StreamIndex >= len(seqs.Samples[i]) {
				return nil, fmt.Errorf("pack: sample %d has no stream at index %d", i, st.StreamIndex)
			}
			sd := seqs.Samples[i][st.StreamIndex]
			dst := sb.Buffer[i*sampleBytes : (i+1)*sampleBytes]
			if err := packOne(dst, sd, sb.Layout); err != nil {
				return nil, fmt.Errorf("pack: stream %q sample %d: %w", st.Name, i, err)
			}
		}
		// Zero any unfilled tail columns of a partial terminal minibatch so
		// stale data from a previous, larger minibatch never leaks through.
		for i := n; i < p.minibatchSize; i++ {
			clear(sb.Buffer[i*sampleBytes : (i+1)*sampleBytes])
		}
	}
	return &corpus.Minibatch{Streams: p.buffers, Count: n, AtEndOfEpoch: seqs.EndOfEpoch}, nil
}

// packOne writes one sample's bytes into dst, which is exactly
// layout.Bytes() long. Dense input is a straight copy; sparse CSC input
// (sd.Storage) is densified first (spec.md §4.6).
func packOne(dst []byte, sd corpus.SequenceData, layout corpus.SampleLayout) error {
	if sd.Storage == corpus.SparseCSC {
		return densifyCSC(dst, sd.Data, layout)
	}
	if len(sd.Data) != len(dst) {
		return fmt.Errorf("dense sample is %d bytes, want %d", len(sd.Data), len(dst))
	}
	copy(dst, sd.Data)
	return nil
}

// densifyCSC expands a single sparse column into the dense row-major
// buffer dst. The column is encoded as a count-prefixed list of (rowIndex
// uint32, value) pairs: frame mode packs exactly one sample (one CSC
// column) per sequence, so there is no column-pointer array to decode,
// only the nonzero row indices and values for that single column.
func densifyCSC(dst []byte, data []byte, layout corpus.SampleLayout) error {
	clear(dst)
	elemSize := layout.ElementType.Size()
	if len(data) < 4 {
		return fmt.Errorf("sparse sample too short to hold a count")
	}
	nnz := int(binary.LittleEndian.Uint32(data))
	offset := 4
	stride := 4 + elemSize
	if len(data) < offset+nnz*stride {
		return fmt.Errorf("sparse sample declares %d nonzeros but is too short", nnz)
	}
	rows := layout.Elements()
	for k := 0; k < nnz; k++ {
		rec := data[offset+k*stride:]
		row := int(binary.LittleEndian.Uint32(rec))
		if row < 0 || row >= rows {
			return fmt.Errorf("sparse row index %d out of range [0, %d)", row, rows)
		}
		copy(dst[row*elemSize:(row+1)*elemSize], rec[4:4+elemSize])
	}
	return nil
}
