package pack_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Noofbiz/blockreader/corpus"
	"github.com/Noofbiz/blockreader/memfixture"
	"github.com/Noofbiz/blockreader/pack"
)

var packStream = []corpus.StreamDescription{
	{ID: 0, Name: "id", Layout: corpus.SampleLayout{Width: 1, Height: 1, Channels: 1, ElementType: corpus.Float32}},
}

type sequentialUpstream struct {
	fix *memfixture.Fixture
	n   int
	pos int
}

func (u *sequentialUpstream) GetNextSequences(count int) (corpus.Sequences, error) {
	ids := make([]int, 0, count)
	for len(ids) < count && u.pos < u.n {
		ids = append(ids, u.pos)
		u.pos++
	}
	samples, err := u.fix.GetSequencesByID(ids)
	if err != nil {
		return corpus.Sequences{}, err
	}
	return corpus.Sequences{Samples: samples, EndOfEpoch: u.pos >= u.n}, nil
}

func decodeF32(buf []byte, i int) float32 {
	bits := binary.LittleEndian.Uint32(buf[i*4:])
	return math.Float32frombits(bits)
}

func TestFrameModePacker_PacksContiguousColumns(t *testing.T) {
	fix := memfixture.New([]int{10}, packStream)
	up := &sequentialUpstream{fix: fix, n: 10}
	streams := []pack.OutputStream{{StreamIndex: 0, StreamDescription: packStream[0]}}
	p, err := pack.New(up, streams, pack.HeapProvider{}, 4)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	mb, err := p.GetMinibatch()
	if err != nil {
		t.Fatalf("GetMinibatch() = %v", err)
	}
	sb := mb.Streams["id"]
	if sb.MinibatchLen != 4 {
		t.Fatalf("MinibatchLen = %d, want 4", sb.MinibatchLen)
	}
	for i := 0; i < 4; i++ {
		if got := decodeF32(sb.Buffer, i); got != float32(i) {
			t.Fatalf("column %d = %v, want %v", i, got, i)
		}
	}
	if mb.AtEndOfEpoch {
		t.Fatalf("AtEndOfEpoch = true on first of three minibatches, want false")
	}
}

func TestFrameModePacker_PartialTerminalMinibatch(t *testing.T) {
	fix := memfixture.New([]int{10}, packStream)
	up := &sequentialUpstream{fix: fix, n: 10}
	streams := []pack.OutputStream{{StreamIndex: 0, StreamDescription: packStream[0]}}
	p, err := pack.New(up, streams, pack.HeapProvider{}, 4)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	var last *corpus.Minibatch
	for i := 0; i < 3; i++ {
		last, err = p.GetMinibatch()
		if err != nil {
			t.Fatalf("GetMinibatch() = %v", err)
		}
	}
	if !last.AtEndOfEpoch {
		t.Fatalf("AtEndOfEpoch = false on terminal minibatch, want true")
	}
	sb := last.Streams["id"]
	// 10 samples, minibatch 4: batches of 4, 4, 2 -> last batch has 2 real
	// columns, columns [2,4) should have been zeroed.
	if got := decodeF32(sb.Buffer, 0); got != 8 {
		t.Fatalf("terminal batch column 0 = %v, want 8", got)
	}
	if got := decodeF32(sb.Buffer, 1); got != 9 {
		t.Fatalf("terminal batch column 1 = %v, want 9", got)
	}
	for i := 2; i < 4; i++ {
		if got := decodeF32(sb.Buffer, i); got != 0 {
			t.Fatalf("terminal batch column %d = %v, want 0 (zeroed tail)", i, got)
		}
	}
}

func TestFrameModePacker_RejectsSparseOutputStream(t *testing.T) {
	fix := memfixture.New([]int{1}, packStream)
	up := &sequentialUpstream{fix: fix, n: 1}
	sparse := packStream[0]
	sparse.Storage = corpus.SparseCSC
	streams := []pack.OutputStream{{StreamIndex: 0, StreamDescription: sparse}}
	if _, err := pack.New(up, streams, pack.HeapProvider{}, 2); err == nil {
		t.Fatalf("New() with sparse output = nil error, want rejection")
	}
}

type fixedUpstream struct {
	seqs corpus.Sequences
}

func (u fixedUpstream) GetNextSequences(count int) (corpus.Sequences, error) {
	return u.seqs, nil
}

func TestFrameModePacker_DensifiesSparseInput(t *testing.T) {
	layout := corpus.SampleLayout{Width: 1, Height: 4, Channels: 1, ElementType: corpus.Float32}
	// Sparse column: 2 nonzeros at rows 1 and 3.
	sparse := make([]byte, 4+2*(4+4))
	binary.LittleEndian.PutUint32(sparse, 2)
	binary.LittleEndian.PutUint32(sparse[4:], 1)
	binary.LittleEndian.PutUint32(sparse[8:], math.Float32bits(7))
	binary.LittleEndian.PutUint32(sparse[12:], 3)
	binary.LittleEndian.PutUint32(sparse[16:], math.Float32bits(9))

	up := fixedUpstream{seqs: corpus.Sequences{
		Samples: [][]corpus.SequenceData{
			{{Data: sparse, NumberOfSamples: 1, Layout: layout, Storage: corpus.SparseCSC}},
		},
		EndOfEpoch: true,
	}}
	desc := corpus.StreamDescription{ID: 0, Name: "sparse", Layout: layout}
	streams := []pack.OutputStream{{StreamIndex: 0, StreamDescription: desc}}
	p, err := pack.New(up, streams, pack.HeapProvider{}, 1)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	mb, err := p.GetMinibatch()
	if err != nil {
		t.Fatalf("GetMinibatch() = %v", err)
	}
	buf := mb.Streams["sparse"].Buffer
	want := []float32{0, 7, 0, 9}
	for i, w := range want {
		if got := decodeF32(buf, i); got != w {
			t.Fatalf("row %d = %v, want %v", i, got, w)
		}
	}
}

func TestHeapProvider_AllocRejectsInvalidSize(t *testing.T) {
	var p pack.HeapProvider
	if _, err := p.Alloc(0, 4); err == nil {
		t.Fatalf("Alloc(0, 4) = nil error, want rejection")
	}
}
