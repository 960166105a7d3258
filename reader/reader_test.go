package reader_test

import (
	"testing"

	"github.com/go-logr/logr"

	"github.com/Noofbiz/blockreader/corpus"
	"github.com/Noofbiz/blockreader/memfixture"
	"github.com/Noofbiz/blockreader/reader"
)

var readerStream = []corpus.StreamDescription{
	{ID: 0, Name: "pixels", Layout: corpus.SampleLayout{Width: 4, Height: 4, Channels: 1, ElementType: corpus.Float32}},
}

func baseConfig() reader.Config {
	return reader.Config{
		Seed:                       1,
		RandomizationWindow:        10,
		NBrUttsInEachRecurrentIter: 4,
		Streams: []reader.StreamConfig{
			{
				Name:           "pixels",
				Width:          4,
				Height:         4,
				Channels:       1,
				Interpolations: []string{"Nearest"},
				CropType:       "Center",
				CropRatio:      1.0,
			},
		},
	}
}

func TestReader_InitRejectsNilDeserializer(t *testing.T) {
	if _, err := reader.Init(baseConfig(), nil, nil, logr.Discard()); err == nil {
		t.Fatalf("Init(nil deserializer) = nil error, want rejection")
	}
}

func TestReader_InitRejectsZeroWindow(t *testing.T) {
	fix := memfixture.New([]int{10}, readerStream)
	cfg := baseConfig()
	cfg.RandomizationWindow = 0
	if _, err := reader.Init(cfg, fix, nil, logr.Discard()); err == nil {
		t.Fatalf("Init with zero window = nil error, want rejection")
	}
}

func TestReader_FullEpochDeliversAllSamplesThenFalse(t *testing.T) {
	fix := memfixture.New([]int{10, 10}, readerStream)
	r, err := reader.Init(baseConfig(), fix, nil, logr.Discard())
	if err != nil {
		t.Fatalf("Init() = %v", err)
	}
	if err := r.StartMinibatchLoop(4, 0, corpus.UseSweepSize); err != nil {
		t.Fatalf("StartMinibatchLoop() = %v", err)
	}

	total := 0
	for {
		dst := map[string]*corpus.StreamBuffer{}
		ok, err := r.GetMinibatch(dst)
		if err != nil {
			t.Fatalf("GetMinibatch() = %v", err)
		}
		if !ok {
			break
		}
		sb, found := dst["pixels"]
		if !found {
			t.Fatalf("GetMinibatch did not fill stream %q", "pixels")
		}
		total += sb.MinibatchLen
		if total > 24 {
			t.Fatalf("reader delivered more samples (%d) than the epoch should contain", total)
		}
	}
	if total < 20 {
		t.Fatalf("reader delivered only %d samples across the epoch, want at least 20", total)
	}
}

func TestReader_GetNumParallelSequencesReflectsStart(t *testing.T) {
	fix := memfixture.New([]int{10}, readerStream)
	r, err := reader.Init(baseConfig(), fix, nil, logr.Discard())
	if err != nil {
		t.Fatalf("Init() = %v", err)
	}
	if err := r.StartMinibatchLoop(5, 0, corpus.UseSweepSize); err != nil {
		t.Fatalf("StartMinibatchLoop() = %v", err)
	}
	if got := r.GetNumParallelSequences(); got != 5 {
		t.Fatalf("GetNumParallelSequences() = %d, want 5", got)
	}
}

func TestReader_CopyLayoutToReflectsConfiguredShape(t *testing.T) {
	fix := memfixture.New([]int{10}, readerStream)
	r, err := reader.Init(baseConfig(), fix, nil, logr.Discard())
	if err != nil {
		t.Fatalf("Init() = %v", err)
	}
	layouts := map[string]corpus.SampleLayout{}
	r.CopyLayoutTo(layouts)
	got, ok := layouts["pixels"]
	if !ok {
		t.Fatalf("CopyLayoutTo did not report stream %q", "pixels")
	}
	if got.Width != 4 || got.Height != 4 || got.Channels != 1 {
		t.Fatalf("layout = %+v, want 4x4x1", got)
	}
}

func TestReader_DistributedEpochsPartitionWithoutOverlap(t *testing.T) {
	fix1 := memfixture.New([]int{8, 8}, readerStream)
	fix2 := memfixture.New([]int{8, 8}, readerStream)
	r1, err := reader.Init(baseConfig(), fix1, nil, logr.Discard())
	if err != nil {
		t.Fatalf("Init() = %v", err)
	}
	r2, err := reader.Init(baseConfig(), fix2, nil, logr.Discard())
	if err != nil {
		t.Fatalf("Init() = %v", err)
	}
	if err := r1.StartDistributedMinibatchLoop(4, 0, 0, 2, corpus.UseSweepSize); err != nil {
		t.Fatalf("StartDistributedMinibatchLoop() = %v", err)
	}
	if err := r2.StartDistributedMinibatchLoop(4, 0, 1, 2, corpus.UseSweepSize); err != nil {
		t.Fatalf("StartDistributedMinibatchLoop() = %v", err)
	}

	count := func(r *reader.Reader) int {
		total := 0
		for {
			dst := map[string]*corpus.StreamBuffer{}
			ok, err := r.GetMinibatch(dst)
			if err != nil {
				t.Fatalf("GetMinibatch() = %v", err)
			}
			if !ok {
				break
			}
			total += dst["pixels"].MinibatchLen
		}
		return total
	}
	n1 := count(r1)
	n2 := count(r2)
	if n1+n2 != 16 {
		t.Fatalf("worker totals %d + %d = %d, want 16", n1, n2, n1+n2)
	}
}
