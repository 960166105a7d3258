package transform

import (
	"math/rand"
	"testing"

	"github.com/Noofbiz/blockreader/corpus"
)

func TestScale_NearestUpscalesUInt8RGB(t *testing.T) {
	layout := gridLayout(2, 2, 3)
	m := NewMatrix[uint8](2, 2, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			for c := 0; c < 3; c++ {
				m.Set(x, y, c, uint8((y*2+x)*10+c))
			}
		}
	}
	data := EncodeMatrix(m, layout.ElementType)

	s := ScaleTransformer{Width: 4, Height: 4, Channels: 3, Interpolations: []Interpolation{Nearest}}
	out, outLayout, err := s.Apply(data, layout, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	if outLayout.Width != 4 || outLayout.Height != 4 || outLayout.Channels != 3 {
		t.Fatalf("outLayout = %+v, want 4x4x3", outLayout)
	}
	if len(out) != outLayout.Elements() {
		t.Fatalf("len(out) = %d, want %d", len(out), outLayout.Elements())
	}
}

func TestScale_GenericFallbackForFloat32(t *testing.T) {
	layout := corpus.SampleLayout{Width: 2, Height: 2, Channels: 1, ElementType: corpus.Float32}
	m := NewMatrix[float32](2, 2, 1)
	m.Set(0, 0, 0, 0)
	m.Set(1, 0, 0, 10)
	m.Set(0, 1, 0, 0)
	m.Set(1, 1, 0, 10)
	data := EncodeMatrix(m, layout.ElementType)

	s := ScaleTransformer{Width: 4, Height: 2, Channels: 1, Interpolations: []Interpolation{Nearest}}
	out, outLayout, err := s.Apply(data, layout, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Apply() = %v", err)
	}
	got := DecodeMatrix[float32](out, outLayout)
	if got.Width != 4 || got.Height != 2 {
		t.Fatalf("got shape %dx%d, want 4x2", got.Width, got.Height)
	}
	// Left half of every row should be closer to 0, right half closer to 10.
	if got.At(0, 0, 0) >= got.At(3, 0, 0) {
		t.Fatalf("expected left-to-right increase, got %v then %v", got.At(0, 0, 0), got.At(3, 0, 0))
	}
}

func TestScale_ChannelMismatchIsRejected(t *testing.T) {
	layout := gridLayout(2, 2, 3)
	data := make([]byte, layout.Elements())
	s := ScaleTransformer{Width: 4, Height: 4, Channels: 1}
	_, _, err := s.Apply(data, layout, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatalf("Apply() with mismatched channels = nil error, want rejection")
	}
}

func TestScale_PicksAmongConfiguredInterpolations(t *testing.T) {
	layout := gridLayout(2, 2, 3)
	data := make([]byte, layout.Elements())
	s := ScaleTransformer{Width: 2, Height: 2, Channels: 3, Interpolations: []Interpolation{Nearest, Linear, Cubic}}
	for seed := int64(0); seed < 20; seed++ {
		if _, _, err := s.Apply(data, layout, rand.New(rand.NewSource(seed))); err != nil {
			t.Fatalf("Apply() = %v", err)
		}
	}
}
