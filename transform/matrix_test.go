package transform

import (
	"reflect"
	"testing"

	"github.com/Noofbiz/blockreader/corpus"
)

func TestMatrix_RoundTripFloat32(t *testing.T) {
	layout := corpus.SampleLayout{Width: 2, Height: 2, Channels: 3, ElementType: corpus.Float32}
	m := NewMatrix[float32](2, 2, 3)
	for i := range m.Data {
		m.Data[i] = float32(i)
	}
	encoded := EncodeMatrix(m, layout.ElementType)
	decoded := DecodeMatrix[float32](encoded, layout)
	if !reflect.DeepEqual(m.Data, decoded.Data) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded.Data, m.Data)
	}
}

func TestMatrix_SubRect(t *testing.T) {
	m := NewMatrix[uint8](4, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			m.Set(x, y, 0, uint8(y*4+x))
		}
	}
	sub := m.SubRect(1, 1, 2, 2)
	want := []uint8{5, 6, 9, 10}
	if !reflect.DeepEqual(sub.Data, want) {
		t.Fatalf("SubRect = %v, want %v", sub.Data, want)
	}
}

func TestMatrix_FlipHorizontal(t *testing.T) {
	m := NewMatrix[uint8](3, 1, 1)
	m.Set(0, 0, 0, 1)
	m.Set(1, 0, 0, 2)
	m.Set(2, 0, 0, 3)
	flipped := m.FlipHorizontal()
	want := []uint8{3, 2, 1}
	if !reflect.DeepEqual(flipped.Data, want) {
		t.Fatalf("FlipHorizontal = %v, want %v", flipped.Data, want)
	}
}
