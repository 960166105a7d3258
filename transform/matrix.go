package transform

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/constraints"

	"github.com/Noofbiz/blockreader/corpus"
)

// Sample is the set of scalar element types a stream may be stored as
// (spec.md §3: f32/f64/u8): constraints.Float (f32/f64) plus uint8, the
// one integral type this corpus's ElementType enumerates. One generic
// Matrix type serves all three instead of three hand-duplicated copies
// of every transform.
type Sample interface {
	constraints.Float | ~uint8
}

// Matrix is a dense (W, H, C) view over a sample buffer: channel varies
// fastest, then x, then y, matching the row-major byte layout
// corpus.SampleLayout describes.
type Matrix[T Sample] struct {
	Width, Height, Channels int
	Data                    []T
}

// NewMatrix allocates a zeroed Matrix of the given shape.
func NewMatrix[T Sample](width, height, channels int) Matrix[T] {
	return Matrix[T]{Width: width, Height: height, Channels: channels, Data: make([]T, width*height*channels)}
}

func (m Matrix[T]) index(x, y, c int) int {
	return (y*m.Width+x)*m.Channels + c
}

// At returns the element at (x, y, c).
func (m Matrix[T]) At(x, y, c int) T { return m.Data[m.index(x, y, c)] }

// Set writes the element at (x, y, c).
func (m Matrix[T]) Set(x, y, c int, v T) { m.Data[m.index(x, y, c)] = v }

// SubRect returns a freshly allocated crop of the rectangle
// [x0, x0+w) x [y0, y0+h).
func (m Matrix[T]) SubRect(x0, y0, w, h int) Matrix[T] {
	out := NewMatrix[T](w, h, m.Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < m.Channels; c++ {
				out.Set(x, y, c, m.At(x0+x, y0+y, c))
			}
		}
	}
	return out
}

// FlipHorizontal returns a freshly allocated left-right mirror of m.
func (m Matrix[T]) FlipHorizontal() Matrix[T] {
	out := NewMatrix[T](m.Width, m.Height, m.Channels)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			for c := 0; c < m.Channels; c++ {
				out.Set(x, y, c, m.At(m.Width-1-x, y, c))
			}
		}
	}
	return out
}

// toFloat64 widens an element to float64 for interpolation/arithmetic.
func toFloat64[T Sample](v T) float64 { return float64(v) }

// fromFloat64 narrows a float64 back to T, clamping to the representable
// range for integral types.
func fromFloat64[T Sample](f float64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		if f < 0 {
			f = 0
		}
		if f > 255 {
			f = 255
		}
		return T(math.Round(f))
	default:
		return T(f)
	}
}

// DecodeMatrix wraps a raw sample buffer as a Matrix[T] of the element type
// layout declares. T must match layout.ElementType; callers switch on
// layout.ElementType to pick T (see cropAny and scaleGeneric).
func DecodeMatrix[T Sample](data []byte, layout corpus.SampleLayout) Matrix[T] {
	n := layout.Elements()
	m := NewMatrix[T](layout.Width, layout.Height, layout.Channels)
	var zero T
	switch any(zero).(type) {
	case float32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			m.Data[i] = any(math.Float32frombits(bits)).(T)
		}
	case float64:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint64(data[i*8:])
			m.Data[i] = any(math.Float64frombits(bits)).(T)
		}
	case uint8:
		for i := 0; i < n; i++ {
			m.Data[i] = any(data[i]).(T)
		}
	}
	return m
}

// EncodeMatrix serializes a Matrix[T] back to raw little-endian bytes.
func EncodeMatrix[T Sample](m Matrix[T], elementType corpus.ElementType) []byte {
	n := len(m.Data)
	buf := make([]byte, n*elementType.Size())
	switch elementType {
	case corpus.Float32:
		for i, v := range m.Data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(any(v).(float32)))
		}
	case corpus.Float64:
		for i, v := range m.Data {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(any(v).(float64)))
		}
	case corpus.UInt8:
		for i, v := range m.Data {
			buf[i] = any(v).(uint8)
		}
	}
	return buf
}
