package transform

import (
	"fmt"
	"image"
	"math/rand"

	"golang.org/x/image/draw"

	"github.com/Noofbiz/blockreader/corpus"
)

// Interpolation selects a resampling kernel (spec.md §4.4). Lanczos has no
// equivalent kernel in golang.org/x/image/draw; it is mapped to CatmullRom,
// the closest kernel the library ships (documented in DESIGN.md).
type Interpolation int

const (
	Nearest Interpolation = iota
	Linear
	Cubic
	Lanczos
)

func (i Interpolation) scaler() draw.Interpolator {
	switch i {
	case Nearest:
		return draw.NearestNeighbor
	case Linear:
		return draw.ApproxBiLinear
	case Cubic, Lanczos:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

// ScaleTransformer implements Variant: it resizes a sample to
// (Width, Height, Channels), picking uniformly at random among
// Interpolations on every Apply call (spec.md §4.4 "colon list" config
// surface).
//
// 3- and 4-channel uint8 samples take the fast path through
// golang.org/x/image/draw via image.RGBA. Every other
// shape/element-type combination (float32/float64 samples, or uint8 with
// channel counts draw.Image can't represent) falls back to a pure-Go
// nearest/bilinear resampler operating directly on Matrix, since
// x/image/draw only understands image.Image's fixed pixel formats.
type ScaleTransformer struct {
	Width, Height, Channels int
	Interpolations          []Interpolation
}

func (s ScaleTransformer) pick(rng *rand.Rand) Interpolation {
	if len(s.Interpolations) == 0 {
		return Linear
	}
	return s.Interpolations[rng.Intn(len(s.Interpolations))]
}

func (s ScaleTransformer) Apply(data []byte, layout corpus.SampleLayout, rng *rand.Rand) ([]byte, corpus.SampleLayout, error) {
	if s.Channels != 0 && s.Channels != layout.Channels {
		return nil, corpus.SampleLayout{}, fmt.Errorf("transform: scale channel mismatch: sample has %d, configured for %d", layout.Channels, s.Channels)
	}
	outLayout := corpus.SampleLayout{Width: s.Width, Height: s.Height, Channels: layout.Channels, ElementType: layout.ElementType}
	interp := s.pick(rng)

	if layout.ElementType == corpus.UInt8 && (layout.Channels == 3 || layout.Channels == 4) {
		out := scaleUInt8Fast(data, layout, s.Width, s.Height, interp)
		return out, outLayout, nil
	}

	out, err := scaleGeneric(data, layout, s.Width, s.Height, interp)
	if err != nil {
		return nil, corpus.SampleLayout{}, err
	}
	return out, outLayout, nil
}

func scaleUInt8Fast(data []byte, layout corpus.SampleLayout, width, height int, interp Interpolation) []byte {
	src := image.NewRGBA(image.Rect(0, 0, layout.Width, layout.Height))
	if layout.Channels == 4 {
		copy(src.Pix, data)
	} else {
		for i := 0; i < layout.Width*layout.Height; i++ {
			src.Pix[i*4+0] = data[i*3+0]
			src.Pix[i*4+1] = data[i*3+1]
			src.Pix[i*4+2] = data[i*3+2]
			src.Pix[i*4+3] = 255
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	interp.scaler().Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]byte, width*height*layout.Channels)
	if layout.Channels == 4 {
		copy(out, dst.Pix)
	} else {
		for i := 0; i < width*height; i++ {
			out[i*3+0] = dst.Pix[i*4+0]
			out[i*3+1] = dst.Pix[i*4+1]
			out[i*3+2] = dst.Pix[i*4+2]
		}
	}
	return out
}

// scaleGeneric resamples channel-by-channel with nearest or bilinear
// interpolation directly on a Matrix, avoiding image.Image's 8-bit,
// fixed-channel-count model entirely.
func scaleGeneric(data []byte, layout corpus.SampleLayout, width, height int, interp Interpolation) ([]byte, error) {
	switch layout.ElementType {
	case corpus.Float32:
		m := DecodeMatrix[float32](data, layout)
		out := resampleMatrix(m, width, height, interp)
		return EncodeMatrix(out, layout.ElementType), nil
	case corpus.Float64:
		m := DecodeMatrix[float64](data, layout)
		out := resampleMatrix(m, width, height, interp)
		return EncodeMatrix(out, layout.ElementType), nil
	case corpus.UInt8:
		m := DecodeMatrix[uint8](data, layout)
		out := resampleMatrix(m, width, height, interp)
		return EncodeMatrix(out, layout.ElementType), nil
	default:
		return nil, fmt.Errorf("transform: unsupported element type %v", layout.ElementType)
	}
}

func resampleMatrix[T Sample](m Matrix[T], width, height int, interp Interpolation) Matrix[T] {
	out := NewMatrix[T](width, height, m.Channels)
	if width == 0 || height == 0 || m.Width == 0 || m.Height == 0 {
		return out
	}
	sx := float64(m.Width) / float64(width)
	sy := float64(m.Height) / float64(height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcX := (float64(x) + 0.5) * sx
			srcY := (float64(y) + 0.5) * sy
			for c := 0; c < m.Channels; c++ {
				var v float64
				if interp == Nearest {
					v = toFloat64(m.At(clampDim(int(srcX), 0, m.Width-1), clampDim(int(srcY), 0, m.Height-1), c))
				} else {
					v = bilinearAt(m, srcX, srcY, c)
				}
				out.Set(x, y, c, fromFloat64[T](v))
			}
		}
	}
	return out
}

func bilinearAt[T Sample](m Matrix[T], x, y float64, c int) float64 {
	x0 := clampDim(int(x-0.5), 0, m.Width-1)
	y0 := clampDim(int(y-0.5), 0, m.Height-1)
	x1 := clampDim(x0+1, 0, m.Width-1)
	y1 := clampDim(y0+1, 0, m.Height-1)
	fx := x - 0.5 - float64(x0)
	if fx < 0 {
		fx = 0
	}
	fy := y - 0.5 - float64(y0)
	if fy < 0 {
		fy = 0
	}
	v00 := toFloat64(m.At(x0, y0, c))
	v10 := toFloat64(m.At(x1, y0, c))
	v01 := toFloat64(m.At(x0, y1, c))
	v11 := toFloat64(m.At(x1, y1, c))
	top := v00 + (v10-v00)*fx
	bottom := v01 + (v11-v01)*fx
	return top + (bottom-top)*fy
}
