//go:build gomlxadapter

// Package gomlxadapter bridges a packed corpus.Minibatch to gomlx tensors.
// It is opt-in and build-tag gated: the core pipeline (corpus, randomizer,
// transform, pack, reader) never imports gomlx, matching the numeric
// matrix/device-transfer layer's status as an external collaborator. A
// caller who does want gomlx tensors imports this package explicitly and
// pulls in the tag.
package gomlxadapter

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/blockreader/corpus"
)

// StreamTensors converts every stream of mb into a float32
// *tensors.Tensor shaped (mb.Count, Height*Width*Channels): one row per
// sample, each row the sample's elements flattened in buffer order.
//
// Only the Count real (non-padding) columns of each stream buffer are
// converted; a partial terminal minibatch yields a tensor with
// mb.Count rows, not StreamBuffer.MinibatchLen.
func StreamTensors(mb *corpus.Minibatch) (map[string]*tensors.Tensor, error) {
	out := make(map[string]*tensors.Tensor, len(mb.Streams))
	for name, sb := range mb.Streams {
		t, err := streamTensor(sb, mb.Count)
		if err != nil {
			return nil, fmt.Errorf("gomlxadapter: stream %q: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

func streamTensor(sb *corpus.StreamBuffer, count int) (*tensors.Tensor, error) {
	rows, err := decodeRows(sb, count)
	if err != nil {
		return nil, err
	}
	return tensors.FromAnyValue(rows), nil
}

// decodeRows widens a StreamBuffer's raw little-endian bytes into
// count rows of float32, one row per sample, matching the flattening
// PredictionBatchFlat.ToGomlxTensors performs before handing data to
// tensors.FromAnyValue.
func decodeRows(sb *corpus.StreamBuffer, count int) ([][]float32, error) {
	elements := sb.Layout.Elements()
	sampleBytes := sb.Layout.Bytes()
	rows := make([][]float32, count)
	for i := 0; i < count; i++ {
		row := make([]float32, elements)
		chunk := sb.Buffer[i*sampleBytes : (i+1)*sampleBytes]
		switch sb.Layout.ElementType {
		case corpus.Float32:
			for e := 0; e < elements; e++ {
				bits := binary.LittleEndian.Uint32(chunk[e*4:])
				row[e] = math.Float32frombits(bits)
			}
		case corpus.Float64:
			for e := 0; e < elements; e++ {
				bits := binary.LittleEndian.Uint64(chunk[e*8:])
				row[e] = float32(math.Float64frombits(bits))
			}
		case corpus.UInt8:
			for e := 0; e < elements; e++ {
				row[e] = float32(chunk[e])
			}
		default:
			return nil, fmt.Errorf("unsupported element type %v", sb.Layout.ElementType)
		}
		rows[i] = row
	}
	return rows, nil
}
