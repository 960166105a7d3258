package transform

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/go-logr/logr"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Noofbiz/blockreader/corpus"
)

// MeanTransformer implements Variant: it subtracts a precomputed mean image
// from every sample elementwise, skipping the subtraction when the mean's
// shape doesn't match the input's (spec.md §4.5).
//
// The mean file is a serialized structpb.Struct: a generic, self-describing
// key/value message is exactly what spec.md's "key/value store containing
// MeanImg, Channel, Row, Col" describes, so there is no bespoke binary
// format to invent or parse by hand.
type MeanTransformer struct {
	Channels int
	Rows     int
	Cols     int
	Mean     []float64 // length Channels*Rows*Cols, row-major like Matrix
	log      logr.Logger
}

// LoadMeanFile reads and parses a mean file written by structpb, returning
// a MeanTransformer ready to Apply. An empty path is a valid no-op
// transformer per spec.md §4.5's "may be empty".
func LoadMeanFile(path string, log logr.Logger) (MeanTransformer, error) {
	if path == "" {
		return MeanTransformer{log: log}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return MeanTransformer{}, fmt.Errorf("transform: read mean file %q: %w", path, err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return MeanTransformer{}, fmt.Errorf("transform: parse mean file %q: %w", path, err)
	}
	fields := st.GetFields()
	channels := int(fields["Channel"].GetNumberValue())
	rows := int(fields["Row"].GetNumberValue())
	cols := int(fields["Col"].GetNumberValue())

	meanList := fields["MeanImg"].GetListValue().GetValues()
	mean := make([]float64, len(meanList))
	for i, v := range meanList {
		mean[i] = v.GetNumberValue()
	}
	if len(mean) != channels*rows*cols {
		return MeanTransformer{}, fmt.Errorf("transform: mean file %q declares %dx%dx%d=%d elements but contains %d",
			path, channels, rows, cols, channels*rows*cols, len(mean))
	}
	return MeanTransformer{Channels: channels, Rows: rows, Cols: cols, Mean: mean, log: log}, nil
}

func (m MeanTransformer) Apply(data []byte, layout corpus.SampleLayout, rng *rand.Rand) ([]byte, corpus.SampleLayout, error) {
	if len(m.Mean) == 0 {
		return data, layout, nil
	}
	if m.Channels != layout.Channels || len(m.Mean) != layout.Elements() {
		m.log.V(2).Info("mean skipped: size mismatch",
			"meanChannels", m.Channels, "meanElements", len(m.Mean),
			"sampleChannels", layout.Channels, "sampleElements", layout.Elements())
		return data, layout, nil
	}

	switch layout.ElementType {
	case corpus.Float32:
		mat := DecodeMatrix[float32](data, layout)
		for i := range mat.Data {
			mat.Data[i] = fromFloat64[float32](toFloat64(mat.Data[i]) - m.Mean[i])
		}
		return EncodeMatrix(mat, layout.ElementType), layout, nil
	case corpus.Float64:
		mat := DecodeMatrix[float64](data, layout)
		for i := range mat.Data {
			mat.Data[i] -= m.Mean[i]
		}
		return EncodeMatrix(mat, layout.ElementType), layout, nil
	case corpus.UInt8:
		mat := DecodeMatrix[uint8](data, layout)
		for i := range mat.Data {
			mat.Data[i] = fromFloat64[uint8](toFloat64(mat.Data[i]) - m.Mean[i])
		}
		return EncodeMatrix(mat, layout.ElementType), layout, nil
	default:
		return nil, corpus.SampleLayout{}, fmt.Errorf("transform: unsupported element type %v", layout.ElementType)
	}
}
