package reader

import (
	"fmt"

	"golang.org/x/text/cases"

	"github.com/Noofbiz/blockreader/transform"
)

var fold = cases.Fold()

// foldEquals reports whether a and b are equal under Unicode case folding,
// the idiomatic replacement for ad hoc strings.ToLower comparisons once
// golang.org/x/text/cases is already in the dependency graph.
func foldEquals(a, b string) bool {
	return fold.String(a) == fold.String(b)
}

// StreamConfig is the per-feature-stream sub-config of spec.md §6's
// configuration surface.
type StreamConfig struct {
	Name     string
	Width    int
	Height   int
	Channels int

	// Interpolations holds the entries of the configuration surface's
	// colon-separated list, one name per element (e.g. {"linear", "cubic"}
	// for "linear:cubic"); entries are not split on ':' here. Empty means
	// linear. A Scale transform is configured whenever Width and Height are
	// set.
	Interpolations []string

	CropType     string // "center" or "random"; empty means center, and no Crop transform unless a crop ratio is set
	CropRatio    float64
	CropRatioMin float64
	CropRatioMax float64
	JitterType   string // "none" (default), "uniratio", "unilength", "uniarea"
	HFlip        bool

	MeanFile string
}

// Config is the top-level configuration surface of spec.md §6: `seed`,
// `randomizationWindow`, `nbruttsineachrecurrentiter`, plus per-stream
// sub-configs.
type Config struct {
	Seed                       int64
	RandomizationWindow        int
	NBrUttsInEachRecurrentIter int
	Streams                    []StreamConfig
	Verbosity                  int
}

func parseCropType(s string) (transform.CropType, error) {
	switch {
	case s == "":
		return transform.CropCenter, nil
	case foldEquals(s, "center"):
		return transform.CropCenter, nil
	case foldEquals(s, "random"):
		return transform.CropRandom, nil
	default:
		return 0, fmt.Errorf("reader: unknown cropType %q", s)
	}
}

func parseJitterType(s string) (transform.JitterType, error) {
	switch {
	case s == "" || foldEquals(s, "none"):
		return transform.JitterNone, nil
	case foldEquals(s, "uniratio"):
		return transform.JitterUniRatio, nil
	case foldEquals(s, "unilength"):
		return transform.JitterUniLength, nil
	case foldEquals(s, "uniarea"):
		return transform.JitterUniArea, nil
	default:
		return 0, fmt.Errorf("reader: unknown jitterType %q", s)
	}
}

func parseInterpolation(s string) (transform.Interpolation, error) {
	switch {
	case foldEquals(s, "nearest"):
		return transform.Nearest, nil
	case foldEquals(s, "linear"):
		return transform.Linear, nil
	case foldEquals(s, "cubic"):
		return transform.Cubic, nil
	case foldEquals(s, "lanczos"):
		return transform.Lanczos, nil
	default:
		return 0, fmt.Errorf("reader: unknown interpolation %q", s)
	}
}

func parseInterpolations(list []string) ([]transform.Interpolation, error) {
	out := make([]transform.Interpolation, 0, len(list))
	for _, s := range list {
		interp, err := parseInterpolation(s)
		if err != nil {
			return nil, err
		}
		out = append(out, interp)
	}
	return out, nil
}

