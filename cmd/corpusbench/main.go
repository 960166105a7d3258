// Command corpusbench wires an in-memory corpus through the full pipeline
// (randomizer -> transform -> pack -> reader), runs a few epochs against
// it, and optionally renders a chart of chunk window residency over the
// run, the way cmd/compare renders its landing-point comparison chart.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr/funcr"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/blockreader/corpus"
	"github.com/Noofbiz/blockreader/memfixture"
	"github.com/Noofbiz/blockreader/reader"
)

func main() {
	chunksFlag := flag.String("chunks", "64,64,64,64,64,64,64,64", "comma-separated sequence count per physical chunk")
	width := flag.Int("width", 8, "sample width in pixels")
	height := flag.Int("height", 8, "sample height in pixels")
	channels := flag.Int("channels", 3, "sample channel count")
	seed := flag.Int64("seed", time.Now().UnixNano(), "randomizer seed")
	window := flag.Int("window", 256, "randomization window, in samples")
	minibatch := flag.Int("minibatch", 32, "minibatch size")
	epochs := flag.Int("epochs", 3, "number of epochs to run")
	cropRatio := flag.Float64("crop-ratio", 0.875, "center-crop ratio applied before scaling")
	verbosity := flag.Int("v", 1, "log verbosity passed to the reader/randomizer")
	outDir := flag.String("out", "", "if set, write a window-residency chart (PNG) to this directory")
	flag.Parse()

	chunkSizes, err := parseChunkSizes(*chunksFlag)
	if err != nil {
		log.Fatalf("parsing -chunks: %v", err)
	}

	streams := []corpus.StreamDescription{
		{ID: 0, Name: "pixels", Layout: corpus.SampleLayout{
			Width: *width, Height: *height, Channels: *channels, ElementType: corpus.Float32,
		}},
	}
	fix := memfixture.New(chunkSizes, streams)

	lg := funcr.New(func(prefix, args string) {
		if prefix != "" {
			log.Printf("%s %s", prefix, args)
		} else {
			log.Println(args)
		}
	}, funcr.Options{Verbosity: *verbosity})

	cfg := reader.Config{
		Seed:                       *seed,
		RandomizationWindow:        *window,
		NBrUttsInEachRecurrentIter: *minibatch,
		Verbosity:                  *verbosity,
		Streams: []reader.StreamConfig{
			{
				Name:           "pixels",
				Width:          *width,
				Height:         *height,
				Channels:       *channels,
				Interpolations: []string{"Linear"},
				CropType:       "Center",
				CropRatio:      *cropRatio,
			},
		},
	}

	r, err := reader.Init(cfg, fix, nil, lg)
	if err != nil {
		log.Fatalf("reader.Init: %v", err)
	}

	totalSamples := 0
	totalMinibatches := 0
	start := time.Now()
	for epoch := 0; epoch < *epochs; epoch++ {
		if err := r.StartMinibatchLoop(*minibatch, epoch, corpus.UseSweepSize); err != nil {
			log.Fatalf("StartMinibatchLoop(epoch=%d): %v", epoch, err)
		}
		epochSamples := 0
		for {
			dst := map[string]*corpus.StreamBuffer{}
			ok, err := r.GetMinibatch(dst)
			if err != nil {
				log.Fatalf("GetMinibatch: %v", err)
			}
			if !ok {
				break
			}
			sb := dst["pixels"]
			epochSamples += sb.MinibatchLen
			totalMinibatches++
		}
		totalSamples += epochSamples
		log.Printf("epoch %d: delivered %d samples", epoch, epochSamples)
	}
	elapsed := time.Since(start)
	log.Printf("ran %d epochs, %d minibatches, %d samples in %v (%.0f samples/sec)",
		*epochs, totalMinibatches, totalSamples, elapsed, float64(totalSamples)/elapsed.Seconds())

	if *outDir != "" {
		if err := plotResidency(*outDir, fix.Calls()); err != nil {
			log.Fatalf("failed to render residency chart: %v", err)
		}
		log.Printf("residency chart written to %s", *outDir)
	}
}

// parseChunkSizes parses a comma-separated list of positive integers.
func parseChunkSizes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid chunk size %q", p)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no chunk sizes given")
	}
	return sizes, nil
}

// plotResidency renders a scatter of RequireChunk (resident) vs.
// ReleaseChunk (evicted) calls over the run, one point per call, y-axis
// the physical chunk id, x-axis the call's position in the log. It gives
// a visual read on how wide the randomizer's window keeps a chunk
// resident before releasing it.
func plotResidency(outDir string, calls []memfixture.Call) error {
	var required, released plotter.XYs
	for i, c := range calls {
		pt := plotter.XY{X: float64(i), Y: float64(c.Chunk)}
		if c.Kind == memfixture.Require {
			required = append(required, pt)
		} else {
			released = append(released, pt)
		}
	}

	p := plot.New()
	p.Title.Text = "chunk residency over the run"
	p.X.Label.Text = "call index"
	p.Y.Label.Text = "physical chunk id"

	req, err := plotter.NewScatter(required)
	if err != nil {
		return err
	}
	req.GlyphStyle.Color = color.RGBA{R: 20, G: 120, B: 20, A: 200}
	req.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(req)
	p.Legend.Add("require", req)

	rel, err := plotter.NewScatter(released)
	if err != nil {
		return err
	}
	rel.GlyphStyle.Color = color.RGBA{R: 180, G: 40, B: 40, A: 160}
	rel.GlyphStyle.Radius = vg.Points(1.5)
	p.Add(rel)
	p.Legend.Add("release", rel)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(outDir, "residency.png"))
}
