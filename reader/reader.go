// Package reader implements the external Reader API of spec.md §6: the
// surface a training loop actually drives. It owns configuration parsing
// and wires a caller-supplied corpus.Deserializer through
// randomizer.BlockRandomizer, an optional transform.Chain, and
// pack.FrameModePacker.
package reader

import (
	"fmt"
	"math/rand"

	"github.com/go-logr/logr"

	"github.com/Noofbiz/blockreader/corpus"
	"github.com/Noofbiz/blockreader/pack"
	"github.com/Noofbiz/blockreader/randomizer"
	"github.com/Noofbiz/blockreader/transform"
)

// Reader is the pipeline a training loop drives via Init,
// StartMinibatchLoop/StartDistributedMinibatchLoop, and GetMinibatch.
type Reader struct {
	config       Config
	log          logr.Logger
	deserializer corpus.Deserializer
	provider     corpus.MemoryProvider

	randomizer *randomizer.BlockRandomizer
	packer     *pack.FrameModePacker

	streamNames []string
	layouts     map[string]corpus.SampleLayout

	parallelSequences int
}

// Init parses config, validates it, and builds the pipeline stages against
// deserializer and provider (spec.md §6 "init(config)"). It does not begin
// an epoch; call StartMinibatchLoop or StartDistributedMinibatchLoop next.
func Init(config Config, deserializer corpus.Deserializer, provider corpus.MemoryProvider, log logr.Logger) (*Reader, error) {
	if deserializer == nil {
		return nil, fmt.Errorf("reader: deserializer must not be nil")
	}
	if provider == nil {
		provider = pack.HeapProvider{}
	}
	if config.RandomizationWindow <= 0 {
		return nil, fmt.Errorf("reader: randomizationWindow must be > 0, got %d", config.RandomizationWindow)
	}
	if len(config.Streams) == 0 {
		return nil, fmt.Errorf("reader: config declares no streams")
	}

	bmr, err := randomizer.New(deserializer, randomizer.Config{
		RandomizationRangeInSamples: config.RandomizationWindow,
		Seed:                        config.Seed,
		Log:                         log,
	})
	if err != nil {
		return nil, fmt.Errorf("reader: constructing randomizer: %w", err)
	}

	r := &Reader{
		config:       config,
		log:          log,
		deserializer: deserializer,
		provider:     provider,
		randomizer:   bmr,
		layouts:      make(map[string]corpus.SampleLayout),
	}

	var streamTransforms []transform.StreamTransform
	outputStreams := make([]pack.OutputStream, 0, len(config.Streams))
	for i, sc := range config.Streams {
		variant, layout, err := buildVariant(sc, log)
		if err != nil {
			return nil, fmt.Errorf("reader: stream %q: %w", sc.Name, err)
		}
		if variant != nil {
			streamTransforms = append(streamTransforms, transform.StreamTransform{StreamIndex: i, Variant: variant})
		}
		r.streamNames = append(r.streamNames, sc.Name)
		r.layouts[sc.Name] = layout
		outputStreams = append(outputStreams, pack.OutputStream{
			StreamIndex: i,
			StreamDescription: corpus.StreamDescription{
				ID:     i,
				Name:   sc.Name,
				Layout: layout,
			},
		})
	}

	var upstream pack.Upstream = r.randomizer
	if len(streamTransforms) > 0 {
		upstream = transform.New(r.randomizer, streamTransforms, transform.WithSeed(config.Seed), transform.WithLog(log))
	}

	minibatchSize := config.NBrUttsInEachRecurrentIter
	if minibatchSize <= 0 {
		minibatchSize = 1
	}
	packer, err := pack.New(upstream, outputStreams, provider, minibatchSize)
	if err != nil {
		return nil, fmt.Errorf("reader: constructing packer: %w", err)
	}
	r.packer = packer
	r.parallelSequences = minibatchSize
	return r, nil
}

// StartMinibatchLoop begins a single-worker epoch (spec.md §6
// "startMinibatchLoop"). requestedEpochSamples may be corpus.UseSweepSize
// to mean "one sweep".
func (r *Reader) StartMinibatchLoop(minibatchSize, epoch, requestedEpochSamples int) error {
	return r.StartDistributedMinibatchLoop(minibatchSize, epoch, 0, 1, requestedEpochSamples)
}

// StartDistributedMinibatchLoop begins a distributed epoch: this worker is
// subsetIndex of numSubsets (spec.md §6 "startDistributedMinibatchLoop").
func (r *Reader) StartDistributedMinibatchLoop(minibatchSize, epoch, subsetIndex, numSubsets, requestedEpochSamples int) error {
	if minibatchSize > 0 {
		r.parallelSequences = minibatchSize
	}
	return r.randomizer.StartEpoch(corpus.EpochConfiguration{
		EpochIndex:         epoch,
		TotalSizeInSamples: requestedEpochSamples,
		MinibatchSize:      r.parallelSequences,
		WorkerRank:         subsetIndex,
		NumberOfWorkers:    numSubsets,
	})
}

// GetMinibatch fills dst, keyed by stream name, with the next minibatch's
// per-stream buffers and reports whether the epoch has more data. Per
// spec.md §6 "getMinibatch(namedMatrices) -> bool": it returns false at end
// of epoch once there is nothing left to deliver, after returning a last
// non-empty partial minibatch with AtEndOfEpoch set.
func (r *Reader) GetMinibatch(dst map[string]*corpus.StreamBuffer) (bool, error) {
	mb, err := r.packer.GetMinibatch()
	if err != nil {
		return false, fmt.Errorf("reader: GetMinibatch: %w", err)
	}
	if mb.Count == 0 {
		return false, nil
	}
	for name, sb := range mb.Streams {
		dst[name] = sb
	}
	return true, nil
}

// GetNumParallelSequences returns the minibatch size the current epoch was
// started with (spec.md §6 "getNumParallelSequences").
func (r *Reader) GetNumParallelSequences() int {
	return r.parallelSequences
}

// CopyLayoutTo fills layout, keyed by stream name, with each output
// stream's post-transform SampleLayout (spec.md §6 "copyLayoutTo").
func (r *Reader) CopyLayoutTo(layout map[string]corpus.SampleLayout) {
	for name, l := range r.layouts {
		layout[name] = l
	}
}

// buildVariant assembles, in order, the Crop/Scale/Mean chain a stream
// config calls for, and returns the layout its samples will carry once the
// chain has run (needed before any data flows, so the packer can size its
// buffers up front).
func buildVariant(sc StreamConfig, log logr.Logger) (transform.Variant, corpus.SampleLayout, error) {
	layout := corpus.SampleLayout{Width: sc.Width, Height: sc.Height, Channels: sc.Channels, ElementType: corpus.Float32}
	var variants []transform.Variant

	if sc.CropType != "" || sc.CropRatio != 0 || sc.CropRatioMin != 0 {
		cropType, err := parseCropType(sc.CropType)
		if err != nil {
			return nil, corpus.SampleLayout{}, err
		}
		jitter, err := parseJitterType(sc.JitterType)
		if err != nil {
			return nil, corpus.SampleLayout{}, err
		}
		variants = append(variants, transform.CropTransformer{
			Type:     cropType,
			Ratio:    sc.CropRatio,
			RatioMin: sc.CropRatioMin,
			RatioMax: sc.CropRatioMax,
			Jitter:   jitter,
			HFlip:    sc.HFlip,
		})
	}

	if sc.Width > 0 && sc.Height > 0 {
		interps, err := parseInterpolations(sc.Interpolations)
		if err != nil {
			return nil, corpus.SampleLayout{}, err
		}
		variants = append(variants, transform.ScaleTransformer{
			Width: sc.Width, Height: sc.Height, Channels: sc.Channels, Interpolations: interps,
		})
	}

	if sc.MeanFile != "" {
		mean, err := transform.LoadMeanFile(sc.MeanFile, log)
		if err != nil {
			return nil, corpus.SampleLayout{}, err
		}
		variants = append(variants, mean)
	}

	if len(variants) == 0 {
		return nil, layout, nil
	}
	return chainVariants(variants), layout, nil
}

// chainOfVariants applies a stream's configured variants in sequence
// (Crop, then Scale, then Mean) within a single transform.Variant, so
// Chain still only holds one StreamTransform per stream index.
type chainOfVariants []transform.Variant

func chainVariants(vs []transform.Variant) chainOfVariants { return vs }

func (c chainOfVariants) Apply(data []byte, layout corpus.SampleLayout, rng *rand.Rand) ([]byte, corpus.SampleLayout, error) {
	var err error
	for _, v := range c {
		data, layout, err = v.Apply(data, layout, rng)
		if err != nil {
			return nil, corpus.SampleLayout{}, err
		}
	}
	return data, layout, nil
}
