// Package randomizer implements BlockRandomizer: a deterministic,
// sweep-keyed global shuffle of a chunked corpus under a bounded-residency
// window, with a chunk-wise disjoint partition across distributed workers.
package randomizer

import (
	"fmt"
	"math/rand"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/Noofbiz/blockreader/corpus"
)

// Config holds BlockRandomizer's construction-time parameters (spec.md
// §4.1 "Configuration").
type Config struct {
	// RandomizationRangeInSamples is W: the maximum width of resident
	// data, in samples, centered on the current output position.
	RandomizationRangeInSamples int

	// Seed derives the per-sweep PRNGs. Re-deriving a sweep's shuffle from
	// the same Seed always reproduces the same randomTimeline.
	Seed int64

	// Log receives sweep-transition and require/release activity at V(1)
	// and per-batch bookkeeping at V(2). The zero value discards logs.
	Log logr.Logger
}

// randomizedEntry is one position on the randomized timeline: the original
// sequence id (stable, used to pull data from the deserializer) and the
// original chunk id it came from (used for locality checks during the
// sequence shuffle).
type randomizedEntry struct {
	id              int
	originalChunkID int
}

// BlockRandomizer produces a deterministic permutation of a corpus timeline
// subject to a bounded-residency window, and partitions the permuted
// sequence across distributed workers. See spec.md §4.1.
type BlockRandomizer struct {
	deserializer corpus.Deserializer
	config       Config
	log          logr.Logger

	timeline      corpus.Timeline
	origChunkInfo []corpus.ChunkInformation // len numChunks+1, sentinel last
	numChunks     int
	numSequences  int // == numSamples in frame mode

	// Per-sweep derived state, rebuilt by reshuffle().
	sweep            int
	randomizedChunks []corpus.RandomizedChunk // len numChunks+1, sentinel last
	origToRandPos    []int                    // len numChunks
	randomTimeline   []randomizedEntry        // len numSequences
	posToChunk       []int                    // len numSequences

	// Epoch state.
	workerRank        int
	numberOfWorkers   int
	epochIndex        int
	epochSizeSamples  int
	epochConsumed     int
	cursorPos         int // next position to consider on the randomized timeline
}

// New validates the deserializer's timeline and constructs a BlockRandomizer.
// Frame mode (every sequence has exactly one sample) is required; any other
// corpus is rejected here rather than deferred to StartEpoch, per the §9
// open-question decision recorded in SPEC_FULL.md.
func New(d corpus.Deserializer, cfg Config) (*BlockRandomizer, error) {
	if d == nil {
		return nil, fmt.Errorf("randomizer: deserializer is nil")
	}
	if cfg.RandomizationRangeInSamples <= 0 {
		return nil, fmt.Errorf("randomizer: randomizationRangeInSamples must be > 0, got %d", cfg.RandomizationRangeInSamples)
	}
	log := cfg.Log
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	timeline, err := d.GetSequenceDescriptions()
	if err != nil {
		return nil, errors.Wrap(err, "randomizer: deserializer.GetSequenceDescriptions failed")
	}
	if err := timeline.Validate(); err != nil {
		return nil, fmt.Errorf("randomizer: %w", err)
	}

	info := corpus.BuildChunkInformation(timeline)
	r := &BlockRandomizer{
		deserializer:  d,
		config:        cfg,
		log:           log,
		timeline:      timeline,
		origChunkInfo: info,
		numChunks:     timeline.NumChunks(),
		numSequences:  len(timeline),
	}
	log.V(1).Info("randomizer constructed",
		"sequences", humanize.Comma(int64(r.numSequences)),
		"chunks", r.numChunks,
		"window", humanize.Comma(int64(cfg.RandomizationRangeInSamples)),
	)
	return r, nil
}

// StartEpoch records the worker's rank/count and epoch size, repositions
// the cursor to the epoch's starting global sample position, and
// re-randomizes if that position falls in a different sweep than the one
// currently materialized.
func (r *BlockRandomizer) StartEpoch(cfg corpus.EpochConfiguration) error {
	if err := r.timeline.Validate(); err != nil {
		return fmt.Errorf("randomizer: %w", err)
	}
	if err := r.deserializer.StartEpoch(cfg); err != nil {
		return errors.Wrap(err, "randomizer: deserializer.StartEpoch failed")
	}

	r.workerRank = cfg.WorkerRank
	r.numberOfWorkers = cfg.NumberOfWorkers
	if r.numberOfWorkers < 1 {
		r.numberOfWorkers = 1
	}
	r.epochIndex = cfg.EpochIndex

	epochSize := cfg.TotalSizeInSamples
	if epochSize == corpus.UseSweepSize {
		epochSize = r.numSequences
	}
	r.epochSizeSamples = epochSize
	r.epochConsumed = 0

	if r.numSequences == 0 {
		r.cursorPos = 0
		return nil
	}

	globalPos := int64(cfg.EpochIndex) * int64(epochSize)
	sweep := int(globalPos / int64(r.numSequences))
	posInSweep := int(globalPos % int64(r.numSequences))

	if r.randomTimeline == nil || sweep != r.sweep {
		r.sweep = sweep
		r.reshuffle()
	}
	r.cursorPos = posInSweep

	r.log.V(1).Info("epoch started",
		"epoch", cfg.EpochIndex, "sweep", r.sweep, "cursor", r.cursorPos,
		"worker", r.workerRank, "numWorkers", r.numberOfWorkers,
		"epochSizeSamples", humanize.Comma(int64(epochSize)),
	)
	return nil
}

// GetNextSequences returns up to count sequences belonging to this worker,
// advancing the in-sweep cursor and transitioning sweeps as needed. It sets
// Sequences.EndOfEpoch once the epoch's sample budget is exhausted.
func (r *BlockRandomizer) GetNextSequences(count int) (corpus.Sequences, error) {
	if count <= 0 {
		return corpus.Sequences{}, fmt.Errorf("randomizer: count must be > 0, got %d", count)
	}
	if r.numSequences == 0 {
		return corpus.Sequences{EndOfEpoch: true}, nil
	}

	var ids, positions []int
	for len(ids) < count && r.epochConsumed < r.epochSizeSamples {
		if r.cursorPos >= r.numSequences {
			r.sweep++
			r.reshuffle()
			r.cursorPos = 0
			r.log.V(1).Info("sweep transition", "sweep", r.sweep)
		}
		pos := r.cursorPos
		chunkPos := r.posToChunk[pos]
		r.cursorPos++
		r.epochConsumed++

		if chunkPos%r.numberOfWorkers == r.workerRank {
			ids = append(ids, r.randomTimeline[pos].id)
			positions = append(positions, pos)
		}
	}

	endOfEpoch := r.epochConsumed >= r.epochSizeSamples
	if len(ids) == 0 {
		return corpus.Sequences{EndOfEpoch: endOfEpoch}, nil
	}

	if err := r.updateChunkResidency(positions); err != nil {
		return corpus.Sequences{}, err
	}

	perSample, err := r.deserializer.GetSequencesByID(ids)
	if err != nil {
		return corpus.Sequences{}, errors.Wrap(err, "randomizer: deserializer.GetSequencesByID failed")
	}
	if len(perSample) != len(ids) {
		return corpus.Sequences{}, fmt.Errorf("randomizer: deserializer returned %d samples for %d requested ids", len(perSample), len(ids))
	}

	r.log.V(2).Info("batch delivered", "worker", r.workerRank, "count", len(ids), "endOfEpoch", endOfEpoch)
	return corpus.Sequences{Samples: perSample, EndOfEpoch: endOfEpoch}, nil
}

// updateChunkResidency computes the union window over the randomized chunks
// touched by positions (which must be in ascending order), calls
// ReleaseChunk for every physical chunk outside it and then RequireChunk for
// every physical chunk inside it, so chunks leaving the window are released
// before chunks entering it are required.
func (r *BlockRandomizer) updateChunkResidency(positions []int) error {
	firstChunk := r.posToChunk[positions[0]]
	lastChunk := r.posToChunk[positions[len(positions)-1]]
	unionBegin := r.randomizedChunks[firstChunk].WindowBegin
	unionEnd := r.randomizedChunks[lastChunk].WindowEnd

	for k := 0; k < r.numChunks; k++ {
		randPos := r.origToRandPos[k]
		if randPos < unionBegin || randPos >= unionEnd {
			if err := r.deserializer.ReleaseChunk(k); err != nil {
				return errors.Wrapf(err, "randomizer: deserializer.ReleaseChunk(%d) failed", k)
			}
		}
	}
	for k := 0; k < r.numChunks; k++ {
		randPos := r.origToRandPos[k]
		if randPos >= unionBegin && randPos < unionEnd {
			if err := r.deserializer.RequireChunk(k); err != nil {
				return errors.Wrapf(err, "randomizer: deserializer.RequireChunk(%d) failed", k)
			}
		}
	}
	r.log.V(1).Info("chunk window updated", "windowBegin", unionBegin, "windowEnd", unionEnd)
	return nil
}

// reshuffle rebuilds randomizedChunks, origToRandPos, randomTimeline and
// posToChunk for the current sweep. It is a pure function of
// (r.sweep, r.timeline, r.config.RandomizationRangeInSamples, r.config.Seed):
// calling it twice for the same sweep on an identical timeline produces a
// byte-identical randomTimeline (determinism, spec.md §8 property 3).
func (r *BlockRandomizer) reshuffle() {
	r.shuffleChunks()
	r.computeWindows()
	r.layoutRandomTimeline()
	r.shuffleSequences()
}

func (r *BlockRandomizer) shuffleChunks() {
	perm := make([]int, r.numChunks)
	for i := range perm {
		perm[i] = i
	}
	rng := rand.New(rand.NewSource(r.config.Seed + int64(r.sweep)))
	rng.Shuffle(r.numChunks, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

	r.randomizedChunks = make([]corpus.RandomizedChunk, r.numChunks+1)
	r.origToRandPos = make([]int, r.numChunks)

	seqPos, samplePos := 0, 0
	for p, orig := range perm {
		r.randomizedChunks[p] = corpus.RandomizedChunk{
			OriginalChunkIndex: orig,
			SequencePosition:   seqPos,
			SamplePosition:     samplePos,
		}
		r.origToRandPos[orig] = p
		seqPos += r.origChunkInfo[orig+1].FirstSequencePosition - r.origChunkInfo[orig].FirstSequencePosition
		samplePos += r.origChunkInfo[orig+1].FirstSamplePosition - r.origChunkInfo[orig].FirstSamplePosition
	}
	r.randomizedChunks[r.numChunks] = corpus.RandomizedChunk{SequencePosition: seqPos, SamplePosition: samplePos}
}

// computeWindows fills WindowBegin/WindowEnd for every randomized chunk by
// advancing the previous chunk's bounds (spec.md §4.1 "Window computation").
func (r *BlockRandomizer) computeWindows() {
	halfW := r.config.RandomizationRangeInSamples / 2
	wb, we := 0, 0
	for c := 0; c < r.numChunks; c++ {
		for r.randomizedChunks[c].SamplePosition-r.randomizedChunks[wb].SamplePosition > halfW {
			wb++
		}
		if we < c {
			we = c
		}
		for we < r.numChunks-1 && r.randomizedChunks[we+2].SamplePosition-r.randomizedChunks[c].SamplePosition < halfW {
			we++
		}
		r.randomizedChunks[c].WindowBegin = wb
		r.randomizedChunks[c].WindowEnd = we + 1
	}
}

// layoutRandomTimeline concatenates the sequences of each randomized chunk,
// in randomized-chunk order, into randomTimeline, and fills posToChunk so
// each position's randomized-chunk membership is a fixed O(1) lookup
// independent of later swapping.
func (r *BlockRandomizer) layoutRandomTimeline() {
	r.randomTimeline = make([]randomizedEntry, r.numSequences)
	r.posToChunk = make([]int, r.numSequences)

	pos := 0
	for p := 0; p < r.numChunks; p++ {
		orig := r.randomizedChunks[p].OriginalChunkIndex
		start := r.origChunkInfo[orig].FirstSequencePosition
		end := r.origChunkInfo[orig+1].FirstSequencePosition
		for seqID := start; seqID < end; seqID++ {
			r.randomTimeline[pos] = randomizedEntry{id: seqID, originalChunkID: orig}
			r.posToChunk[pos] = p
			pos++
		}
	}
}

// shuffleSequences runs the window-respecting Fisher-Yates-like pass
// described in spec.md §4.1 "Sequence shuffle".
func (r *BlockRandomizer) shuffleSequences() {
	if r.numSequences == 0 {
		return
	}
	rng := rand.New(rand.NewSource(r.config.Seed + int64(r.sweep) + 1))

	for i := 0; i < r.numSequences; i++ {
		p := r.posToChunk[i]
		wb, we := r.randomizedChunks[p].WindowBegin, r.randomizedChunks[p].WindowEnd
		lo := r.randomizedChunks[wb].SequencePosition
		hi := r.randomizedChunks[we].SequencePosition

		for {
			j := lo + int(rng.Int63n(int64(hi-lo)))
			if r.swapValid(i, j, wb, we) {
				if j != i {
					r.randomTimeline[i], r.randomTimeline[j] = r.randomTimeline[j], r.randomTimeline[i]
				}
				break
			}
		}
	}
}

// swapValid reports whether swapping the entries currently at positions i
// and j would preserve the locality invariant at both positions. wb/we
// bound i's chunk window.
func (r *BlockRandomizer) swapValid(i, j, wb, we int) bool {
	pj := r.posToChunk[j]
	rpJ := r.origToRandPos[r.randomTimeline[j].originalChunkID]
	if rpJ < wb || rpJ >= we {
		return false
	}
	rpI := r.origToRandPos[r.randomTimeline[i].originalChunkID]
	wbJ, weJ := r.randomizedChunks[pj].WindowBegin, r.randomizedChunks[pj].WindowEnd
	return rpI >= wbJ && rpI < weJ
}
