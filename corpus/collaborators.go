package corpus

// Deserializer is the external collaborator that owns decoded chunk data.
// The randomizer calls RequireChunk/ReleaseChunk to drive chunk residency
// and GetSequencesByID to pull decoded payloads; it holds no strong
// reference to the data itself. Implementations must be idempotent on
// RequireChunk/ReleaseChunk.
type Deserializer interface {
	// GetSequenceDescriptions returns the full corpus timeline. Called once,
	// at construction.
	GetSequenceDescriptions() (Timeline, error)

	// StartEpoch is forwarded the epoch configuration so the deserializer
	// can prepare for the worker's share of the corpus, if it needs to.
	StartEpoch(EpochConfiguration) error

	// RequireChunk asks the deserializer to decode chunk k into memory, if
	// it has not already. Idempotent.
	RequireChunk(originalChunkIndex int) error

	// ReleaseChunk tells the deserializer chunk k is no longer needed by
	// the current consumption window. Idempotent.
	ReleaseChunk(originalChunkIndex int) error

	// GetSequencesByID returns, for each requested sequence id, one
	// SequenceData per configured stream, in stream order.
	GetSequencesByID(ids []int) ([][]SequenceData, error)
}

// MemoryProvider allocates and frees the contiguous buffers FrameModePacker
// uses for its per-stream minibatch storage. Alloc must return a buffer at
// least count*elementSize bytes long, aligned to max(elementSize,
// pointerSize) bytes.
type MemoryProvider interface {
	Alloc(elementSize, count int) ([]byte, error)
	Free(buf []byte)
}
