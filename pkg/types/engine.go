package types

import "context"

// ModelShape describes the attention geometry of the loaded talker model.
// The estimator derives KV cache cost per token from it.
type ModelShape struct {
	// Layers is the number of hidden layers.
	Layers int `json:"layers"`
	// KVHeads is the number of key/value heads.
	KVHeads int `json:"kv_heads"`
	// HeadDim is the dimension of one attention head.
	HeadDim int `json:"head_dim"`
	// ElementSize is the byte width of one cache element (2 for bf16).
	ElementSize int `json:"element_size"`
}

// BytesPerToken returns the KV cache cost of one token across all layers.
// The factor 2 accounts for the separate key and value caches.
func (s *ModelShape) BytesPerToken() int64 {
	return int64(s.Layers) * 2 * int64(s.KVHeads) * int64(s.HeadDim) * int64(s.ElementSize)
}

// MemoryInfo is a snapshot of accelerator memory availability.
type MemoryInfo struct {
	// FreeBytes is driver-level free memory.
	FreeBytes uint64 `json:"free_bytes"`
	// ReservedUnusedBytes is allocator-reserved but unallocated memory,
	// which batch execution can still claim.
	ReservedUnusedBytes uint64 `json:"reserved_unused_bytes"`
}

// Available returns the total memory a new batch may claim.
func (m MemoryInfo) Available() uint64 {
	return m.FreeBytes + m.ReservedUnusedBytes
}

// MemoryProber reports free accelerator memory. ok=false means the probe
// is unavailable; the estimator then treats the budget as unbounded.
type MemoryProber interface {
	FreeMemory() (info MemoryInfo, ok bool)
}

// ContextSpec describes how to build a shared context for a group.
type ContextSpec struct {
	// RefAudioPath points at the reference audio (clone and overlay paths).
	RefAudioPath string `json:"ref_audio_path,omitempty"`
	// RefText is the transcript of the reference audio.
	RefText string `json:"ref_text,omitempty"`
	// AdapterPath names the adapter directory (overlay path).
	AdapterPath string `json:"adapter_path,omitempty"`
	// Description is the per-item voice description (design path).
	Description string `json:"description,omitempty"`
}

// SharedContext is the expensive artifact built once per (variant, group)
// and reused by every sub-batch of the group. Value is opaque to the
// scheduler; the token counts feed the batch size estimator.
type SharedContext struct {
	Value        any
	PromptTokens int
	RefTextChars int
}

// RenderRequest is one executor call covering a whole sub-batch.
type RenderRequest struct {
	Texts           []string
	Context         *SharedContext
	Styles          []StyleParams
	MaxOutputTokens int
}

// RenderResponse carries one output waveform per request text.
type RenderResponse struct {
	Outputs    [][]float32
	SampleRate int
}

// Empty reports whether the executor produced no usable output. The
// scheduler treats an empty response the same as an execution error.
func (r *RenderResponse) Empty() bool {
	return r == nil || len(r.Outputs) == 0
}

// Engine is the generative executor collaborator. Implementations are
// heavyweight loadable configurations; the variant pool owns at most one
// active Engine at a time.
type Engine interface {
	// Shape returns the model geometry, if introspectable.
	Shape() (ModelShape, bool)

	// BuildContext builds the shared context for a group. Expensive;
	// callers cache the result per (variant, group key).
	BuildContext(ctx context.Context, spec ContextSpec) (*SharedContext, error)

	// Render executes one sub-batch. Outputs align with request texts.
	Render(ctx context.Context, req *RenderRequest) (*RenderResponse, error)

	// Release frees the engine's resources. Called on eviction.
	Release(ctx context.Context) error
}

// EngineLoader loads a named executor variant on demand.
type EngineLoader func(ctx context.Context) (Engine, error)

// AudioSink persists one rendered output keyed by its work item index.
// The scheduler never touches storage directly.
type AudioSink interface {
	Save(ctx context.Context, index int, samples []float32, sampleRate int) error
}

// ProgressFunc is invoked after every sub-batch with running totals.
type ProgressFunc func(completed, failed, total int)
