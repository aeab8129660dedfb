// Package estimator derives the maximum concurrent batch size from the
// model's KV cache geometry and the memory currently available on the
// accelerator. It is the memory half of batch admission control; the
// partitioner enforces the throughput half.
package estimator

import (
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/types"

	"go.uber.org/zap"
)

const (
	// Unbounded is returned when the budget cannot be computed. The
	// partitioner's remaining constraints then bound the batch.
	Unbounded = 9999

	// fixedOverheadTokens covers role tokens, prefix and special tokens.
	fixedOverheadTokens = 10

	// growthFactor folds non-cache costs into the per-item estimate:
	// prefill activations, codec buffers, allocator fragmentation.
	growthFactor = 2.0

	// safetyFraction is the share of free memory the batch may claim.
	safetyFraction = 0.8

	// charsPerToken is the rough text-to-token ratio used when only
	// character counts are known.
	charsPerToken = 3
)

// Params describes the per-sequence token load of one group.
type Params struct {
	// SharedContextTokens is the size of the cached shared context
	// prepended to every sequence (clone prompt codes).
	SharedContextTokens int
	// RefTextChars is the character length of the reference transcript.
	RefTextChars int
	// InputChars is the character length of the longest text in the
	// group; the batch pads every member to it.
	InputChars int
	// MaxGeneratedTokens bounds the autoregressive output length.
	MaxGeneratedTokens int
}

// TokensForChars converts a character count to an estimated token count.
func TokensForChars(chars int) int {
	if chars <= 0 {
		return 0
	}
	return chars / charsPerToken
}

// totalTokens is the worst-case token footprint of one sequence.
func (p Params) totalTokens() int64 {
	return int64(fixedOverheadTokens +
		p.SharedContextTokens +
		TokensForChars(p.RefTextChars) +
		TokensForChars(p.InputChars) +
		p.MaxGeneratedTokens)
}

// MaxBatchItems returns how many sequences fit in the probed free memory,
// never less than 1. Shape or memory introspection being unavailable
// yields Unbounded so the caller's other constraints take over.
func MaxBatchItems(shape *types.ModelShape, prober types.MemoryProber, p Params) int {
	if shape == nil || shape.BytesPerToken() <= 0 {
		return Unbounded
	}
	if prober == nil {
		return Unbounded
	}
	info, ok := prober.FreeMemory()
	if !ok {
		return Unbounded
	}

	memPerItem := int64(float64(p.totalTokens()*shape.BytesPerToken()) * growthFactor)
	if memPerItem <= 0 {
		return Unbounded
	}

	budget := int64(float64(info.Available()) * safetyFraction)
	maxBatch := budget / memPerItem
	if maxBatch < 1 {
		maxBatch = 1
	}

	logger.Debug("memory budget estimate",
		zap.Uint64("free_bytes", info.Available()),
		zap.Int64("tokens_per_item", p.totalTokens()),
		zap.Int64("mem_per_item", memPerItem),
		zap.Int64("max_batch", maxBatch),
	)

	return int(maxBatch)
}
