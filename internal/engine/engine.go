// Package engine connects the scheduler to the generative executor
// service. The executor itself (model weights, inference loop) lives in a
// separate process; this package speaks its HTTP API and exposes each
// loaded variant as a types.Engine.
package engine

import "yqhp/tts-engine/pkg/types"

// Provider supplies loaders for named executor variants. Variant names
// follow the "family" or "family:adapter" convention; the adapter suffix
// selects a hot-swappable overlay on the base model.
type Provider interface {
	// Loader returns the loader that brings the named variant up.
	Loader(variant string) types.EngineLoader
}
