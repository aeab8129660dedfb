// Package types defines the core data structures for the TTS batch
// rendering engine.
//
// This package contains the fundamental types shared across the engine,
// including:
//   - Work items and render paths
//   - Batch submission results
//   - The render contract between scheduler and executor
//   - Model shape and memory probe types used for batch admission
package types
