// Package sink persists rendered waveforms. The scheduler treats the
// sink as a per-item collaborator: a failed save fails only that item.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"yqhp/tts-engine/pkg/logger"
)

// WAVSink writes each rendered item as a mono 16-bit PCM WAV file named
// by the item index.
type WAVSink struct {
	dir     string
	pattern string
}

// NewWAVSink creates a sink writing into dir. pattern is a Sprintf
// pattern receiving the item index; empty means "chunk_%04d.wav".
func NewWAVSink(dir, pattern string) (*WAVSink, error) {
	if pattern == "" {
		pattern = "chunk_%04d.wav"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &WAVSink{dir: dir, pattern: pattern}, nil
}

// Save encodes one waveform. Samples are float32 in [-1, 1]; values
// outside the range are clamped before quantization.
func (s *WAVSink) Save(ctx context.Context, index int, samples []float32, sampleRate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("item %d produced no samples", index)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("item %d has invalid sample rate %d", index, sampleRate)
	}

	path := filepath.Join(s.dir, fmt.Sprintf(s.pattern, index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, v := range samples {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		buf.Data[i] = int(v * 32767)
	}

	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	logger.Debug("saved audio",
		zap.Int("index", index),
		zap.String("path", path),
		zap.Float64("seconds", float64(len(samples))/float64(sampleRate)),
	)
	return nil
}

// Path returns the output path the sink would use for an index.
func (s *WAVSink) Path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf(s.pattern, index))
}
