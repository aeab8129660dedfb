// Package variant manages the mutually exclusive heavy executor
// configurations. At most one variant is loaded at a time; switching
// always releases the previous engine, reclaims its memory and clears
// the shared-context cache scoped to it.
package variant

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/tts-engine/internal/promptcache"
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/metrics"
	"yqhp/tts-engine/pkg/types"
)

// State 表示变体的加载状态
type State string

const (
	// StateUnloaded 未加载
	StateUnloaded State = "unloaded"
	// StateLoading 正在加载
	StateLoading State = "loading"
	// StateReady 已就绪
	StateReady State = "ready"
)

// defaultWarmupText exercises a realistic sentence length so the first
// real generation does not pay kernel autotuning cost.
const defaultWarmupText = "The ancient library stood at the crossroads of two forgotten paths, " +
	"its weathered stone walls covered in ivy that had been growing for centuries."

// Config tunes pool behavior. Zero values fall back to defaults.
type Config struct {
	// WarmupText is rendered once per variant family before real work.
	WarmupText string
	// MaxOutputTokens bounds the warm-up generation length.
	MaxOutputTokens int
	// Reclaim forces a resource reclamation pass. Defaults to a GC plus
	// returning freed pages to the OS.
	Reclaim func()
	// Metrics receives load/eviction/warm-up samples when set.
	Metrics *metrics.Registry
}

// Pool guards the single active executor variant. The load lock is
// independent of the scheduler's generation lock, so duplicate loads are
// prevented even when acquisition happens outside a generation window.
type Pool struct {
	mu     sync.Mutex
	active string
	engine types.Engine
	state  State

	warmed map[string]bool

	cache   *promptcache.Cache
	reclaim func()
	reg     *metrics.Registry

	warmupText      string
	maxOutputTokens int
}

// NewPool creates a pool whose shared-context cache is cleared on every
// eviction.
func NewPool(cache *promptcache.Cache, cfg Config) *Pool {
	if cfg.WarmupText == "" {
		cfg.WarmupText = defaultWarmupText
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 2048
	}
	if cfg.Reclaim == nil {
		cfg.Reclaim = func() {
			runtime.GC()
			debug.FreeOSMemory()
		}
	}
	return &Pool{
		state:           StateUnloaded,
		warmed:          make(map[string]bool),
		cache:           cache,
		reclaim:         cfg.Reclaim,
		reg:             cfg.Metrics,
		warmupText:      cfg.WarmupText,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

// FamilyOf returns the base-variant family of a name. Adapter overlays
// extend the base name with a colon-separated suffix ("base:adapter") and
// share the base family's warm-up.
func FamilyOf(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i]
	}
	return name
}

// Acquire returns the engine for name, loading it if necessary. If a
// different variant is active it is evicted first. The loader runs under
// the pool lock; a caller arriving during a load blocks and then observes
// Ready without reloading.
func (p *Pool) Acquire(ctx context.Context, name string, loader types.EngineLoader) (types.Engine, error) {
	if name == "" {
		return nil, fmt.Errorf("variant name cannot be empty")
	}
	if loader == nil {
		return nil, fmt.Errorf("variant %s: nil loader", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active == name && p.state == StateReady {
		return p.engine, nil
	}

	if p.engine != nil {
		p.evictLocked(ctx)
	}

	p.active = name
	p.state = StateLoading
	logger.Info("loading executor variant", zap.String("variant", name))

	t0 := time.Now()
	eng, err := loader(ctx)
	if err != nil {
		p.active = ""
		p.state = StateUnloaded
		return nil, fmt.Errorf("load variant %s: %w", name, err)
	}

	p.engine = eng
	p.state = StateReady
	p.record(metrics.ModelLoadsName, 1)
	logger.Info("executor variant ready",
		zap.String("variant", name),
		zap.Duration("load_time", time.Since(t0)),
	)
	return eng, nil
}

// Evict drops the active engine, forces a reclamation pass and clears the
// scoped shared-context cache. Idempotent.
func (p *Pool) Evict(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictLocked(ctx)
}

func (p *Pool) evictLocked(ctx context.Context) {
	if p.engine == nil {
		p.active = ""
		p.state = StateUnloaded
		return
	}

	logger.Info("evicting executor variant", zap.String("variant", p.active))
	if err := p.engine.Release(ctx); err != nil {
		logger.Warn("variant release failed",
			zap.String("variant", p.active),
			zap.Error(err),
		)
	}
	p.engine = nil
	p.active = ""
	p.state = StateUnloaded

	if p.cache != nil {
		p.cache.ClearAll()
	}
	p.reclaim()
	p.record(metrics.ModelEvictionsName, 1)
}

// WarmUp runs one throwaway generation for the engine's family. Runs at
// most once per family per process. Failures are logged and non-fatal:
// the real generation simply pays the tuning cost itself.
func (p *Pool) WarmUp(ctx context.Context, eng types.Engine, family string) {
	p.mu.Lock()
	if p.warmed[family] {
		p.mu.Unlock()
		return
	}
	p.warmed[family] = true
	p.mu.Unlock()

	logger.Info("running warm-up generation", zap.String("family", family))
	t0 := time.Now()
	_, err := eng.Render(ctx, &types.RenderRequest{
		Texts:           []string{p.warmupText},
		Styles:          []types.StyleParams{{Instruct: "neutral"}},
		MaxOutputTokens: p.maxOutputTokens,
	})
	if err != nil {
		logger.Warn("warm-up failed (non-fatal)",
			zap.String("family", family),
			zap.Error(err),
		)
		return
	}
	p.record(metrics.WarmupDurationName, float64(time.Since(t0).Milliseconds()))
	logger.Info("warm-up done",
		zap.String("family", family),
		zap.Duration("elapsed", time.Since(t0)),
	)
}

// Reclaim forces a resource reclamation pass. The scheduler calls it
// between sub-batches unconditionally.
func (p *Pool) Reclaim() {
	p.reclaim()
}

// Active returns the current variant name and state.
func (p *Pool) Active() (string, State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, p.state
}

func (p *Pool) record(name string, v float64) {
	if p.reg != nil {
		p.reg.Record(name, v)
	}
}
