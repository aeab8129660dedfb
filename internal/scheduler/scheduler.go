// Package scheduler drives batched TTS rendering through the expensive
// generative executor. It groups work items by rendering path and shared
// context, sorts each group by length, bounds sub-batches through the
// memory estimator and partitioner, and aggregates per-item outcomes.
// One process-wide generation lock serializes every execution.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/internal/engine"
	"yqhp/tts-engine/internal/estimator"
	"yqhp/tts-engine/internal/partition"
	"yqhp/tts-engine/internal/promptcache"
	"yqhp/tts-engine/internal/variant"
	"yqhp/tts-engine/pkg/logger"
	"yqhp/tts-engine/pkg/metrics"
	"yqhp/tts-engine/pkg/types"
)

// ContextResolver maps a group to the spec for its shared context.
// required=false means the group renders without one (custom voices).
// An error is a configuration error: the group fails without any
// executor contact.
type ContextResolver interface {
	Resolve(path types.RenderPath, groupKey string) (spec types.ContextSpec, required bool, err error)
}

// Variant names per path. Clone and overlay share the base family, so
// switching between a plain clone group and an adapter overlay swaps the
// overlay without repeating the family warm-up.
const (
	variantCustom = "custom"
	variantBase   = "base"
	variantDesign = "design"
)

func variantFor(path types.RenderPath, groupKey string) string {
	switch path {
	case types.PathClone:
		return variantBase
	case types.PathOverlay:
		return variantBase + ":" + groupKey
	case types.PathDesign:
		return variantDesign
	default:
		return variantCustom
	}
}

// Options carries optional scheduler collaborators.
type Options struct {
	// Prober reports free accelerator memory; nil means unbounded.
	Prober types.MemoryProber
	// Sink persists rendered audio keyed by item index.
	Sink types.AudioSink
	// OnProgress is invoked after every sub-batch.
	OnProgress types.ProgressFunc
	// Metrics receives scheduling samples when set.
	Metrics *metrics.Registry
	// VariantConfig tunes the variant pool (warm-up, reclamation).
	VariantConfig variant.Config
}

// Scheduler composes the estimator, partitioner, shared-context cache
// and variant pool into one submission pipeline.
type Scheduler struct {
	// mu is the global generation lock: at most one submission — and at
	// most one executor call — runs at a time system-wide.
	mu sync.Mutex

	batching config.BatchingConfig
	engCfg   config.EngineConfig

	provider engine.Provider
	resolver ContextResolver
	contexts *promptcache.Cache
	pool     *variant.Pool

	prober     types.MemoryProber
	sink       types.AudioSink
	onProgress types.ProgressFunc
	reg        *metrics.Registry

	// progress counters for the submission currently executing,
	// readable while the generation lock is held
	progMu        sync.Mutex
	progCompleted int
	progFailed    int
	progTotal     int

	lastCacheHits   uint64
	lastCacheMisses uint64
}

// New creates a scheduler. provider and resolver are mandatory; the
// remaining collaborators come through opts.
func New(batching config.BatchingConfig, engCfg config.EngineConfig, provider engine.Provider, resolver ContextResolver, opts Options) *Scheduler {
	cache := promptcache.New()

	vcfg := opts.VariantConfig
	if vcfg.WarmupText == "" {
		vcfg.WarmupText = engCfg.WarmupText
	}
	if vcfg.MaxOutputTokens <= 0 {
		vcfg.MaxOutputTokens = engCfg.MaxOutputTokens
	}
	if vcfg.Metrics == nil {
		vcfg.Metrics = opts.Metrics
	}

	return &Scheduler{
		batching:   batching,
		engCfg:     engCfg,
		provider:   provider,
		resolver:   resolver,
		contexts:   cache,
		pool:       variant.NewPool(cache, vcfg),
		prober:     opts.Prober,
		sink:       opts.Sink,
		onProgress: opts.OnProgress,
		reg:        opts.Metrics,
	}
}

// Submit renders every item and returns the union of per-item outcomes.
// Partial failures never surface as an error: a failed sub-batch only
// fails its own items. The returned error is reserved for structural
// failures (variant load), which abort the whole submission.
func (s *Scheduler) Submit(ctx context.Context, items []types.WorkItem) (*types.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := types.NewBatchResult()
	if len(items) == 0 {
		return result, nil
	}

	subID := uuid.NewString()[:8]
	s.progMu.Lock()
	s.progCompleted, s.progFailed, s.progTotal = 0, 0, len(items)
	s.progMu.Unlock()
	s.record(metrics.SubmissionItemsName, float64(len(items)))
	logger.Info("submission started",
		zap.String("submission", subID),
		zap.Int("items", len(items)),
	)

	t0 := time.Now()
	byPath := splitByPath(items)
	for _, path := range pathOrder {
		group := byPath[path]
		if len(group) == 0 {
			continue
		}
		if err := s.runPath(ctx, path, group, result); err != nil {
			logger.Error("submission aborted",
				zap.String("submission", subID),
				zap.Error(err),
			)
			return nil, err
		}
	}

	logger.Info("submission finished",
		zap.String("submission", subID),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return result, nil
}

// TearDown is the external watchdog's recovery hook: it evicts the
// active variant and clears every cached context. It queues on the
// generation lock, so it never interrupts a running sub-batch.
func (s *Scheduler) TearDown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logger.Warn("tearing down executor state")
	s.pool.Evict(ctx)
}

// Progress returns the running counters of the current (or last)
// submission.
func (s *Scheduler) Progress() (completed, failed, total int) {
	s.progMu.Lock()
	defer s.progMu.Unlock()
	return s.progCompleted, s.progFailed, s.progTotal
}

// ActiveVariant reports the variant currently resident on the executor.
func (s *Scheduler) ActiveVariant() (name, state string) {
	n, st := s.pool.Active()
	return n, string(st)
}

// runPath processes all items of one rendering path.
func (s *Scheduler) runPath(ctx context.Context, path types.RenderPath, items []types.WorkItem, result *types.BatchResult) error {
	if !path.BatchCapable() {
		return s.runSequential(ctx, path, items, result)
	}

	// Clone and overlay always group by context key; custom voices only
	// when secondary grouping is enabled.
	var keys []string
	var groups map[string][]types.WorkItem
	if path == types.PathCustom && !s.batching.GroupByContext {
		keys = []string{""}
		groups = map[string][]types.WorkItem{"": items}
	} else {
		keys, groups = splitByGroupKey(items)
	}

	for _, key := range keys {
		if err := s.runGroup(ctx, path, key, groups[key], result); err != nil {
			return err
		}
	}
	return nil
}

// runGroup renders one (path, group key) group through sorted,
// partitioned sub-batches.
func (s *Scheduler) runGroup(ctx context.Context, path types.RenderPath, key string, items []types.WorkItem, result *types.BatchResult) error {
	spec, required, err := s.resolver.Resolve(path, key)
	if err != nil {
		// Configuration error: fail the group without touching the
		// executor or occupying a sub-batch slot.
		s.failAll(result, indicesOf(items), NewConfigError(err.Error()).Error())
		return nil
	}

	name := variantFor(path, key)
	eng, err := s.pool.Acquire(ctx, name, s.provider.Loader(name))
	if err != nil {
		return NewLoaderError(name, err)
	}
	s.pool.WarmUp(ctx, eng, variant.FamilyOf(name))

	var shared *types.SharedContext
	if required {
		shared, err = s.contexts.GetOrCreate(key, func() (*types.SharedContext, error) {
			return eng.BuildContext(ctx, spec)
		})
		s.recordCacheStats()
		if err != nil {
			// Context-build error: the whole group fails; the
			// partitioner is never invoked for it.
			s.failAll(result, indicesOf(items), NewContextError(key, err).Error())
			return nil
		}
	}

	sortByLength(items)
	lengths := lengthsOf(items)

	params := estimator.Params{
		InputChars:         lengths[len(lengths)-1],
		MaxGeneratedTokens: s.engCfg.MaxOutputTokens,
	}
	if shared != nil {
		params.SharedContextTokens = shared.PromptTokens
		params.RefTextChars = shared.RefTextChars
	}

	var shapePtr *types.ModelShape
	if shape, ok := eng.Shape(); ok {
		shapePtr = &shape
	}
	estimated := estimator.MaxBatchItems(shapePtr, s.prober, params)

	ranges := partition.Split(lengths, partition.Options{
		Enabled:             s.batching.Enabled,
		MaxItems:            partition.EffectiveMaxItems(estimated, s.batching.MaxItems),
		MinGroupSize:        s.batching.MinGroupSize,
		MaxRatio:            s.batching.MaxRatio,
		MaxCumulativeLength: s.batching.MaxCumulativeLength,
	})

	logger.Info("rendering group",
		zap.String("path", string(path)),
		zap.String("group", key),
		zap.Int("items", len(items)),
		zap.Int("sub_batches", len(ranges)),
		zap.Int("max_items", estimated),
	)

	for i, r := range ranges {
		sub := items[r.Start:r.End]
		s.renderSubBatch(ctx, eng, shared, sub, result)
		logger.Debug("sub-batch finished",
			zap.Int("sub_batch", i+1),
			zap.Int("of", len(ranges)),
			zap.Int("items", len(sub)),
		)
	}
	return nil
}

// renderSubBatch executes one sub-batch. A failure here is local: every
// index of the sub-batch is recorded as failed and scheduling proceeds.
func (s *Scheduler) renderSubBatch(ctx context.Context, eng types.Engine, shared *types.SharedContext, sub []types.WorkItem, result *types.BatchResult) {
	// Resources are reclaimed after every sub-batch unconditionally, and
	// progress is reported even for failed ones.
	defer func() {
		s.pool.Reclaim()
		s.reportProgress()
	}()

	req := &types.RenderRequest{
		Texts:           make([]string, len(sub)),
		Context:         shared,
		Styles:          make([]types.StyleParams, len(sub)),
		MaxOutputTokens: s.engCfg.MaxOutputTokens,
	}
	for i, item := range sub {
		req.Texts[i] = item.Text
		req.Styles[i] = item.Style
	}

	t0 := time.Now()
	resp, err := eng.Render(ctx, req)
	elapsed := time.Since(t0)
	s.record(metrics.SubBatchDurationName, float64(elapsed.Milliseconds()))

	if err != nil {
		s.failAll(result, indicesOf(sub), NewExecutionError("sub-batch execution failed", err).Error())
		return
	}
	if resp.Empty() {
		s.failAll(result, indicesOf(sub), NewExecutionError("executor returned no output", nil).Error())
		return
	}

	var audioSeconds float64
	for i, item := range sub {
		if i >= len(resp.Outputs) {
			s.fail(result, item.Index, NewExecutionError("executor returned fewer outputs than inputs", nil).Error())
			continue
		}
		if err := s.save(ctx, item.Index, resp.Outputs[i], resp.SampleRate); err != nil {
			s.fail(result, item.Index, fmt.Sprintf("save output: %v", err))
			continue
		}
		result.Complete(item.Index)
		s.progMu.Lock()
		s.progCompleted++
		s.progMu.Unlock()
		s.record(metrics.ItemsCompletedName, 1)
		if resp.SampleRate > 0 {
			audioSeconds += float64(len(resp.Outputs[i])) / float64(resp.SampleRate)
		}
	}

	s.record(metrics.AudioSecondsName, audioSeconds)
	if sec := elapsed.Seconds(); sec > 0 && audioSeconds > 0 {
		s.record(metrics.RealtimeFactorName, audioSeconds/sec)
	}
}

// runSequential handles paths whose items each carry a unique context:
// single-item execution, context built per item and never cached.
func (s *Scheduler) runSequential(ctx context.Context, path types.RenderPath, items []types.WorkItem, result *types.BatchResult) error {
	name := variantFor(path, "")
	eng, err := s.pool.Acquire(ctx, name, s.provider.Loader(name))
	if err != nil {
		return NewLoaderError(name, err)
	}
	s.pool.WarmUp(ctx, eng, variant.FamilyOf(name))

	for i, item := range items {
		spec, required, err := s.resolver.Resolve(path, item.GroupKey)
		if err != nil {
			s.fail(result, item.Index, NewConfigError(err.Error()).Error())
			s.reportProgress()
			continue
		}

		var shared *types.SharedContext
		if required {
			shared, err = eng.BuildContext(ctx, spec)
			if err != nil {
				s.fail(result, item.Index, NewContextError(item.GroupKey, err).Error())
				s.reportProgress()
				continue
			}
		}

		s.renderSubBatch(ctx, eng, shared, items[i:i+1], result)
	}
	return nil
}

func (s *Scheduler) save(ctx context.Context, index int, samples []float32, sampleRate int) error {
	if s.sink == nil {
		return nil
	}
	return s.sink.Save(ctx, index, samples, sampleRate)
}

func (s *Scheduler) fail(result *types.BatchResult, index int, msg string) {
	result.Fail(index, msg)
	s.progMu.Lock()
	s.progFailed++
	s.progMu.Unlock()
	s.record(metrics.ItemsFailedName, 1)
}

func (s *Scheduler) failAll(result *types.BatchResult, indices []int, msg string) {
	for _, idx := range indices {
		s.fail(result, idx, msg)
	}
}

func (s *Scheduler) reportProgress() {
	if s.onProgress != nil {
		s.onProgress(s.Progress())
	}
}

func (s *Scheduler) record(name string, v float64) {
	if s.reg != nil {
		s.reg.Record(name, v)
	}
}

// recordCacheStats forwards the delta of the cache counters since the
// last call into the registry counters.
func (s *Scheduler) recordCacheStats() {
	hits, misses := s.contexts.Stats()
	if d := hits - s.lastCacheHits; d > 0 {
		s.record(metrics.ContextCacheHitsName, float64(d))
	}
	if d := misses - s.lastCacheMisses; d > 0 {
		s.record(metrics.ContextCacheMissName, float64(d))
	}
	s.lastCacheHits, s.lastCacheMisses = hits, misses
}
