package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/internal/variant"
	"yqhp/tts-engine/pkg/types"
)

// stubEngine 是一个按调用脚本运作的假执行器。
type stubEngine struct {
	variant     string
	shape       *types.ModelShape
	renderCalls [][]string
	renderErr   func(texts []string) error
	emptyResp   bool
	contextErr  func(spec types.ContextSpec) error
	contexts    int
	released    bool
}

func (e *stubEngine) Shape() (types.ModelShape, bool) {
	if e.shape == nil {
		return types.ModelShape{}, false
	}
	return *e.shape, true
}

func (e *stubEngine) BuildContext(ctx context.Context, spec types.ContextSpec) (*types.SharedContext, error) {
	if e.contextErr != nil {
		if err := e.contextErr(spec); err != nil {
			return nil, err
		}
	}
	e.contexts++
	return &types.SharedContext{Value: spec, PromptTokens: 100}, nil
}

func (e *stubEngine) Render(ctx context.Context, req *types.RenderRequest) (*types.RenderResponse, error) {
	e.renderCalls = append(e.renderCalls, append([]string{}, req.Texts...))
	if e.renderErr != nil {
		if err := e.renderErr(req.Texts); err != nil {
			return nil, err
		}
	}
	if e.emptyResp {
		return &types.RenderResponse{}, nil
	}
	outputs := make([][]float32, len(req.Texts))
	for i := range outputs {
		outputs[i] = make([]float32, 2400)
	}
	return &types.RenderResponse{Outputs: outputs, SampleRate: 24000}, nil
}

func (e *stubEngine) Release(ctx context.Context) error {
	e.released = true
	return nil
}

// stubProvider 记录每个变体的加载次数。
type stubProvider struct {
	loads     []string
	engines   map[string]*stubEngine
	loaderErr error
}

func newStubProvider() *stubProvider {
	return &stubProvider{engines: make(map[string]*stubEngine)}
}

func (p *stubProvider) Loader(name string) types.EngineLoader {
	return func(ctx context.Context) (types.Engine, error) {
		if p.loaderErr != nil {
			return nil, p.loaderErr
		}
		p.loads = append(p.loads, name)
		eng, ok := p.engines[name]
		if !ok {
			eng = &stubEngine{variant: name}
			p.engines[name] = eng
		}
		return eng, nil
	}
}

func (p *stubProvider) engineFor(name string) *stubEngine {
	return p.engines[name]
}

// stubResolver 按路径返回上下文规格。
type stubResolver struct {
	errFor map[string]error
}

func (r *stubResolver) Resolve(path types.RenderPath, groupKey string) (types.ContextSpec, bool, error) {
	if r.errFor != nil {
		if err, ok := r.errFor[groupKey]; ok {
			return types.ContextSpec{}, false, err
		}
	}
	switch path {
	case types.PathClone:
		return types.ContextSpec{RefAudioPath: groupKey + ".wav", RefText: "ref"}, true, nil
	case types.PathOverlay:
		return types.ContextSpec{AdapterPath: groupKey}, true, nil
	case types.PathDesign:
		return types.ContextSpec{Description: "a voice for " + groupKey}, true, nil
	default:
		return types.ContextSpec{}, false, nil
	}
}

// recordSink 记录保存的条目，可对指定 index 注入失败。
type recordSink struct {
	saved   []int
	failIdx map[int]bool
}

func (s *recordSink) Save(ctx context.Context, index int, samples []float32, sampleRate int) error {
	if s.failIdx[index] {
		return errors.New("disk full")
	}
	s.saved = append(s.saved, index)
	return nil
}

func testBatching() config.BatchingConfig {
	return config.BatchingConfig{
		Enabled:             true,
		MinGroupSize:        4,
		MaxRatio:            5.0,
		MaxCumulativeLength: 3000,
	}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{MaxOutputTokens: 2048}
}

func newTestScheduler(provider *stubProvider, opts Options) *Scheduler {
	opts.VariantConfig = variant.Config{Reclaim: func() {}}
	return New(testBatching(), testEngineConfig(), provider, &stubResolver{}, opts)
}

func customItem(index int, text string) types.WorkItem {
	return types.WorkItem{Index: index, Text: text, Path: types.PathCustom, GroupKey: "vivian", Style: types.StyleParams{Voice: "vivian"}}
}

func cloneItem(index int, text, speaker string) types.WorkItem {
	return types.WorkItem{Index: index, Text: text, Path: types.PathClone, GroupKey: speaker}
}

func TestSubmitEmpty(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})

	result, err := sched.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total())
	assert.Empty(t, provider.loads)
}

func TestSubmitCustomBatchSortedByLength(t *testing.T) {
	provider := newStubProvider()
	sink := &recordSink{}
	sched := newTestScheduler(provider, Options{Sink: sink})

	items := []types.WorkItem{
		customItem(0, "a much longer line of narration"),
		customItem(1, "short"),
		customItem(2, "medium length one"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 1, 2}, result.Completed)
	assert.Empty(t, result.Failed)

	eng := provider.engineFor("custom")
	require.NotNil(t, eng)
	// 预热一次 + 实际渲染一次
	require.Len(t, eng.renderCalls, 2)
	assert.Equal(t, []string{"short", "medium length one", "a much longer line of narration"}, eng.renderCalls[1])
	assert.ElementsMatch(t, []int{0, 1, 2}, sink.saved)
}

func TestSubmitVariantRouting(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{
		{Index: 0, Text: "design line", Path: types.PathDesign, GroupKey: "ghost"},
		cloneItem(1, "clone line", "hero"),
		customItem(2, "custom line"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 3)

	// 固定路径顺序：custom → clone(base) → design，每个变体恰好加载一次
	assert.Equal(t, []string{"custom", "base", "design"}, provider.loads)
}

func TestSubmitCloneGroupsShareContext(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{
		cloneItem(0, "first line", "hero"),
		cloneItem(1, "second line", "hero"),
		cloneItem(2, "another voice", "villain"),
		cloneItem(3, "more hero text", "hero"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 4)

	eng := provider.engineFor("base")
	require.NotNil(t, eng)
	// 每个说话人构建一次共享上下文
	assert.Equal(t, 2, eng.contexts)

	// 同一变体下再次提交命中缓存，不再重建
	_, err = sched.Submit(context.Background(), items[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, eng.contexts)
}

func TestSubmitConfigErrorFailsGroupOnly(t *testing.T) {
	provider := newStubProvider()
	resolver := &stubResolver{errFor: map[string]error{"ghost": errors.New("no voice configuration")}}
	sched := New(testBatching(), testEngineConfig(), provider, resolver, Options{
		VariantConfig: variant.Config{Reclaim: func() {}},
	})

	items := []types.WorkItem{
		cloneItem(0, "resolved fine", "hero"),
		cloneItem(1, "misconfigured", "ghost"),
		cloneItem(2, "also fine", "hero"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 2}, result.Completed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Contains(t, result.Failed[0].Message, "no voice configuration")
}

func TestSubmitContextBuildErrorFailsGroup(t *testing.T) {
	provider := newStubProvider()
	eng := &stubEngine{contextErr: func(spec types.ContextSpec) error {
		if strings.HasPrefix(spec.RefAudioPath, "villain") {
			return errors.New("reference audio corrupt")
		}
		return nil
	}}
	provider.engines["base"] = eng
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{
		cloneItem(0, "hero line", "hero"),
		cloneItem(1, "villain line one", "villain"),
		cloneItem(2, "villain line two", "villain"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0}, result.Completed)
	assert.Len(t, result.Failed, 2)
	for _, f := range result.Failed {
		assert.Contains(t, f.Message, "reference audio corrupt")
	}
}

func TestSubmitExecutionErrorFailsSubBatchOnly(t *testing.T) {
	provider := newStubProvider()
	eng := &stubEngine{renderErr: func(texts []string) error {
		for _, txt := range texts {
			if strings.Contains(txt, "poison") {
				return errors.New("generation crashed")
			}
		}
		return nil
	}}
	provider.engines["custom"] = eng

	sched := New(testBatching(), testEngineConfig(), provider, &stubResolver{}, Options{
		VariantConfig: variant.Config{Reclaim: func() {}},
	})
	// 每个子批次最多 1 条，使失败只波及单条
	sched.batching.MaxItems = 1

	items := []types.WorkItem{
		customItem(0, "good one"),
		customItem(1, "poison pill"),
		customItem(2, "good two"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 2}, result.Completed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Contains(t, result.Failed[0].Message, "generation crashed")
}

func TestSubmitEmptyOutputFailsSubBatch(t *testing.T) {
	provider := newStubProvider()
	provider.engines["custom"] = &stubEngine{emptyResp: true}
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{customItem(0, "one"), customItem(1, "two")}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.Empty(t, result.Completed)
	assert.Len(t, result.Failed, 2)
}

func TestSubmitLoaderErrorIsTerminal(t *testing.T) {
	provider := newStubProvider()
	provider.loaderErr = errors.New("inference server unreachable")
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{customItem(0, "anything")}
	result, err := sched.Submit(context.Background(), items)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsLoaderError(err))
}

func TestSubmitSinkErrorFailsItemOnly(t *testing.T) {
	provider := newStubProvider()
	sink := &recordSink{failIdx: map[int]bool{1: true}}
	sched := newTestScheduler(provider, Options{Sink: sink})

	items := []types.WorkItem{
		customItem(0, "saved fine"),
		customItem(1, "fails to save"),
		customItem(2, "also saved"),
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{0, 2}, result.Completed)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Contains(t, result.Failed[0].Message, "disk full")
}

func TestSubmitDesignRunsOneAtATime(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})

	items := []types.WorkItem{
		{Index: 0, Text: "first design", Path: types.PathDesign, GroupKey: "a"},
		{Index: 1, Text: "second design", Path: types.PathDesign, GroupKey: "b"},
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 2)

	eng := provider.engineFor("design")
	require.NotNil(t, eng)
	// 预热一次 + 两次单条渲染
	require.Len(t, eng.renderCalls, 3)
	assert.Len(t, eng.renderCalls[1], 1)
	assert.Len(t, eng.renderCalls[2], 1)
	// 每条独立构建上下文，不缓存
	assert.Equal(t, 2, eng.contexts)
}

func TestSubmitProgressCallback(t *testing.T) {
	provider := newStubProvider()
	var snapshots [][3]int
	sched := New(testBatching(), testEngineConfig(), provider, &stubResolver{}, Options{
		OnProgress: func(completed, failed, total int) {
			snapshots = append(snapshots, [3]int{completed, failed, total})
		},
		VariantConfig: variant.Config{Reclaim: func() {}},
	})
	sched.batching.MaxItems = 2

	items := []types.WorkItem{
		customItem(0, "aa"), customItem(1, "bb"),
		customItem(2, "cc"), customItem(3, "dd"),
	}
	_, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)

	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, [3]int{4, 0, 4}, last)

	// 进度单调不减
	prev := 0
	for _, snap := range snapshots {
		done := snap[0] + snap[1]
		assert.GreaterOrEqual(t, done, prev)
		assert.Equal(t, 4, snap[2])
		prev = done
	}
}

func TestSubmitMaxItemsSplitsRenders(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})
	sched.batching.MaxItems = 2

	items := make([]types.WorkItem, 5)
	for i := range items {
		items[i] = customItem(i, fmt.Sprintf("line number %d", i))
	}
	result, err := sched.Submit(context.Background(), items)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 5)

	eng := provider.engineFor("custom")
	// 预热 + ceil(5/2)=3 个子批次
	require.Len(t, eng.renderCalls, 4)
	for _, call := range eng.renderCalls[1:] {
		assert.LessOrEqual(t, len(call), 2)
	}
}

// TestProperty_EveryItemAccounted 验证核心不变量：
// 任何提交结束后 completed 与 failed 恰好覆盖全部 index，互不重叠。
func TestProperty_EveryItemAccounted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		provider := newStubProvider()
		poison := rapid.Bool().Draw(t, "poison")
		if poison {
			provider.engines["custom"] = &stubEngine{renderErr: func(texts []string) error {
				for _, txt := range texts {
					if strings.Contains(txt, "!") {
						return errors.New("crash")
					}
				}
				return nil
			}}
		}

		sched := newTestScheduler(provider, Options{})
		sched.batching.MaxItems = rapid.IntRange(0, 3).Draw(t, "maxItems")
		sched.batching.MinGroupSize = rapid.IntRange(1, 5).Draw(t, "minGroup")

		n := rapid.IntRange(0, 24).Draw(t, "n")
		items := make([]types.WorkItem, n)
		for i := 0; i < n; i++ {
			text := rapid.StringMatching(`[a-z !]{1,40}`).Draw(t, "text")
			switch rapid.IntRange(0, 2).Draw(t, "path") {
			case 0:
				items[i] = customItem(i, text)
			case 1:
				items[i] = cloneItem(i, text, rapid.SampledFrom([]string{"hero", "villain"}).Draw(t, "speaker"))
			default:
				items[i] = types.WorkItem{Index: i, Text: text, Path: types.PathDesign, GroupKey: "d"}
			}
		}

		result, err := sched.Submit(context.Background(), items)
		if err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}

		seen := make(map[int]bool)
		for _, idx := range result.Completed {
			if seen[idx] {
				t.Fatalf("index %d reported twice", idx)
			}
			seen[idx] = true
		}
		for _, f := range result.Failed {
			if seen[f.Index] {
				t.Fatalf("index %d reported twice", f.Index)
			}
			seen[f.Index] = true
		}
		if len(seen) != n {
			t.Fatalf("accounted %d of %d items", len(seen), n)
		}
	})
}

func TestTearDownEvictsVariant(t *testing.T) {
	provider := newStubProvider()
	sched := newTestScheduler(provider, Options{})

	_, err := sched.Submit(context.Background(), []types.WorkItem{customItem(0, "line")})
	require.NoError(t, err)

	name, _ := sched.ActiveVariant()
	require.Equal(t, "custom", name)

	sched.TearDown(context.Background())
	name, state := sched.ActiveVariant()
	assert.Equal(t, "", name)
	assert.Equal(t, string(variant.StateUnloaded), state)
	assert.True(t, provider.engineFor("custom").released)
}
