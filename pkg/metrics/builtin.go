package metrics

// Built-in metric names emitted by the batch scheduler and variant pool.
const (
	ItemsCompletedName   = "tts_items_completed"
	ItemsFailedName      = "tts_items_failed"
	SubBatchDurationName = "tts_subbatch_duration"
	AudioSecondsName     = "tts_audio_seconds"
	RealtimeFactorName   = "tts_realtime_factor"
	ModelLoadsName       = "tts_model_loads"
	ModelEvictionsName   = "tts_model_evictions"
	ContextCacheHitsName = "tts_context_cache_hits"
	ContextCacheMissName = "tts_context_cache_misses"
	WarmupDurationName   = "tts_warmup_duration"
	SubmissionItemsName  = "tts_submission_items"
)

// NewEngineRegistry 创建并预注册调度器使用的内置指标
func NewEngineRegistry() *Registry {
	r := NewRegistry()
	r.NewMetric(ItemsCompletedName, Counter, Default)
	r.NewMetric(ItemsFailedName, Counter, Default)
	r.NewMetric(SubBatchDurationName, Trend, Time)
	r.NewMetric(AudioSecondsName, Counter, Time)
	r.NewMetric(RealtimeFactorName, Gauge, Default)
	r.NewMetric(ModelLoadsName, Counter, Default)
	r.NewMetric(ModelEvictionsName, Counter, Default)
	r.NewMetric(ContextCacheHitsName, Counter, Default)
	r.NewMetric(ContextCacheMissName, Counter, Default)
	r.NewMetric(WarmupDurationName, Trend, Time)
	r.NewMetric(SubmissionItemsName, Counter, Default)
	return r
}
