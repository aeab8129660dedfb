// Package metrics 提供渲染引擎的指标注册与聚合
package metrics

import (
	"sync"
	"time"
)

// MetricType 定义指标类型
type MetricType string

const (
	// Counter 计数器类型，只增不减
	Counter MetricType = "counter"
	// Gauge 仪表盘类型，可增可减
	Gauge MetricType = "gauge"
	// Rate 比率类型，计算成功/失败比率
	Rate MetricType = "rate"
	// Trend 趋势类型，计算百分位数等统计值
	Trend MetricType = "trend"
)

// ValueType 定义值的类型
type ValueType string

const (
	// Default 默认值类型
	Default ValueType = "default"
	// Time 时间类型（毫秒）
	Time ValueType = "time"
	// Data 数据量类型（字节）
	Data ValueType = "data"
)

// Metric 定义一个指标
type Metric struct {
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Description string     `json:"description,omitempty"`
	Contains    ValueType  `json:"contains,omitempty"`
	Sink        Sink       `json:"-"`
}

// Sample 表示单个指标样本
type Sample struct {
	Metric *Metric           `json:"metric"`
	Time   time.Time         `json:"time"`
	Value  float64           `json:"value"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Registry 管理所有已注册的指标
type Registry struct {
	metrics map[string]*Metric
	mu      sync.RWMutex
}

// NewRegistry 创建新的指标注册表
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
	}
}

// NewMetric 注册一个新指标，已存在时返回现有实例
func (r *Registry) NewMetric(name string, metricType MetricType, contains ValueType) *Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, exists := r.metrics[name]; exists {
		return m
	}

	m := &Metric{
		Name:     name,
		Type:     metricType,
		Contains: contains,
		Sink:     NewSink(metricType),
	}
	r.metrics[name] = m
	return m
}

// Get 按名称获取指标
func (r *Registry) Get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// All 返回所有指标
func (r *Registry) All() map[string]*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Metric, len(r.metrics))
	for name, m := range r.metrics {
		out[name] = m
	}
	return out
}

// Record 为指标添加一个样本
func (r *Registry) Record(name string, value float64) {
	m := r.Get(name)
	if m == nil || m.Sink == nil {
		return
	}
	m.Sink.Add(Sample{Metric: m, Time: time.Now(), Value: value})
}

// Report 返回所有非空指标的格式化统计
func (r *Registry) Report(duration float64) map[string]map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := make(map[string]map[string]float64)
	for name, m := range r.metrics {
		if m.Sink == nil || m.Sink.IsEmpty() {
			continue
		}
		report[name] = m.Sink.Format(duration)
	}
	return report
}
