package types

// ItemFailure records why one work item failed.
type ItemFailure struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchResult is the aggregated outcome of one Submit call. Completed and
// Failed together cover every submitted index exactly once. Neither slice
// is ordered; callers reassemble by index.
type BatchResult struct {
	Completed []int         `json:"completed"`
	Failed    []ItemFailure `json:"failed"`
}

// NewBatchResult 创建一个空的 BatchResult，切片已初始化。
func NewBatchResult() *BatchResult {
	return &BatchResult{
		Completed: make([]int, 0),
		Failed:    make([]ItemFailure, 0),
	}
}

// Complete records an index as successfully rendered.
func (r *BatchResult) Complete(index int) {
	r.Completed = append(r.Completed, index)
}

// Fail records an index as failed with a message.
func (r *BatchResult) Fail(index int, message string) {
	r.Failed = append(r.Failed, ItemFailure{Index: index, Message: message})
}

// FailAll records every given index with the same message.
func (r *BatchResult) FailAll(indices []int, message string) {
	for _, idx := range indices {
		r.Fail(idx, message)
	}
}

// Merge folds another result into this one.
func (r *BatchResult) Merge(other *BatchResult) {
	if other == nil {
		return
	}
	r.Completed = append(r.Completed, other.Completed...)
	r.Failed = append(r.Failed, other.Failed...)
}

// Total returns the number of items accounted for.
func (r *BatchResult) Total() int {
	return len(r.Completed) + len(r.Failed)
}
