package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkItemLengthCountsRunes(t *testing.T) {
	ascii := WorkItem{Text: "hello"}
	assert.Equal(t, 5, ascii.Length())

	chinese := WorkItem{Text: "你好世界"}
	assert.Equal(t, 4, chinese.Length())

	empty := WorkItem{}
	assert.Equal(t, 0, empty.Length())
}

func TestBatchCapable(t *testing.T) {
	assert.True(t, PathCustom.BatchCapable())
	assert.True(t, PathClone.BatchCapable())
	assert.True(t, PathOverlay.BatchCapable())
	assert.False(t, PathDesign.BatchCapable())
}

func TestBatchResultAccounting(t *testing.T) {
	r := NewBatchResult()
	assert.Equal(t, 0, r.Total())

	r.Complete(2)
	r.Fail(0, "boom")
	r.FailAll([]int{1, 3}, "batch failed")
	assert.Equal(t, 4, r.Total())
	assert.Equal(t, []int{2}, r.Completed)
	assert.Equal(t, "batch failed", r.Failed[2].Message)

	other := NewBatchResult()
	other.Complete(4)
	r.Merge(other)
	r.Merge(nil)
	assert.Equal(t, 5, r.Total())
}

func TestRenderResponseEmpty(t *testing.T) {
	var nilResp *RenderResponse
	assert.True(t, nilResp.Empty())
	assert.True(t, (&RenderResponse{}).Empty())
	assert.False(t, (&RenderResponse{Outputs: [][]float32{{0.1}}}).Empty())
}

func TestMemoryInfoAvailable(t *testing.T) {
	info := MemoryInfo{FreeBytes: 100, ReservedUnusedBytes: 28}
	assert.Equal(t, uint64(128), info.Available())
}
