package scheduler

import (
	"sort"

	"yqhp/tts-engine/pkg/types"
)

// pathOrder fixes the processing order of rendering paths so repeated
// submissions with the same mix touch variants in the same sequence.
var pathOrder = []types.RenderPath{
	types.PathCustom,
	types.PathClone,
	types.PathOverlay,
	types.PathDesign,
}

// splitByPath partitions items by rendering path, preserving submission
// order within each path.
func splitByPath(items []types.WorkItem) map[types.RenderPath][]types.WorkItem {
	byPath := make(map[types.RenderPath][]types.WorkItem)
	for _, item := range items {
		byPath[item.Path] = append(byPath[item.Path], item)
	}
	return byPath
}

// splitByGroupKey partitions one path's items by their shared-context
// key. Key order follows first appearance so scheduling is deterministic.
func splitByGroupKey(items []types.WorkItem) (keys []string, groups map[string][]types.WorkItem) {
	groups = make(map[string][]types.WorkItem)
	for _, item := range items {
		if _, seen := groups[item.GroupKey]; !seen {
			keys = append(keys, item.GroupKey)
		}
		groups[item.GroupKey] = append(groups[item.GroupKey], item)
	}
	return keys, groups
}

// sortByLength orders a group by text length ascending. The sort is
// stable on the original index so equal lengths keep submission order.
// Pre-sorting minimizes intra-batch length variance: the executor runs
// until the longest member finishes.
func sortByLength(items []types.WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Length() < items[j].Length()
	})
}

// lengthsOf extracts scheduling lengths from a sorted group.
func lengthsOf(items []types.WorkItem) []int {
	lengths := make([]int, len(items))
	for i := range items {
		lengths[i] = items[i].Length()
	}
	return lengths
}

// indicesOf extracts the original indices of a slice of items.
func indicesOf(items []types.WorkItem) []int {
	indices := make([]int, len(items))
	for i := range items {
		indices[i] = items[i].Index
	}
	return indices
}
