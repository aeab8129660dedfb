package types

// RenderPath identifies which rendering mode a work item goes through.
// The set is closed; the scheduler only uses it as a routing key.
type RenderPath string

const (
	// PathCustom renders with a named built-in voice. Supports native
	// multi-item execution; items share no per-group artifact unless
	// secondary grouping is enabled.
	PathCustom RenderPath = "custom"
	// PathClone renders by voice cloning from reference audio. Items are
	// grouped by speaker; each group shares one cached clone prompt.
	PathClone RenderPath = "clone"
	// PathOverlay renders through a hot-swappable adapter overlay on the
	// base model. Items are grouped by adapter; the adapter identity is
	// part of the executor variant name.
	PathOverlay RenderPath = "overlay"
	// PathDesign renders from a per-item voice description. Every item
	// carries a unique context, so the path executes item by item.
	PathDesign RenderPath = "design"
)

// BatchCapable reports whether the path supports native multi-item
// execution. Design voices carry a unique description per item and must
// run one at a time.
func (p RenderPath) BatchCapable() bool {
	return p != PathDesign
}

// StyleParams carries per-item rendering style.
type StyleParams struct {
	// Voice is the built-in voice name (custom path only).
	Voice string `json:"voice,omitempty"`
	// Instruct is the style instruction, e.g. "neutral" or an emotion cue.
	Instruct string `json:"instruct,omitempty"`
	// Seed pins the sampling seed; negative means random.
	Seed int64 `json:"seed,omitempty"`
}

// WorkItem is one schedulable text segment. Index is assigned by the
// caller, is unique within a submission, and is preserved through every
// regrouping so results can be reassembled afterwards.
type WorkItem struct {
	Index    int         `json:"index"`
	Text     string      `json:"text"`
	Path     RenderPath  `json:"path"`
	GroupKey string      `json:"group_key,omitempty"`
	Style    StyleParams `json:"style,omitempty"`
}

// Length returns the scheduling length of the item's text. Sub-batch
// grouping and the cumulative-length budget both work in these units.
func (w *WorkItem) Length() int {
	return len([]rune(w.Text))
}
