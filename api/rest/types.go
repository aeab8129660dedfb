package rest

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// RenderItem is one text segment of a render request. Speakers refer to
// the loaded voices configuration.
type RenderItem struct {
	Text     string `json:"text"`
	Speaker  string `json:"speaker"`
	Instruct string `json:"instruct,omitempty"`
}

// RenderSubmitRequest represents POST /api/v1/render.
type RenderSubmitRequest struct {
	Items []RenderItem `json:"items"`
}

// ItemFailureResponse reports one failed item.
type ItemFailureResponse struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// RenderSubmitResponse reports per-item outcomes of a submission.
type RenderSubmitResponse struct {
	SubmissionID string                `json:"submission_id"`
	Total        int                   `json:"total"`
	Completed    []int                 `json:"completed"`
	Failed       []ItemFailureResponse `json:"failed,omitempty"`
	Outputs      map[string]string     `json:"outputs,omitempty"`
	ElapsedMs    int64                 `json:"elapsed_ms"`
}

// StatusResponse reports the progress of the current or last submission.
type StatusResponse struct {
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Variant   string `json:"variant"`
	State     string `json:"state"`
}

// ResetResponse acknowledges a tear-down request.
type ResetResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
