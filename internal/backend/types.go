package backend

// submitRequest is the task payload POSTed to the backend.
type submitRequest struct {
	TaskID string `json:"taskId"`
	Prompt string `json:"prompt"`
	Owner  string `json:"owner,omitempty"`
}

// SubmitResponse is the backend's submission acknowledgment.
type SubmitResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// StatusResponse is one poll result. Progress is nil when the backend did
// not report one.
type StatusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

// ResultFile is one file of a completed implementation.
type ResultFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ResultResponse is the final result of a completed task.
type ResultResponse struct {
	Implementation string       `json:"implementation"`
	Files          []ResultFile `json:"files,omitempty"`
}
