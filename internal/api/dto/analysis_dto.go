package dto

type SubmitAnalysisRequest struct {
	Title          string `json:"title" binding:"required"`
	ScreenplayText string `json:"screenplay_text" binding:"required"`
	Genre          string `json:"genre"`
}

type ListAnalysesRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListAnalysesResponse struct {
	Analyses   []AnalysisDTO `json:"analyses"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type AnalysisDTO struct {
	AnalysisID   string  `json:"analysis_id"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	Visibility   string  `json:"visibility"`
	ShareToken   string  `json:"share_token,omitempty"`
	SharedAt     *string `json:"shared_at,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type SetVisibilityRequest struct {
	Public *bool `json:"public" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
