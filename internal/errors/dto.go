package errors

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail carries the user facing message. Details only ever hold
// reportable values such as the offending field or retry_after_seconds.
type ErrorDetail struct {
	Display   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func NewErrorResponse(display, requestID string, details map[string]any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Display:   display,
			RequestID: requestID,
			Details:   details,
		},
	}
}
