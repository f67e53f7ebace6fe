package types

// ErrorResponse is the Claude error envelope: {"type":"error","error":{...}}.
// Status carries the HTTP status to respond with and is not serialized.
type ErrorResponse struct {
	Type   string `json:"type"`
	Err    Error  `json:"error"`
	Status int    `json:"-"`
}

// Error is the Claude error detail.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(status int, errType, message string) *ErrorResponse {
	return &ErrorResponse{
		Type:   "error",
		Err:    Error{Type: errType, Message: message},
		Status: status,
	}
}

// Error implements the error interface, returning the underlying error message.
// This allows ErrorResponse to be used directly in error returns.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}
