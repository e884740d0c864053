package errors

import "fmt"

// ErrorCode represents a stack-note error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"            // 404
	ErrDuplicateURL       ErrorCode = "DUPLICATE_URL"        // 409
	ErrQueueFull          ErrorCode = "QUEUE_FULL"           // 429
	ErrModelOutputInvalid ErrorCode = "MODEL_OUTPUT_INVALID" // 502
	ErrInternal           ErrorCode = "INTERNAL"             // 500
)

// StackError represents a structured error with code, status, and details.
type StackError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *StackError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *StackError {
	return &StackError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind string, id any) *StackError {
	return &StackError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %v", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewDuplicateURL creates a 409 error for a URL that is already stored.
func NewDuplicateURL(url string) *StackError {
	return &StackError{
		Code:    ErrDuplicateURL,
		Status:  409,
		Message: fmt.Sprintf("activity with url %q already exists", url),
		Details: map[string]any{"url": url},
	}
}

// NewQueueFull creates a 429 error for a full intake queue.
func NewQueueFull() *StackError {
	return &StackError{
		Code:    ErrQueueFull,
		Status:  429,
		Message: "intake queue is full, try again later",
	}
}

// NewModelOutputInvalid creates a 502 error for unparsable model output.
func NewModelOutputInvalid(detail string) *StackError {
	return &StackError{
		Code:    ErrModelOutputInvalid,
		Status:  502,
		Message: fmt.Sprintf("model returned unparsable output: %s", detail),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StackError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StackError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a StackError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := err.(*StackError); ok {
		return sErr.Code == code
	}
	return false
}
