package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
)

// ProblemDetails represents RFC 7807 compliant error response
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents field-specific validation errors
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs
const (
	TypeValidationError    = "https://amlwatch.dev/errors/validation-error"
	TypeNotFound           = "https://amlwatch.dev/errors/not-found"
	TypeInvalidState       = "https://amlwatch.dev/errors/invalid-state"
	TypeServiceUnavailable = "https://amlwatch.dev/errors/service-unavailable"
	TypeInternalError      = "https://amlwatch.dev/errors/internal-error"
)

// Problem titles
const (
	TitleValidationError    = "Validation Error"
	TitleNotFound           = "Not Found"
	TitleInvalidState       = "Invalid State Transition"
	TitleServiceUnavailable = "Service Unavailable"
	TitleInternalError      = "Internal Server Error"
)

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// AddValidationError appends a field error
func (p *ProblemDetails) AddValidationError(field, message, code string) *ProblemDetails {
	p.Errors = append(p.Errors, ValidationError{Field: field, Message: message, Code: code})
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

func NewValidationError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

func NewNotFoundError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

func NewInvalidStateError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInvalidState, TitleInvalidState, http.StatusConflict, detail, instance)
}

func NewServiceUnavailableError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeServiceUnavailable, TitleServiceUnavailable, http.StatusServiceUnavailable, detail, instance)
}

func NewInternalError(detail, instance string) *ProblemDetails {
	return NewProblemDetails(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// FromError maps engine error kinds onto problem details. Transient storage
// failures become 503. Unknown errors hide their detail.
func FromError(err error, instance string) *ProblemDetails {
	var pd *ProblemDetails
	switch {
	case stderrors.As(err, &pd):
		return pd
	case stderrors.Is(err, aml.ErrNotFound):
		return NewNotFoundError(err.Error(), instance)
	case stderrors.Is(err, aml.ErrInvalidState):
		return NewInvalidStateError(err.Error(), instance)
	case stderrors.Is(err, aml.ErrInvalidArgument):
		return NewValidationError(err.Error(), instance)
	case stderrors.Is(err, aml.ErrTransientIO):
		return NewServiceUnavailableError("a backing store is temporarily unavailable", instance)
	}
	return NewInternalError("an unexpected error occurred", instance)
}
