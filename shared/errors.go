package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur
type ErrorCategory string

const (
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryImport        ErrorCategory = "import"
	ErrorCategoryLifecycle     ErrorCategory = "lifecycle"
	ErrorCategoryStorage       ErrorCategory = "storage"
)

// Sentinel errors for the draw lifecycle and import validation. Handlers map
// these to distinct responses so callers can tell "no more participants"
// apart from "draw is not active".
var (
	ErrDrawNotActive   = errors.New("draw is not active")
	ErrDrawNotFound    = errors.New("draw not found")
	ErrImportNoHeaders = errors.New("imported file contains no header row")
	ErrImportNoRows    = errors.New("imported file contains no data rows")
	ErrImportExpired   = errors.New("staged import not found or expired")
)

// FieldMismatchError reports that a re-import's headers differ from the
// draw's current available fields. It is a warning, not a failure: the
// replacement proceeds only once the caller confirms explicitly.
type FieldMismatchError struct {
	MissingFields []string `json:"missing_fields"`
	AddedFields   []string `json:"added_fields"`
}

func (e *FieldMismatchError) Error() string {
	var parts []string
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.MissingFields, ", "))
	}
	if len(e.AddedFields) > 0 {
		parts = append(parts, "new fields: "+strings.Join(e.AddedFields, ", "))
	}
	return "field mismatch requires confirmation: " + strings.Join(parts, "; ")
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505). Two concurrent draw calls can both pick the
// same participant; the unique (draw_id, participant_id) constraint makes
// the second insert fail with this code, and the loser recovers it as
// "no winner drawn this call".
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// ServiceError represents a standardized error with additional context
type ServiceError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// WithDetails adds additional details to the error
func (e *ServiceError) WithDetails(details interface{}) *ServiceError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *ServiceError) IsRetryable() bool {
	return e.Retryable
}

// LogError logs the error with structured fields
func (e *ServiceError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Service error occurred")
}
