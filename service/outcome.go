package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/biotools/dbcache"
	"github.com/richinex/biotools/parse"
	"github.com/richinex/biotools/sequence"
	"github.com/richinex/biotools/tools"
)

// Status is the top-level result of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorKind classifies a failed operation for adapters choosing status codes.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindEnvironment           ErrorKind = "environment"
	KindTimeout               ErrorKind = "timeout"
	KindExecution             ErrorKind = "execution"
	KindDatabaseNotConfigured ErrorKind = "database_not_configured"
	KindDatabaseUnavailable   ErrorKind = "database_unavailable"
	KindParse                 ErrorKind = "parse"
	KindInternal              ErrorKind = "internal"
)

// OperationOutcome is the uniform result handed to every adapter.
// Payload is a *SearchResult, model.PredictionResult, model.DatabaseHandle
// or []model.DatabaseHandle depending on the operation.
type OperationOutcome struct {
	Status         Status
	Payload        interface{}
	Message        string
	ProcessingTime time.Duration
	ErrorKind      ErrorKind
	RequestID      string
	// Err is the underlying error for in-process callers. Never serialized.
	Err error
}

// OK reports whether the operation succeeded.
func (o OperationOutcome) OK() bool {
	return o.Status == StatusSuccess
}

// MarshalJSON renders processing time in seconds.
func (o OperationOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status         Status      `json:"status"`
		Payload        interface{} `json:"payload,omitempty"`
		Message        string      `json:"message"`
		ProcessingTime float64     `json:"processing_time"`
		ErrorKind      ErrorKind   `json:"error_kind,omitempty"`
		RequestID      string      `json:"request_id,omitempty"`
	}{
		Status:         o.Status,
		Payload:        o.Payload,
		Message:        o.Message,
		ProcessingTime: o.ProcessingTime.Seconds(),
		ErrorKind:      o.ErrorKind,
		RequestID:      o.RequestID,
	})
}

// RequestError rejects request parameters other than the sequence itself.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// parseFailureMessage is shown instead of the parser's own message, which
// may quote raw tool output.
const parseFailureMessage = "the tool finished but its output could not be interpreted; the raw output was logged for diagnosis"

// classify maps an error onto its kind and a message safe to show callers.
func classify(err error) (ErrorKind, string) {
	var (
		validationErr  *sequence.ValidationError
		requestErr     *RequestError
		nameErr        *dbcache.NameError
		notConfigured  *dbcache.DatabaseNotConfiguredError
		unavailable    *dbcache.DatabaseUnavailableError
		timeoutErr     *tools.TimeoutError
		environmentErr *tools.EnvironmentError
		executionErr   *tools.ExecutionError
		parseErr       *parse.ParseError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &requestErr), errors.As(err, &nameErr):
		return KindValidation, err.Error()
	case errors.As(err, &notConfigured):
		return KindDatabaseNotConfigured, err.Error()
	case errors.As(err, &unavailable):
		return KindDatabaseUnavailable, err.Error()
	case errors.As(err, &timeoutErr):
		return KindTimeout, err.Error()
	case errors.As(err, &environmentErr):
		return KindEnvironment, err.Error()
	case errors.As(err, &executionErr):
		return KindExecution, err.Error()
	case errors.As(err, &parseErr):
		return KindParse, parseFailureMessage
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, "request deadline exceeded"
	case errors.Is(err, context.Canceled):
		return KindInternal, "request cancelled"
	default:
		return KindInternal, err.Error()
	}
}
