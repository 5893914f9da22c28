package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalfonso89/currency-rates-service/internal/models"
	"github.com/dalfonso89/currency-rates-service/internal/storage"
)

// NotFoundMessage is shown to clients when the provider has no data
const NotFoundMessage = "No results were found for your request"

// ErrorType classifies failures for the HTTP layer
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeNotFound
	ErrorTypeMalformedDate
	ErrorTypeStorage
	ErrorTypeProviderFailed
	ErrorTypeContextCancelled
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeMalformedDate:
		return "malformed_date"
	case ErrorTypeStorage:
		return "storage"
	case ErrorTypeProviderFailed:
		return "provider_failed"
	case ErrorTypeContextCancelled:
		return "context_cancelled"
	default:
		return "unknown"
	}
}

// ErrProviderNotFound is returned by providers that have no rates for the request
var ErrProviderNotFound = errors.New("provider has no rates for the requested date and currency")

// ServiceError represents a service-specific error with type information
type ServiceError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// classifyError maps an error from the pipeline to its ErrorType
func classifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var serviceError *ServiceError
	var storageError *storage.StorageError
	var malformedDate *models.MalformedDateError

	switch {
	case errors.As(err, &serviceError):
		return serviceError.Type
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeContextCancelled
	case errors.As(err, &storageError):
		return ErrorTypeStorage
	case errors.As(err, &malformedDate):
		return ErrorTypeMalformedDate
	case errors.Is(err, ErrProviderNotFound):
		return ErrorTypeNotFound
	default:
		return ErrorTypeUnknown
	}
}

// ErrorTypeOf returns the ErrorType carried by err
func ErrorTypeOf(err error) ErrorType {
	return classifyError(err)
}

// IsNotFound reports whether err means the provider had no data
func IsNotFound(err error) bool {
	return classifyError(err) == ErrorTypeNotFound
}
