package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinels matched with errors.Is across packages
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrTimeout              = errors.New("operation timed out")
	ErrNetworkFailure       = errors.New("network failure")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// WrapError prefixes err with message. A nil err stays nil.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf is WrapError with a format string
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func NewError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// ValidationError is a rejected value; it matches ErrInvalidInput
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConfigurationError reports a bad setting; Site is empty for global settings.
// It matches ErrInvalidConfiguration.
type ConfigurationError struct {
	Site   string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	var where []string
	if e.Site != "" {
		where = append(where, fmt.Sprintf("site '%s'", e.Site))
	}
	if e.Field != "" {
		where = append(where, fmt.Sprintf("field '%s'", e.Field))
	}
	if len(where) == 0 {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error in %s: %s", strings.Join(where, ", "), e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

func NewConfigurationError(site, field, reason string) *ConfigurationError {
	return &ConfigurationError{Site: site, Field: field, Reason: reason}
}

// HTTPError is a non-2xx response. It matches ErrNotFound for 404 and 410,
// ErrTimeout for 408 and 504, and ErrNetworkFailure otherwise.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("HTTP %d error for '%s': %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d error: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	}
	return ErrNetworkFailure
}

func NewHTTPErrorWithURL(statusCode int, message, url string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message, URL: url}
}

// multiError keeps every combined error reachable through errors.Is and errors.As
type multiError []error

func (m multiError) Error() string {
	messages := make([]string, len(m))
	for i, err := range m {
		messages[i] = err.Error()
	}
	return fmt.Sprintf("multiple errors occurred: [%s]", strings.Join(messages, "; "))
}

func (m multiError) Unwrap() []error {
	return m
}

// CombineErrors drops nils. It returns nil for none and the error itself for one.
func CombineErrors(errs []error) error {
	var kept multiError
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}

	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return kept
}

// ErrorCollector accumulates errors from steps that should all run
type ErrorCollector struct {
	errors []error
}

func (ec *ErrorCollector) Add(err error) {
	if err != nil {
		ec.errors = append(ec.errors, err)
	}
}

func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

func (ec *ErrorCollector) Errors() []error {
	return ec.errors
}

// Error combines the collected errors, see CombineErrors
func (ec *ErrorCollector) Error() error {
	return CombineErrors(ec.errors)
}
