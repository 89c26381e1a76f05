package parser

import (
	"errors"
	"fmt"

	"github.com/aleister1102/marketplace-monitor/internal/common"
)

// ErrRegistrySealed is returned by Register once the bootstrap phase is over
var ErrRegistrySealed = errors.New("parser registry is sealed")

// ErrPageTruncated is wrapped in a TransportError when the body exceeded the size limit
var ErrPageTruncated = errors.New("page truncated at the response size limit")

// TransportError reports a fetch that never produced a usable page:
// DNS failure, refused connection, timeout, a non-2xx status or a truncated body.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error fetching '%s' (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error fetching '%s': %v", e.URL, e.Err)
}

// Unwrap exposes both the cause and common.ErrNetworkFailure
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrNetworkFailure}
	}
	return []error{e.Err, common.ErrNetworkFailure}
}

// NewTransportError creates a TransportError
func NewTransportError(url string, statusCode int, err error) *TransportError {
	return &TransportError{URL: url, StatusCode: statusCode, Err: err}
}

// DuplicateParserError is returned when an identifier is registered twice without overwrite
type DuplicateParserError struct {
	ID string
}

func (e *DuplicateParserError) Error() string {
	return fmt.Sprintf("parser '%s' is already registered", e.ID)
}

// UnknownParserError is returned when no parser is registered under an identifier
type UnknownParserError struct {
	ID string
}

func (e *UnknownParserError) Error() string {
	return fmt.Sprintf("unknown parser '%s'", e.ID)
}

func (e *UnknownParserError) Unwrap() error {
	return common.ErrNotFound
}
