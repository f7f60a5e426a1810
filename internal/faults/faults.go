// Package faults defines the error types shared across the bulk
// provisioning pipeline. Validation failures, business-rule failures and
// vendor API faults each have a distinct type so callers can translate
// them into user-facing results without string matching.
package faults

import (
	"errors"
	"fmt"
)

// ErrRowNotFound is returned by row stores when no row exists for the
// requested job/type/row combination (including TTL expiry).
var ErrRowNotFound = errors.New("stored row not found")

// GenericUserMessage is shown for infrastructure failures whose detail
// belongs in the server logs, not the browser.
const GenericUserMessage = "Operation failed. Refresh the page and try again."

// ConversionError reports that a single workbook cell could not be mapped
// to a typed field. It always carries exactly one field-scoped message.
type ConversionError struct {
	Message string
}

func (e *ConversionError) Error() string {
	return e.Message
}

// NewConversionError builds a ConversionError with a formatted message.
func NewConversionError(format string, args ...any) *ConversionError {
	return &ConversionError{Message: fmt.Sprintf(format, args...)}
}

// BulkOpFailed reports a business-rule or precondition failure during an
// operation run. The message is safe to show to the end user. These are
// never retried automatically.
type BulkOpFailed struct {
	Message string
}

func (e *BulkOpFailed) Error() string {
	return e.Message
}

// NewBulkOpFailed builds a BulkOpFailed with a formatted message.
func NewBulkOpFailed(format string, args ...any) *BulkOpFailed {
	return &BulkOpFailed{Message: fmt.Sprintf(format, args...)}
}

// WorkbookError reports a sheet-level problem with an uploaded workbook,
// such as a duplicate or blank column header.
type WorkbookError struct {
	Message string
}

func (e *WorkbookError) Error() string {
	return e.Message
}

// NewWorkbookError builds a WorkbookError with a formatted message.
func NewWorkbookError(format string, args ...any) *WorkbookError {
	return &WorkbookError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage extracts a message suitable for display to the end user.
// Known error types carry their own message; anything else collapses to
// the generic retry message so internal details never reach the browser.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var conv *ConversionError
	if errors.As(err, &conv) {
		return conv.Message
	}
	var bulk *BulkOpFailed
	if errors.As(err, &bulk) {
		return bulk.Message
	}
	var wb *WorkbookError
	if errors.As(err, &wb) {
		return wb.Message
	}
	if errors.Is(err, ErrRowNotFound) {
		return "Row data not found. Please re-upload the workbook."
	}

	return GenericUserMessage
}
