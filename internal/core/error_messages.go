package core

// # Error Codes Reference
//
// User-facing messages for job and record errors, each with a code that
// merchants can quote to support.
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Store not connected: No API credentials for the store
//	         Patterns: "no credentials for store"
//	JOB002 - Source file missing: The import file could not be read
//	         Patterns: "source file", "file not found"
//	JOB003 - Job not found
//	         Patterns: "job not found"
//	JOB004 - Busy: Another run is processing jobs
//	         Patterns: "already in progress"
//	JOB005 - Invalid request: A job field is missing or malformed
//	         Patterns: "invalid job request"
//	JOB006 - No default locale: The channel's default locale is unknown
//	         Patterns: "no default locale"
//	JOB007 - Same locale: The reference locale is the locale being translated
//	         Patterns: "default locale equals target locale"
//
// # CSV Errors (CSV001-CSV099)
//
//	CSV001 - Missing id column
//	         Patterns: "missing required column"
//	CSV002 - Invalid CSV
//	         Patterns: "invalid csv"
//	CSV003 - Empty file
//	         Patterns: "empty file"
//	CSV004 - Invalid JSON cell
//	         Patterns: "invalid json"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field is empty
//	         Patterns: "required field"
//	VAL002 - Unknown modifier type
//	         Patterns: "unknown modifier type"
//	VAL003 - Invalid product id
//	         Patterns: "invalid number"
//
// # Upstream Errors (API001-API099)
//
//	API001 - Rate limited by the store API
//	         Patterns: "rate limit"
//	API002 - Product not found upstream
//	         Patterns: "not found" after the more specific patterns above
//	API003 - Store API rejected the request
//	         Patterns: "upstream api error"
//
// # Infrastructure Errors (SYS001-SYS099)
//
//	SYS001 - Connection refused
//	SYS002 - Timeout ("context deadline exceeded", "timeout")
//	SYS003 - Cancelled ("context canceled")
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check application logs for the
// technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Job errors
	{"no credentials for store", UserMessage{"The store is not connected", "Reinstall the app for this store and try again", "JOB001"}},
	{"source file", UserMessage{"The import file could not be read", "Upload the file again", "JOB002"}},
	{"file not found", UserMessage{"The import file could not be read", "Upload the file again", "JOB002"}},
	{"job not found", UserMessage{"Job not found", "Check the job id", "JOB003"}},
	{"already in progress", UserMessage{"Jobs are already being processed", "Please wait a moment and try again", "JOB004"}},
	{"invalid job request", UserMessage{"The job request is incomplete", "Check the channel and locale and try again", "JOB005"}},
	{"no default locale", UserMessage{"The channel has no default language", "Set a default language for the channel", "JOB006"}},
	{"default locale equals target locale", UserMessage{"The job translates into the channel's default language", "Pick a different target language or pass another default language", "JOB007"}},

	// CSV errors
	{"missing required column", UserMessage{"The file has no productId column", "Start from an exported file and keep its header row", "CSV001"}},
	{"invalid csv", UserMessage{"The file is not a valid CSV", "Save the file as comma-separated UTF-8 text", "CSV002"}},
	{"empty file", UserMessage{"The file is empty", "Upload a file with a header row and data rows", "CSV003"}},
	{"invalid json", UserMessage{"An options, modifiers or custom fields cell is not valid JSON", "Restore the cell from the exported file and edit only the labels", "CSV004"}},

	// Validation errors
	{"required field", UserMessage{"A required field is empty", "Fill in the translated product name", "VAL001"}},
	{"unknown modifier type", UserMessage{"A modifier has an unknown type", "Restore the modifier type from the exported file", "VAL002"}},
	{"invalid number", UserMessage{"A product id is not a number", "Do not edit the productId column", "VAL003"}},

	// Upstream errors
	{"rate limit", UserMessage{"The store API is throttling requests", "Try again in a few minutes", "API001"}},
	{"not found", UserMessage{"The product no longer exists in the store", "Remove the row or export a fresh file", "API002"}},
	{"upstream api error", UserMessage{"The store API rejected the change", "Check the value and try again", "API003"}},

	// Infrastructure
	{"connection refused", UserMessage{"A backing service is unavailable", "Please try again in a few moments", "SYS001"}},
	{"context deadline exceeded", UserMessage{"The operation timed out", "Try a smaller file or try again later", "SYS002"}},
	{"timeout", UserMessage{"The operation timed out", "Try a smaller file or try again later", "SYS002"}},
	{"context canceled", UserMessage{"The operation was cancelled", "Please try again", "SYS003"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. It returns
// the first matching pattern, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	return MapMessage(err.Error())
}

// MapMessage is MapError for an error already stored as text, such as a
// job's error column or a TranslationError message.
func MapMessage(msg string) UserMessage {
	if msg == "" {
		return UserMessage{}
	}
	lower := strings.ToLower(msg)
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a specific pattern rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err; it returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
