package core

// error_messages.go maps technical errors to messages an operator can act
// on. Each message carries a code to quote in support requests:
//
//	DB001-DB004     store constraints and connectivity
//	VAL001-VAL004   header and cell validation
//	FILE001-FILE004 uploaded file problems
//	JOB001-JOB004   job lookup, concurrency and queueing
//	UPL001-UPL003   upload throttling, cancellation and timeouts
//	ERR000          anything else; check the logs for the original error
//
// Known sentinel errors are matched with errors.Is first. Other errors fall
// back to case-insensitive substring patterns, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var (
	msgDuplicate      = UserMessage{"A record with this key already exists", "Check the file for duplicate rows", "DB001"}
	msgDBUnavailable  = UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB002"}
	msgDBReset        = UserMessage{"Database connection was interrupted", "Start the import again; it resumes from its last checkpoint", "DB003"}
	msgDeadlock       = UserMessage{"Database was busy with conflicting operations", "Please try again", "DB004"}
	msgBadDate        = UserMessage{"Invalid date format detected", "Use a full month name and year, e.g. June 2010", "VAL001"}
	msgBadNumber      = UserMessage{"Invalid number format detected", "Use whole non-negative numbers; commas are allowed", "VAL002"}
	msgRequired       = UserMessage{"Required field is empty", "Ensure every row has title, author, date, views, likes and link", "VAL003"}
	msgMissingColumns = UserMessage{"Required column is missing from CSV", "The header must contain title, author, date, views, likes and link", "VAL004"}
	msgTooLarge       = UserMessage{"File exceeds the maximum upload size", "Split the file into smaller chunks", "FILE001"}
	msgNotCSV         = UserMessage{"File is not a CSV", "Upload a comma-separated .csv file", "FILE002"}
	msgNoFile         = UserMessage{"No file was provided", "Attach the CSV in the 'file' form field", "FILE003"}
	msgEmptyFile      = UserMessage{"The file is empty", "Upload a CSV file with a header row", "FILE004"}
	msgJobNotFound    = UserMessage{"Import job not found", "Check the job ID", "JOB001"}
	msgConflict       = UserMessage{"Import job was modified by another process", "Reload the job and try again", "JOB002"}
	msgQueueFull      = UserMessage{"Import queue is full", "The job is saved; start it again shortly", "JOB003"}
	msgShuttingDown   = UserMessage{"Importer is shutting down", "The job will resume after restart", "JOB004"}
	msgBusy           = UserMessage{"System is busy processing other uploads", "Please wait a moment and try again", "UPL001"}
	msgCancelled      = UserMessage{"Request was cancelled", "Please try again", "UPL002"}
	msgTimeout        = UserMessage{"Request timed out", "Try again or upload a smaller file", "UPL003"}
)

// sentinelMessages is checked with errors.Is before any pattern.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{ErrEmptyFile, msgEmptyFile},
	{ErrInvalidHeader, msgMissingColumns},
	{ErrFileTooLarge, msgTooLarge},
	{ErrNotCSV, msgNotCSV},
	{ErrJobNotFound, msgJobNotFound},
	{ErrVersionConflict, msgConflict},
	{ErrQueueFull, msgQueueFull},
	{ErrDispatcherClosed, msgShuttingDown},
	{ErrTooManyUploads, msgBusy},
}

// errorPatterns maps lowercase substrings to messages. Specific patterns
// come before general ones.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"duplicate key", msgDuplicate},
	{"violates unique", msgDuplicate},
	{"connection refused", msgDBUnavailable},
	{"connection reset", msgDBReset},
	{"deadlock", msgDeadlock},
	{"invalid date", msgBadDate},
	{"invalid number", msgBadNumber},
	{"required field", msgRequired},
	{"missing required column", msgMissingColumns},
	{"file too large", msgTooLarge},
	{"request body too large", msgTooLarge},
	{"invalid csv", msgNotCSV},
	{"no file provided", msgNoFile},
	{"empty file", msgEmptyFile},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
	{"timeout", msgTimeout},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the zero UserMessage for a nil error and ERR000 when nothing
// matches.
//
// Example:
//
//	msg := MapError(fmt.Errorf("load job: %w", ErrJobNotFound))
//	// msg.Code == "JOB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
