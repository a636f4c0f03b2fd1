package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned when a CSV has no header row.
	ErrEmptyFile = errors.New("empty file: no header row found")

	// ErrInvalidHeader wraps header validation failures.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("import job not found")

	// ErrVersionConflict is returned when a job was modified since it was read.
	ErrVersionConflict = errors.New("import job version conflict")

	// ErrQueueFull is returned when the dispatcher cannot accept more jobs.
	ErrQueueFull = errors.New("import queue is full")

	// ErrDispatcherClosed is returned when submitting to a stopped dispatcher.
	ErrDispatcherClosed = errors.New("import dispatcher is closed")

	// ErrNotCSV is returned for uploads that are not CSV files.
	ErrNotCSV = errors.New("invalid csv: file must have a .csv extension or text/csv content type")

	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")
)

// MissingColumnsError lists required header columns absent from a file.
type MissingColumnsError struct {
	Columns []string // sorted
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required column(s): %v", e.Columns)
}

func (e *MissingColumnsError) Unwrap() error { return ErrInvalidHeader }

// RowError describes why a single data row could not be imported.
type RowError struct {
	Line   int64  // 1-based data row number
	Field  string // column name, empty for structural problems
	Reason string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Line, e.Field, e.Reason)
}
