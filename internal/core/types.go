package core

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further processing happens without a new start.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ImportJob is one tracked attempt to ingest a file, identified by the
// SHA-256 of its contents.
//
// ProcessedCount always equals SuccessfulCount + SkippedCount + FailedCount,
// and equals LastProcessedLine once a batch has been checkpointed.
type ImportJob struct {
	ID                uuid.UUID `json:"id"`
	FileName          string    `json:"fileName"`
	FileHash          string    `json:"fileHash"`
	FilePath          string    `json:"filePath"`
	Status            Status    `json:"status"`
	LastProcessedLine int64     `json:"lastProcessedLine"`
	ProcessedCount    int64     `json:"processedCount"`
	SuccessfulCount   int64     `json:"successfulCount"`
	SkippedCount      int64     `json:"skippedCount"`
	FailedCount       int64     `json:"failedCount"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewImportJob returns a PENDING job for the given file.
func NewImportJob(fileName, fileHash, filePath string) *ImportJob {
	return &ImportJob{
		ID:       uuid.New(),
		FileName: fileName,
		FileHash: fileHash,
		FilePath: filePath,
		Status:   StatusPending,
	}
}

// Progress is the counter and cursor portion of a job, the unit of a
// checkpoint.
type Progress struct {
	LastProcessedLine int64
	Processed         int64
	Succeeded         int64
	Skipped           int64
	Failed            int64
}

// Progress returns the job's current counters.
func (j *ImportJob) Progress() Progress {
	return Progress{
		LastProcessedLine: j.LastProcessedLine,
		Processed:         j.ProcessedCount,
		Succeeded:         j.SuccessfulCount,
		Skipped:           j.SkippedCount,
		Failed:            j.FailedCount,
	}
}

// SetProgress overwrites the job's counters with p.
func (j *ImportJob) SetProgress(p Progress) {
	j.LastProcessedLine = p.LastProcessedLine
	j.ProcessedCount = p.Processed
	j.SuccessfulCount = p.Succeeded
	j.SkippedCount = p.Skipped
	j.FailedCount = p.Failed
}

// Outcome classifies what happened to a single row.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Record advances the counters by one row with the given outcome.
func (p *Progress) Record(o Outcome) {
	switch o {
	case OutcomeSucceeded:
		p.Succeeded++
	case OutcomeSkipped:
		p.Skipped++
	default:
		p.Failed++
	}
	p.Processed++
	p.LastProcessedLine++
}

// Consistent reports whether the counter invariants hold.
func (p Progress) Consistent() bool {
	return p.Processed == p.Succeeded+p.Skipped+p.Failed && p.Processed == p.LastProcessedLine
}

// Talk is an imported record. Its natural key is (Title, Speaker, Date).
type Talk struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Speaker     string    `json:"speaker"`
	Date        time.Time `json:"date"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	Link        string    `json:"link"`
	ImportJobID uuid.UUID `json:"importJobId"`
}

// TalkKey is the natural key used for duplicate detection.
type TalkKey struct {
	Title   string
	Speaker string
	Date    time.Time
}

// Key returns t's natural key.
func (t Talk) Key() TalkKey {
	return TalkKey{Title: t.Title, Speaker: t.Speaker, Date: t.Date}
}

// ParsedRow holds the typed fields of one CSV data row.
type ParsedRow struct {
	Line    int64 // 1-based data row number, header excluded
	Title   string
	Speaker string
	Date    time.Time
	Views   int64
	Likes   int64
	Link    string
}

// Talk converts the row to a Talk owned by jobID.
func (r ParsedRow) Talk(jobID uuid.UUID) Talk {
	return Talk{
		ID:          uuid.New(),
		Title:       r.Title,
		Speaker:     r.Speaker,
		Date:        r.Date,
		Views:       r.Views,
		Likes:       r.Likes,
		Link:        r.Link,
		ImportJobID: jobID,
	}
}

// RowResult is either a parsed row or the error that prevented parsing it.
// Exactly one of Row and Err is set.
type RowResult struct {
	Row *ParsedRow
	Err *RowError
}

// HeaderIndex maps normalized column names to their position in a row.
type HeaderIndex map[string]int
