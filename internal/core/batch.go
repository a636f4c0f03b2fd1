package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// BatchWriter validates, deduplicates and stores rows one at a time, in
// order, recording each outcome in a Progress.
type BatchWriter struct {
	talks     TalkStore
	validator *TalkValidator
}

// NewBatchWriter returns a writer storing into talks.
func NewBatchWriter(talks TalkStore, validator *TalkValidator) *BatchWriter {
	if validator == nil {
		validator = NewTalkValidator(nil)
	}
	return &BatchWriter{talks: talks, validator: validator}
}

// WriteBatch processes rows for jobID, updating p in place. Row-level
// problems are counted as failed; a store error stops the batch and is
// returned, leaving p with the rows handled before it.
func (w *BatchWriter) WriteBatch(ctx context.Context, jobID uuid.UUID, rows []RowResult, p *Progress, logger *slog.Logger) error {
	for _, res := range rows {
		outcome, err := w.writeRow(ctx, jobID, res, logger)
		if err != nil {
			return err
		}
		p.Record(outcome)
	}
	return nil
}

func (w *BatchWriter) writeRow(ctx context.Context, jobID uuid.UUID, res RowResult, logger *slog.Logger) (Outcome, error) {
	if res.Err != nil || res.Row == nil {
		if res.Err != nil {
			logger.Debug("row rejected", "line", res.Err.Line, "reason", res.Err.Error())
		}
		return OutcomeFailed, nil
	}

	talk := res.Row.Talk(jobID)
	if err := w.validator.Validate(talk); err != nil {
		logger.Debug("row failed validation", "line", res.Row.Line, "reason", err.Error())
		return OutcomeFailed, nil
	}

	exists, err := w.talks.Exists(ctx, talk.Key())
	if err != nil {
		return OutcomeFailed, fmt.Errorf("row %d: check duplicate: %w", res.Row.Line, err)
	}
	if exists {
		return OutcomeSkipped, nil
	}

	inserted, err := w.talks.Insert(ctx, talk)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("row %d: insert talk: %w", res.Row.Line, err)
	}
	if !inserted {
		// lost a race with another job writing the same talk
		return OutcomeSkipped, nil
	}
	return OutcomeSucceeded, nil
}
