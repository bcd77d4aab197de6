package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FeedbackSource is the metadata source value marking records born from
// verified user feedback.
const FeedbackSource = "user_feedback"

// feedbackFormat composes a verified question/answer pair into a document.
const feedbackFormat = "Question: %s\nVerified Answer: %s"

// Learner writes verified question/answer pairs back into the knowledge
// store, closing the feedback loop: a learned answer is immediately visible
// to subsequent queries in the same process.
//
// No deduplication is performed. Learning the same pair twice produces two
// independent records, and both will show up as redundant sources in future
// retrievals. Repeated or contradictory feedback accumulates; there is no
// merge, overwrite or delete.
type Learner struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewLearner creates a feedback learner on top of the ingestion pipeline.
func NewLearner(pipeline *Pipeline, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{pipeline: pipeline, logger: logger}
}

// Learn stores a verified question/answer pair as new knowledge and returns
// a confirmation message. The synthesized document is tagged with
// source=user_feedback and goes through the regular ingestion pipeline, so
// an oversized pair is chunked like any other document.
func (l *Learner) Learn(ctx context.Context, query, answer string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: question must not be empty", ErrLearn)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: answer must not be empty", ErrLearn)
	}

	knowledge := fmt.Sprintf(feedbackFormat, query, answer)
	metadata := map[string]string{"source": FeedbackSource}

	chunks, err := l.pipeline.Ingest(ctx, knowledge, metadata)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLearn, err)
	}

	l.logger.Info("feedback learned", "chunks", chunks)
	return fmt.Sprintf("System updated! Stored %d chunk(s); I will remember this answer for next time.", chunks), nil
}
