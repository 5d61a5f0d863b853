package engine

import (
	"errors"
	"strings"

	"buildpass/internal/insight"
)

var (
	// ErrInvalidInput rejects a request that can never succeed as given.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoActiveContribution means the caller has no in_progress link on the chain.
	ErrNoActiveContribution = errors.New("no active contribution")
	// ErrNoCompletionData means a completed chain has no recorded completion to attribute.
	ErrNoCompletionData = errors.New("no completion data")
	// ErrTransient marks a lost race on shared state; the whole operation may be retried.
	ErrTransient = errors.New("transient conflict, retry")

	// ErrEvaluationUnavailable and ErrEvaluationContract surface Insight
	// Service failures without persisting anything.
	ErrEvaluationUnavailable = insight.ErrUnavailable
	ErrEvaluationContract    = insight.ErrContract
)

// isTransient recognizes sqlite write races: a unique-index violation from a
// concurrent insert, or the single-writer lock held by another transaction.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "UNIQUE") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
