package process

import (
	"fmt"
	"strings"

	"toastem/internal/catalog"
	"toastem/internal/models"
)

// ConfigurationError is a catalog defect surfaced through the orchestrator
type ConfigurationError = catalog.ConfigurationError

// ValidationError carries every user-correctable problem found in one
// submission. It is never returned with an empty list.
type ValidationError struct {
	Stage      string
	Violations []models.Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Error())
	}
	return fmt.Sprintf("%s: %d validation error(s): %s", e.Stage, len(e.Violations), strings.Join(parts, "; "))
}

// Sequence error codes
const (
	SeqBatchNotActive    = "batch_not_active"
	SeqBatchTerminal     = "batch_terminal"
	SeqStageOpen         = "stage_open"
	SeqUpstreamMissing   = "upstream_missing"
	SeqAlreadyRegistered = "already_registered"
	SeqNotRecordable     = "not_recordable"
	SeqNotFinished       = "not_finished"
	SeqNotInProgress     = "not_in_progress"
	SeqNotPending        = "not_pending"
	SeqDownstreamExists  = "downstream_exists"
	SeqSuperseded        = "superseded"
	SeqNotMultiRecord    = "not_multi_record"
)

// SequenceError rejects an operation that is out of order with respect to
// the pipeline. Operations failing with it have no side effects.
type SequenceError struct {
	Stage  string
	Code   string
	Reason string
}

func (e *SequenceError) Error() string {
	if e.Stage == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Reason)
}

func sequenceErr(stage, code, format string, args ...any) *SequenceError {
	return &SequenceError{Stage: stage, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a failure reported by the store. The wrapped error
// stays reachable through errors.Is / errors.As.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
