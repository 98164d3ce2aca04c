// Package kernelerr defines the error kinds the autonomy kernel surfaces as
// typed failures, never as a silent success path.
package kernelerr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnapprovedExecution is returned when the executor is invoked with a
// decision whose verdict is not APPROVED. Fatal to the call, never retried.
var ErrUnapprovedExecution = errors.New("unapproved_execution")

// ErrUnregisteredActionType is a governance rejection fed back into the CGA
// loop as an accumulated rejection reason.
var ErrUnregisteredActionType = errors.New("unregistered_action_type")

// ErrRiskExceedsAuthority ends the CGA loop; the decision escalates.
var ErrRiskExceedsAuthority = errors.New("risk_exceeds_system_authority")

// ErrUnresolvableIntentConflict ends the CGA loop; the decision escalates.
var ErrUnresolvableIntentConflict = errors.New("unresolvable_intent_conflict")

// ErrInvalidCron is caught at the temporal-authority boundary and converted
// into "constraint inactive"; it must never propagate past that point.
var ErrInvalidCron = errors.New("invalid_cron")

// ConstraintViolationError identifies a governance rejection by the names of
// the hard constraints that were violated.
type ConstraintViolationError struct {
	Constraints []string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint_violation: %s", strings.Join(e.Constraints, "|"))
}

// NoExecutorRegisteredError is a per-action failure within an otherwise legal
// proposal; it is aggregated into ExecutionResult.ActionsFailed rather than
// failing the whole dispatch.
type NoExecutorRegisteredError struct {
	ActionType string
}

func (e *NoExecutorRegisteredError) Error() string {
	return fmt.Sprintf("no_executor_registered: %s", e.ActionType)
}

// IntegrityFailureError surfaces only on demand from ledger chain
// verification, never during normal operation.
type IntegrityFailureError struct {
	RecordID string
	Detail   string
}

func (e *IntegrityFailureError) Error() string {
	return fmt.Sprintf("integrity_failure: record %s: %s", e.RecordID, e.Detail)
}
