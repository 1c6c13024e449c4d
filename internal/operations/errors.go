package operations

import (
	"errors"
	"fmt"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
)

type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindInvalidTransition  Kind = "invalid_transition"
	KindAllocationConflict Kind = "allocation_conflict"
	KindPreconditionFailed Kind = "precondition_failed"
	// KindPartialBatch means a batch was rejected because some items could
	// not be applied. Batches run in one transaction, so nothing was applied;
	// Error.Items carries the per-item report.
	KindPartialBatch       Kind = "partial_batch_failure"
	KindNotFound           Kind = "not_found"
	KindServer             Kind = "server_error"
)

const (
	ErrInvalidSellerID    = "invalid_seller_id"
	ErrInvalidRequestID   = "invalid_request_id"
	ErrInvalidCycleID     = "invalid_cycle_id"
	ErrInvalidCodeID      = "invalid_code_id"
	ErrInvalidPickupID    = "invalid_pickup_id"
	ErrMissingName        = "missing_name"
	ErrInvalidPrefix      = "invalid_prefix"
	ErrMissingPrefix      = "missing_prefix"
	ErrPrefixTaken        = "prefix_taken"
	ErrPrefixAlreadySet   = "prefix_already_set"
	ErrMissingActor       = "missing_actor"
	ErrEmptyQuantities    = "empty_quantities"
	ErrInvalidQuantity    = "invalid_quantity"
	ErrUnknownMatType     = "unknown_mat_type"
	ErrInvalidCount       = "invalid_count"
	ErrMissingCode        = "missing_code"
	ErrMissingCycleIDs    = "missing_cycle_ids"
	ErrInvalidStatus      = "invalid_status"
	ErrMissingSalesperson = "missing_salesperson"
	ErrMissingMatType     = "missing_mat_type"
	ErrDuplicateCycleID   = "duplicate_cycle_id"
	ErrSellerNotFound     = "seller_not_found"
	ErrRequestNotFound    = "request_not_found"
	ErrCodeNotFound       = "code_not_found"
	ErrCycleNotFound      = "cycle_not_found"
	ErrPickupNotFound     = "pickup_not_found"
	ErrRequestNotPending  = "request_not_pending"
	ErrCycleAlreadyActive = "cycle_already_active"
	ErrCodeNotIssuable    = "code_not_issuable"
	ErrWrongState         = "wrong_state"
	ErrNotEligible        = "not_eligible_for_pickup"
	ErrCodeNotOwned       = "code_not_owned"
	ErrCodeInUse          = "code_in_use"
	ErrAllocationConflict = "allocation_conflict"
	ErrPickupBatchFailed  = "pickup_batch_failed"
	ErrServerError        = "server_error"
)

// ItemResult is the outcome of one cycle inside a batch operation.
type ItemResult struct {
	CycleID string `json:"cycleId"`
	Code    string `json:"code,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Items   []ItemResult
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

func validation(code string) *Error {
	return newError(KindValidation, code)
}

func invalidTransition(code, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Code: code, Message: fmt.Sprintf(format, args...)}
}

func serverError(err error) *Error {
	return &Error{Kind: KindServer, Code: ErrServerError, Err: err}
}

// storeError translates a store failure, using notFound for missing rows.
func storeError(err error, notFound string) error {
	if err == nil {
		return nil
	}
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr
	}
	if errors.Is(err, db.ErrNotFound) && notFound != "" {
		return &Error{Kind: KindNotFound, Code: notFound, Err: err}
	}
	return serverError(err)
}

// KindOf returns the kind of an operations error, or KindServer for anything else.
func KindOf(err error) Kind {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindServer
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
