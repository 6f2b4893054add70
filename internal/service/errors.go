package service

import (
	"errors"
	"fmt"

	"livrocaixa/backend/internal/store"
)

type ErrorCode string

const (
	CodeInvalidValue          ErrorCode = "INVALID_VALUE"
	CodeInvalidType           ErrorCode = "INVALID_TYPE"
	CodeInvalidStatus         ErrorCode = "INVALID_STATUS"
	CodeInvalidDate           ErrorCode = "INVALID_DATE"
	CodeInvalidItem           ErrorCode = "INVALID_ITEM"
	CodeInvalidUnitPrice      ErrorCode = "INVALID_UNIT_PRICE"
	CodeInvalidTotalPrice     ErrorCode = "INVALID_TOTAL_PRICE"
	CodeInvalidRecurrenceType ErrorCode = "INVALID_RECURRENCE_TYPE"
	CodeInvalidRecurrenceDay  ErrorCode = "INVALID_RECURRENCE_DAY"
	CodeIngredientNotFound    ErrorCode = "INGREDIENT_NOT_FOUND"
	CodeStockUpdateError      ErrorCode = "STOCK_UPDATE_ERROR"
	CodeStockReversalError    ErrorCode = "STOCK_REVERSAL_ERROR"
	CodeInsufficientStock     ErrorCode = "INSUFFICIENT_STOCK"
	CodePermissionDenied      ErrorCode = "PERMISSION_DENIED"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeSyncError             ErrorCode = "SYNC_ERROR"
	CodeNoUpdates             ErrorCode = "NO_UPDATES"
	CodeDatabaseError         ErrorCode = "DATABASE_ERROR"
	CodeInternalError         ErrorCode = "INTERNAL_ERROR"
)

// Error is the service-level failure every operation returns. The code
// is a closed set; transport layers map it to a status without parsing
// messages.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// wrapStoreError translates repository failures into coded errors. A
// *Error already in the chain passes through untouched.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if svcErr, ok := AsError(err); ok {
		return svcErr
	}

	var missing *store.MissingIngredientsError
	if errors.As(err, &missing) {
		return &Error{
			Code:    CodeIngredientNotFound,
			Message: missing.Error(),
			Details: map[string]any{"missing_ingredient_ids": missing.IDs},
		}
	}
	var shortage *store.InsufficientStockError
	if errors.As(err, &shortage) {
		return &Error{
			Code:    CodeInsufficientStock,
			Message: shortage.Error(),
			Details: map[string]any{"shortages": shortage.Shortages},
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeNotFound, "record not found")
	case errors.Is(err, store.ErrNoUpdates):
		return newError(CodeNoUpdates, "no fields to update")
	case errors.Is(err, store.ErrSyncFailed):
		return newError(CodeSyncError, "failed to sync linked purchase invoice")
	case errors.Is(err, store.ErrStockReversal):
		return newError(CodeStockReversalError, "failed to reverse ingredient stock")
	case errors.Is(err, store.ErrStockUpdate):
		return newError(CodeStockUpdateError, "failed to update ingredient stock")
	case errors.Is(err, store.ErrInvalidArgument):
		return newError(CodeInvalidValue, "invalid request data")
	}

	return &Error{Code: CodeDatabaseError, Message: "database operation failed"}
}
