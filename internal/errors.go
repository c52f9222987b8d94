package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeForbidden  ErrorType = "FORBIDDEN"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeGone       ErrorType = "GONE"
	ErrorTypeInternal   ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal   ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidCurrency  ErrorCode = "INVALID_CURRENCY"
	ErrCodeInvalidDocument  ErrorCode = "INVALID_DOCUMENT"
	ErrCodeInvalidRating    ErrorCode = "INVALID_RATING"

	ErrCodeTransactionNotFound  ErrorCode = "TRANSACTION_NOT_FOUND"
	ErrCodeNgoNotFound          ErrorCode = "NGO_NOT_FOUND"
	ErrCodeDuplicateTransaction ErrorCode = "DUPLICATE_TRANSACTION"
	ErrCodeDuplicateFeedback    ErrorCode = "DUPLICATE_FEEDBACK"
	ErrCodeNotAcceptingDocs     ErrorCode = "NOT_ACCEPTING_DOCUMENTS"
	ErrCodeDeadlinePassed       ErrorCode = "DEADLINE_PASSED"
	ErrCodeAlreadyUploaded      ErrorCode = "ALREADY_UPLOADED"
	ErrCodeSelfFeedback         ErrorCode = "SELF_FEEDBACK"
	ErrCodeNoDocument           ErrorCode = "NO_DOCUMENT"

	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeLedgerUnavailable  ErrorCode = "LEDGER_UNAVAILABLE"
	ErrCodeStorageFailed      ErrorCode = "STORAGE_FAILED"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       ErrCodeInvalidToken,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewGoneError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeGone,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

var (
	ErrTransactionNotFound  = NewNotFoundError("transaction not found", ErrCodeTransactionNotFound)
	ErrNgoNotFound          = NewNotFoundError("no NGO registered for this account number", ErrCodeNgoNotFound)
	ErrDuplicateTransaction = NewConflictError("a transaction with these bank identifiers already exists", ErrCodeDuplicateTransaction)
	ErrNotAcceptingDocs     = NewConflictError("transaction is not accepting documents", ErrCodeNotAcceptingDocs)
	ErrDeadlinePassed       = NewGoneError("document upload deadline has passed", ErrCodeDeadlinePassed)
	ErrAlreadyUploaded      = NewConflictError("a document was already uploaded for this transaction", ErrCodeAlreadyUploaded)
	ErrDuplicateFeedback    = NewConflictError("feedback already submitted for this transaction", ErrCodeDuplicateFeedback)
	ErrSelfFeedback         = NewForbiddenError("NGOs cannot submit feedback on their own withdrawals", ErrCodeSelfFeedback)
	ErrNoDocument           = NewValidationError("transaction has no proof document yet", ErrCodeNoDocument)
	ErrInvalidToken         = &AppError{Type: ErrorTypeForbidden, Code: ErrCodeInvalidToken, Message: "invalid token", StatusCode: http.StatusUnauthorized}
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
