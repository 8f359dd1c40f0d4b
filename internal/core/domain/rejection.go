package domain

import "errors"

// Rejection codes. Every domain rejection carries one of these stable
// machine-readable codes so the consuming UI can render a specific message.
const (
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInvalidStake        = "INVALID_STAKE"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeActiveLoanExists    = "ACTIVE_LOAN_EXISTS"
	CodeDocumentMissing     = "DOCUMENT_MISSING"
	CodeReasonRequired      = "REASON_REQUIRED"
	CodeInvalidReason       = "INVALID_REASON"
	CodePaymentMismatch     = "PAYMENT_MISMATCH"
	CodeExternalDependency  = "EXTERNAL_DEPENDENCY"
	CodeRequestExpired      = "REQUEST_EXPIRED"
)

// Rejection is a typed domain rejection. It is returned to callers as a
// value, never mutates workflow state, and maps to a 4xx response at the
// HTTP boundary.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return r.Code + ": " + r.Message
}

// Reject creates a new typed rejection.
func Reject(code, message string) *Rejection {
	return &Rejection{Code: code, Message: message}
}

// AsRejection extracts a *Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
