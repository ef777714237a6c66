package models

import "fmt"

// Kind classifies an error for the API layer's status-code mapping.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindDomainState     Kind = "DOMAIN_STATE"
	KindPaymentDeclined Kind = "PAYMENT_DECLINED"
	KindGateway         Kind = "GATEWAY"
	KindIntegrity       Kind = "INTEGRITY"
)

// Error is a classified domain error. Field is set only for validation errors
// so handlers can emit field-named messages.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed or missing request field.
func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NewNotFoundError reports a missing entity, or an ownership mismatch
// deliberately masked as not-found.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// NewDomainStateError reports a request that is well-formed but invalid in the
// current state (insufficient stock, empty cart, wrong order status).
func NewDomainStateError(message string) *Error {
	return &Error{Kind: KindDomainState, Message: message}
}

// NewPaymentDeclinedError carries the issuer-provided decline reason. Terminal
// and user-correctable; never retried by this service.
func NewPaymentDeclinedError(message string) *Error {
	return &Error{Kind: KindPaymentDeclined, Message: message}
}

// NewGatewayError wraps a communication failure with an external API.
func NewGatewayError(message string, err error) *Error {
	return &Error{Kind: KindGateway, Message: message, Err: err}
}

// NewIntegrityError reports a data-integrity violation (duplicate payment
// reference, oversized field). Indicates a bug or a race, not user input.
func NewIntegrityError(message string, err error) *Error {
	return &Error{Kind: KindIntegrity, Message: message, Err: err}
}

// KindOf extracts the classification of err, walking wrapped errors. Returns
// an empty Kind for unclassified errors.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
