package borrowing

import "errors"

// errors used by controllers

type ErrCode string

const (
	ErrValidation          ErrCode = "VALIDATION_ERROR"
	ErrBookNotFound        ErrCode = "BOOK_NOT_FOUND"
	ErrBookUnavailable     ErrCode = "BOOK_UNAVAILABLE"
	ErrAlreadyPaid         ErrCode = "ALREADY_PAID"
	ErrNotPaid             ErrCode = "NOT_PAID"
	ErrAlreadyReturned     ErrCode = "ALREADY_RETURNED"
	ErrNotReturned         ErrCode = "NOT_RETURNED"
	ErrNoFines             ErrCode = "NO_FINES"
	ErrFinesAlreadyPaid    ErrCode = "FINES_ALREADY_PAID"
	ErrGateway             ErrCode = "GATEWAY_ERROR"
	ErrNoPaymentFound      ErrCode = "NO_PAYMENT_FOUND"
	ErrRefundWindowExpired ErrCode = "REFUND_WINDOW_EXPIRED"
	ErrCancelled           ErrCode = "CANCELLED"
	ErrNotOwner            ErrCode = "NOT_OWNER"
	ErrNotFound            ErrCode = "NOT_FOUND"
)

type codedError struct {
	code  ErrCode
	cause error
}

func (e codedError) Error() string {
	if e.cause != nil {
		return string(e.code) + ": " + e.cause.Error()
	}
	return string(e.code)
}

func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.cause }

func makeErr(c ErrCode) error { return codedError{code: c} }

func wrapErr(c ErrCode, cause error) error { return codedError{code: c, cause: cause} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}
