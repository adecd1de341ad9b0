package ticketing

import "errors"

// Kind classifies a failed operation. Every failure aborts the operation
// with no state change.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindStateConflict
	KindCapacity
	KindFunds
	KindTiming
	KindAdmission
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindCapacity:
		return "capacity"
	case KindFunds:
		return "funds"
	case KindTiming:
		return "timing"
	case KindAdmission:
		return "admission"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by every Engine operation. Compare
// against the exported sentinels with errors.Is.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidName      = newError(KindValidation, "InvalidName", "event name must be 1-100 bytes")
	ErrInvalidImageURL  = newError(KindValidation, "InvalidImageURL", "image url must be 1-200 bytes")
	ErrInvalidDetails   = newError(KindValidation, "InvalidDetails", "details must be 1-1000 bytes")
	ErrInvalidLocation  = newError(KindValidation, "InvalidLocation", "location must be 1-150 bytes")
	ErrInvalidPrice     = newError(KindValidation, "InvalidPrice", "ticket price must be positive and at most 1e24")
	ErrUnsupportedToken = newError(KindValidation, "UnsupportedToken", "payment token is not supported")
	ErrInvalidAddress   = newError(KindValidation, "InvalidAddress", "address must not be zero")

	ErrEventNotFound = newError(KindNotFound, "EventNotFound", "event does not exist")

	ErrNotOwner = newError(KindAuthorization, "NotOwner", "caller is not the owner")

	ErrAlreadyCanceled        = newError(KindStateConflict, "AlreadyCanceled", "event is already canceled")
	ErrAlreadyReleased        = newError(KindStateConflict, "AlreadyReleased", "funds are already released")
	ErrAlreadyPurchased       = newError(KindStateConflict, "AlreadyPurchased", "caller already holds a ticket")
	ErrNoTicket               = newError(KindStateConflict, "NoTicket", "caller holds no ticket")
	ErrEventInactive          = newError(KindStateConflict, "EventInactive", "event is not active")
	ErrCanceledEventNoRelease = newError(KindStateConflict, "CanceledEventNoRelease", "canceled events cannot release funds")
	ErrReentrantCall          = newError(KindStateConflict, "ReentrantCall", "operation re-entered while another is in progress")

	ErrCapacityExceeded = newError(KindCapacity, "CapacityExceeded", "event is sold out")

	ErrInsufficientAllowance = newError(KindFunds, "InsufficientAllowance", "token allowance is below the ticket price")
	ErrIncorrectAmount       = newError(KindFunds, "IncorrectAmount", "attached payment does not match the ticket price")
	ErrInsufficientFunds     = newError(KindFunds, "InsufficientFunds", "escrow balance is too low")
	ErrTransferFailed        = newError(KindFunds, "TransferFailed", "transfer failed")
	ErrOverflow              = newError(KindFunds, "Overflow", "balance overflow")

	ErrStartNotFuture    = newError(KindTiming, "StartNotFuture", "start date must be in the future")
	ErrDurationTooShort  = newError(KindTiming, "DurationTooShort", "event must last at least one hour")
	ErrEventExpired      = newError(KindTiming, "EventExpired", "event has already started")
	ErrEventNotEnded     = newError(KindTiming, "EventNotEnded", "event has not ended")
	ErrRefundPeriodEnded = newError(KindTiming, "RefundPeriodEnded", "refund period has ended")

	ErrPaused    = newError(KindAdmission, "Paused", "ticketing is paused")
	ErrNotPaused = newError(KindAdmission, "NotPaused", "ticketing is not paused")
)

// KindOf reports the class of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the stable code of err, or "Unknown".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Unknown"
}
