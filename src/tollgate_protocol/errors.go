package tollgate_protocol

import "fmt"

// ErrorType represents the category of a protocol failure
type ErrorType int

const (
	ErrorTypeInvalidAdvertisement ErrorType = iota
	ErrorTypeProtocol
	ErrorTypePaymentRejected
	ErrorTypeNetworkUnreachable
	ErrorTypeArithmeticOverflow
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeInvalidAdvertisement:
		return "invalid advertisement"
	case ErrorTypeProtocol:
		return "protocol error"
	case ErrorTypePaymentRejected:
		return "payment rejected"
	case ErrorTypeNetworkUnreachable:
		return "network unreachable"
	case ErrorTypeArithmeticOverflow:
		return "arithmetic overflow"
	default:
		return fmt.Sprintf("error type %d", int(t))
	}
}

// Error is returned by every codec and gateway client operation.
// Message carries the human-readable detail, e.g. the gateway's rejection reason.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
}

// Sentinels for errors.Is. They match any *Error of the same Type.
var (
	ErrInvalidAdvertisement = &Error{Type: ErrorTypeInvalidAdvertisement}
	ErrProtocol             = &Error{Type: ErrorTypeProtocol}
	ErrPaymentRejected      = &Error{Type: ErrorTypePaymentRejected}
	ErrNetworkUnreachable   = &Error{Type: ErrorTypeNetworkUnreachable}
	ErrArithmeticOverflow   = &Error{Type: ErrorTypeArithmeticOverflow}
)

func (e *Error) Error() string {
	msg := e.Type.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Type, and on Code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Code == "" || t.Code == e.Code)
}

func invalidAdvertisement(code, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeInvalidAdvertisement, Code: code, Message: fmt.Sprintf(format, args...)}
}

func protocolError(code, format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeProtocol, Code: code, Message: fmt.Sprintf(format, args...)}
}

func networkUnreachable(message string, cause error) *Error {
	return &Error{Type: ErrorTypeNetworkUnreachable, Code: "unreachable", Message: message, Cause: cause}
}

func paymentRejected(reason string) *Error {
	return &Error{Type: ErrorTypePaymentRejected, Code: "payment-rejected", Message: reason}
}
