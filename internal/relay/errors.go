package relay

import "errors"

// invalidRequestError marks caller mistakes detected before any upstream call.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return e.msg }

// ErrInvalidRequest constructs a validation error carrying msg.
func ErrInvalidRequest(msg string) error { return invalidRequestError{msg: msg} }

// IsInvalidRequest reports whether err is a validation failure (return 400).
func IsInvalidRequest(err error) bool {
	var ie invalidRequestError
	return errors.As(err, &ie)
}
