// Package apperrors provides the application error type used across the
// planner service. It extends the standard error interface with error
// chaining and status codes while staying compatible with errors.Is/As.
package apperrors

// Error is the interface implemented by all application errors.
// Methods return Error so call sites can chain derivations.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // derives a fresh error using the current one as template
	Msg(msg string) Error                  // derives an error with a new message, wrapping the original
	MsgErr(msg string, err ...error) Error // derives an error with a message, wrapping extra errors
	Err(err ...error) Error                // attaches additional errors, keeping the current message
	SetStatusCode(int) Error               // sets the HTTP-style status code
	StatusCode() int                       // returns the status code
	UnwrapAll() []error                    // returns all wrapped errors
}
