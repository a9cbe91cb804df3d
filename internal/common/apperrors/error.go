// Package apperrors provides the application error type used across the
// portal services. It extends the standard error interface with error
// chaining, HTTP status codes, and message rewriting, while remaining
// compatible with errors.Is / errors.As.
package apperrors

// Error is the interface implemented by all application errors. Methods
// return Error so call sites can chain: ErrX.Msg("...").SetStatusCode(...).
type Error interface {
	error
	Unwrap() error // errors.Is / errors.As support

	New(msg string) Error                  // derive a new error using this one as template
	Msg(msg string) Error                  // new error with message, wrapping the original
	MsgErr(msg string, err ...error) Error // new error with message, wrapping extra errors
	Err(err ...error) Error                // attach additional causes to this error
	SetStatusCode(int) Error               // set the HTTP status code
	StatusCode() int                       // current HTTP status code
	UnwrapAll() []error                    // all wrapped errors, in insertion order
}
