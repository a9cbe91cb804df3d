package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

// Error is the HTTP error envelope used by every endpoint.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Error string `json:"error"`
}

// Send writes the error response. A nil writer is a no-op.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	body, err := json.Marshal(&errorRsp{Error: e.Description})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("unable to encode error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(body)
}

func (e *Error) Error() string {
	return e.Description
}

// SendError maps an application error to the HTTP envelope. Errors without a
// status code are treated as internal errors.
func SendError(w http.ResponseWriter, err apperrors.Error) {
	if err == nil {
		return
	}
	statusCode := err.StatusCode()
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}
	(&Error{
		StatusCode:  statusCode,
		Description: err.Error(),
	}).Send(w)
}

// ErrMethodNotSupported returns an error for requests with an unsupported method.
func ErrMethodNotSupported() *Error {
	return &Error{
		Description: "request method not supported",
		StatusCode:  http.StatusMethodNotAllowed,
	}
}

// ErrUnableToParseRequest returns an error for malformed request bodies.
func ErrUnableToParseRequest() *Error {
	return &Error{
		Description: "unable to parse request",
		StatusCode:  http.StatusBadRequest,
	}
}

// ErrApplicationError returns a generic internal error, optionally with a
// description.
func ErrApplicationError(desc ...string) *Error {
	d := "unable to process request"
	if len(desc) > 0 && desc[0] != "" {
		d = desc[0]
	}
	return &Error{
		Description: d,
		StatusCode:  http.StatusInternalServerError,
	}
}
