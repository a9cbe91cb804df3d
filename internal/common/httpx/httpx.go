// Package httpx provides HTTP request/response plumbing for the portal's
// direct-action handlers: JSON request parsing, standardized JSON responses,
// and an error envelope shared by every endpoint.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/apperrors"
)

// ReadRequest decodes the JSON request body into data. Only POST and PUT
// carry bodies in this API.
func ReadRequest(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrMethodNotSupported()
	}
	if r.Body == nil {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseRequest()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		return ErrUnableToParseRequest()
	}
	return nil
}

// Response is the result of a RequestHandler. Location is set as the
// Location header on 201 responses.
type Response struct {
	StatusCode int
	Location   string
	Response   any
}

// RequestHandler is the signature of all direct-action handlers.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHandler adapts a RequestHandler into an http.HandlerFunc with
// standardized error mapping: *Error is sent as-is, apperrors.Error uses its
// status code, anything else becomes a 500.
func WrapHandler(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			var httpErr *Error
			if errors.As(err, &httpErr) {
				httpErr.Send(w)
				return
			}
			var appErr apperrors.Error
			if errors.As(err, &appErr) {
				SendError(w, appErr)
				return
			}
			ErrApplicationError(err.Error()).Send(w)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		SendJSON(r.Context(), w, rsp.StatusCode, rsp.Response, rsp.Location)
	}
}

// SendJSON marshals msg and writes it with the given status code. If location
// is non-empty and the status is 201, the Location header is set.
func SendJSON(ctx context.Context, w http.ResponseWriter, statusCode int, msg any, location ...string) {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to marshal response")
		ErrApplicationError().Send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if statusCode == http.StatusCreated && len(location) > 0 && location[0] != "" {
		w.Header().Set("Location", location[0])
	}
	w.WriteHeader(statusCode)
	w.Write(body)
}
