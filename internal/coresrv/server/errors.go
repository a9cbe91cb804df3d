package server

import (
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

var (
	ErrServer apperrors.Error = apperrors.New("server error").SetStatusCode(http.StatusInternalServerError)

	ErrBadRequest      apperrors.Error = ErrServer.New("unable to parse request").SetStatusCode(http.StatusBadRequest)
	ErrTokenGeneration apperrors.Error = ErrServer.New("unable to generate session token")
	ErrInvalidToken    apperrors.Error = ErrServer.New("invalid session token").SetStatusCode(http.StatusUnauthorized)
	ErrMissingToken    apperrors.Error = ErrServer.New("missing authorization token").SetStatusCode(http.StatusUnauthorized)
)
