package usersession

import (
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

var (
	ErrSession apperrors.Error = apperrors.New("user session error").SetStatusCode(http.StatusInternalServerError)

	ErrSessionNotFound apperrors.Error = ErrSession.New("no active session").SetStatusCode(http.StatusUnauthorized)
	ErrSessionExpired  apperrors.Error = ErrSession.New("session has expired").SetStatusCode(http.StatusUnauthorized)
)
