package authdomain

import (
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

var (
	ErrAuthDomain apperrors.Error = apperrors.New("authentication domain error").SetStatusCode(http.StatusInternalServerError)

	ErrInvalidCredentials apperrors.Error = ErrAuthDomain.New("invalid user credentials").SetStatusCode(http.StatusUnauthorized)
	ErrUnknownDomain      apperrors.Error = ErrAuthDomain.New("unknown authentication domain").SetStatusCode(http.StatusNotFound)
	ErrUnknownStrategy    apperrors.Error = ErrAuthDomain.New("unknown authenticator class")
	ErrRefreshFailed      apperrors.Error = ErrAuthDomain.New("unable to refresh authentication domains")
	ErrDirectoryRename    apperrors.Error = ErrAuthDomain.New("unable to rename domain directories")
	ErrPasswordChange     apperrors.Error = ErrAuthDomain.New("password changes not supported by this domain").SetStatusCode(http.StatusConflict)
)
