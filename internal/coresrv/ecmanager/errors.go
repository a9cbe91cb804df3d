package ecmanager

import (
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

var (
	ErrManager               apperrors.Error = apperrors.New("editing context manager error").SetStatusCode(http.StatusInternalServerError)
	ErrDisposed              apperrors.Error = ErrManager.New("manager has been disposed")
	ErrInvalidArgument       apperrors.Error = ErrManager.New("invalid argument").SetStatusCode(http.StatusBadRequest)
	ErrContextReplacement    apperrors.Error = ErrManager.New("unable to allocate replacement editing context")
	ErrPersistentSaveFailure apperrors.Error = ErrManager.New("unable to commit changes after context replacement")
)
