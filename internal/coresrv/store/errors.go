package store

import (
	"net/http"

	"github.com/web-cat/core/internal/common/apperrors"
)

var (
	ErrStore             apperrors.Error = apperrors.New("object store error").SetStatusCode(http.StatusInternalServerError)
	ErrNotFound          apperrors.Error = ErrStore.New("object not found").SetStatusCode(http.StatusNotFound)
	ErrUnknownEntityType apperrors.Error = ErrStore.New("unknown entity type").SetStatusCode(http.StatusBadRequest)
	ErrUnknownKey        apperrors.Error = ErrStore.New("unknown key").SetStatusCode(http.StatusBadRequest)
	ErrTypeMismatch      apperrors.Error = ErrStore.New("object type does not match relationship").SetStatusCode(http.StatusBadRequest)
	ErrContextDisposed   apperrors.Error = ErrStore.New("editing context has been disposed")
	ErrChannelLimit      apperrors.Error = ErrStore.New("editing context channel limit reached").SetStatusCode(http.StatusServiceUnavailable)
	ErrSaveFailed        apperrors.Error = ErrStore.New("unable to commit changes")
)
