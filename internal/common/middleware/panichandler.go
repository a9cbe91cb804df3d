package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/httpx"
)

// PanicHandler converts handler panics into logged 500 responses so a single
// broken request cannot take the server down.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer recoverPanic(rw, r)
		next.ServeHTTP(rw, r)
	})
}

func recoverPanic(rw *httpx.ResponseWriter, r *http.Request) {
	v := recover()
	if v == nil {
		return
	}
	ctx := r.Context()
	log.Ctx(ctx).Error().
		Str("request_id", RequestID(ctx)).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("panic", fmt.Sprint(v)).
		Bytes("stack", debug.Stack()).
		Msg("recovered from handler panic")

	// A handler may panic after it has started the response; only a pristine
	// writer can still carry the error payload.
	if !rw.Written() {
		httpx.ErrApplicationError().Send(rw)
	}
}
