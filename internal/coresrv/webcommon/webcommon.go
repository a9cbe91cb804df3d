// Package webcommon holds shared context plumbing and process-level helpers
// for the portal core: request-scoped identities, logger initialization, and
// version constants.
package webcommon

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/uuid"
)

// Server version and API version strings reported by /version.
const (
	ServerVersion = "0.9.0"
	ApiVersion    = "0.9"
)

// DefaultConfigFile is used when no configuration file is given on the
// command line.
const DefaultConfigFile = "webcatsrv.conf"

// InitLogger initializes the global logger with Unix millisecond timestamps.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ctxKeyType is the private type for all context keys in this package.
type ctxKeyType string

const (
	ctxUserKey    ctxKeyType = "WebcatUser"
	ctxSessionKey ctxKeyType = "WebcatSession"
	ctxDomainKey  ctxKeyType = "WebcatAuthDomain"
)

// UserContext identifies the authenticated user on a request.
type UserContext struct {
	UserID   uuid.UUID
	UserName string
}

// SessionContext identifies the logical session handling a request. The
// identifier is the opaque string shared with the persisted LoginSession row.
type SessionContext struct {
	SessionID string
}

// WithUserContext stores the user context in ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, ctxUserKey, uc)
}

// GetUserContext returns the user context, or nil if none is set.
func GetUserContext(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(ctxUserKey).(*UserContext)
	return uc
}

// WithSessionContext stores the session context in ctx.
func WithSessionContext(ctx context.Context, sc *SessionContext) context.Context {
	return context.WithValue(ctx, ctxSessionKey, sc)
}

// GetSessionContext returns the session context, or nil if none is set.
func GetSessionContext(ctx context.Context) *SessionContext {
	sc, _ := ctx.Value(ctxSessionKey).(*SessionContext)
	return sc
}

// WithAuthDomain stores the authentication-domain property name in ctx.
func WithAuthDomain(ctx context.Context, propertyName string) context.Context {
	return context.WithValue(ctx, ctxDomainKey, propertyName)
}

// GetAuthDomain returns the authentication-domain property name, or "".
func GetAuthDomain(ctx context.Context) string {
	name, _ := ctx.Value(ctxDomainKey).(string)
	return name
}
