// Package usersession implements the login-session protocol: single active
// session per user with identifier rejoin, expiration extension at the end
// of every request cycle, logout with a query fallback so no orphaned rows
// survive partial failure, and an unconditional purge at startup. Each live
// session owns the pool of peer editing-context managers used by page-level
// independent edits.
package usersession

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/authdomain"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/peerpool"
	"github.com/web-cat/core/internal/coresrv/store"
)

// Session is one authenticated user's live server session. It is owned by
// one request thread at a time; the manager serializes cross-request access
// by session identifier.
type Session struct {
	id     string
	user   entity.User
	domain authdomain.Domain
	pool   *peerpool.Pool

	st store.ObjectStore

	// loginSession is the committed row backing this session. It is dropped
	// to a zero value when an extension fails, forcing re-creation on the
	// next cycle.
	loginSession entity.LoginSession
}

// ID returns the opaque session identifier shared with the client token.
func (s *Session) ID() string {
	return s.id
}

// User returns the authenticated user.
func (s *Session) User() entity.User {
	return s.user
}

// Domain returns the authentication domain the user logged in through.
func (s *Session) Domain() authdomain.Domain {
	return s.domain
}

// CreateManagedPeerEditingContext returns a fresh peer manager drawing from
// this session's pool. The manager joins the pool when it first sleeps.
func (s *Session) CreateManagedPeerEditingContext() *peerpool.PeerManager {
	return s.pool.NewManager(s.st)
}

// Pool exposes the session's peer manager pool.
func (s *Session) Pool() *peerpool.Pool {
	return s.pool
}

// findLoginSessions returns every committed LoginSession row for user.
func findLoginSessions(ctx context.Context, ec store.EditingContext, user entity.User) ([]entity.LoginSession, error) {
	matches, err := ec.Fetch(ctx, entity.TypeLoginSession, store.Qualifier{
		entity.RelUser: user.Ref(),
	})
	if err != nil {
		return nil, err
	}
	out := make([]entity.LoginSession, 0, len(matches))
	for _, m := range matches {
		out = append(out, entity.AsLoginSession(m))
	}
	return out, nil
}

// PurgeLoginSessions deletes every LoginSession row. Called once at
// application startup: no other instance holds valid sessions across a
// restart.
func PurgeLoginSessions(ctx context.Context, st store.ObjectStore) error {
	ec, err := st.NewContext(ctx)
	if err != nil {
		return err
	}
	defer ec.Dispose()

	ec.Lock()
	defer ec.Unlock()

	rows, err := ec.Fetch(ctx, entity.TypeLoginSession, store.Qualifier{})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := ec.Delete(row); err != nil {
			return err
		}
	}
	if err := ec.SaveChanges(ctx); err != nil {
		return err
	}
	if len(rows) > 0 {
		log.Ctx(ctx).Info().Int("purged", len(rows)).Msg("purged stale login sessions at startup")
	}
	return nil
}

// expiry computes the next expiration timestamp.
func expiry(timeout time.Duration) time.Time {
	return time.Now().Add(timeout).UTC()
}
