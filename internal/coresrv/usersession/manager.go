package usersession

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/uuid"
	"github.com/web-cat/core/internal/coresrv/authdomain"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/peerpool"
	"github.com/web-cat/core/internal/coresrv/store"
	"github.com/web-cat/core/internal/coresrv/webcommon"
)

// Manager tracks live sessions and drives the LoginSession protocol against
// the store.
type Manager struct {
	st            store.ObjectStore
	registry      *authdomain.Registry
	notifier      webcommon.Notifier
	timeout       time.Duration
	pageCacheSize int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. timeout is the login-session idle
// timeout; pageCacheSize bounds each session's recyclable peer manager list.
func NewManager(st store.ObjectStore, registry *authdomain.Registry, notifier webcommon.Notifier, timeout time.Duration, pageCacheSize int) *Manager {
	if notifier == nil {
		notifier = webcommon.LogNotifier{}
	}
	return &Manager{
		st:            st,
		registry:      registry,
		notifier:      notifier,
		timeout:       timeout,
		pageCacheSize: pageCacheSize,
		sessions:      map[string]*Session{},
	}
}

// Login validates credentials against the named domain (the configured
// default when domainName is empty) and returns a live session. When a
// non-expired LoginSession row already exists for the user, the new session
// adopts its identifier instead of minting a new one; expired rows are
// deleted on the way.
func (m *Manager) Login(ctx context.Context, domainName, userName, password string) (*Session, error) {
	var dom authdomain.Domain
	var err error
	if domainName == "" {
		dom, err = m.registry.Default()
	} else {
		dom, err = m.registry.Get(domainName)
	}
	if err != nil {
		return nil, err
	}

	ec, err := m.st.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	defer ec.Dispose()

	user, err := dom.Auth.Authenticate(ctx, ec, dom.Record, userName, password)
	if err != nil {
		return nil, err
	}

	rows, err := findLoginSessions(ctx, ec, user)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var row entity.LoginSession
	for _, candidate := range rows {
		if candidate.Expired(now) {
			if err := ec.Delete(candidate.EnterpriseObject); err != nil {
				return nil, err
			}
			continue
		}
		row = candidate
	}

	sessionID := ""
	if row.EnterpriseObject != nil {
		sessionID = row.SessionID()
		log.Ctx(ctx).Info().Str("user", userName).Msg("rejoining existing login session")
		if err := row.SetExpirationTime(expiry(m.timeout)); err != nil {
			return nil, err
		}
	} else {
		sessionID = uuid.New().String()
		row, err = entity.NewLoginSession(ec, user, sessionID, expiry(m.timeout))
		if err != nil {
			return nil, err
		}
	}

	ec.Lock()
	err = ec.SaveChanges(ctx)
	ec.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	existing := m.sessions[sessionID]
	m.mu.Unlock()
	if existing != nil {
		// A live server session already carries this identifier; hand it
		// back rather than abandoning its pool.
		existing.loginSession = row
		return existing, nil
	}

	s := &Session{
		id:           sessionID,
		user:         user,
		domain:       dom,
		pool:         peerpool.NewPool(m.pageCacheSize),
		st:           m.st,
		loginSession: row,
	}

	m.mu.Lock()
	m.sessions[sessionID] = s
	m.mu.Unlock()

	log.Ctx(ctx).Info().Str("user", userName).Str("domain", dom.Name()).Msg("user logged in")
	return s, nil
}

// Timeout returns the configured login-session idle timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Get returns the live session for an identifier.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sleep ends one request cycle: the session's expiration timestamp is
// extended by the configured timeout and committed. When the commit fails,
// administrators are notified and the cached row reference is dropped so the
// next cycle re-creates it instead of extending inconsistent state.
func (m *Manager) Sleep(ctx context.Context, s *Session) error {
	ec, err := m.st.NewContext(ctx)
	if err != nil {
		return err
	}
	defer ec.Dispose()

	err = m.extendLoginSession(ctx, ec, s)
	if err != nil {
		m.notifier.NotifyAdmins(ctx, "unable to extend login session", err)
		s.loginSession = entity.LoginSession{}
		return err
	}
	return nil
}

func (m *Manager) extendLoginSession(ctx context.Context, ec store.EditingContext, s *Session) error {
	var row entity.LoginSession
	if s.loginSession.EnterpriseObject != nil {
		local, err := ec.Localize(s.loginSession.EnterpriseObject)
		if err != nil {
			return err
		}
		row = entity.AsLoginSession(local)
	} else {
		// The reference was dropped after an earlier failure; re-locate or
		// re-create the row.
		rows, err := findLoginSessions(ctx, ec, s.user)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			row = rows[0]
		} else {
			row, err = entity.NewLoginSession(ec, s.user, s.id, expiry(m.timeout))
			if err != nil {
				return err
			}
		}
	}

	ec.Lock()
	defer ec.Unlock()
	if err := row.SetExpirationTime(expiry(m.timeout)); err != nil {
		return err
	}
	if err := ec.SaveChanges(ctx); err != nil {
		return err
	}
	s.loginSession = row
	return nil
}

// Logout deletes the session's LoginSession row and disposes its peer
// manager pool. When deletion through the cached reference fails, any row
// for the user is re-located by query and deleted instead: logout must not
// leave orphaned session rows behind.
func (m *Manager) Logout(ctx context.Context, s *Session) error {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	defer s.pool.Dispose()

	err := m.deleteCachedRow(ctx, s)
	if err == nil {
		log.Ctx(ctx).Info().Str("user", s.user.UserName()).Msg("user logged out")
		return nil
	}
	log.Ctx(ctx).Warn().Err(err).Msg("cached login session delete failed; falling back to query")

	if err := m.deleteRowsByQuery(ctx, s); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("user", s.user.UserName()).Msg("user logged out")
	return nil
}

func (m *Manager) deleteCachedRow(ctx context.Context, s *Session) error {
	if s.loginSession.EnterpriseObject == nil {
		return ErrSessionNotFound.Msg("no cached login session row")
	}
	ec, err := m.st.NewContext(ctx)
	if err != nil {
		return err
	}
	defer ec.Dispose()

	ec.Lock()
	defer ec.Unlock()
	local, err := ec.Localize(s.loginSession.EnterpriseObject)
	if err != nil {
		return err
	}
	if err := ec.Delete(local); err != nil {
		return err
	}
	return ec.SaveChanges(ctx)
}

func (m *Manager) deleteRowsByQuery(ctx context.Context, s *Session) error {
	ec, err := m.st.NewContext(ctx)
	if err != nil {
		return err
	}
	defer ec.Dispose()

	ec.Lock()
	defer ec.Unlock()
	rows, err := findLoginSessions(ctx, ec, s.user)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := ec.Delete(row.EnterpriseObject); err != nil {
			return err
		}
	}
	return ec.SaveChanges(ctx)
}
