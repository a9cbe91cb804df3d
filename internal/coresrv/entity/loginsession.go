package entity

import (
	"time"

	"github.com/web-cat/core/internal/coresrv/store"
)

// LoginSession wraps a LoginSession record: the persisted binding between a
// user, an opaque session identifier, and an expiration time.
type LoginSession struct {
	store.EnterpriseObject
}

// AsLoginSession wraps an enterprise object known to be a LoginSession
// record.
func AsLoginSession(o store.EnterpriseObject) LoginSession {
	return LoginSession{o}
}

// NewLoginSession creates a LoginSession record bound to ec for the given
// user.
func NewLoginSession(ec store.EditingContext, user User, sessionID string, expires time.Time) (LoginSession, error) {
	obj, err := ec.Insert(TypeLoginSession)
	if err != nil {
		return LoginSession{}, err
	}
	ls := AsLoginSession(obj)
	if err := ls.Set(KeySessionID, sessionID); err != nil {
		return LoginSession{}, err
	}
	if err := ls.Set(KeyExpirationTime, store.TimeValue(expires)); err != nil {
		return LoginSession{}, err
	}
	if err := ls.AddRelated(RelUser, user.EnterpriseObject); err != nil {
		return LoginSession{}, err
	}
	return ls, nil
}

func (ls LoginSession) SessionID() string {
	return stringAttr(ls, KeySessionID)
}

func (ls LoginSession) ExpirationTime() time.Time {
	v, err := ls.Get(KeyExpirationTime)
	if err != nil {
		return time.Time{}
	}
	return store.TimeFromValue(v)
}

// SetExpirationTime updates the session's expiration timestamp.
func (ls LoginSession) SetExpirationTime(t time.Time) error {
	return ls.Set(KeyExpirationTime, store.TimeValue(t))
}

// Expired reports whether the session has passed its expiration time.
func (ls LoginSession) Expired(now time.Time) bool {
	exp := ls.ExpirationTime()
	return exp.IsZero() || !exp.After(now)
}

// User returns the owning user.
func (ls LoginSession) User() (User, error) {
	related, err := ls.Related(RelUser)
	if err != nil {
		return User{}, err
	}
	if len(related) == 0 {
		return User{}, store.ErrNotFound.Msg("login session has no user")
	}
	return AsUser(related[0]), nil
}
