package entity

import (
	"github.com/web-cat/core/internal/coresrv/store"
)

// User wraps a User record with typed accessors.
type User struct {
	store.EnterpriseObject
}

// AsUser wraps an enterprise object known to be a User record.
func AsUser(o store.EnterpriseObject) User {
	return User{o}
}

// NewUser creates a User bound to ec and attaches it to the given
// authentication domain. The record is persisted on the context's next save.
func NewUser(ec store.EditingContext, userName, passwordHash string, domain AuthDomain) (User, error) {
	obj, err := ec.Insert(TypeUser)
	if err != nil {
		return User{}, err
	}
	u := AsUser(obj)
	if err := u.Set(KeyUserName, userName); err != nil {
		return User{}, err
	}
	if err := u.Set(KeyPasswordHash, passwordHash); err != nil {
		return User{}, err
	}
	if err := u.Set(KeyAccessLevel, float64(LevelStudent)); err != nil {
		return User{}, err
	}
	if domain.EnterpriseObject != nil {
		if err := u.AddRelated(RelAuthenticationDomain, domain.EnterpriseObject); err != nil {
			return User{}, err
		}
	}
	return u, nil
}

func (u User) UserName() string {
	return stringAttr(u, KeyUserName)
}

func (u User) PasswordHash() string {
	return stringAttr(u, KeyPasswordHash)
}

// SetPasswordHash replaces the stored credential hash.
func (u User) SetPasswordHash(hash string) error {
	return u.Set(KeyPasswordHash, hash)
}

func (u User) FirstName() string {
	return stringAttr(u, KeyFirstName)
}

func (u User) LastName() string {
	return stringAttr(u, KeyLastName)
}

func (u User) Email() string {
	return stringAttr(u, KeyEmail)
}

func (u User) AccessLevel() int {
	return intAttr(u, KeyAccessLevel)
}

// HasAdminPrivileges reports whether the user is a portal administrator.
func (u User) HasAdminPrivileges() bool {
	return u.AccessLevel() >= LevelAdmin
}

// Domain returns the user's authentication domain, or a zero AuthDomain when
// none is attached.
func (u User) Domain() (AuthDomain, error) {
	related, err := u.Related(RelAuthenticationDomain)
	if err != nil {
		return AuthDomain{}, err
	}
	if len(related) == 0 {
		return AuthDomain{}, nil
	}
	return AsAuthDomain(related[0]), nil
}
