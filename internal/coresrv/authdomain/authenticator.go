// Package authdomain holds the authentication-domain registry and the
// authenticator strategy objects behind it. Domains are reconciled from the
// flat property table at startup and on demand; each domain binds one
// persisted AuthenticationDomain record to one live strategy instance keyed
// by property name. Strategies validate credentials and manage password
// changes against User records through ordinary editing contexts.
package authdomain

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/web-cat/core/internal/common"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

// Options carries one authenticator entry's sub-properties, decoded from
// the flat `authenticator.<name>.<option>` keys.
type Options struct {
	Class              string `mapstructure:"class"`
	DisplayableName    string `mapstructure:"displayableName"`
	DefaultEmailDomain string `mapstructure:"defaultEmailDomain"`
	TimeFormat         string `mapstructure:"timeFormat"`
	DateFormat         string `mapstructure:"dateFormat"`
	TimeZoneName       string `mapstructure:"timeZoneName"`
	SkipPasswordChecks bool   `mapstructure:"skipPasswordChecks"`
}

// Authenticator is the strategy contract for one authentication domain.
// Implementations read and write User records through the supplied editing
// context; committing is the caller's concern except where noted.
type Authenticator interface {
	// Authenticate validates credentials against the given domain and
	// returns the matching user. ErrInvalidCredentials is returned both for
	// unknown user names and for bad passwords.
	Authenticate(ctx context.Context, ec store.EditingContext, domain entity.AuthDomain, userName, password string) (entity.User, error)

	// CanChangePassword reports whether this strategy manages credentials
	// itself. Externally managed domains (e.g. campus directories) return
	// false and reject ChangePassword.
	CanChangePassword() bool

	// ChangePassword replaces the user's credential and commits.
	ChangePassword(ctx context.Context, ec store.EditingContext, user entity.User, newPassword string) error

	// NewRandomPassword generates a fresh password, stores it, commits, and
	// returns the cleartext so the caller can deliver it to the user.
	NewRandomPassword(ctx context.Context, ec store.EditingContext, user entity.User) (string, error)
}

// Factory builds a strategy instance from decoded options.
type Factory func(opts Options) (Authenticator, error)

// DefaultClass is used when an authenticator entry names no class.
const DefaultClass = "database"

var factories = map[string]Factory{
	DefaultClass: func(opts Options) (Authenticator, error) {
		return &DatabaseAuthenticator{opts: opts}, nil
	},
}

// RegisterFactory binds a strategy class name, overwriting prior bindings.
// External packages use this to plug in directory- or token-based
// strategies.
func RegisterFactory(class string, f Factory) {
	factories[class] = f
}

func newAuthenticator(opts Options) (Authenticator, error) {
	class := opts.Class
	if class == "" {
		class = DefaultClass
	}
	f, ok := factories[class]
	if !ok {
		return nil, ErrUnknownStrategy.Msg(class)
	}
	return f(opts)
}

// DatabaseAuthenticator validates credentials against the passwordHash
// attribute of User records using bcrypt.
type DatabaseAuthenticator struct {
	opts Options
}

func (a *DatabaseAuthenticator) Authenticate(ctx context.Context, ec store.EditingContext, domain entity.AuthDomain, userName, password string) (entity.User, error) {
	matches, err := ec.Fetch(ctx, entity.TypeUser, store.Qualifier{
		entity.KeyUserName:             userName,
		entity.RelAuthenticationDomain: domain.Ref(),
	})
	if err != nil {
		return entity.User{}, err
	}
	if len(matches) == 0 {
		log.Ctx(ctx).Info().Str("user", userName).Str("domain", domain.Name()).Msg("authentication failed: unknown user")
		return entity.User{}, ErrInvalidCredentials
	}
	user := entity.AsUser(matches[0])
	if a.opts.SkipPasswordChecks {
		return user, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(password)); err != nil {
		log.Ctx(ctx).Info().Str("user", userName).Str("domain", domain.Name()).Msg("authentication failed: bad password")
		return entity.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (a *DatabaseAuthenticator) CanChangePassword() bool {
	return true
}

func (a *DatabaseAuthenticator) ChangePassword(ctx context.Context, ec store.EditingContext, user entity.User, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return ErrAuthDomain.MsgErr("unable to hash password", err)
	}
	ec.Lock()
	err = user.SetPasswordHash(string(hash))
	ec.Unlock()
	if err != nil {
		return err
	}
	if err := ec.SaveChanges(ctx); err != nil {
		return err
	}
	return nil
}

func (a *DatabaseAuthenticator) NewRandomPassword(ctx context.Context, ec store.EditingContext, user entity.User) (string, error) {
	password, err := common.RandomPassword()
	if err != nil {
		return "", ErrAuthDomain.MsgErr("unable to generate password", err)
	}
	if err := a.ChangePassword(ctx, ec, user, password); err != nil {
		return "", err
	}
	return password, nil
}
