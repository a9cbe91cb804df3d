package entity

import (
	"strings"

	"github.com/web-cat/core/internal/coresrv/store"
)

// AuthDomainPrefix is the property-name prefix shared by every
// authentication-domain definition.
const AuthDomainPrefix = "authenticator."

// AuthDomain wraps an AuthenticationDomain record with typed accessors.
type AuthDomain struct {
	store.EnterpriseObject
}

// AsAuthDomain wraps an enterprise object known to be an
// AuthenticationDomain record.
func AsAuthDomain(o store.EnterpriseObject) AuthDomain {
	return AuthDomain{o}
}

// NewAuthDomain creates an AuthenticationDomain record bound to ec with the
// given property name ("authenticator.<name>").
func NewAuthDomain(ec store.EditingContext, propertyName string) (AuthDomain, error) {
	obj, err := ec.Insert(TypeAuthDomain)
	if err != nil {
		return AuthDomain{}, err
	}
	d := AsAuthDomain(obj)
	if err := d.Set(KeyPropertyName, propertyName); err != nil {
		return AuthDomain{}, err
	}
	return d, nil
}

func (d AuthDomain) PropertyName() string {
	return stringAttr(d, KeyPropertyName)
}

func (d AuthDomain) DisplayableName() string {
	return stringAttr(d, KeyDisplayableName)
}

func (d AuthDomain) DefaultEmailDomain() string {
	return stringAttr(d, KeyDefaultEmailDomain)
}

func (d AuthDomain) TimeFormat() string {
	return stringAttr(d, KeyTimeFormat)
}

func (d AuthDomain) DateFormat() string {
	return stringAttr(d, KeyDateFormat)
}

func (d AuthDomain) TimeZoneName() string {
	return stringAttr(d, KeyTimeZoneName)
}

// Name returns the short domain name, the property name without its
// "authenticator." prefix.
func (d AuthDomain) Name() string {
	return strings.TrimPrefix(d.PropertyName(), AuthDomainPrefix)
}

// SubdirName returns the sanitized directory name used under each managed
// file root for this domain.
func (d AuthDomain) SubdirName() string {
	return SanitizeSubdirName(d.Name())
}
