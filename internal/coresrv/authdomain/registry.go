package authdomain

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

// defaultDomainKey names the default domain; it is a pointer, not a domain
// definition, and is excluded from the refresh scan.
const defaultDomainKey = entity.AuthDomainPrefix + "default"

// Domain binds one persisted AuthenticationDomain record to its live
// authenticator strategy.
type Domain struct {
	PropertyName string
	Record       entity.AuthDomain
	Auth         Authenticator
}

// Name returns the short domain name, without the authenticator prefix.
func (d Domain) Name() string {
	return strings.TrimPrefix(d.PropertyName, entity.AuthDomainPrefix)
}

// Registry is the process-wide table of authentication domains, rebuilt from
// the flat property table on Refresh. Readers see the table as of the last
// completed refresh; the swap is atomic at the map level and reads take no
// per-entry locks.
type Registry struct {
	mu          sync.RWMutex
	st          store.ObjectStore
	domains     map[string]Domain
	order       []string
	defaultName string
}

// NewRegistry creates an empty registry drawing contexts from st. Call
// Refresh before serving authentication requests.
func NewRegistry(st store.ObjectStore) *Registry {
	return &Registry{st: st, domains: map[string]Domain{}}
}

// Refresh rebuilds the registry from props. Keys of the exact shape
// `authenticator.<name>` (one dot segment, excluding authenticator.default)
// define domains. For each entry the configured strategy class is
// instantiated with its sub-properties, the persisted AuthenticationDomain
// record is found or created and its display fields updated, and the
// strategy is registered under the property name. A failing entry is logged
// and skipped; the rest of the scan continues. All record changes are
// committed in one save at the end of the batch.
func (r *Registry) Refresh(ctx context.Context, props map[string]string) error {
	ec, err := r.st.NewContext(ctx)
	if err != nil {
		return ErrRefreshFailed.Err(err)
	}
	defer ec.Dispose()

	names := domainPropertyNames(props)
	next := make(map[string]Domain, len(names))
	order := make([]string, 0, len(names))

	for _, propertyName := range names {
		dom, err := r.reconcile(ctx, ec, propertyName, props)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("domain", propertyName).Msg("skipping authenticator entry")
			continue
		}
		next[propertyName] = dom
		order = append(order, propertyName)
	}

	ec.Lock()
	err = ec.SaveChanges(ctx)
	ec.Unlock()
	if err != nil {
		return ErrRefreshFailed.Err(err)
	}

	defaultName := strings.TrimSpace(props[defaultDomainKey])

	r.mu.Lock()
	r.domains = next
	r.order = order
	r.defaultName = defaultName
	r.mu.Unlock()

	log.Ctx(ctx).Info().Int("domains", len(order)).Msg("authentication domains refreshed")
	return nil
}

// reconcile runs one entry through resolve-authenticator, reconcile-record,
// and register.
func (r *Registry) reconcile(ctx context.Context, ec store.EditingContext, propertyName string, props map[string]string) (Domain, error) {
	var opts Options
	if err := mapstructure.WeakDecode(subProperties(props, propertyName), &opts); err != nil {
		return Domain{}, ErrRefreshFailed.MsgErr("bad authenticator options", err)
	}

	auth, err := newAuthenticator(opts)
	if err != nil {
		return Domain{}, err
	}

	ec.Lock()
	defer ec.Unlock()

	record, err := findOrCreateRecord(ctx, ec, propertyName)
	if err != nil {
		return Domain{}, err
	}
	if err := applyDisplayFields(record, opts); err != nil {
		return Domain{}, err
	}

	return Domain{PropertyName: propertyName, Record: record, Auth: auth}, nil
}

func findOrCreateRecord(ctx context.Context, ec store.EditingContext, propertyName string) (entity.AuthDomain, error) {
	matches, err := ec.Fetch(ctx, entity.TypeAuthDomain, store.Qualifier{entity.KeyPropertyName: propertyName})
	if err != nil {
		return entity.AuthDomain{}, err
	}
	if len(matches) > 0 {
		return entity.AsAuthDomain(matches[0]), nil
	}
	log.Ctx(ctx).Info().Str("domain", propertyName).Msg("creating authentication domain record")
	return entity.NewAuthDomain(ec, propertyName)
}

func applyDisplayFields(record entity.AuthDomain, opts Options) error {
	fields := map[string]string{
		entity.KeyDisplayableName:    opts.DisplayableName,
		entity.KeyDefaultEmailDomain: opts.DefaultEmailDomain,
		entity.KeyTimeFormat:         opts.TimeFormat,
		entity.KeyDateFormat:         opts.DateFormat,
		entity.KeyTimeZoneName:       opts.TimeZoneName,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := record.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the domain registered under the short name or full property
// name.
func (r *Registry) Get(name string) (Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !strings.HasPrefix(name, entity.AuthDomainPrefix) {
		name = entity.AuthDomainPrefix + name
	}
	dom, ok := r.domains[name]
	if !ok {
		return Domain{}, ErrUnknownDomain.Msg(name)
	}
	return dom, nil
}

// Default returns the domain named by the authenticator.default property,
// falling back to the sole registered domain when exactly one exists.
func (r *Registry) Default() (Domain, error) {
	r.mu.RLock()
	defaultName := r.defaultName
	single := ""
	if len(r.order) == 1 {
		single = r.order[0]
	}
	r.mu.RUnlock()

	if defaultName != "" {
		return r.Get(defaultName)
	}
	if single != "" {
		return r.Get(single)
	}
	return Domain{}, ErrUnknownDomain.Msg("no default authentication domain configured")
}

// All returns every registered domain in configuration scan order.
func (r *Registry) All() []Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Domain, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.domains[name])
	}
	return out
}

// domainPropertyNames selects the keys of shape authenticator.<name> with no
// further dot segments, excluding the default pointer, sorted for a stable
// scan order.
func domainPropertyNames(props map[string]string) []string {
	var names []string
	for key := range props {
		if !strings.HasPrefix(key, entity.AuthDomainPrefix) || key == defaultDomainKey {
			continue
		}
		rest := strings.TrimPrefix(key, entity.AuthDomainPrefix)
		if rest == "" || strings.Contains(rest, ".") {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

// subProperties collects `<propertyName>.<option>` keys into an option map
// for decoding. The domain key's own value, when present, names the
// strategy class.
func subProperties(props map[string]string, propertyName string) map[string]string {
	out := map[string]string{}
	if class := strings.TrimSpace(props[propertyName]); class != "" {
		out["class"] = class
	}
	prefix := propertyName + "."
	for key, value := range props {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = value
		}
	}
	return out
}
