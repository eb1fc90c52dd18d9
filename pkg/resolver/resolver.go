// Package resolver maps groups of orders onto canonical customer identities.
package resolver

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

var (
	ErrNoContact          = errors.New("order has neither email nor phone")
	ErrCreationNotAllowed = errors.New("identity creation not allowed for ownerless guest orders")
)

// Lookup is the normalized contact data used to match an identity.
type Lookup struct {
	EmailKey      string
	PhoneKey      string
	PreferredShop string
}

// Key is the grouping and locking key: email when known, phone otherwise.
func (l Lookup) Key() string {
	if l.EmailKey != "" {
		return "email:" + l.EmailKey
	}
	if l.PhoneKey != "" {
		return "phone:" + l.PhoneKey
	}
	return ""
}

// LockKeys lists every contact key of the lookup in ascending order. An
// identity creator holds all of them, so a lookup sharing only its phone
// with another still serializes against it.
func (l Lookup) LockKeys() []string {
	keys := make([]string, 0, 2)
	if l.EmailKey != "" {
		keys = append(keys, "email:"+l.EmailKey)
	}
	if l.PhoneKey != "" {
		keys = append(keys, "phone:"+l.PhoneKey)
	}
	slices.Sort(keys)
	return keys
}

// Store is the identity persistence the resolver needs.
type Store interface {
	// Match finds an identity by email (customer or any account), falling
	// back to phone. Ties prefer lookup.PreferredShop. nil when nothing matches.
	Match(ctx context.Context, lookup Lookup) (*models.Customer, error)
	// FindOrCreateWithLock serializes on lookup.LockKeys(), re-runs Match and
	// inserts seed when there is still no match.
	FindOrCreateWithLock(ctx context.Context, lookup Lookup, seed models.Customer) (models.Customer, bool, error)
}

// PolicySource loads the identity creation policy.
type PolicySource interface {
	IdentityPolicy(ctx context.Context) (models.IdentityPolicy, error)
}

// OrderGroup is a set of orders that resolve to the same identity.
type OrderGroup struct {
	Key    string
	Lookup Lookup
	Orders []models.Order
}

// Representative is the first order of the group.
func (g OrderGroup) Representative() models.Order {
	if len(g.Orders) == 0 {
		return models.Order{}
	}
	return g.Orders[0]
}

// HasOwner reports whether any order in the group was placed from an account.
func (g OrderGroup) HasOwner() bool {
	for _, order := range g.Orders {
		if order.HasOwner() {
			return true
		}
	}
	return false
}

// LookupFor normalizes the contact data of one order.
func LookupFor(order models.Order) Lookup {
	return Lookup{
		EmailKey:      normalizers.EmailKey(order.CustomerEmail),
		PhoneKey:      normalizers.PhoneKey(order.CustomerPhone),
		PreferredShop: order.PreferredShop(),
	}
}

// Group buckets orders by Lookup.Key in first-seen order. Orders without any
// contact data are returned as skipped.
func Group(orders []models.Order) ([]OrderGroup, []models.Order) {
	var (
		groups  []OrderGroup
		skipped []models.Order
		index   = map[string]int{}
	)
	for _, order := range orders {
		lookup := LookupFor(order)
		key := lookup.Key()
		if key == "" {
			skipped = append(skipped, order)
			continue
		}
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, OrderGroup{Key: key, Lookup: lookup, Orders: []models.Order{order}})
			continue
		}
		g := &groups[i]
		g.Orders = append(g.Orders, order)
		if g.Lookup.PhoneKey == "" {
			g.Lookup.PhoneKey = lookup.PhoneKey
		}
	}
	return groups, skipped
}

// Resolution is the identity a group resolved to.
type Resolution struct {
	GUID    string
	Created bool
	// Memoized is set when an earlier group in the same batch already resolved a key.
	Memoized bool
}

// Resolver resolves groups for one batch. It memoizes identities by email and
// phone so later groups of the batch observe identities created earlier, and
// reads the creation policy once.
type Resolver struct {
	store  Store
	policy PolicySource
	logger ectologger.Logger
	now    func() time.Time

	policyOnce  sync.Once
	policyValue models.IdentityPolicy
	policyErr   error
	mu          sync.Mutex
	byEmail     map[string]string
	byPhone     map[string]string
}

func NewResolver(store Store, policy PolicySource, logger ectologger.Logger) *Resolver {
	return &Resolver{
		store:   store,
		policy:  policy,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		byEmail: map[string]string{},
		byPhone: map[string]string{},
	}
}

// Policy returns the identity policy, loading it on first use.
func (r *Resolver) Policy(ctx context.Context) (models.IdentityPolicy, error) {
	r.policyOnce.Do(func() {
		r.policyValue, r.policyErr = r.policy.IdentityPolicy(ctx)
	})
	return r.policyValue, r.policyErr
}

// Resolve finds the identity of a group, creating it when policy allows.
// Creation must run inside the caller's transaction so the store lock holds
// until commit.
func (r *Resolver) Resolve(ctx context.Context, group OrderGroup) (Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	lookup := group.Lookup
	if lookup.Key() == "" {
		return Resolution{}, ErrNoContact
	}

	if guid, ok := r.memoized(lookup); ok {
		r.remember(lookup, guid)
		return Resolution{GUID: guid, Memoized: true}, nil
	}

	existing, err := r.store.Match(ctx, lookup)
	if err != nil {
		return Resolution{}, err
	}
	if existing != nil {
		r.remember(lookup, existing.GUID)
		return Resolution{GUID: existing.GUID}, nil
	}

	policy, err := r.Policy(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if !group.HasOwner() && !policy.AutoCreateGuestIdentities {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"key":    group.Key,
			"orders": len(group.Orders),
		}).Debug("No identity matched and guest identity creation is disabled")
		return Resolution{}, ErrCreationNotAllowed
	}

	customer, created, err := r.store.FindOrCreateWithLock(ctx, lookup, r.seed(group))
	if err != nil {
		return Resolution{}, err
	}
	r.remember(lookup, customer.GUID)
	if created {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"customer_guid": customer.GUID,
			"key":           group.Key,
		}).Info("Created customer identity")
	}
	return Resolution{GUID: customer.GUID, Created: created}, nil
}

// Forget drops the memoized identity of a lookup, for groups whose
// transaction was rolled back.
func (r *Resolver) Forget(lookup Lookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lookup.EmailKey != "" {
		delete(r.byEmail, lookup.EmailKey)
	}
	if lookup.PhoneKey != "" {
		delete(r.byPhone, lookup.PhoneKey)
	}
}

func (r *Resolver) memoized(lookup Lookup) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// email-first: a phone hit must not shadow a different email match
	if lookup.EmailKey != "" {
		guid, ok := r.byEmail[lookup.EmailKey]
		return guid, ok
	}
	guid, ok := r.byPhone[lookup.PhoneKey]
	return guid, ok
}

func (r *Resolver) remember(lookup Lookup, guid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lookup.EmailKey != "" {
		r.byEmail[lookup.EmailKey] = guid
	}
	if lookup.PhoneKey != "" {
		if _, taken := r.byPhone[lookup.PhoneKey]; !taken {
			r.byPhone[lookup.PhoneKey] = guid
		}
	}
}

// seed is the minimal identity inserted for a group; the merger fills in the rest.
func (r *Resolver) seed(group OrderGroup) models.Customer {
	order := group.Representative()
	now := r.now()
	email := ""
	for _, o := range group.Orders {
		if e := strings.TrimSpace(o.CustomerEmail); e != "" {
			email = e
			break
		}
	}
	return models.Customer{
		GUID:            uuid.NewString(),
		ShopID:          group.Lookup.PreferredShop,
		Provider:        order.Provider,
		Email:           email,
		Phone:           strings.TrimSpace(order.CustomerPhone),
		NormalizedPhone: group.Lookup.PhoneKey,
		CustomerGroup:   models.CustomerGroupRegistered,
		Tags:            []string{},
		AutoTags:        []models.AutoTag{},
		Data:            map[string]any{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
