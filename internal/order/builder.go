// Package order turns a validated cart into an order payload and renders a
// placed order's position in the pickup progression.
package order

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/entity"
	"storefront/internal/pricing"
)

const (
	numberPrefix = "ORD-"
	numberLayout = "060102150405"
)

// Number formats the human-readable order number for t, to the second.
func Number(t time.Time) string {
	return numberPrefix + t.Format(numberLayout)
}

// PlacedAt recovers the placement time encoded in an order number.
func PlacedAt(number string, loc *time.Location) (time.Time, error) {
	if !strings.HasPrefix(number, numberPrefix) {
		return time.Time{}, fmt.Errorf("order number %q: missing %s prefix", number, numberPrefix)
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(numberLayout, strings.TrimPrefix(number, numberPrefix), loc)
}

type Builder struct {
	methods map[entity.PaymentMethod]struct{}
	now     func() time.Time
	newRef  func() string
}

type Option func(*Builder)

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func WithReferences(newRef func() string) Option {
	return func(b *Builder) { b.newRef = newRef }
}

// NewBuilder accepts the given payment methods, or cash and gcash when none
// are given.
func NewBuilder(methods []entity.PaymentMethod, opts ...Option) *Builder {
	if len(methods) == 0 {
		methods = []entity.PaymentMethod{entity.PaymentCash, entity.PaymentGCash}
	}
	b := &Builder{
		methods: make(map[entity.PaymentMethod]struct{}, len(methods)),
		now:     time.Now,
		newRef:  uuid.NewString,
	}
	for _, m := range methods {
		b.methods[entity.PaymentMethod(strings.ToLower(strings.TrimSpace(string(m))))] = struct{}{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Accepts(method entity.PaymentMethod) bool {
	_, ok := b.methods[method]
	return ok
}

func (b *Builder) PaymentMethods() []entity.PaymentMethod {
	methods := make([]entity.PaymentMethod, 0, len(b.methods))
	for m := range b.methods {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

// Build validates the snapshot and produces the order payload. The total is
// computed here from the captured unit prices.
func (b *Builder) Build(lines []entity.CartLine, identity entity.Identity, method entity.PaymentMethod) (*entity.Order, error) {
	if len(lines) == 0 {
		return nil, entity.ErrEmptyCart
	}

	branch, consistent := pricing.PickupBranch(lines)
	if !consistent {
		return nil, entity.ErrMixedBranches
	}

	method = entity.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	if !b.Accepts(method) {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownPaymentMethod, method)
	}

	if err := identity.Validate(); err != nil {
		return nil, err
	}

	items := make([]entity.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, entity.OrderItem{
			ProductID: l.ProductID,
			Variant:   l.VariantName,
			Quantity:  l.Quantity,
			Price:     l.UnitPrice,
			Branch:    l.Branch,
		})
	}

	return &entity.Order{
		OrderNumber:   Number(b.now()),
		Reference:     b.newRef(),
		User:          identity,
		Items:         items,
		Total:         pricing.Sum(lines).Price,
		PaymentMethod: method,
		Branch:        branch,
	}, nil
}
