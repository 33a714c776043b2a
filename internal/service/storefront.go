package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"storefront/internal/availability"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/entity"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/order"
	"storefront/internal/pricing"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type ProductSource interface {
	GetProducts(ctx context.Context) ([]entity.Product, error)
}

type OrderGateway interface {
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error)
	GetOrdersByPhone(ctx context.Context, phone, token string) ([]entity.Order, error)
}

// SessionStore holds per-session state outside the process.
type SessionStore interface {
	cart.Saver
	LoadCart(ctx context.Context, session string) ([]entity.CartLine, error)
	SaveBranch(ctx context.Context, session, branch string) error
	LoadBranch(ctx context.Context, session string) (string, error)
	SaveAccount(ctx context.Context, session string, account entity.Account) error
	LoadAccount(ctx context.Context, session string) (*entity.Account, error)
	DeleteAccount(ctx context.Context, session string) error
	ClaimIdempotencyKey(ctx context.Context, key string) (bool, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

type ReceiptLedger interface {
	CreateReceipt(ctx context.Context, receipt *entity.Receipt) (*entity.Receipt, error)
	GetReceipt(ctx context.Context, orderNumber string) (*entity.Receipt, error)
}

type EventPublisher interface {
	OrderSubmitted(ctx context.Context, order *entity.Order) error
	CartCleared(ctx context.Context, session, reason string) error
}

// Deps wires the service. Receipts, Events and Metrics are optional.
// FollowUpTimeout bounds the receipt and event writes that run detached from
// the request once an order is accepted.
type Deps struct {
	Catalog         ProductSource
	Checker         availability.Checker
	Orders          OrderGateway
	Sessions        SessionStore
	Receipts        ReceiptLedger
	Events          EventPublisher
	Metrics         *metrics.Metrics
	Builder         *order.Builder
	Branches        []entity.Branch
	NoticeTTL       time.Duration
	CacheSize       int
	PersistTimeout  time.Duration
	FollowUpTimeout time.Duration
	Location        *time.Location
}

type StorefrontService struct {
	deps      Deps
	validator *availability.Validator
	persister *cart.Persister

	mu     sync.Mutex
	stores *lru.Cache
}

func NewStorefrontService(deps Deps) (*StorefrontService, error) {
	if deps.Builder == nil {
		deps.Builder = order.NewBuilder(nil)
	}
	if deps.NoticeTTL <= 0 {
		deps.NoticeTTL = cart.DefaultNoticeTTL
	}
	if deps.CacheSize <= 0 {
		deps.CacheSize = 1024
	}
	if deps.PersistTimeout <= 0 {
		deps.PersistTimeout = 5 * time.Second
	}
	if deps.FollowUpTimeout <= 0 {
		deps.FollowUpTimeout = 5 * time.Second
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}

	s := &StorefrontService{
		deps:      deps,
		validator: availability.NewValidator(deps.Checker),
		persister: cart.NewPersister(deps.Sessions, deps.PersistTimeout),
	}

	stores, err := lru.NewWithEvict(deps.CacheSize, s.onEvict)
	if err != nil {
		return nil, err
	}
	s.stores = stores
	return s, nil
}

// onEvict runs under s.mu when a session falls out of the registry. A request
// still holding the store keeps using it; the next request rehydrates.
func (s *StorefrontService) onEvict(key, value interface{}) {
	session, _ := key.(string)
	lines := 0
	if store, ok := value.(*cart.Store); ok {
		lines = store.Len()
	}
	logger.Info().Msgf("Evicted cart for session %s from memory (%d lines, %d sessions awaiting write)", session, lines, s.persister.Pending())
	s.deps.Metrics.SessionEvicted()
}

// Close flushes pending cart writes.
func (s *StorefrontService) Close() {
	s.persister.Close()
}

// cartFor returns the live store for session, rehydrating it from the
// session store on first use.
func (s *StorefrontService) cartFor(ctx context.Context, session string) (*cart.Store, error) {
	s.mu.Lock()
	if v, ok := s.stores.Get(session); ok {
		s.mu.Unlock()
		return v.(*cart.Store), nil
	}
	s.mu.Unlock()

	lines, err := s.deps.Sessions.LoadCart(ctx, session)
	if err != nil {
		logger.Error().Err(err).Msgf("Error loading cart for session %s", session)
		return nil, err
	}

	store := cart.NewStore(session, cart.WithNoticeTTL(s.deps.NoticeTTL), cart.WithObserver(s.persister))
	store.Restore(lines)

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.stores.Get(session); ok {
		return v.(*cart.Store), nil
	}
	s.stores.Add(session, store)
	s.deps.Metrics.SetLiveSessions(s.stores.Len())
	return store, nil
}

func (s *StorefrontService) products(ctx context.Context) ([]entity.Product, error) {
	products, err := s.deps.Catalog.GetProducts(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error getting products")
		return nil, err
	}
	return products, nil
}

// ListProducts returns the catalog filtered by category and branch.
func (s *StorefrontService) ListProducts(ctx context.Context, categories []string, branch string) ([]entity.Product, error) {
	products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Filter(products, categories, branch), nil
}

func (s *StorefrontService) knownBranch(id string) bool {
	for _, b := range s.deps.Branches {
		if b.ID == id {
			return true
		}
	}
	return false
}

// Branches lists the branch directory with the session's selection first.
func (s *StorefrontService) Branches(ctx context.Context, session string) ([]entity.Branch, string, error) {
	selected, err := s.deps.Sessions.LoadBranch(ctx, session)
	if err != nil {
		return nil, "", err
	}
	return catalog.OrderBranches(selected, s.deps.Branches), selected, nil
}

// SelectBranch records the pickup branch. Switching to a different branch
// empties the cart.
func (s *StorefrontService) SelectBranch(ctx context.Context, session, branch string) error {
	if !s.knownBranch(branch) {
		return fmt.Errorf("%w: %q", entity.ErrUnknownBranch, branch)
	}

	previous, err := s.deps.Sessions.LoadBranch(ctx, session)
	if err != nil {
		return err
	}

	if previous != "" && previous != branch {
		store, err := s.cartFor(ctx, session)
		if err != nil {
			return err
		}
		if store.Len() > 0 {
			store.Clear()
			s.deps.Metrics.CartMutation("clear")
			s.publishCleared(ctx, session, events.ReasonBranchChange)
		}
	}

	if err := s.deps.Sessions.SaveBranch(ctx, session, branch); err != nil {
		logger.Error().Err(err).Msgf("Error saving branch for session %s", session)
		return err
	}
	return nil
}

// CartState is what a cart read returns to the caller.
type CartState struct {
	Lines   []entity.CartLine
	Summary pricing.Summary
	Notice  string
	Evicted []string
}

func (s *StorefrontService) state(store *cart.Store) CartState {
	lines := store.Lines()
	st := CartState{Lines: lines, Summary: pricing.Summarize(lines)}
	if n, ok := store.Notice(); ok {
		st.Notice = n.Message
	}
	return st
}

// Cart returns the current cart without revalidating it.
func (s *StorefrontService) Cart(ctx context.Context, session string) (CartState, error) {
	store, err := s.cartFor(ctx, session)
	if err != nil {
		return CartState{}, err
	}
	return s.state(store), nil
}

// OpenCart revalidates availability and returns the remaining cart together
// with a message for every evicted line.
func (s *StorefrontService) OpenCart(ctx context.Context, session string) (CartState, error) {
	store, err := s.cartFor(ctx, session)
	if err != nil {
		return CartState{}, err
	}

	res, err := s.validator.Validate(ctx, store)
	if err != nil {
		return CartState{}, err
	}
	s.deps.Metrics.Evicted(len(res.Evicted))

	st := s.state(store)
	for _, e := range res.Evicted {
		st.Evicted = append(st.Evicted, e.Message())
	}
	return st, nil
}

// AddToCart adds one unit of the variant at variantIndex. An empty branch
// means the session's selected branch.
func (s *StorefrontService) AddToCart(ctx context.Context, session string, productID entity.ProductID, branch string, variantIndex int) (entity.CartLine, error) {
	if branch == "" {
		selected, err := s.deps.Sessions.LoadBranch(ctx, session)
		if err != nil {
			return entity.CartLine{}, err
		}
		branch = selected
	}

	products, err := s.products(ctx)
	if err != nil {
		return entity.CartLine{}, err
	}
	product, ok := catalog.NewIndex(products)[productID]
	if !ok {
		return entity.CartLine{}, fmt.Errorf("%w: unknown product %s", entity.ErrInvalidReference, productID)
	}

	variant, err := catalog.Resolve(product, branch, variantIndex)
	if err != nil {
		return entity.CartLine{}, err
	}
	if !variant.Available {
		return entity.CartLine{}, fmt.Errorf("%w: %s (%s)", entity.ErrVariantUnavailable, product.Name, variant.Name)
	}

	store, err := s.cartFor(ctx, session)
	if err != nil {
		return entity.CartLine{}, err
	}
	line, err := store.AddLine(product, branch, variantIndex)
	if err != nil {
		return entity.CartLine{}, err
	}
	s.deps.Metrics.CartMutation("add")
	return line, nil
}

// RemoveFromCart never fails for a missing line; it reports whether anything changed.
func (s *StorefrontService) RemoveFromCart(ctx context.Context, session string, productID entity.ProductID, branch, variant string, amount int) (bool, error) {
	store, err := s.cartFor(ctx, session)
	if err != nil {
		return false, err
	}
	removed := store.RemoveLine(productID, branch, variant, amount)
	if removed {
		s.deps.Metrics.CartMutation("remove")
	}
	return removed, nil
}

// AbandonCart empties the cart after the shopper confirmed.
func (s *StorefrontService) AbandonCart(ctx context.Context, session string) error {
	store, err := s.cartFor(ctx, session)
	if err != nil {
		return err
	}
	store.Clear()
	s.deps.Metrics.CartMutation("clear")
	s.publishCleared(ctx, session, events.ReasonAbandoned)
	return nil
}

func (s *StorefrontService) publishCleared(ctx context.Context, session, reason string) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.CartCleared(ctx, session, reason); err != nil {
		logger.Warn().Err(err).Msgf("Cart cleared event for session %s not published", session)
	}
}

type CheckoutRequest struct {
	IdempotencyKey string
	UseAccount     bool
	Guest          entity.Identity
	PaymentMethod  entity.PaymentMethod
}

// Checkout builds the order from the current cart and submits it. The cart is
// cleared only after the order service accepted the order.
func (s *StorefrontService) Checkout(ctx context.Context, session string, req CheckoutRequest) (placed *entity.Order, err error) {
	if req.IdempotencyKey != "" {
		claimed, claimErr := s.deps.Sessions.ClaimIdempotencyKey(ctx, req.IdempotencyKey)
		if claimErr != nil {
			return nil, claimErr
		}
		if !claimed {
			s.deps.Metrics.Checkout("duplicate")
			return nil, entity.ErrDuplicateSubmission
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := s.deps.Sessions.ReleaseIdempotencyKey(context.Background(), req.IdempotencyKey); relErr != nil {
				logger.Error().Err(relErr).Msgf("Error releasing idempotency key %s", req.IdempotencyKey)
			}
		}()
	}

	identity := req.Guest
	if req.UseAccount {
		account, err := s.deps.Sessions.LoadAccount(ctx, session)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, entity.ErrNotLoggedIn
		}
		identity = account.Identity()
	}

	store, err := s.cartFor(ctx, session)
	if err != nil {
		return nil, err
	}

	snap := store.Snapshot()
	built, err := s.deps.Builder.Build(snap.Lines, identity, req.PaymentMethod)
	if err != nil {
		s.deps.Metrics.Checkout("rejected")
		return nil, err
	}

	created, err := s.deps.Orders.CreateOrder(ctx, built)
	if err != nil {
		s.deps.Metrics.Checkout("failed")
		if !errors.Is(err, entity.ErrOrderSubmission) {
			err = fmt.Errorf("%w: %v", entity.ErrOrderSubmission, err)
		}
		return nil, err
	}
	if created.OrderNumber != "" {
		built.OrderNumber = created.OrderNumber
	}
	built.Status = created.Status

	// lines added while the order was in flight stay in the cart
	emptied := store.Deduct(snap.Generation, snap.Lines)
	s.deps.Metrics.Checkout("success")

	// the order is accepted; a client disconnect must not skip the ledger
	followUp, cancel := context.WithTimeout(context.Background(), s.deps.FollowUpTimeout)
	defer cancel()

	if s.deps.Receipts != nil {
		if _, err := s.deps.Receipts.CreateReceipt(followUp, entity.NewReceipt(built)); err != nil {
			logger.Error().Err(err).Msgf("Error recording receipt for order %s", built.OrderNumber)
		}
	}
	if emptied {
		s.publishCleared(followUp, session, events.ReasonCheckout)
	}
	if s.deps.Events != nil {
		if err := s.deps.Events.OrderSubmitted(followUp, built); err != nil {
			logger.Warn().Err(err).Msgf("Order submitted event for %s not published", built.OrderNumber)
		}
	}

	logger.Info().Msgf("Order %s submitted for session %s", built.OrderNumber, session)
	return built, nil
}

// Tracking is a placed order with its position in the pickup progression.
type Tracking struct {
	Order    *entity.Order
	Progress order.Progress
	Groups   []pricing.BranchGroup
	PlacedAt time.Time
}

func (s *StorefrontService) TrackOrder(ctx context.Context, orderNumber string) (*Tracking, error) {
	o, err := s.deps.Orders.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	// product names are cosmetic; fall back when the catalog is down
	names := map[entity.ProductID]string{}
	if products, err := s.products(ctx); err == nil {
		names = catalog.NewIndex(products).Names()
	}

	t := &Tracking{
		Order:    o,
		Progress: order.Track(o.Status),
		Groups:   pricing.GroupItems(o.Items, names),
	}
	if placed, err := order.PlacedAt(o.OrderNumber, s.deps.Location); err == nil {
		t.PlacedAt = placed
	}
	return t, nil
}

func (s *StorefrontService) Receipt(ctx context.Context, orderNumber string) (*entity.Receipt, error) {
	if s.deps.Receipts == nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrOrderNotFound, orderNumber)
	}
	return s.deps.Receipts.GetReceipt(ctx, orderNumber)
}

// Login attaches a verified account to the session.
func (s *StorefrontService) Login(ctx context.Context, session string, account entity.Account) error {
	if err := account.Identity().Validate(); err != nil {
		return err
	}
	return s.deps.Sessions.SaveAccount(ctx, session, account)
}

func (s *StorefrontService) Logout(ctx context.Context, session string) error {
	return s.deps.Sessions.DeleteAccount(ctx, session)
}

// Account returns nil when the session is not logged in.
func (s *StorefrontService) Account(ctx context.Context, session string) (*entity.Account, error) {
	return s.deps.Sessions.LoadAccount(ctx, session)
}

// OrderHistory lists an account's orders, newest first.
func (s *StorefrontService) OrderHistory(ctx context.Context, phone, token string) ([]entity.Order, error) {
	if phone == "" {
		return nil, entity.ErrNotLoggedIn
	}
	orders, err := s.deps.Orders.GetOrdersByPhone(ctx, phone, token)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting orders for %s", phone)
		return nil, err
	}
	order.SortNewestFirst(orders)
	return orders, nil
}

func (s *StorefrontService) PaymentMethods() []entity.PaymentMethod {
	return s.deps.Builder.PaymentMethods()
}
