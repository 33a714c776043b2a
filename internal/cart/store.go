// Package cart holds a session's cart lines and the rules for merging,
// decrementing and clearing them. Persistence is an observer of the store.
package cart

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storefront/internal/catalog"
	"storefront/internal/entity"
	"storefront/internal/pricing"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const DefaultNoticeTTL = 2 * time.Second

type ChangeKind int

const (
	ChangeSaved ChangeKind = iota
	ChangeCleared
)

// Change is emitted after every successful mutation.
type Change struct {
	Session string
	Kind    ChangeKind
	Lines   []entity.CartLine
}

// Observer is notified while the store lock is held, so changes arrive in
// mutation order. Implementations must not call back into the store.
type Observer interface {
	CartChanged(change Change)
}

type ObserverFunc func(change Change)

func (f ObserverFunc) CartChanged(change Change) { f(change) }

// Notice is the transient "added to cart" message.
type Notice struct {
	Message   string
	ExpiresAt time.Time
}

type Snapshot struct {
	Generation uint64
	Lines      []entity.CartLine
}

type Store struct {
	mu         sync.Mutex
	session    string
	lines      []entity.CartLine
	generation uint64 // incremented by Clear
	notice     Notice
	noticeTTL  time.Duration
	now        func() time.Time
	observers  []Observer
}

type Option func(*Store)

func WithNoticeTTL(d time.Duration) Option {
	return func(s *Store) { s.noticeTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

func NewStore(session string, opts ...Option) *Store {
	s := &Store{
		session:   session,
		noticeTTL: DefaultNoticeTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Session() string {
	return s.session
}

// Restore loads persisted lines without notifying observers. Lines with a
// non-positive quantity are dropped and duplicate keys are merged.
func (s *Store) Restore(lines []entity.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = s.lines[:0]
	for _, l := range lines {
		if l.Quantity <= 0 {
			logger.Warn().Msgf("Dropping persisted cart line %s/%s/%s with quantity %d", l.ProductID, l.Branch, l.VariantName, l.Quantity)
			continue
		}
		if i := s.indexOf(l.Key()); i >= 0 {
			s.lines[i].Quantity += l.Quantity
			continue
		}
		s.lines = append(s.lines, l)
	}
}

// AddLine adds one unit of the variant at variantIndex of product's branch list.
// An existing line with the same product, branch and variant is incremented;
// otherwise a new line is appended priced at the product's current price.
func (s *Store) AddLine(product entity.Product, branch string, variantIndex int) (entity.CartLine, error) {
	variant, err := catalog.Resolve(product, branch, variantIndex)
	if err != nil {
		logger.Error().Err(err).Msgf("Error adding product %s to cart %s", product.ID, s.session)
		return entity.CartLine{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entity.LineKey{ProductID: product.ID, Branch: branch, Variant: variant.Key()}
	var added entity.CartLine
	if i := s.indexOf(key); i >= 0 {
		s.lines[i].Quantity++
		added = s.lines[i]
	} else {
		added = entity.CartLine{
			ProductID:   product.ID,
			Branch:      branch,
			VariantKey:  variant.Key(),
			VariantName: variant.Name,
			Quantity:    1,
			UnitPrice:   product.Price,
			Product:     product,
		}
		s.lines = append(s.lines, added)
	}

	s.notice = Notice{
		Message:   fmt.Sprintf("%s (%s) added to cart!", product.Name, variant.Name),
		ExpiresAt: s.now().Add(s.noticeTTL),
	}
	s.notify(ChangeSaved)
	return added, nil
}

// RemoveLine takes amount units off the first line matching product, branch and
// variant. An empty branch matches any branch. The line is deleted when its
// quantity reaches zero. It reports whether the cart changed; a missing line is
// not an error.
func (s *Store) RemoveLine(productID entity.ProductID, branch, variant string, amount int) bool {
	if amount < 1 {
		amount = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := entity.NormalizeVariantName(variant)
	for i, l := range s.lines {
		if l.ProductID != productID || (branch != "" && l.Branch != branch) {
			continue
		}
		if l.VariantKey != variant && entity.NormalizeVariantName(l.VariantName) != want {
			continue
		}

		if l.Quantity > amount {
			s.lines[i].Quantity -= amount
		} else {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
		}
		s.notify(ChangeSaved)
		return true
	}
	return false
}

// Clear empties the cart and deletes its persisted representation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.notice = Notice{}
	s.generation++
	s.notify(ChangeCleared)
}

// Evict removes the lines with the given keys, provided the cart has not been
// cleared since the snapshot at generation was taken. It returns the removed lines.
func (s *Store) Evict(generation uint64, keys []entity.LineKey) []entity.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || len(keys) == 0 {
		return nil
	}

	drop := make(map[entity.LineKey]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	var removed []entity.CartLine
	kept := s.lines[:0]
	for _, l := range s.lines {
		if _, ok := drop[l.Key()]; ok {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	s.lines = kept

	if len(removed) > 0 {
		s.notify(ChangeSaved)
	}
	return removed
}

// Deduct takes the quantities of submitted off the cart, leaving anything added
// since the snapshot at generation. Nothing happens when the cart was cleared
// in between. It reports whether this call emptied the cart.
func (s *Store) Deduct(generation uint64, submitted []entity.CartLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return false
	}

	changed := false
	for _, sub := range submitted {
		i := s.indexOf(sub.Key())
		if i < 0 {
			continue
		}
		changed = true
		if s.lines[i].Quantity > sub.Quantity {
			s.lines[i].Quantity -= sub.Quantity
			continue
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}

	if changed {
		if len(s.lines) == 0 {
			s.lines = nil
			s.notice = Notice{}
			s.notify(ChangeCleared)
		} else {
			s.notify(ChangeSaved)
		}
	}
	return changed && len(s.lines) == 0
}

func (s *Store) Lines() []entity.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLines()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Generation: s.generation, Lines: s.copyLines()}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Totals is recomputed from the current lines on every call.
func (s *Store) Totals() pricing.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Sum(s.lines)
}

// Notice returns the last "added" notice while it has not expired.
func (s *Store) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notice.Message == "" || !s.now().Before(s.notice.ExpiresAt) {
		return Notice{}, false
	}
	return s.notice, true
}

func (s *Store) indexOf(key entity.LineKey) int {
	for i, l := range s.lines {
		if l.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Store) copyLines() []entity.CartLine {
	if len(s.lines) == 0 {
		return nil
	}
	out := make([]entity.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) notify(kind ChangeKind) {
	change := Change{Session: s.session, Kind: kind, Lines: s.copyLines()}
	for _, o := range s.observers {
		o.CartChanged(change)
	}
}
