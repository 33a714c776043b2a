package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/entity"
)

func productA() entity.Product {
	return entity.Product{
		ID:    "product-a",
		Name:  "Mint Pod",
		Price: decimal.NewFromInt(10),
		Branches: map[string][]entity.Variant{
			"main":   {{Name: "Mint", Available: true}, {Name: "Grape", Available: true}},
			"second": {{Name: "Mint", Available: true}},
		},
	}
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) CartChanged(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func TestAddLine_MergesSameTriple(t *testing.T) {
	s := NewStore("s1")

	_, err := s.AddLine(productA(), "main", 0)
	require.NoError(t, err)
	_, err = s.AddLine(productA(), "main", 0)
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAddLine_ThreeUnitsTotalThirty(t *testing.T) {
	s := NewStore("s1")
	for i := 0; i < 3; i++ {
		_, err := s.AddLine(productA(), "main", 0)
		require.NoError(t, err)
	}

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)

	totals := s.Totals()
	assert.Equal(t, 3, totals.Quantity)
	assert.True(t, totals.Price.Equal(decimal.NewFromInt(30)))
}

func TestAddLine_DistinctBranchOrVariantAppends(t *testing.T) {
	s := NewStore("s1")
	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 1)
	_, _ = s.AddLine(productA(), "second", 0)

	lines := s.Lines()
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, 1, l.Quantity)
	}
}

func TestAddLine_MatchesVariantNameCaseInsensitively(t *testing.T) {
	s := NewStore("s1")
	s.Restore([]entity.CartLine{{
		ProductID:   "product-a",
		Branch:      "main",
		VariantName: " MINT",
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(10),
	}})

	_, err := s.AddLine(productA(), "main", 0)
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAddLine_InvalidReferenceLeavesCartUnchanged(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))

	_, err := s.AddLine(productA(), "third", 0)
	assert.True(t, errors.Is(err, entity.ErrInvalidReference))

	_, err = s.AddLine(productA(), "main", 5)
	assert.True(t, errors.Is(err, entity.ErrInvalidReference))

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, rec.all())
}

func TestAddLine_CapturesPriceAtAddTime(t *testing.T) {
	s := NewStore("s1")
	p := productA()
	_, err := s.AddLine(p, "main", 0)
	require.NoError(t, err)

	p.Price = decimal.NewFromInt(99)
	_, err = s.AddLine(p, "main", 0)
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.True(t, lines[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, s.Totals().Price.Equal(decimal.NewFromInt(20)))
}

func TestRemoveLine(t *testing.T) {
	s := NewStore("s1")
	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 0)

	assert.True(t, s.RemoveLine("product-a", "main", "Mint", 1))
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)

	assert.True(t, s.RemoveLine("product-a", "", "mint", 1))
	assert.Equal(t, 0, s.Len())
}

func TestRemoveLine_AmountLargerThanQuantityDeletes(t *testing.T) {
	s := NewStore("s1")
	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 0)

	assert.True(t, s.RemoveLine("product-a", "main", "Mint", 5))
	assert.Equal(t, 0, s.Len())
}

func TestRemoveLine_MissingIsNoop(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))
	_, _ = s.AddLine(productA(), "main", 0)

	assert.NotPanics(t, func() {
		assert.False(t, s.RemoveLine("product-b", "main", "Mint", 1))
		assert.False(t, s.RemoveLine("product-a", "second", "Mint", 1))
		assert.False(t, s.RemoveLine("product-a", "main", "Mango", 1))
	})

	assert.Equal(t, 1, s.Len())
	assert.Len(t, rec.all(), 1)
}

func TestTotals_MatchesLineSum(t *testing.T) {
	s := NewStore("s1")
	assert.True(t, s.Totals().Price.IsZero())

	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 1)
	_, _ = s.AddLine(productA(), "main", 1)
	s.RemoveLine("product-a", "main", "Mint", 1)

	want := decimal.Zero
	for _, l := range s.Lines() {
		want = want.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, s.Totals().Price.Equal(want))
	assert.Equal(t, 2, s.Totals().Quantity)
}

func TestClear_NotifiesAndBumpsGeneration(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))
	_, _ = s.AddLine(productA(), "main", 0)

	before := s.Snapshot().Generation
	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, before+1, s.Snapshot().Generation)

	changes := rec.all()
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeSaved, changes[0].Kind)
	assert.Equal(t, ChangeCleared, changes[1].Kind)
	assert.Equal(t, "s1", changes[1].Session)
	assert.Empty(t, changes[1].Lines)
}

func TestEvict(t *testing.T) {
	s := NewStore("s1")
	mint, _ := s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 1)

	snap := s.Snapshot()
	removed := s.Evict(snap.Generation, []entity.LineKey{mint.Key()})

	require.Len(t, removed, 1)
	assert.Equal(t, "Mint", removed[0].VariantName)
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Grape", lines[0].VariantName)
}

func TestEvict_StaleGenerationIsDiscarded(t *testing.T) {
	s := NewStore("s1")
	mint, _ := s.AddLine(productA(), "main", 0)
	snap := s.Snapshot()

	s.Clear()
	_, _ = s.AddLine(productA(), "main", 0)

	assert.Nil(t, s.Evict(snap.Generation, []entity.LineKey{mint.Key()}))
	assert.Equal(t, 1, s.Len())
}

func TestNotice_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 3, 4, 13, 5, 9, 0, time.UTC)
	s := NewStore("s1", WithNoticeTTL(2*time.Second), WithClock(func() time.Time { return now }))

	_, _ = s.AddLine(productA(), "main", 0)
	n, ok := s.Notice()
	require.True(t, ok)
	assert.Equal(t, "Mint Pod (Mint) added to cart!", n.Message)

	now = now.Add(2 * time.Second)
	_, ok = s.Notice()
	assert.False(t, ok)
}

func TestRestore_DropsInvalidAndMergesDuplicates(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))
	s.Restore([]entity.CartLine{
		{ProductID: "p", Branch: "main", VariantName: "Mint", Quantity: 1, UnitPrice: decimal.NewFromInt(1)},
		{ProductID: "p", Branch: "main", VariantName: "mint", Quantity: 2, UnitPrice: decimal.NewFromInt(1)},
		{ProductID: "p", Branch: "main", VariantName: "Grape", Quantity: 0, UnitPrice: decimal.NewFromInt(1)},
	})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Empty(t, rec.all())
}

type memorySaver struct {
	mu      sync.Mutex
	carts   map[string][]entity.CartLine
	deletes int
	block   chan struct{}
}

func newMemorySaver() *memorySaver {
	return &memorySaver{carts: map[string][]entity.CartLine{}}
}

func (m *memorySaver) SaveCart(_ context.Context, session string, lines []entity.CartLine) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[session] = lines
	return nil
}

func (m *memorySaver) DeleteCart(_ context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, session)
	m.deletes++
	return nil
}

func TestPersister_AppliesChangesInOrder(t *testing.T) {
	saver := newMemorySaver()
	p := NewPersister(saver, time.Second)
	s := NewStore("s1", WithObserver(p))

	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 1)
	p.Close()

	saved := saver.carts["s1"]
	require.Len(t, saved, 2)
	assert.Equal(t, 2, saved[0].Quantity)
}

func TestPersister_ClearAndEmptyDelete(t *testing.T) {
	saver := newMemorySaver()
	p := NewPersister(saver, time.Second)
	s := NewStore("s1", WithObserver(p))

	_, _ = s.AddLine(productA(), "main", 0)
	s.RemoveLine("product-a", "main", "Mint", 1)
	_, _ = s.AddLine(productA(), "main", 0)
	s.Clear()
	p.Close()

	_, ok := saver.carts["s1"]
	assert.False(t, ok)
	assert.GreaterOrEqual(t, saver.deletes, 1)
}

func TestPersister_DoesNotBlockMutation(t *testing.T) {
	saver := newMemorySaver()
	saver.block = make(chan struct{})
	p := NewPersister(saver, time.Second)
	s := NewStore("s1", WithObserver(p))

	done := make(chan struct{})
	go func() {
		_, _ = s.AddLine(productA(), "main", 0)
		_, _ = s.AddLine(productA(), "main", 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cart mutation blocked on a pending write")
	}

	close(saver.block)
	p.Close()
	assert.Equal(t, 2, saver.carts["s1"][0].Quantity)
}

func TestPersister_SlowStorageDoesNotBlockMutations(t *testing.T) {
	saver := newMemorySaver()
	saver.block = make(chan struct{})
	p := NewPersister(saver, time.Second)

	sessions := []string{"s1", "s2", "s3"}
	stores := make([]*Store, len(sessions))
	for i, id := range sessions {
		stores[i] = NewStore(id, WithObserver(p))
	}

	done := make(chan struct{})
	go func() {
		for n := 0; n < 50; n++ {
			for _, s := range stores {
				_, _ = s.AddLine(productA(), "main", 0)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cart mutation waited on storage")
	}
	assert.LessOrEqual(t, p.Pending(), len(sessions))

	close(saver.block)
	p.Close()
	for _, id := range sessions {
		require.Len(t, saver.carts[id], 1)
		assert.Equal(t, 50, saver.carts[id][0].Quantity)
	}
}

func TestPersister_DropsAfterClose(t *testing.T) {
	saver := newMemorySaver()
	p := NewPersister(saver, time.Second)
	p.Close()
	p.Close()

	assert.NotPanics(t, func() {
		p.CartChanged(Change{Session: "s1", Kind: ChangeSaved})
	})
}

func TestDeduct_KeepsLinesAddedAfterSnapshot(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))
	_, _ = s.AddLine(productA(), "main", 0)
	snap := s.Snapshot()

	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 1)

	assert.False(t, s.Deduct(snap.Generation, snap.Lines))

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Mint", lines[0].VariantName)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, "Grape", lines[1].VariantName)
}

func TestDeduct_EmptiesSubmittedCart(t *testing.T) {
	rec := &recorder{}
	s := NewStore("s1", WithObserver(rec))
	_, _ = s.AddLine(productA(), "main", 0)
	_, _ = s.AddLine(productA(), "main", 0)
	snap := s.Snapshot()

	assert.True(t, s.Deduct(snap.Generation, snap.Lines))
	assert.Equal(t, 0, s.Len())

	changes := rec.all()
	assert.Equal(t, ChangeCleared, changes[len(changes)-1].Kind)
}

func TestDeduct_StaleGenerationIsIgnored(t *testing.T) {
	s := NewStore("s1")
	_, _ = s.AddLine(productA(), "main", 0)
	snap := s.Snapshot()

	s.Clear()
	_, _ = s.AddLine(productA(), "main", 0)

	assert.False(t, s.Deduct(snap.Generation, snap.Lines))
	assert.Equal(t, 1, s.Len())
}
