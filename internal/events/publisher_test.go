package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/entity"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestOrderSubmitted(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)

	order := &entity.Order{OrderNumber: "ORD-250304130509", Total: decimal.NewFromInt(30), Branch: "main"}
	require.NoError(t, p.OrderSubmitted(context.Background(), order))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-submitted-ORD-250304130509", string(w.msgs[0].Key))

	var got entity.Order
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "main", got.Branch)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(30)))
}

func TestCartCleared(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w)
	at := time.Date(2025, 3, 4, 13, 5, 9, 0, time.UTC)
	p.now = func() time.Time { return at }

	require.NoError(t, p.CartCleared(context.Background(), "s1", ReasonBranchChange))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "cart-cleared-s1", string(w.msgs[0].Key))
	var got CartCleared
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, CartCleared{Session: "s1", Reason: ReasonBranchChange, At: at}, got)
}

func TestPublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w)
	assert.Error(t, p.CartCleared(context.Background(), "s1", ReasonAbandoned))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
