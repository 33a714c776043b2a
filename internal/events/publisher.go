package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartCleared struct {
	Session string    `json:"session"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

const (
	ReasonCheckout     = "checkout"
	ReasonBranchChange = "branch-change"
	ReasonAbandoned    = "abandoned"
)

type Publisher struct {
	writer MessageWriter
	now    func() time.Time
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer, now: time.Now}
}

// OrderSubmitted publishes order-submitted-<orderNumber>.
func (p *Publisher) OrderSubmitted(ctx context.Context, order *entity.Order) error {
	return p.publish(ctx, fmt.Sprintf("order-submitted-%s", order.OrderNumber), order)
}

// CartCleared publishes cart-cleared-<session>.
func (p *Publisher) CartCleared(ctx context.Context, session, reason string) error {
	return p.publish(ctx, fmt.Sprintf("cart-cleared-%s", session), CartCleared{Session: session, Reason: reason, At: p.now()})
}

func (p *Publisher) publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Error().Err(err).Msgf("Error publishing event %s", key)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
