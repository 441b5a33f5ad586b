// Package mirror publishes committed ledger movements to external systems
// (a Kafka topic, an S3 bucket) on a best-effort basis. Mirror failures never
// affect the ledger itself.
package mirror

import (
	"context"
	"time"
)

// Event types.
const (
	ConversionCompleted = "conversion.completed"
	OfferCreated        = "offer.created"
	OfferCancelled      = "offer.cancelled"
	OfferExpired        = "offer.expired"
	TradeCompleted      = "trade.completed"
)

// Event is one committed ledger movement.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Sink delivers a single event to an external system.
type Sink interface {
	Name() string
	Write(ctx context.Context, e Event) error
}
