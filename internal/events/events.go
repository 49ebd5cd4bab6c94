package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tricto/go-slot-store/internal/models"
)

const (
	EventOrderPlaced   = "OrderPlaced"
	EventOrderReversed = "OrderReversed"
	EventSlotFull      = "SlotFull"
)

const (
	TopicOrderPlaced   = "order.placed"
	TopicOrderReversed = "order.reversed"
	TopicSlotFull      = "slot.full"
)

// Envelope is the versioned wrapper every published event carries.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       MustMarshal(payload),
	}
}

type OrderPlacedPayload struct {
	OrderID int64              `json:"order_id"`
	UserID  int64              `json:"user_id"`
	SlotID  *int64             `json:"slot_id,omitempty"`
	Items   []models.OrderItem `json:"items,omitempty"`
}

type OrderReversedPayload struct {
	OrderID int64              `json:"order_id"`
	UserID  int64              `json:"user_id"`
	SlotID  *int64             `json:"slot_id,omitempty"`
	Items   []models.OrderItem `json:"items,omitempty"`
}

type SlotFullPayload struct {
	SlotID      int64 `json:"slot_id"`
	ProductID   int64 `json:"product_id"`
	MaxCapacity int   `json:"max_capacity"`
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
