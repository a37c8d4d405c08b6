package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deplacements/internal/core"
)

// RecapRequestMessage asks a worker to compute and publish the company
// recap of one month. Month is 0-based.
type RecapRequestMessage struct {
	RequestID string    `json:"requestId"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecapRequestMessage creates a request with a fresh id.
func NewRecapRequestMessage(year, month int) *RecapRequestMessage {
	return &RecapRequestMessage{
		RequestID: uuid.NewString(),
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

// Validate rejects requests a worker could never satisfy.
func (m *RecapRequestMessage) Validate() error {
	if _, err := uuid.Parse(m.RequestID); err != nil {
		return fmt.Errorf("invalid request id %q: %w", m.RequestID, err)
	}
	return core.ValidateYearMonth(m.Year, m.Month)
}

// ToJSON converts the message to JSON bytes
func (m *RecapRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecapRequestMessageFromJSON creates a message from JSON bytes
func RecapRequestMessageFromJSON(data []byte) (*RecapRequestMessage, error) {
	var msg RecapRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
