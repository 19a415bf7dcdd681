package types

import (
	"encoding/json"
	"time"
)

// PaymentResult is the processor audit detail stored on a paid order.
type PaymentResult struct {
	Reference  string          `json:"id"`
	Status     string          `json:"status"`
	Email      string          `json:"email_address,omitempty"`
	UpdateTime *time.Time      `json:"update_time,omitempty"`
	Processor  string          `json:"processor"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}
