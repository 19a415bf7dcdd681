package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ProcessorConfig is the public configuration a browser needs to start an authorization.
type ProcessorConfig struct {
	ClientID   string
	LocationID string
}

// Processor is a payment processor the storefront can hand a buyer to.
type Processor interface {
	Name() string
	ClientConfig() ProcessorConfig
}

// CaptureRequest charges exactly AmountCents for one order.
type CaptureRequest struct {
	OrderID        uuid.UUID
	SourceID       string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
}

// CaptureResult is a processor's answer. OK is false for declines; Detail keeps the raw
// processor payload for the audit trail. OrderReference is the order id the processor
// recorded on the payment, when it keeps one.
type CaptureResult struct {
	OK             bool            `json:"ok"`
	Reference      string          `json:"reference"`
	OrderReference string          `json:"orderReference,omitempty"`
	Status         string          `json:"status"`
	AmountCents    int64           `json:"amountCents,omitempty"`
	Email          string          `json:"email,omitempty"`
	Detail         json.RawMessage `json:"detail,omitempty"`
}

// Capturer is implemented by processors that can charge server-side.
type Capturer interface {
	AuthorizeAndCapture(ctx context.Context, req CaptureRequest) (CaptureResult, error)
}

// Verifier is implemented by processors that can look up a capture made in the browser.
// The result must carry the OrderReference the payment was created for.
type Verifier interface {
	Lookup(ctx context.Context, reference string) (CaptureResult, error)
}

// ClientConfig is what GetClientConfig returns to the UI, scoped to one order total.
type ClientConfig struct {
	Method      enums.PaymentMethod `json:"method"`
	ClientID    string              `json:"clientId"`
	LocationID  string              `json:"locationId,omitempty"`
	Currency    string              `json:"currency"`
	Amount      decimal.Decimal     `json:"amount"`
	AmountCents int64               `json:"amountCents"`
}

// Registry maps payment methods to the processor that settles them.
type Registry struct {
	mu       sync.RWMutex
	byMethod map[enums.PaymentMethod]Processor
}

func NewRegistry() *Registry {
	return &Registry{byMethod: map[enums.PaymentMethod]Processor{}}
}

// Register binds a processor to a method. Cash never has a processor.
func (r *Registry) Register(method enums.PaymentMethod, p Processor) error {
	if !method.IsValid() {
		return fmt.Errorf("invalid payment method %q", method)
	}
	if !method.RequiresExternalAuthorization() {
		return fmt.Errorf("payment method %q is settled offline", method)
	}
	if p == nil {
		return fmt.Errorf("processor for %q is nil", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMethod[method] = p
	return nil
}

func (r *Registry) Lookup(method enums.PaymentMethod) (Processor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byMethod[method]
	return p, ok
}

// Methods lists the methods with a registered processor.
func (r *Registry) Methods() []enums.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]enums.PaymentMethod, 0, len(r.byMethod))
	for _, m := range enums.PaymentMethods() {
		if _, ok := r.byMethod[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Completed reports whether a processor status string means the funds were captured.
// Square and PayPal report COMPLETED, Stripe reports succeeded.
func Completed(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "SUCCEEDED":
		return true
	}
	return false
}

// idempotencyKey is derived from the order and the payment source. Retrying the same
// source reuses the key; a new card gets a new one. Square caps keys at 45 characters.
func idempotencyKey(orderID uuid.UUID, sourceID string) string {
	sum := sha256.Sum256([]byte(sourceID))
	return hex.EncodeToString(orderID[:]) + "-" + hex.EncodeToString(sum[:6])
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
