package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// Manager opens cart sessions against a snapshot store.
type Manager struct {
	store   SnapshotStore
	catalog catalog.Reader
	logg    *logger.Logger
	retries uint64
	backoff time.Duration
}

// NewManager wires the snapshot store, catalog reader and persistence retry policy.
func NewManager(store SnapshotStore, reader catalog.Reader, logg *logger.Logger, cfg config.CartConfig) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if reader == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	retries := cfg.PersistRetries
	if retries < 0 {
		retries = 0
	}
	backoff := cfg.PersistBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &Manager{
		store:   store,
		catalog: reader,
		logg:    logg,
		retries: uint64(retries),
		backoff: backoff,
	}, nil
}

// Open rehydrates the session's cart. A missing or unreadable snapshot yields an empty
// cart; unreadable ones are logged and otherwise ignored.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session is required")
	}
	s := &Session{id: sessionID, m: m, cart: New()}
	s.rehydrate(ctx)
	return s, nil
}

// Session binds one session id to its cart and the store that persists it.
// Mutations on a session are expected to be issued sequentially.
type Session struct {
	id   string
	m    *Manager
	cart *Cart
}

func (s *Session) ID() string { return s.id }

// Cart exposes the aggregate for read access.
func (s *Session) Cart() *Cart { return s.cart }

func (s *Session) rehydrate(ctx context.Context) {
	raw, err := s.m.store.Load(ctx, s.id)
	if err != nil {
		s.warn(ctx, "cart.rehydrate.load_failed", err)
		return
	}
	if len(raw) == 0 {
		return
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.warn(ctx, "cart.rehydrate.unreadable", err)
		return
	}
	c, err := FromSnapshot(snap)
	if err != nil {
		s.warn(ctx, "cart.rehydrate.inconsistent", err)
		return
	}
	s.cart = c
}

// AddItem reads fresh stock for the product and adds one unit.
func (s *Session) AddItem(ctx context.Context, productID uuid.UUID) error {
	product, err := s.m.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if err := s.cart.AddItem(*product); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Increase adds one unit of an existing line. Absent items are ignored.
func (s *Session) Increase(ctx context.Context, productID uuid.UUID) error {
	changed, err := s.cart.Increase(productID)
	if err != nil || !changed {
		return err
	}
	return s.persist(ctx)
}

func (s *Session) Decrease(ctx context.Context, productID uuid.UUID) error {
	if err := s.cart.Decrease(productID); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *Session) Remove(ctx context.Context, productID uuid.UUID) error {
	if err := s.cart.Remove(productID); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Clear empties the cart and deletes the stored snapshot.
func (s *Session) Clear(ctx context.Context) error {
	s.cart.Clear()
	err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.m.store.Clear(ctx, s.id)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart snapshot")
	}
	return nil
}

// persist writes the whole snapshot. On exhaustion the in-memory cart is kept.
func (s *Session) persist(ctx context.Context) error {
	payload, err := json.Marshal(s.cart.Snapshot())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart snapshot")
	}
	err = s.withRetry(ctx, func(ctx context.Context) error {
		return s.m.store.Save(ctx, s.id, payload)
	})
	if err != nil {
		s.warn(ctx, "cart.persist.exhausted", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart snapshot")
	}
	return nil
}

func (s *Session) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := retry.WithMaxRetries(s.m.retries, retry.NewExponential(s.m.backoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := op(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *Session) warn(ctx context.Context, msg string, err error) {
	if s.m.logg == nil {
		return
	}
	ctx = s.m.logg.WithCartSession(ctx, s.id)
	ctx = s.m.logg.WithField(ctx, "error", err.Error())
	s.m.logg.Warn(ctx, msg)
}

// View is the cart as returned to clients, with the increase predicate per line.
type View struct {
	Items         []ViewItem      `json:"items"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

type ViewItem struct {
	LineItem
	Subtotal    decimal.Decimal `json:"subtotal"`
	CanIncrease bool            `json:"canIncrease"`
}

func (s *Session) View() View {
	items := s.cart.Items()
	out := View{
		Items:         make([]ViewItem, 0, len(items)),
		TotalQuantity: s.cart.TotalQuantity(),
		TotalPrice:    s.cart.TotalPrice(),
	}
	for _, item := range items {
		out.Items = append(out.Items, ViewItem{
			LineItem:    item,
			Subtotal:    item.Subtotal(),
			CanIncrease: item.Quantity < item.StockCeiling,
		})
	}
	return out
}
