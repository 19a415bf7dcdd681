package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const succeededReferenceIndex = "ux_payment_attempts_succeeded_reference"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CartSession is the slice of a cart session checkout needs.
type CartSession interface {
	Cart() *cart.Cart
	Clear(ctx context.Context) error
}

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == enums.UserRoleAdmin }

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// CheckoutInput carries everything needed to place an order from a cart session.
type CheckoutInput struct {
	Actor           Actor
	Session         CartSession
	ShippingAddress types.ShippingAddress
	PaymentMethod   enums.PaymentMethod
}

// MarkPaidInput records a successful payment against an order.
type MarkPaidInput struct {
	OrderID   uuid.UUID
	Processor string
	Result    types.PaymentResult
	Actor     Actor
}

// PaymentFailureInput records a failed capture; the order stays unpaid.
type PaymentFailureInput struct {
	OrderID   uuid.UUID
	Processor string
	Reason    string
	Detail    json.RawMessage
	Actor     Actor
}

// Service exposes the order lifecycle.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error)
	RecordPaymentFailure(ctx context.Context, input PaymentFailureInput) error
	Deliver(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	PaymentAttempts(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.PaymentAttempt, error)
	History(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error)
	AdminList(ctx context.Context, params pagination.Params, filters AdminFilters) (pagination.Page[models.Order], error)
	Summary(ctx context.Context) (*SalesSummary, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	rules   pricing.Rules
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, rules pricing.Rules, m *metrics.OrderMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		rules:   rules,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Checkout freezes the cart into an order. The cart is cleared only after the order
// commits; a failed clear is logged and the order is still returned.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart session is required")
	}
	input.ShippingAddress.Normalize()

	c := input.Session.Cart()
	if err := ValidateCreate(len(c.Items()), input.ShippingAddress, input.PaymentMethod); err != nil {
		return nil, err
	}

	price, err := pricing.Compute(c.TotalPrice(), s.rules)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.Actor.UserID,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		ItemsPrice:      price.ItemsPrice,
		TaxPrice:        price.TaxPrice,
		ShippingPrice:   price.ShippingPrice,
		TotalPrice:      price.TotalPrice,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, item := range c.Items() {
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Slug:      item.Slug,
			Image:     item.Image,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Position:  i,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			OccurredAt:    now,
			Data: payloads.OrderCreatedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentMethod: order.PaymentMethod,
				ItemCount:     len(order.Items),
				ItemsPrice:    order.ItemsPrice,
				TaxPrice:      order.TaxPrice,
				ShippingPrice: order.ShippingPrice,
				TotalPrice:    order.TotalPrice,
			},
		})
	})
	if err != nil {
		s.metrics.IncTransition("create", resultLabel(err))
		return nil, asDependency(err, "create order")
	}
	s.metrics.IncTransition("create", "ok")

	if err := input.Session.Clear(ctx); err != nil && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Error(logCtx, "checkout.cart_clear_failed", err)
	}
	return order, nil
}

// Get returns an order visible to the actor: its owner or an admin.
func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.load(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// MarkPaid applies the paid transition, appends a succeeded attempt and emits order_paid
// in one transaction.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var paid *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		patch, err := MarkPaid(order, input.Result, s.now())
		if err != nil {
			return err
		}
		reference := input.Result.Reference
		if err := s.ensureReferenceUnused(ctx, repo, order.ID, reference); err != nil {
			return err
		}
		if err := s.update(ctx, repo, order, patch); err != nil {
			return err
		}

		attempt := &models.PaymentAttempt{
			ID:        uuid.New(),
			OrderID:   order.ID,
			Method:    order.PaymentMethod,
			Processor: input.Processor,
			Amount:    order.TotalPrice,
			Status:    enums.PaymentAttemptSucceeded,
			Reference: nonEmpty(reference),
			Detail:    rawDetail(input.Result),
			CreatedAt: s.now().UTC(),
		}
		if err := repo.CreatePaymentAttempt(ctx, attempt); err != nil {
			if db.IsUniqueViolation(err, succeededReferenceIndex) {
				return referenceInUse(order.ID, reference)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentMethod: order.PaymentMethod,
				Reference:     reference,
				Amount:        order.TotalPrice,
				PaidAt:        *order.PaidAt,
			},
		}); err != nil {
			return err
		}
		paid = order
		return nil
	})
	s.metrics.IncTransition("mark_paid", resultLabel(err))
	if err != nil {
		return nil, asDependency(err, "mark order paid")
	}
	return paid, nil
}

// RecordPaymentFailure appends a failed attempt and emits payment_failed. The order row
// is not modified.
func (s *service) RecordPaymentFailure(ctx context.Context, input PaymentFailureInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if err := PayFail(order); err != nil {
			return err
		}

		attempt := &models.PaymentAttempt{
			ID:           uuid.New(),
			OrderID:      order.ID,
			Method:       order.PaymentMethod,
			Processor:    input.Processor,
			Amount:       order.TotalPrice,
			Status:       enums.PaymentAttemptFailed,
			ErrorMessage: nonEmpty(input.Reason),
			Detail:       input.Detail,
			CreatedAt:    s.now().UTC(),
		}
		if err := repo.CreatePaymentAttempt(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor.ref(),
			Data: payloads.PaymentFailedEvent{
				OrderID:       order.ID,
				PaymentMethod: order.PaymentMethod,
				Amount:        order.TotalPrice,
				Reason:        input.Reason,
			},
		})
	})
	s.metrics.IncTransition("pay_fail", resultLabel(err))
	if err != nil {
		return asDependency(err, "record payment failure")
	}
	return nil
}

// Deliver applies the delivered transition. Only admins carry delivery authority.
func (s *service) Deliver(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery authority required")
	}

	var delivered *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.load(ctx, repo, orderID)
		if err != nil {
			return err
		}
		patch, err := MarkDelivered(order, s.now())
		if err != nil {
			return err
		}
		if err := s.update(ctx, repo, order, patch); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderDeliveredEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				DeliveredAt: *order.DeliveredAt,
			},
		}); err != nil {
			return err
		}
		delivered = order
		return nil
	})
	s.metrics.IncTransition("deliver", resultLabel(err))
	if err != nil {
		return nil, asDependency(err, "deliver order")
	}
	return delivered, nil
}

func (s *service) PaymentAttempts(ctx context.Context, orderID uuid.UUID, actor Actor) ([]models.PaymentAttempt, error) {
	if _, err := s.Get(ctx, orderID, actor); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListPaymentAttempts(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment attempts")
	}
	return attempts, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (pagination.Page[models.Order], error) {
	if userID == uuid.Nil {
		return pagination.Page[models.Order]{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	page, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return page, listError(err)
	}
	return page, nil
}

func (s *service) AdminList(ctx context.Context, params pagination.Params, filters AdminFilters) (pagination.Page[models.Order], error) {
	page, err := s.repo.ListAll(ctx, params, filters)
	if err != nil {
		return page, listError(err)
	}
	return page, nil
}

func (s *service) Summary(ctx context.Context) (*SalesSummary, error) {
	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sales summary")
	}
	return summary, nil
}

func (s *service) load(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// update persists patch against the version the order was read at, then mirrors it
// onto the in-memory order.
func (s *service) update(ctx context.Context, repo Repository, order *models.Order, patch Patch) error {
	err := repo.Update(ctx, order.ID, patch, order.Version)
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleVersion):
		s.metrics.IncConflict()
		return pkgerrors.Wrap(pkgerrors.CodePersistenceConflict, err, "order was modified concurrently")
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
	}
	patch.Apply(order)
	order.Version++
	return nil
}

func listError(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}

// ensureReferenceUnused rejects a processor reference that already settled another order.
// The same order finding its own reference never gets here: MarkPaid reports AlreadyPaid first.
func (s *service) ensureReferenceUnused(ctx context.Context, repo Repository, orderID uuid.UUID, reference string) error {
	if reference == "" {
		return nil
	}
	existing, err := repo.FindSucceededAttempt(ctx, reference)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment reference")
	case existing.OrderID != orderID:
		return referenceInUse(orderID, reference)
	}
	return nil
}

func referenceInUse(orderID uuid.UUID, reference string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "payment reference already settles another order").
		WithDetails(map[string]any{"orderId": orderID, "reference": reference})
}

// asDependency leaves typed errors alone and wraps anything else, such as outbox failures.
func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return string(pkgerrors.CodeInternal)
}

func nonEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func rawDetail(result types.PaymentResult) json.RawMessage {
	if len(result.Raw) > 0 {
		return result.Raw
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return encoded
}

// Amount is the exact total a processor must charge for the order.
func Amount(order *models.Order) decimal.Decimal {
	return pricing.Round2(order.TotalPrice)
}
