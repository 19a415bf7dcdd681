package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const cashProcessor = "cash"

// ReasonReconcileRequired prefixes failed attempts whose capture moved money that the
// order never recorded.
const ReasonReconcileRequired = "reconcile_required"

type orderService interface {
	Get(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error)
	RecordPaymentFailure(ctx context.Context, input orders.PaymentFailureInput) error
}

type captureLocker interface {
	LockKey(scope, id string) string
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// Service reconciles processor outcomes with the order state machine.
type Service interface {
	GetClientConfig(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*ClientConfig, error)
	Capture(ctx context.Context, orderID uuid.UUID, sourceID string, actor orders.Actor) (*models.Order, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, result CaptureResult, actor orders.Actor) (*models.Order, error)
	CollectCash(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error)
}

type service struct {
	orders   orderService
	registry *Registry
	locks    captureLocker
	cfg      config.PaymentsConfig
	breakers map[string]*gobreaker.CircuitBreaker[CaptureResult]
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires payment reconciliation. Each capturing processor gets its own breaker.
func NewService(orderSvc orderService, registry *Registry, locks captureLocker, cfg config.PaymentsConfig, m *metrics.PaymentMetrics, logg *logger.Logger) (Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if registry == nil {
		return nil, fmt.Errorf("processor registry required")
	}
	if locks == nil {
		return nil, fmt.Errorf("capture locker required")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "USD"
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 20 * time.Second
	}
	if cfg.LockTTL < cfg.CaptureTimeout {
		cfg.LockTTL = cfg.CaptureTimeout + 5*time.Second
	}
	if cfg.MarkPaidBackoff <= 0 {
		cfg.MarkPaidBackoff = 100 * time.Millisecond
	}
	if cfg.MarkPaidRetries < 0 {
		cfg.MarkPaidRetries = 0
	}

	svc := &service{
		orders:   orderSvc,
		registry: registry,
		locks:    locks,
		cfg:      cfg,
		breakers: map[string]*gobreaker.CircuitBreaker[CaptureResult]{},
		metrics:  m,
		logg:     logg,
		now:      time.Now,
	}
	for _, method := range registry.Methods() {
		p, _ := registry.Lookup(method)
		if _, ok := p.(Capturer); ok {
			svc.breakers[p.Name()] = svc.newBreaker(p.Name())
		}
	}
	return svc, nil
}

func (s *service) newBreaker(name string) *gobreaker.CircuitBreaker[CaptureResult] {
	failures := s.cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	halfOpen := s.cfg.BreakerHalfOpenN
	if halfOpen <= 0 {
		halfOpen = 1
	}
	return gobreaker.NewCircuitBreaker[CaptureResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(halfOpen),
		Timeout:     s.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// Declines and rejected requests mean the processor is healthy.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				pkgerrors.IsCode(err, pkgerrors.CodePaymentCaptureFailed) ||
				pkgerrors.IsCode(err, pkgerrors.CodeValidation) ||
				pkgerrors.IsCode(err, pkgerrors.CodeIdempotency)
		},
		OnStateChange: func(name string, _ gobreaker.State, to gobreaker.State) {
			s.metrics.BreakerTransition(name, to.String())
			if s.logg != nil {
				ctx := s.logg.WithFields(context.Background(), map[string]any{"processor": name, "state": to.String()})
				s.logg.Warn(ctx, "payments.breaker.state_change")
			}
		},
	})
}

// GetClientConfig returns what the UI needs to authorize exactly the order total.
func (s *service) GetClientConfig(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*ClientConfig, error) {
	order, err := s.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !order.PaymentMethod.RequiresExternalAuthorization() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash orders are settled on delivery").
			WithDetails(map[string]any{"paymentMethod": order.PaymentMethod})
	}
	if order.IsPaid {
		return nil, alreadyPaid(order.ID)
	}
	p, err := s.processorFor(order.PaymentMethod)
	if err != nil {
		return nil, err
	}

	amount := orders.Amount(order)
	pc := p.ClientConfig()
	return &ClientConfig{
		Method:      order.PaymentMethod,
		ClientID:    pc.ClientID,
		LocationID:  pc.LocationID,
		Currency:    s.cfg.Currency,
		Amount:      amount,
		AmountCents: pricing.MinorUnits(amount),
	}, nil
}

// Capture charges the order server-side. Only one capture per order runs at a time. The
// idempotency key is derived from the order and the payment source, so retrying the same
// source cannot charge twice and a new source after a decline is a fresh charge.
func (s *service) Capture(ctx context.Context, orderID uuid.UUID, sourceID string, actor orders.Actor) (*models.Order, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source is required")
	}
	order, err := s.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, alreadyPaid(order.ID)
	}
	p, err := s.processorFor(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	capturer, ok := p.(Capturer)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is captured in the browser").
			WithDetails(map[string]any{"paymentMethod": order.PaymentMethod})
	}

	ctx = s.withOrder(ctx, order.ID)
	release, err := s.lock(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another capture may have paid the order between the first read and the lock.
	order, err = s.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.IsPaid {
		return nil, alreadyPaid(order.ID)
	}

	expected := pricing.MinorUnits(orders.Amount(order))
	req := CaptureRequest{
		OrderID:        order.ID,
		SourceID:       sourceID,
		AmountCents:    expected,
		Currency:       s.cfg.Currency,
		IdempotencyKey: idempotencyKey(order.ID, sourceID),
	}

	result, err := s.capture(ctx, p.Name(), capturer, req)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor unavailable").
			WithDetails(map[string]any{"processor": p.Name()})
	case err != nil:
		return nil, s.fail(ctx, order.ID, p.Name(), captureFailureReason(err), nil, actor, err)
	case !result.OK:
		return nil, s.fail(ctx, order.ID, p.Name(), declineReason(result), result.Detail, actor, nil)
	}
	return s.reconcile(ctx, order.ID, p.Name(), expected, result, actor)
}

// ConfirmPayment records a capture the browser completed. When the processor can look the
// reference up, its answer replaces the posted one and must name this order. A reference
// that already settled another order is rejected by MarkPaid.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, result CaptureResult, actor orders.Actor) (*models.Order, error) {
	result.Reference = strings.TrimSpace(result.Reference)
	if result.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	order, err := s.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if !order.PaymentMethod.RequiresExternalAuthorization() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash orders are settled on delivery")
	}
	p, err := s.processorFor(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	ctx = s.withOrder(ctx, order.ID)

	if verifier, ok := p.(Verifier); ok {
		verified, err := verifier.Lookup(ctx, result.Reference)
		if err != nil {
			return nil, asDependency(err, "verify payment")
		}
		if verified.OrderReference != order.ID.String() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment was not issued for this order").
				WithDetails(map[string]any{"orderId": order.ID, "reference": verified.Reference})
		}
		result = verified
	}
	if !result.OK {
		return nil, s.fail(ctx, order.ID, p.Name(), declineReason(result), result.Detail, actor, nil)
	}
	if result.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "captured amount is required").
			WithDetails(map[string]any{"orderId": order.ID, "reference": result.Reference})
	}
	return s.reconcile(ctx, order.ID, p.Name(), pricing.MinorUnits(orders.Amount(order)), result, actor)
}

// CollectCash marks a cash order paid on behalf of the admin who collected it.
func (s *service) CollectCash(ctx context.Context, orderID uuid.UUID, actor orders.Actor) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cash collection requires admin role")
	}
	order, err := s.orders.Get(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != enums.PaymentMethodCash {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not a cash order").
			WithDetails(map[string]any{"paymentMethod": order.PaymentMethod})
	}
	now := s.now().UTC()
	detail, _ := json.Marshal(map[string]any{
		"collectedBy": actor.UserID,
		"amount":      orders.Amount(order),
		"collectedAt": now,
	})
	paid, err := s.orders.MarkPaid(ctx, orders.MarkPaidInput{
		OrderID:   order.ID,
		Processor: cashProcessor,
		Actor:     actor,
		Result: types.PaymentResult{
			Reference:  "cash-" + uuid.NewString(),
			Status:     "COLLECTED",
			Processor:  cashProcessor,
			UpdateTime: &now,
			Raw:        detail,
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncReconcile(metrics.OutcomeSucceeded)
	return paid, nil
}

func (s *service) capture(ctx context.Context, processor string, capturer Capturer, req CaptureRequest) (CaptureResult, error) {
	breaker, ok := s.breakers[processor]
	if !ok {
		return CaptureResult{}, pkgerrors.New(pkgerrors.CodeInternal, "no circuit breaker for processor "+processor)
	}

	started := time.Now()
	result, err := breaker.Execute(func() (CaptureResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CaptureTimeout)
		defer cancel()
		return capturer.AuthorizeAndCapture(callCtx, req)
	})

	outcome := metrics.OutcomeSucceeded
	switch {
	case err != nil:
		outcome = metrics.OutcomeError
	case !result.OK:
		outcome = metrics.OutcomeFailed
	}
	s.metrics.ObserveCapture(processor, outcome, time.Since(started))
	return result, err
}

// reconcile applies markPaid after the money moved. Transient persistence errors are retried
// with backoff; finding the order already paid with the same reference counts as success.
// A captured amount that differs from the order total leaves the order unpaid and is flagged
// reconcile_required.
func (s *service) reconcile(ctx context.Context, orderID uuid.UUID, processor string, expectedCents int64, result CaptureResult, actor orders.Actor) (*models.Order, error) {
	if result.AmountCents != expectedCents {
		mismatch := fmt.Errorf("captured %d cents, order total is %d", result.AmountCents, expectedCents)
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"processor":      processor,
				"reference":      result.Reference,
				"captured_cents": result.AmountCents,
				"expected_cents": expectedCents,
			})
			s.logg.Error(logCtx, "payments.reconcile_required", mismatch)
		}
		reason := ReasonReconcileRequired + ": amount mismatch, reference " + result.Reference
		return nil, s.recordFailure(ctx, orderID, processor, reason, result.Detail, actor, mismatch, metrics.OutcomeReconcileRequired)
	}

	now := s.now().UTC()
	input := orders.MarkPaidInput{
		OrderID:   orderID,
		Processor: processor,
		Actor:     actor,
		Result: types.PaymentResult{
			Reference:  result.Reference,
			Status:     result.Status,
			Email:      result.Email,
			UpdateTime: &now,
			Processor:  processor,
			Raw:        result.Detail,
		},
	}

	var paid *models.Order
	backoff := retry.WithMaxRetries(uint64(s.cfg.MarkPaidRetries), retry.NewExponential(s.cfg.MarkPaidBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		order, err := s.orders.MarkPaid(ctx, input)
		if err == nil {
			paid = order
			return nil
		}
		if pkgerrors.IsCode(err, pkgerrors.CodePersistenceConflict) || pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			return retry.RetryableError(err)
		}
		return err
	})

	switch {
	case err == nil:
		s.metrics.IncReconcile(metrics.OutcomeSucceeded)
		return paid, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		s.metrics.IncReconcile(metrics.OutcomeFailed)
		return nil, err
	case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid):
		order, getErr := s.orders.Get(ctx, orderID, actor)
		if getErr == nil && order.PaymentResult != nil && order.PaymentResult.Reference == result.Reference {
			s.metrics.IncReconcile(metrics.OutcomeConverged)
			return order, nil
		}
		s.metrics.IncReconcile(metrics.OutcomeFailed)
		return nil, err
	default:
		s.metrics.IncReconcile(metrics.OutcomeError)
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"processor": processor, "reference": result.Reference})
			s.logg.Error(logCtx, "payments.reconcile.exhausted", err)
		}
		return nil, err
	}
}

// fail appends a failed attempt and reports PaymentCaptureFailed. The order stays unpaid so
// the buyer can retry.
func (s *service) fail(ctx context.Context, orderID uuid.UUID, processor, reason string, detail json.RawMessage, actor orders.Actor, cause error) error {
	return s.recordFailure(ctx, orderID, processor, reason, detail, actor, cause, metrics.OutcomeFailed)
}

func (s *service) recordFailure(ctx context.Context, orderID uuid.UUID, processor, reason string, detail json.RawMessage, actor orders.Actor, cause error, outcome string) error {
	recordErr := s.orders.RecordPaymentFailure(ctx, orders.PaymentFailureInput{
		OrderID:   orderID,
		Processor: processor,
		Reason:    reason,
		Detail:    detail,
		Actor:     actor,
	})
	if pkgerrors.IsCode(recordErr, pkgerrors.CodeAlreadyPaid) {
		return recordErr
	}
	if recordErr != nil && s.logg != nil {
		s.logg.Error(ctx, "payments.failure_record_failed", recordErr)
	}
	s.metrics.IncReconcile(outcome)

	details := map[string]any{"orderId": orderID, "processor": processor, "reason": reason}
	if cause != nil {
		if typed := pkgerrors.As(cause); typed != nil {
			if inner, ok := typed.Details().(map[string]any); ok {
				for k, v := range inner {
					details[k] = v
				}
			}
		}
		return pkgerrors.Wrap(pkgerrors.CodePaymentCaptureFailed, cause, "payment capture failed").WithDetails(details)
	}
	return pkgerrors.New(pkgerrors.CodePaymentCaptureFailed, "payment capture failed").WithDetails(details)
}

func (s *service) lock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	key := s.locks.LockKey("capture", orderID.String())
	token := uuid.NewString()
	ok, err := s.locks.AcquireLock(ctx, key, token, s.cfg.LockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire capture lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a capture for this order is already in progress").
			WithDetails(map[string]any{"orderId": orderID})
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if _, err := s.locks.ReleaseLock(releaseCtx, key, token); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payments.lock.release_failed")
		}
	}, nil
}

func (s *service) processorFor(method enums.PaymentMethod) (Processor, error) {
	p, ok := s.registry.Lookup(method)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor not configured").
			WithDetails(map[string]any{"paymentMethod": method})
	}
	return p, nil
}

func (s *service) withOrder(ctx context.Context, orderID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, orderID.String())
}

func alreadyPaid(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyPaid, "order already paid").
		WithDetails(map[string]any{"orderId": orderID})
}

func captureFailureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "processor timeout"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Error()
	}
	return err.Error()
}

func declineReason(result CaptureResult) string {
	if result.Status != "" {
		return "declined: " + strings.ToLower(result.Status)
	}
	return "declined"
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
