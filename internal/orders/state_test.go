package orders

import (
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
)

func completeAddress() types.ShippingAddress {
	return types.ShippingAddress{
		FullName:   "Ada Lovelace",
		Address:    "12 Analytical St",
		City:       "London",
		Province:   "Greater London",
		PostalCode: "N1 9GU",
	}
}

func TestMarkPaidTwiceRejectedAndPaidAtUnchanged(t *testing.T) {
	order := &models.Order{ID: uuid.New()}
	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	patch, err := MarkPaid(order, types.PaymentResult{Reference: "pay_1"}, first)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	patch.Apply(order)
	if !order.IsPaid || order.PaidAt == nil || !order.PaidAt.Equal(first) {
		t.Fatalf("expected paid at %v, got %+v", first, order.PaidAt)
	}

	_, err = MarkPaid(order, types.PaymentResult{Reference: "pay_2"}, first.Add(time.Hour))
	if !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid) {
		t.Fatalf("expected ALREADY_PAID, got %v", err)
	}
	if !order.PaidAt.Equal(first) {
		t.Fatalf("paidAt moved to %v", order.PaidAt)
	}
	if order.PaymentResult.Reference != "pay_1" {
		t.Fatalf("payment result overwritten: %+v", order.PaymentResult)
	}
}

func TestMarkDeliveredRequiresPaid(t *testing.T) {
	order := &models.Order{ID: uuid.New()}

	_, err := MarkDelivered(order, time.Now())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotPaid) {
		t.Fatalf("expected NOT_PAID, got %v", err)
	}
	if order.IsDelivered {
		t.Fatal("unpaid order must not be delivered")
	}
}

func TestMarkDeliveredTwiceRejected(t *testing.T) {
	order := &models.Order{ID: uuid.New(), IsPaid: true}

	patch, err := MarkDelivered(order, time.Now())
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	patch.Apply(order)
	if StatusOf(order) != StatusDelivered {
		t.Fatalf("expected delivered status, got %s", StatusOf(order))
	}

	if _, err := MarkDelivered(order, time.Now()); !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyDelivered) {
		t.Fatalf("expected ALREADY_DELIVERED, got %v", err)
	}
}

func TestPayFailOnlyBeforePayment(t *testing.T) {
	if err := PayFail(&models.Order{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := PayFail(&models.Order{IsPaid: true}); !pkgerrors.IsCode(err, pkgerrors.CodeAlreadyPaid) {
		t.Fatalf("expected ALREADY_PAID, got %v", err)
	}
}

func TestValidateCreate(t *testing.T) {
	if err := ValidateCreate(2, completeAddress(), enums.PaymentMethodPayPal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ValidateCreate(0, types.ShippingAddress{FullName: "x"}, enums.PaymentMethod("bitcoin"))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	for _, key := range []string{"cart", "shippingAddress", "paymentMethod"} {
		if _, ok := details[key]; !ok {
			t.Fatalf("expected %s in details: %+v", key, details)
		}
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(&models.Order{}); got != StatusCreated {
		t.Fatalf("expected created, got %s", got)
	}
	if got := StatusOf(&models.Order{IsPaid: true}); got != StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
}
