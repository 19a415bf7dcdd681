package enums

import "testing"

func TestParsePaymentMethod(t *testing.T) {
	cases := map[string]PaymentMethod{
		"paypal":   PaymentMethodPayPal,
		"PayPal":   PaymentMethodPayPal,
		" stripe ": PaymentMethodStripe,
		"square":   PaymentMethodSquare,
		"cash":     PaymentMethodCash,
	}
	for raw, want := range cases {
		got, err := ParsePaymentMethod(raw)
		if err != nil {
			t.Fatalf("ParsePaymentMethod(%q) unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParsePaymentMethod(%q) = %q, want %q", raw, got, want)
		}
	}
	if _, err := ParsePaymentMethod("bitcoin"); err == nil {
		t.Fatal("expected unknown method to fail")
	}
}

func TestRequiresExternalAuthorization(t *testing.T) {
	if PaymentMethodCash.RequiresExternalAuthorization() {
		t.Fatal("cash must not require external authorization")
	}
	for _, method := range []PaymentMethod{PaymentMethodPayPal, PaymentMethodStripe, PaymentMethodSquare} {
		if !method.RequiresExternalAuthorization() {
			t.Fatalf("%s must require external authorization", method)
		}
	}
}

func TestOutboxEnums(t *testing.T) {
	if !AggregateOrder.IsValid() {
		t.Fatal("order aggregate must be valid")
	}
	for _, evt := range []string{"order_created", "order_paid", "payment_failed", "order_delivered"} {
		if _, err := ParseOutboxEventType(evt); err != nil {
			t.Fatalf("expected %s to parse: %v", evt, err)
		}
	}
	if OutboxEventType("order_shipped").IsValid() {
		t.Fatal("unexpected event type accepted")
	}
}

func TestParseUserRole(t *testing.T) {
	if role, err := ParseUserRole("admin"); err != nil || role != UserRoleAdmin {
		t.Fatalf("unexpected role %q err=%v", role, err)
	}
	if _, err := ParseUserRole("owner"); err == nil {
		t.Fatal("owner is not a storefront role")
	}
}
