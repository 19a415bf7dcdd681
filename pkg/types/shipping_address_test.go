package types

import (
	"reflect"
	"testing"
)

func TestShippingAddressMissingFields(t *testing.T) {
	addr := ShippingAddress{FullName: " Ada ", Address: "1 Loop", City: "  ", Province: "ON"}
	addr.Normalize()

	if addr.FullName != "Ada" {
		t.Fatalf("expected trimmed name, got %q", addr.FullName)
	}
	got := addr.MissingFields()
	want := []string{"city", "postalCode"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("missing fields = %v, want %v", got, want)
	}

	full := ShippingAddress{FullName: "Ada", Address: "1 Loop", City: "Toronto", Province: "ON", PostalCode: "M5V"}
	if missing := full.MissingFields(); len(missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", missing)
	}
}
