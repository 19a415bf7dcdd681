package types

import "strings"

// ShippingAddress is the delivery destination captured at checkout.
type ShippingAddress struct {
	FullName   string `json:"fullName" validate:"required"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
}

// Normalize trims every field in place.
func (a *ShippingAddress) Normalize() {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Address = strings.TrimSpace(a.Address)
	a.City = strings.TrimSpace(a.City)
	a.Province = strings.TrimSpace(a.Province)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
}

// MissingFields lists the json names of blank fields.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("fullName", a.FullName)
	check("address", a.Address)
	check("city", a.City)
	check("province", a.Province)
	check("postalCode", a.PostalCode)
	return missing
}
