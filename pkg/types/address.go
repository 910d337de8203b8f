package types

import "strings"

// Address captures a shipping or billing address as supplied by a marketplace.
// Persisted as jsonb; marketplaces differ too much for a relational layout.
type Address struct {
	Name       string  `json:"name,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

// Equal compares two addresses field by field, treating nil optionals as empty.
func (a *Address) Equal(other *Address) bool {
	if a == nil && other == nil {
		return true
	}
	if a == nil || other == nil {
		return false
	}
	return a.Name == other.Name &&
		a.Line1 == other.Line1 &&
		derefString(a.Line2) == derefString(other.Line2) &&
		a.City == other.City &&
		a.State == other.State &&
		a.PostalCode == other.PostalCode &&
		strings.EqualFold(a.Country, other.Country) &&
		derefString(a.Phone) == derefString(other.Phone)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
