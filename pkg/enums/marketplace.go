package enums

import (
	"fmt"
	"strings"
)

// Marketplace identifies an external sales channel orders are pulled from.
type Marketplace string

const (
	MarketplaceAmazon  Marketplace = "amazon"
	MarketplaceEbay    Marketplace = "ebay"
	MarketplaceEtsy    Marketplace = "etsy"
	MarketplaceWalmart Marketplace = "walmart"
)

var validMarketplaces = []Marketplace{
	MarketplaceAmazon,
	MarketplaceEbay,
	MarketplaceEtsy,
	MarketplaceWalmart,
}

// IsValid reports whether the value matches a supported marketplace.
func (m Marketplace) IsValid() bool {
	for _, candidate := range validMarketplaces {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMarketplace converts the raw string to Marketplace.
func ParseMarketplace(value string) (Marketplace, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validMarketplaces {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace %q", value)
}

// Marketplaces returns all supported marketplace codes.
func Marketplaces() []Marketplace {
	out := make([]Marketplace, len(validMarketplaces))
	copy(out, validMarketplaces)
	return out
}
