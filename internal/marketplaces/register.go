package marketplaces

import (
	"fmt"

	"github.com/channelsync/orders-backend/internal/ingestion"
	"github.com/channelsync/orders-backend/pkg/enums"
)

// RegisterAll binds the normalized-feed mapper for every supported
// marketplace. Channels needing bespoke parsing register their own mapper
// instead of appearing here.
func RegisterAll(registry *ingestion.Registry) error {
	if registry == nil {
		return fmt.Errorf("registry is required")
	}
	for _, marketplace := range enums.Marketplaces() {
		if err := registry.Register(string(marketplace), NewGenericMapper(marketplace)); err != nil {
			return fmt.Errorf("register %s mapper: %w", marketplace, err)
		}
	}
	return nil
}
