package marketplaces

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/channelsync/orders-backend/internal/ingestion"
	"github.com/channelsync/orders-backend/pkg/types"
)

// parseDecimal coerces the money values marketplaces send in whichever JSON
// shape their feed uses. Absent or null values parse as zero.
func parseDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q: %w", v, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q: %w", v.String(), err)
		}
		return d, nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", value)
	}
}

// parseQuantity accepts the integer-ish shapes feeds use for item counts.
func parseQuantity(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q: %w", v, err)
		}
		return int(d.IntPart()), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q: %w", v.String(), err)
		}
		return int(d.IntPart()), nil
	default:
		return 0, fmt.Errorf("unsupported quantity type %T", value)
	}
}

func stringField(raw ingestion.RawOrder, key string) string {
	if value, ok := raw[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func optionalString(raw ingestion.RawOrder, key string) *string {
	value := stringField(raw, key)
	if value == "" {
		return nil
	}
	return &value
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(raw ingestion.RawOrder, key string) (*time.Time, error) {
	value := stringField(raw, key)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q for %s", value, key)
}

func parseAddress(raw ingestion.RawOrder, key string) *types.Address {
	obj, ok := raw[key].(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	addr := &types.Address{
		Name:       stringValue(obj, "name"),
		Line1:      stringValue(obj, "line1"),
		City:       stringValue(obj, "city"),
		State:      stringValue(obj, "state"),
		PostalCode: stringValue(obj, "postal_code"),
		Country:    stringValue(obj, "country"),
	}
	if line2 := stringValue(obj, "line2"); line2 != "" {
		addr.Line2 = &line2
	}
	if phone := stringValue(obj, "phone"); phone != "" {
		addr.Phone = &phone
	}
	return addr
}

func stringValue(obj map[string]any, key string) string {
	if value, ok := obj[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
