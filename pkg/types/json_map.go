package types

// JSONMap stores an opaque JSON object column (jsonb with the gorm json serializer).
type JSONMap map[string]any
