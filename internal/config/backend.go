package config

import (
	"fmt"
	"strconv"
	"time"
)

// ConfigBackend stores non-secret settings under their dotted key names
// ("catalog.base_url"). On macOS it is the agora defaults domain; elsewhere
// a JSON file with one object per key section.
type ConfigBackend interface {
	// Lookup returns the stored value of key in text form.
	Lookup(key string) (raw string, ok bool, err error)
	// Store persists v, which is the parsed value of the key's type.
	Store(key string, v any) error
	Delete(key string) error
}

// formatValue renders a stored value the way keySpec.parse reads it back.
func formatValue(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return strconv.Itoa(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case time.Duration:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
