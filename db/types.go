package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a key-value map stored as JSON in the database.
// It implements the sql.Scanner and driver.Valuer interfaces.
type Metadata map[string]any

// Scan implements the sql.Scanner interface, allowing Metadata to be read from the database.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	decoded := make(Metadata)
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decoding metadata : %w", err)
	}
	*m = decoded
	return nil
}

// Value implements the driver.Valuer interface, allowing Metadata to be written to the database.
func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata : %w", err)
	}
	return string(encoded), nil
}
