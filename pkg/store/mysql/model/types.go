package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores a map[string]interface{} in a MySQL JSON column.
type JSONMap map[string]interface{}

// Scan implements sql.Scanner. The MySQL driver hands JSON columns back as
// []byte or string depending on the connection settings, so both are accepted.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("JSONMap: cannot scan %T", value)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("JSONMap: %w", err)
	}
	*j = m
	return nil
}

// Value implements driver.Valuer. A nil map writes SQL NULL rather than "null".
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
