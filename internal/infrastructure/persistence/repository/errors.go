package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY violation
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// encodeJSON marshals a tag or condition list into a TEXT column, storing
// empty lists as "[]".
func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func decodeStrings(col string) ([]string, error) {
	var out []string
	if col == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(col), &out); err != nil {
		return nil, fmt.Errorf("failed to decode column: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
