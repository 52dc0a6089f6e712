package perm

import (
	"fmt"
	"strings"
)

// Key is a typed permission key. The wire form is "<category>.<action>",
// e.g. "documents.view_all". Keys are constructed once through ParseKey so
// the category is never re-derived from the raw string downstream.
type Key struct {
	Category string
	Action   string
}

// ParseKey validates a dotted permission key. Keys without a category
// separator are rejected rather than coerced into a fallback category.
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Key{}, fmt.Errorf("%w: permission key is required", ErrInvalidInput)
	}
	category, action, ok := strings.Cut(raw, ".")
	if !ok {
		return Key{}, fmt.Errorf("%w: permission key %q must be of the form <category>.<action>", ErrInvalidInput, raw)
	}
	category = strings.TrimSpace(category)
	action = strings.TrimSpace(action)
	if category == "" || action == "" {
		return Key{}, fmt.Errorf("%w: permission key %q must be of the form <category>.<action>", ErrInvalidInput, raw)
	}
	return Key{Category: category, Action: action}, nil
}

// MustKey is ParseKey for keys known valid at compile time; it panics on error.
func MustKey(raw string) Key {
	key, err := ParseKey(raw)
	if err != nil {
		panic(err)
	}
	return key
}

func (k Key) String() string {
	return k.Category + "." + k.Action
}

// IsZero reports whether the key is empty.
func (k Key) IsZero() bool {
	return k.Category == "" && k.Action == ""
}
