package cache

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxKeyLength bounds keys accepted by every layer.
const MaxKeyLength = 250

// ValidateKey rejects empty, overlong, control-character or space-padded keys.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key too long (max %d characters)", ErrInvalidKey, MaxKeyLength)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
		}
	}
	if strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key has leading or trailing whitespace", ErrInvalidKey)
	}
	return nil
}

// KeyPattern builds namespaced keys such as "session:ATUid_123".
type KeyPattern struct {
	prefix    string
	separator string
}

// NewKeyPattern returns a pattern; an empty separator defaults to ":".
func NewKeyPattern(prefix, separator string) *KeyPattern {
	if separator == "" {
		separator = ":"
	}
	return &KeyPattern{prefix: prefix, separator: separator}
}

// Build joins the prefix and parts with the separator.
func (kp *KeyPattern) Build(parts ...string) string {
	if len(parts) == 0 {
		return kp.prefix
	}
	return kp.prefix + kp.separator + strings.Join(parts, kp.separator)
}

// Key builds a key and validates it.
func (kp *KeyPattern) Key(parts ...string) (string, error) {
	key := kp.Build(parts...)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}
