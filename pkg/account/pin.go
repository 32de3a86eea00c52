package account

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// PINLength is the number of digits in a user PIN.
const PINLength = 4

// HashPIN returns the hex SHA-256 digest stored in place of the PIN.
func HashPIN(pin string) string {
	sum := sha256.Sum256([]byte(pin))
	return hex.EncodeToString(sum[:])
}

// CheckPIN compares pin against a stored digest in constant time.
func CheckPIN(storedHash, pin string) bool {
	candidate := HashPIN(pin)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}

// ValidPIN reports whether pin is exactly PINLength ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
