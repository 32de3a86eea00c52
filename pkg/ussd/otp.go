package ussd

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const otpDigits = 6

var otpMax = big.NewInt(1_000_000)

// generateOTP returns a uniformly random 6-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("ussd: generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func otpEqual(want, got string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
