package signature

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// newCode draws a fixed-length numeric code uniformly at random over its
// digit space (000000-999999 for the default length).
func newCode() (string, error) {
	space := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		space.Mul(space, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
