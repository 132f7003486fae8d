package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// NewCode returns a uniform random 6-digit verification code
// in the range 100000-999999.
func NewCode() (string, error) {
	const op = "verification.NewCode"

	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
