package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenMin = 100000
	tokenMax = 999999
)

var tokenSpan = big.NewInt(tokenMax - tokenMin + 1)

// GenerateToken returns a uniformly random six-digit token in
// [100000, 999999]. Collisions between users are possible and harmless:
// a session always matches on the pair (user id, token).
func GenerateToken() (string, error) {
	n, err := rand.Int(rand.Reader, tokenSpan)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+tokenMin), nil
}
