package password

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost trades login latency for brute-force resistance; 12 keeps a
// hash around a quarter second on commodity hardware.
const bcryptCost = 12

// Hash derives a bcrypt hash for storing a user password.
func Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether plain matches the stored bcrypt hash.
func Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// HashToken digests a refresh token for at-rest storage. SHA-256 rather
// than bcrypt: tokens are high-entropy and lookup must be by exact hash.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
