package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

// GenerateServerSeed returns a fresh 32-byte server seed and its published commitment
func GenerateServerSeed() (seed string, hash string, err error) {
	bytes := make([]byte, 32)
	if _, err = rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	seed = hex.EncodeToString(bytes)
	hash = HashServerSeed(seed)

	return
}

// HashServerSeed is the commitment published before a round: sha256 of the
// seed's ASCII hex form, hex encoded
func HashServerSeed(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

func VerifySeed(seed, hash string) bool {
	return HashServerSeed(seed) == hash
}

// IsHexDigest reports whether s is 64 lowercase hex characters
func IsHexDigest(s string) bool {
	return hexDigest.MatchString(s)
}
