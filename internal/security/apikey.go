package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"wainbox/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

const secretEnvVar = "WAINBOX_API_SECRET"

// KeyHasher computes deterministic lookup hashes for workspace API keys so
// that raw keys are never stored. The HMAC key is derived once from the
// deployment secret; the same key always hashes to the same value, which is
// what makes the indexed workspace lookup possible.
type KeyHasher struct {
	hmacKey []byte
}

// NewKeyHasher derives the HMAC key from the WAINBOX_API_SECRET environment
// variable.
func NewKeyHasher() (*KeyHasher, error) {
	secret := os.Getenv(secretEnvVar)
	if secret == "" {
		return nil, fmt.Errorf("%s environment variable is required", secretEnvVar)
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("%s must be at least 16 characters", secretEnvVar)
	}

	return NewKeyHasherWithSecret(secret), nil
}

// NewKeyHasherWithSecret derives the HMAC key from an explicit secret.
// Exposed for tests.
func NewKeyHasherWithSecret(secret string) *KeyHasher {
	key := pbkdf2.Key([]byte(secret), []byte("wainbox-api-key-lookup"),
		constants.APIKeyHashIterations, constants.APIKeyHashBytes, sha256.New)
	return &KeyHasher{hmacKey: key}
}

// Hash returns the hex lookup hash for one API key.
func (h *KeyHasher) Hash(apiKey string) string {
	mac := hmac.New(sha256.New, h.hmacKey)
	mac.Write([]byte(apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}
