package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters following OWASP recommendations.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

const (
	apiKeyPrefix  = "convlog_"
	apiKeyRandLen = 16 // 16 bytes = 32 hex chars
)

// GenerateAPIKey creates a new raw API key and its argon2id hash. The raw
// key is shown once; only the hash goes into CONVLOG_API_KEY_HASH.
// Key format: "convlog_" + 32 random hex chars.
func GenerateAPIKey() (rawKey, hash string, err error) {
	raw := make([]byte, apiKeyRandLen)
	if _, err = rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("auth.GenerateAPIKey: %w", err)
	}

	rawKey = apiKeyPrefix + hex.EncodeToString(raw)

	hash, err = HashAPIKey(rawKey)
	if err != nil {
		return "", "", err
	}

	return rawKey, hash, nil
}

// HashAPIKey hashes a raw key with argon2id. Encoded as hex(salt)$hex(hash).
func HashAPIKey(rawKey string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth.HashAPIKey: generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(rawKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

// VerifyAPIKey checks a raw key against an argon2id hash in constant time.
func VerifyAPIKey(rawKey, encoded string) bool {
	var saltHex, hashHex string
	for i := range len(encoded) {
		if encoded[i] == '$' {
			saltHex = encoded[:i]
			hashHex = encoded[i+1:]
			break
		}
	}

	if saltHex == "" || hashHex == "" {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(rawKey), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	if len(computed) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare(computed, expected) == 1
}
