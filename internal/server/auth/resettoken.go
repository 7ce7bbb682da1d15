package auth

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dmitrijs2005/domainx/internal/common"
)

// NewResetSecret returns a fresh raw reset secret and the hash to persist.
// Only the hash is ever stored.
func NewResetSecret() (raw string, hash string, err error) {
	raw, err = common.MakeRandHexString(common.ResetTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashResetSecret(raw), nil
}

// HashResetSecret is the lookup key for a raw reset secret.
func HashResetSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
