// Package auth holds the credential primitives: password hashing, session
// tokens and password-reset secrets.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/domainx/internal/common"
)

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

type PasswordHasher struct {
	cost int

	dummyOnce   sync.Once
	dummyDigest []byte
}

func NewPasswordHasher(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Cost() int {
	return h.cost
}

func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", common.NewValidationError("password", "max", strconv.Itoa(MaxPasswordBytes))
	}

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", common.NewValidationError("password", "max", strconv.Itoa(MaxPasswordBytes))
		}
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(digest), nil
}

func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// VerifyDummy burns one bcrypt comparison at the configured cost. It is used
// for unknown emails so login timing does not reveal which accounts exist.
func (h *PasswordHasher) VerifyDummy(plaintext string) {
	h.dummyOnce.Do(func() {
		d, err := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), h.cost)
		if err == nil {
			h.dummyDigest = d
		}
	})
	if h.dummyDigest != nil {
		_ = bcrypt.CompareHashAndPassword(h.dummyDigest, []byte(plaintext))
	}
}
