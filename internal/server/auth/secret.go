package auth

import (
	"fmt"

	"github.com/dmitrijs2005/itemshare/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 10

// bcrypt ignores everything past 72 bytes, so longer secrets are refused.
const (
	MinSecretLength = 8
	MaxSecretLength = 72
)

func ValidateSecret(secret string) error {
	switch {
	case len(secret) < MinSecretLength:
		return fmt.Errorf("%w: secret must be at least %d characters", common.ErrValidation, MinSecretLength)
	case len(secret) > MaxSecretLength:
		return fmt.Errorf("%w: secret must be at most %d bytes", common.ErrValidation, MaxSecretLength)
	}
	return nil
}

// Hasher derives and checks bcrypt hashes of user secrets.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher prepares a hasher with the given bcrypt cost. A dummy hash of the
// same cost is computed up front so that checks against unknown users take
// as long as real ones.
func NewHasher(cost int) (*Hasher, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("itemshare-dummy-secret"), cost)
	if err != nil {
		return nil, err
	}
	return &Hasher{cost: cost, dummy: dummy}, nil
}

func (h *Hasher) Hash(secret string) ([]byte, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	b := []byte(secret)
	defer common.WipeByteArray(b)
	return bcrypt.GenerateFromPassword(b, h.cost)
}

func (h *Hasher) Verify(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}

// VerifyDummy spends the time of one Verify and always fails.
func (h *Hasher) VerifyDummy(secret string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
	return false
}
