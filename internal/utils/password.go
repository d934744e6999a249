package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// BcryptHasher is the password hasher handed to the authenticator.
type BcryptHasher struct {
	cost  int
	dummy string
}

// NewBcryptHasher returns a hasher for cost. Costs outside bcrypt's range
// fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := HashPassword("kgrill-timing-equalizer", cost)
	return &BcryptHasher{cost: cost, dummy: dummy}
}

func (h *BcryptHasher) Hash(plain string) (string, error) { return HashPassword(plain, h.cost) }

func (h *BcryptHasher) Verify(plain, digest string) bool { return VerifyPassword(digest, plain) }

// VerifyDummy burns the same time as a real comparison. It is used when the
// account does not exist so response times do not reveal that.
func (h *BcryptHasher) VerifyDummy(plain string) { _ = VerifyPassword(h.dummy, plain) }
