package rotation

import (
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// defaultHashCost matches the cost used by the platform's login path.
const defaultHashCost = 12

// bcryptFormat matches the exact structural shape of a bcrypt hash:
// version marker, two-digit cost, then 22 salt + 31 digest characters.
var bcryptFormat = regexp.MustCompile(`^\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53}$`)

// HashCodec wraps the one-way credential hash used across the platform.
// Every write path that touches a secret must go through Hash or be checked
// with IsHashFormat first; plaintext is never persisted.
type HashCodec struct {
	cost int
}

// NewHashCodec returns a codec at the default cost.
func NewHashCodec() *HashCodec {
	return &HashCodec{cost: defaultHashCost}
}

// Hash produces a salted bcrypt hash of secret.
func (c *HashCodec) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return "", fmt.Errorf("rotation: hash secret: %w", err)
	}
	return string(hashed), nil
}

// IsHashFormat reports whether value is structurally a bcrypt hash. It is a
// format check, not a verification; it exists so stored values are never
// trusted as hashes on faith.
func (c *HashCodec) IsHashFormat(value string) bool {
	return bcryptFormat.MatchString(value)
}
