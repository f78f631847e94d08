package utils

import "golang.org/x/crypto/bcrypt"

// bcrypt only looks at the first 72 bytes of a password.
const maxPasswordBytes = 72

// HashPassword hashes plain for storage in Registros and Usuarios.  Costs
// outside bcrypt's range fall back to bcrypt.DefaultCost, and passwords
// longer than 72 bytes are truncated instead of rejected so that long
// client input still produces a hash.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword(clip(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches a hash produced by
// HashPassword.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), clip(plain)) == nil
}

func clip(plain string) []byte {
	b := []byte(plain)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}
