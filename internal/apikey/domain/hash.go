package domain

import "golang.org/x/crypto/bcrypt"

// HashSecret hashes the secret half of an API key. bcrypt truncates
// input past 72 bytes, so only the secret part is hashed, never the
// full presented token.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CompareSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
