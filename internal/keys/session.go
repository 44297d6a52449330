package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

func NewSessionToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func HashSessionToken(pepper, token string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + token))
	return hex.EncodeToString(sum[:])
}
