package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Scrypt parameters. Existing stored hashes were derived with these values,
// so changing them breaks verification of every account.
const (
	PasswordAlgo    = "scrypt"
	scryptN         = 1 << 14
	scryptR         = 8
	scryptP         = 1
	passwordSaltLen = 16
	passwordKeyLen  = 64
)

// HashPassword derives a scrypt key from plain with a fresh 16-byte salt and
// returns it encoded as "scrypt$<salt>$<key>" (standard base64).
// The error only reports a failing random source or KDF.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, passwordKeyLen)
	if err != nil {
		return "", err
	}
	return PasswordAlgo + "$" +
		base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword reports whether plain matches the stored hash. Any malformed
// hash (unknown tag, missing or undecodable part) yields false.
func VerifyPassword(hash, plain string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 3 || parts[0] != PasswordAlgo || parts[1] == "" || parts[2] == "" {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(expected) == 0 {
		return false
	}
	// derive with the stored key length, not passwordKeyLen
	actual, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, len(expected))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(actual, expected) == 1
}
