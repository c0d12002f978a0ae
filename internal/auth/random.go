package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// Charset for recovery codes: A-Z 2-9 without ambiguous 0/O/1/I/L.
	recoveryCodeCharset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
	recoveryCodeLength  = 10
	magicTokenBytes     = 32 // 64 hex characters
)

// GenerateNumericCode returns a random code of the given number of digits,
// zero-padded. Used for OTP and emailed 2FA codes.
func GenerateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate numeric code: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n), nil
}

// GenerateToken returns a 64-character random hex token. Used for magic
// links and password resets.
func GenerateToken() (string, error) {
	buf := make([]byte, magicTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateRecoveryCodes returns n random single-use recovery codes.
func GenerateRecoveryCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := 0; i < n; i++ {
		code := make([]byte, recoveryCodeLength)
		for j := 0; j < recoveryCodeLength; j++ {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(recoveryCodeCharset))))
			if err != nil {
				return nil, fmt.Errorf("failed to generate recovery code: %w", err)
			}
			code[j] = recoveryCodeCharset[idx.Int64()]
		}
		codes[i] = string(code)
	}
	return codes, nil
}

// HashCode returns the SHA-256 hex digest of a code or token. A
// deterministic digest lets consumption happen as a single conditional
// UPDATE against the stored hash.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
