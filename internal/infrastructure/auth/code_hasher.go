package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/you/otpgate/domain"
	"golang.org/x/crypto/scrypt"
)

// ScryptParams controls the cost of the code digest
type ScryptParams struct {
	N      int
	R      int
	P      int
	KeyLen int
}

// DefaultScryptParams matches the digest format already stored by earlier deployments
var DefaultScryptParams = ScryptParams{N: 16384, R: 8, P: 1, KeyLen: 64}

// CodeHasherImpl implements domain.CodeHasher
type CodeHasherImpl struct {
	length int
	params ScryptParams
	max    *big.Int
}

// NewCodeHasher creates a hasher producing codes of the given length
func NewCodeHasher(length int, params ScryptParams) domain.CodeHasher {
	return &CodeHasherImpl{
		length: length,
		params: params,
		max:    new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil),
	}
}

// Generate implements domain.CodeHasher
func (h *CodeHasherImpl) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, h.max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", h.length, n), nil
}

// NewSalt implements domain.CodeHasher
func (h *CodeHasherImpl) NewSalt() string {
	return uuid.NewString()
}

// Digest implements domain.CodeHasher
func (h *CodeHasherImpl) Digest(code, salt string) (string, error) {
	key, err := scrypt.Key([]byte(code), []byte(salt), h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", fmt.Errorf("digest otp: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Matches implements domain.CodeHasher
func (h *CodeHasherImpl) Matches(candidate, salt, storedDigest string) bool {
	stored, err := hex.DecodeString(storedDigest)
	if err != nil {
		return false
	}
	computed, err := scrypt.Key([]byte(candidate), []byte(salt), h.params.N, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return false
	}
	if len(stored) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare(stored, computed) == 1
}
