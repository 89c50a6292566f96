package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/you/otpgate/domain"
)

// JWTVerifier implements domain.IdentityVerifier for identity provider session tokens.
// Exactly one of hmacSecret or publicKey is set.
type JWTVerifier struct {
	hmacSecret []byte
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewHMACVerifier verifies HS256 tokens signed with secret
func NewHMACVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{hmacSecret: []byte(secret), issuer: issuer}
}

// NewRSAVerifier verifies RS256 tokens against a PEM encoded public key
func NewRSAVerifier(publicKeyPEM, issuer string) (*JWTVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse identity public key: %w", err)
	}
	return &JWTVerifier{publicKey: key, issuer: issuer}, nil
}

// Subject implements domain.IdentityVerifier
func (j *JWTVerifier) Subject(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.publicKey != nil {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	}

	token, err := jwt.Parse(tokenString, j.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", domain.ErrTokenInvalid)
		}
		return "", domain.ErrTokenInvalid
	}
	if !token.Valid {
		return "", domain.ErrTokenInvalid
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", domain.ErrTokenInvalid
	}
	return sub, nil
}

func (j *JWTVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if j.publicKey != nil {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, domain.ErrTokenInvalid
		}
		return j.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, domain.ErrTokenInvalid
	}
	return j.hmacSecret, nil
}
