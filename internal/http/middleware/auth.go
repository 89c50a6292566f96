package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/you/otpgate/domain"
)

// IdentityMW wraps the identity provider token verifier for middleware.
// A nil verifier trusts the identity given in the request body.
type IdentityMW struct {
	verifier domain.IdentityVerifier
}

// NewIdentityMW creates new identity middleware wrapper
func NewIdentityMW(verifier domain.IdentityVerifier) *IdentityMW {
	return &IdentityMW{verifier: verifier}
}

// Enabled reports whether bearer tokens are checked
func (mw *IdentityMW) Enabled() bool {
	return mw.verifier != nil
}

// Require returns middleware demanding a valid identity token
func (mw *IdentityMW) Require() gin.HandlerFunc {
	if mw.verifier == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return IdentityMiddleware(mw.verifier)
}
