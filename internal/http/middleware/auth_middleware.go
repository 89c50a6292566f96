package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
)

// IdentitySubjectKey is the gin context key holding the verified token subject.
// Handlers compare it with the identity they bound from the request body.
const IdentitySubjectKey = "identity_subject"

// IdentityMiddleware requires a bearer token from the identity provider and stores
// its subject under IdentitySubjectKey.
func IdentityMiddleware(verifier domain.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Authorization header required."})
			return
		}

		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Invalid authorization header format."})
			return
		}

		subject, err := verifier.Subject(strings.TrimSpace(tokenParts[1]))
		if err != nil || subject == "" {
			zerolog.Ctx(c.Request.Context()).Debug().Err(err).Msg("identity token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Invalid token."})
			return
		}

		c.Set(IdentitySubjectKey, subject)
		c.Next()
	}
}

// SubjectFrom returns the verified token subject, if the request carried one
func SubjectFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(IdentitySubjectKey)
	if !ok {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok
}
