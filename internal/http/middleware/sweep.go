package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweep removes expired challenges before every request is handled
func Sweep(s sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := s.SweepExpired(c.Request.Context()); err != nil {
			zerolog.Ctx(c.Request.Context()).Err(err).Msg("failed to sweep expired challenges")
		}
		c.Next()
	}
}
