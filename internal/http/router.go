package httpx

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/internal/http/handlers"
	"github.com/you/otpgate/internal/http/middleware"
)

// MaxBodyBytes bounds every request body
const MaxBodyBytes = 1 << 20

// Sweeper removes expired challenges; the OTP service satisfies it
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

func BuildRouter(logger zerolog.Logger, oh *handlers.OTPHandlers, ph *handlers.ProfileHandlers, idmw *middleware.IdentityMW, sweeper Sweeper) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestLogger(logger),
		middleware.Recovery(),
		middleware.CORS(),
		middleware.BodyLimit(MaxBodyBytes),
		middleware.Sweep(sweeper),
	)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/otp/health", oh.Health)
	api.POST("/otp/send", idmw.Require(), oh.Send)
	api.POST("/otp/verify", idmw.Require(), oh.Verify)

	// /private-profiles is the path the web client was first released against
	for _, prefix := range []string{"/profiles", "/private-profiles"} {
		profiles := api.Group(prefix)
		profiles.POST("/admin-list", idmw.Require(), ph.AdminList)
		profiles.POST("/launch-notify/get", idmw.Require(), ph.GetLaunchNotify)
		profiles.POST("/launch-notify/set", idmw.Require(), ph.SetLaunchNotify)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": handlers.MsgNotFound})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": handlers.MsgNotFound})
	})

	return r
}
