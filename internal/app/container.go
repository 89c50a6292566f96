package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/config"
	httpx "github.com/you/otpgate/internal/http"
	"github.com/you/otpgate/internal/http/handlers"
	"github.com/you/otpgate/internal/http/middleware"
	"github.com/you/otpgate/internal/infrastructure/auth"
	"github.com/you/otpgate/internal/infrastructure/convex"
	"github.com/you/otpgate/internal/infrastructure/database"
	"github.com/you/otpgate/internal/infrastructure/notifications"
	"github.com/you/otpgate/internal/infrastructure/repositories"
	"github.com/you/otpgate/internal/logging"
	"github.com/you/otpgate/internal/services"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Logger zerolog.Logger

	// Infrastructure
	DB          *gorm.DB
	RedisClient *redis.Client

	// Adapters
	ChallengeStore domain.ChallengeStore
	Dispatcher     domain.Dispatcher
	ProfileStore   domain.ProfileStore
	Policy         *auth.CasbinService
	Identity       domain.IdentityVerifier
	Audit          domain.AuditLogger

	// Services
	OTPSvc     *services.OTPServiceImpl
	ProfileSvc *services.ProfileServiceImpl
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	steps := []func(context.Context) error{
		c.initChallengeStore,
		c.initProfileStore,
		c.initPolicy,
		c.initIdentity,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	c.initDispatcher()
	c.initServices()

	return c, nil
}

func (c *Container) initChallengeStore(ctx context.Context) error {
	switch c.Config.OTPStore {
	case config.StoreRedis:
		client, err := database.NewRedis(ctx, c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
		if err != nil {
			return err
		}
		c.RedisClient = client
		c.ChallengeStore = repositories.NewChallengeRedisStore(client, c.Config.OTPExpiredRetention)
	default:
		c.ChallengeStore = repositories.NewChallengeMemoryStore(c.Config.OTPExpiredRetention)
	}
	c.Logger.Info().Str("store", c.Config.OTPStore).Msg("otp challenge store ready")
	return nil
}

func (c *Container) initProfileStore(ctx context.Context) error {
	switch c.Config.ProfileStore {
	case config.ProfileStoreConvex:
		client := convex.NewClient(c.Config.ConvexURL, c.Config.ConvexAdminKey, c.Config.ProfileStoreTimeout)
		c.ProfileStore = convex.NewProfileStore(client, c.Config.ConvexBackendWriteKey)
	case config.ProfileStoreSQL:
		level := gormlogger.Warn
		if strings.EqualFold(c.Config.LogLevel, "debug") {
			level = gormlogger.Info
		}
		db, err := database.Open(c.Config.DatabaseDriver, c.Config.DatabaseDSN, level)
		if err != nil {
			return fmt.Errorf("failed to open profile database: %w", err)
		}
		c.DB = db
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		c.ProfileStore = repositories.NewProfileRepository(db)
	}
	c.Logger.Info().Str("profile_store", c.Config.ProfileStore).Msg("profile persistence configured")
	return nil
}

func (c *Container) initPolicy(ctx context.Context) error {
	policy, err := auth.NewCasbinService(c.Config.OperatorIDs, c.DB)
	if err != nil {
		return err
	}
	c.Policy = policy

	state := "not configured"
	if len(policy.Operators()) > 0 {
		state = "configured"
	}
	c.Logger.Info().Str("state", state).Int("operators", len(policy.Operators())).Msg("backend team access list")
	return nil
}

func (c *Container) initIdentity(ctx context.Context) error {
	switch {
	case c.Config.IdentityJWTPublicKey != "":
		v, err := auth.NewRSAVerifier(c.Config.IdentityJWTPublicKey, c.Config.IdentityJWTIssuer)
		if err != nil {
			return err
		}
		c.Identity = v
	case c.Config.IdentityJWTSecret != "":
		c.Identity = auth.NewHMACVerifier(c.Config.IdentityJWTSecret, c.Config.IdentityJWTIssuer)
	default:
		c.Logger.Warn().Msg("identity token verification disabled; request identities are trusted as given")
	}
	return nil
}

func (c *Container) initDispatcher() {
	switch {
	case c.Config.WebhookURL != "":
		c.Dispatcher = notifications.NewWebhookDispatcher(c.Config.WebhookURL, c.Config.WebhookTimeout)
		c.Logger.Info().Str("target", c.Config.WebhookURL).Dur("timeout", c.Config.WebhookTimeout).Msg("otp webhook dispatch")
	case c.Config.TwilioSID != "":
		c.Dispatcher = notifications.NewTwilioService(c.Config.TwilioSID, c.Config.TwilioToken, c.Config.TwilioFrom, c.Config.WebhookTimeout)
		c.Logger.Info().Msg("otp sms dispatch through twilio")
	default:
		c.Dispatcher = notifications.NewLogDispatcher()
	}
}

func (c *Container) initServices() {
	c.Audit = logging.NewAuditLogger(c.Logger)

	c.ProfileSvc = services.NewProfileService(c.ProfileStore, c.Policy, c.Audit, services.ProfileConfig{
		Timeout:          c.Config.ProfileStoreTimeout,
		DefaultListLimit: c.Config.AdminListDefaultLimit,
		MaxListLimit:     c.Config.AdminListMaxLimit,
	})

	hasher := auth.NewCodeHasher(c.Config.OTPLength, auth.DefaultScryptParams)
	c.OTPSvc = services.NewOTPService(c.ChallengeStore, hasher, c.Dispatcher, c.ProfileSvc, c.Audit, services.OTPConfig{
		TTL:            c.Config.OTPTTL,
		MaxAttempts:    c.Config.OTPMaxAttempts,
		ResendCooldown: c.Config.OTPResendCooldown,
	})
}

// Router builds the HTTP handler tree
func (c *Container) Router() *gin.Engine {
	return httpx.BuildRouter(
		c.Logger,
		handlers.NewOTPHandlers(c.OTPSvc),
		handlers.NewProfileHandlers(c.ProfileSvc),
		middleware.NewIdentityMW(c.Identity),
		c.OTPSvc,
	)
}

// Close closes all connections
func (c *Container) Close() error {
	var errs []error
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := database.Close(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
