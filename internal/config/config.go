package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when CONFIG_FILE is unset; a missing file is not an error
const DefaultConfigPath = "config/config.yml"

type AppConfig struct {
	Port      int    `yaml:"port"`
	GinMode   string `yaml:"gin_mode"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type OTPConfig struct {
	Length           int    `yaml:"length"`
	TTL              string `yaml:"ttl"`
	MaxAttempts      int    `yaml:"max_attempts"`
	ResendCooldown   string `yaml:"resend_cooldown"`
	ExpiredRetention string `yaml:"expired_retention"`
	SweepInterval    string `yaml:"sweep_interval"`
	Store            string `yaml:"store"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DispatchConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	WebhookTimeout string `yaml:"webhook_timeout"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type ProfileStoreConfig struct {
	Kind             string `yaml:"kind"`
	Timeout          string `yaml:"timeout"`
	AdminListDefault int    `yaml:"admin_list_default_limit"`
	AdminListMax     int    `yaml:"admin_list_max_limit"`
	OperatorIDs      string `yaml:"operator_ids"`
}

type ConvexConfig struct {
	URL             string `yaml:"url"`
	AdminKey        string `yaml:"admin_key"`
	BackendWriteKey string `yaml:"backend_write_key"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type IdentityConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	JWTPublicKey string `yaml:"jwt_public_key"`
	JWTIssuer    string `yaml:"jwt_issuer"`
}

type ConfigFile struct {
	App          AppConfig          `yaml:"app"`
	OTP          OTPConfig          `yaml:"otp"`
	Redis        RedisConfig        `yaml:"redis"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Twilio       TwilioConfig       `yaml:"twilio"`
	ProfileStore ProfileStoreConfig `yaml:"profile_store"`
	Convex       ConvexConfig       `yaml:"convex"`
	Database     DatabaseConfig     `yaml:"database"`
	Identity     IdentityConfig     `yaml:"identity"`
}

// Store kinds
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	ProfileStoreConvex = "convex"
	ProfileStoreSQL    = "sql"
	ProfileStoreNone   = "none"
)

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	OTPLength           int
	OTPTTL              time.Duration
	OTPMaxAttempts      int
	OTPResendCooldown   time.Duration
	OTPExpiredRetention time.Duration
	OTPSweepInterval    time.Duration
	OTPStore            string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WebhookURL     string
	WebhookTimeout time.Duration

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string

	ProfileStore          string
	ProfileStoreTimeout   time.Duration
	AdminListDefaultLimit int
	AdminListMaxLimit     int
	OperatorIDs           []string

	ConvexURL             string
	ConvexAdminKey        string
	ConvexBackendWriteKey string

	DatabaseDriver string
	DatabaseDSN    string

	IdentityJWTSecret    string
	IdentityJWTPublicKey string
	IdentityJWTIssuer    string
}

func defaults() ConfigFile {
	return ConfigFile{
		App: AppConfig{Port: 8787, GinMode: "release", LogLevel: "info", LogFormat: "json"},
		OTP: OTPConfig{
			Length:         4,
			TTL:            "5m",
			MaxAttempts:    5,
			ResendCooldown: "30s",
			SweepInterval:  "1m",
			Store:          StoreMemory,
		},
		Redis:        RedisConfig{Addr: "localhost:6379"},
		Dispatch:     DispatchConfig{WebhookTimeout: "10s"},
		ProfileStore: ProfileStoreConfig{Timeout: "10s", AdminListDefault: 200, AdminListMax: 500},
		Database:     DatabaseConfig{Driver: "postgres"},
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads .env (when present), the YAML file, then environment overrides
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file := defaults()
	if err := loadConfigFile(env("CONFIG_FILE", DefaultConfigPath), &file); err != nil {
		return nil, err
	}
	return fromFile(file)
}

func loadConfigFile(path string, into *ConfigFile) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not read config file at %s: %w", path, err)
	}
	if err := yaml.Unmarshal(bytes, into); err != nil {
		return fmt.Errorf("could not parse config yaml: %w", err)
	}
	return nil
}

func fromFile(f ConfigFile) (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:      env("OTP_SERVER_PORT", strconv.Itoa(f.App.Port)),
		GinMode:   env("GIN_MODE", f.App.GinMode),
		LogLevel:  env("LOG_LEVEL", f.App.LogLevel),
		LogFormat: env("LOG_FORMAT", f.App.LogFormat),

		OTPLength:         p.integer("OTP_LENGTH", f.OTP.Length),
		OTPTTL:            p.duration("OTP_TTL_MS", f.OTP.TTL),
		OTPMaxAttempts:    p.integer("OTP_MAX_ATTEMPTS", f.OTP.MaxAttempts),
		OTPResendCooldown: p.duration("OTP_RESEND_COOLDOWN_MS", f.OTP.ResendCooldown),
		OTPSweepInterval:  p.duration("OTP_SWEEP_INTERVAL_MS", f.OTP.SweepInterval),
		OTPStore:          strings.ToLower(env("OTP_STORE", f.OTP.Store)),

		RedisAddr:     env("REDIS_ADDR", f.Redis.Addr),
		RedisPassword: env("REDIS_PASSWORD", f.Redis.Password),
		RedisDB:       p.integer("REDIS_DB", f.Redis.DB),

		WebhookURL:     strings.TrimSpace(env("OTP_DISPATCH_WEBHOOK_URL", f.Dispatch.WebhookURL)),
		WebhookTimeout: p.duration("OTP_WEBHOOK_TIMEOUT_MS", f.Dispatch.WebhookTimeout),

		TwilioSID:   env("TWILIO_ACCOUNT_SID", f.Twilio.AccountSID),
		TwilioToken: env("TWILIO_AUTH_TOKEN", f.Twilio.AuthToken),
		TwilioFrom:  env("TWILIO_FROM_NUMBER", f.Twilio.FromNumber),

		ProfileStoreTimeout:   p.duration("PROFILE_STORE_TIMEOUT_MS", f.ProfileStore.Timeout),
		AdminListDefaultLimit: p.integer("ADMIN_LIST_DEFAULT_LIMIT", f.ProfileStore.AdminListDefault),
		AdminListMaxLimit:     p.integer("ADMIN_LIST_MAX_LIMIT", f.ProfileStore.AdminListMax),
		OperatorIDs:           splitList(env("BACKEND_TEAM_CLERK_USER_IDS", f.ProfileStore.OperatorIDs)),

		ConvexURL:             strings.TrimRight(env("CONVEX_URL", f.Convex.URL), "/"),
		ConvexAdminKey:        env("CONVEX_ADMIN_KEY", f.Convex.AdminKey),
		ConvexBackendWriteKey: env("CONVEX_BACKEND_WRITE_KEY", f.Convex.BackendWriteKey),

		DatabaseDriver: strings.ToLower(env("DATABASE_DRIVER", f.Database.Driver)),
		DatabaseDSN:    env("DATABASE_DSN", f.Database.DSN),

		IdentityJWTSecret:    env("IDENTITY_JWT_SECRET", f.Identity.JWTSecret),
		IdentityJWTPublicKey: env("IDENTITY_JWT_PUBLIC_KEY", f.Identity.JWTPublicKey),
		IdentityJWTIssuer:    env("IDENTITY_JWT_ISSUER", f.Identity.JWTIssuer),
	}

	cfg.OTPExpiredRetention = p.duration("OTP_EXPIRED_RETENTION_MS", f.OTP.ExpiredRetention)
	if cfg.OTPExpiredRetention == 0 {
		cfg.OTPExpiredRetention = max(cfg.OTPTTL, cfg.OTPResendCooldown)
	}

	cfg.ProfileStore = strings.ToLower(env("PROFILE_STORE", f.ProfileStore.Kind))
	if cfg.ProfileStore == "" {
		cfg.ProfileStore = cfg.inferProfileStore()
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) inferProfileStore() string {
	switch {
	case c.ConvexURL != "" && c.ConvexAdminKey != "":
		return ProfileStoreConvex
	case c.DatabaseDSN != "":
		return ProfileStoreSQL
	default:
		return ProfileStoreNone
	}
}

// Validate rejects values the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.OTPLength < 4 || c.OTPLength > 9 {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 4 and 9, got %d", c.OTPLength))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL_MS must be positive"))
	}
	if c.OTPMaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if c.OTPResendCooldown < 0 {
		errs = append(errs, errors.New("OTP_RESEND_COOLDOWN_MS must not be negative"))
	}
	if c.OTPExpiredRetention < c.OTPResendCooldown {
		errs = append(errs, errors.New("OTP_EXPIRED_RETENTION_MS must cover the resend cooldown"))
	}
	if c.OTPSweepInterval < 0 {
		errs = append(errs, errors.New("OTP_SWEEP_INTERVAL_MS must not be negative"))
	}
	if c.WebhookTimeout <= 0 {
		errs = append(errs, errors.New("OTP_WEBHOOK_TIMEOUT_MS must be positive"))
	}
	if c.ProfileStoreTimeout <= 0 {
		errs = append(errs, errors.New("PROFILE_STORE_TIMEOUT_MS must be positive"))
	}
	if c.AdminListDefaultLimit < 1 || c.AdminListMaxLimit < c.AdminListDefaultLimit {
		errs = append(errs, errors.New("admin list limits must satisfy 1 <= default <= max"))
	}

	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("unknown GIN_MODE %q", c.GinMode))
	}

	switch c.OTPStore {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown OTP_STORE %q", c.OTPStore))
	}

	switch c.ProfileStore {
	case ProfileStoreNone:
	case ProfileStoreConvex:
		if c.ConvexURL == "" || c.ConvexAdminKey == "" {
			errs = append(errs, errors.New("PROFILE_STORE=convex requires CONVEX_URL and CONVEX_ADMIN_KEY"))
		}
	case ProfileStoreSQL:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("PROFILE_STORE=sql requires DATABASE_DSN"))
		}
		if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
			errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PROFILE_STORE %q", c.ProfileStore))
	}

	if c.TwilioSID != "" && (c.TwilioToken == "" || c.TwilioFrom == "") {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID requires TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER"))
	}

	return errors.Join(errs...)
}

// Warnings lists suspicious but usable settings
func (c *Config) Warnings() []string {
	var out []string
	if c.ConvexBackendWriteKey != "" && len(c.ConvexBackendWriteKey) < 8 {
		out = append(out, "CONVEX_BACKEND_WRITE_KEY looks too short. If it includes '#', wrap it in quotes in .env.")
	}
	if c.ProfileStore == ProfileStoreConvex && c.ConvexBackendWriteKey == "" {
		out = append(out, "CONVEX_BACKEND_WRITE_KEY is not set; profile writes will be rejected.")
	}
	if c.WebhookURL == "" && c.TwilioSID == "" {
		out = append(out, "no OTP dispatch transport configured; codes are only logged.")
	}
	return out
}

// parser collects the first conversion error so Load can report it once
type parser struct {
	err error
}

func (p *parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

// duration reads key as integer milliseconds, falling back to a YAML duration string
func (p *parser) duration(key, def string) time.Duration {
	if v := os.Getenv(key); v != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil && p.err == nil {
			p.err = fmt.Errorf("invalid %s: %w", key, err)
		}
		return time.Duration(ms) * time.Millisecond
	}
	if def == "" {
		return 0
	}
	d, err := time.ParseDuration(def)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
