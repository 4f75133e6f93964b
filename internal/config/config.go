package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr    string
	PublicBaseURL string
	WebDir        string

	LogLevel  string
	LogFormat string

	DBPath            string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SessionCookieName   string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	CSRFCookieName      string
	CookieSecure        bool
	TrustProxy          bool
	CORSAllowedOrigins  []string

	CaptchaEnabled   bool
	CaptchaProvider  string
	CaptchaVerifyURL string
	CaptchaSecret    string

	PasswordMinLength int
	PasswordMaxLength int
	AllowSignUp       bool

	CatalogPath          string
	ContentTemplatesPath string
	ContentBackend       string
	MongoURI             string
	MongoDatabase        string
	UploadDir            string
	UploadMaxBytes       int64

	CheckoutTTLMinutes int

	PayPalClientID     string
	PayPalClientSecret string
	PayPalAPIBase      string
	PayPalSDKBase      string

	MailQueue        string
	MailFrom         string
	MailReplyTo      string
	AMQPURL          string
	AMQPQueueName    string
	MailPollInterval time.Duration
	MailMaxAttempts  int

	SMTPHost               string
	SMTPPort               int
	SMTPUser               string
	SMTPPassword           string
	SMTPTLS                bool
	SMTPStartTLS           bool
	SMTPInsecureSkipVerify bool

	IMAPArchiveEnabled     bool
	IMAPHost               string
	IMAPPort               int
	IMAPUser               string
	IMAPPassword           string
	IMAPMailbox            string
	IMAPTLS                bool
	IMAPStartTLS           bool
	IMAPInsecureSkipVerify bool

	RoleDirectoryDriver    string
	RoleDirectoryDSN       string
	RoleDirectoryTable     string
	RoleDirectoryEmailCol  string
	RoleDirectoryRoleCol   string
	RoleDirectoryActiveCol string

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(env("ENV_FILE", ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		PublicBaseURL:            strings.TrimRight(env("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		WebDir:                   env("WEB_DIR", "./web"),
		LogLevel:                 strings.ToLower(env("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(env("LOG_FORMAT", "json")),
		DBPath:                   env("APP_DB_PATH", "./data/gainfair.db"),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		SessionCookieName:        env("SESSION_COOKIE_NAME", "gainfair_session"),
		SessionIdleMinutes:       envInt("SESSION_IDLE_MINUTES", 60),
		SessionAbsoluteHour:      envInt("SESSION_ABSOLUTE_HOURS", 12),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "gainfair_csrf"),
		CookieSecure:             envBool("COOKIE_SECURE", false),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		CaptchaEnabled:           envBool("CAPTCHA_ENABLED", false),
		CaptchaProvider:          strings.ToLower(env("CAPTCHA_PROVIDER", "turnstile")),
		CaptchaVerifyURL:         env("CAPTCHA_VERIFY_URL", ""),
		CaptchaSecret:            env("CAPTCHA_SECRET", ""),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 10),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		AllowSignUp:              envBool("ALLOW_SIGNUP", true),
		CatalogPath:              env("CATALOG_PATH", ""),
		ContentTemplatesPath:     env("CONTENT_TEMPLATES_PATH", ""),
		ContentBackend:           strings.ToLower(env("CONTENT_BACKEND", "sqlite")),
		MongoURI:                 env("MONGO_URI", ""),
		MongoDatabase:            env("MONGO_DATABASE", "gainfair"),
		UploadDir:                env("UPLOAD_DIR", "./data/uploads"),
		UploadMaxBytes:           int64(envInt("UPLOAD_MAX_MB", 50)) << 20,
		CheckoutTTLMinutes:       envInt("CHECKOUT_TTL_MINUTES", 120),
		PayPalClientID:           env("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret:       env("PAYPAL_CLIENT_SECRET", ""),
		PayPalAPIBase:            strings.TrimRight(env("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"), "/"),
		PayPalSDKBase:            env("PAYPAL_SDK_BASE", "https://www.paypal.com/sdk/js"),
		MailQueue:                strings.ToLower(env("MAIL_QUEUE", "outbox")),
		MailFrom:                 env("MAIL_FROM", "GAIN FAIR 2025 <no-reply@greenpassgroup.com>"),
		MailReplyTo:              env("MAIL_REPLY_TO", "info@greenpassgroup.com"),
		AMQPURL:                  env("AMQP_URL", ""),
		AMQPQueueName:            env("AMQP_QUEUE", "gainfair.mail"),
		MailPollInterval:         time.Duration(envInt("MAIL_POLL_INTERVAL_SEC", 10)) * time.Second,
		MailMaxAttempts:          envInt("MAIL_MAX_ATTEMPTS", 5),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPUser:                 env("SMTP_USER", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
		SMTPTLS:                  envBool("SMTP_TLS", false),
		SMTPStartTLS:             envBool("SMTP_STARTTLS", true),
		SMTPInsecureSkipVerify:   envBool("SMTP_INSECURE_SKIP_VERIFY", false),
		IMAPArchiveEnabled:       envBool("IMAP_ARCHIVE_ENABLED", false),
		IMAPHost:                 env("IMAP_HOST", "127.0.0.1"),
		IMAPPort:                 envInt("IMAP_PORT", 993),
		IMAPUser:                 env("IMAP_USER", ""),
		IMAPPassword:             env("IMAP_PASSWORD", ""),
		IMAPMailbox:              env("IMAP_MAILBOX", "Sent"),
		IMAPTLS:                  envBool("IMAP_TLS", true),
		IMAPStartTLS:             envBool("IMAP_STARTTLS", false),
		IMAPInsecureSkipVerify:   envBool("IMAP_INSECURE_SKIP_VERIFY", false),
		RoleDirectoryDriver:      strings.ToLower(env("ROLE_DIRECTORY_DRIVER", "")),
		RoleDirectoryDSN:         env("ROLE_DIRECTORY_DSN", ""),
		RoleDirectoryTable:       env("ROLE_DIRECTORY_TABLE", "staff"),
		RoleDirectoryEmailCol:    env("ROLE_DIRECTORY_EMAIL_COL", "email"),
		RoleDirectoryRoleCol:     env("ROLE_DIRECTORY_ROLE_COL", "user_role"),
		RoleDirectoryActiveCol:   env("ROLE_DIRECTORY_ACTIVE_COL", ""),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 10),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 30),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.SessionIdleMinutes <= 0 || c.SessionAbsoluteHour <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 {
		return fmt.Errorf("invalid DB pool config")
	}
	if c.SMTPPort <= 0 || c.IMAPPort <= 0 {
		return fmt.Errorf("invalid mail host port")
	}
	if c.PasswordMinLength < 8 {
		return fmt.Errorf("password min length must be >= 8")
	}
	if c.PasswordMaxLength < c.PasswordMinLength {
		return fmt.Errorf("password max length must be >= min length")
	}
	if c.CheckoutTTLMinutes <= 0 {
		return fmt.Errorf("CHECKOUT_TTL_MINUTES must be positive")
	}
	if !c.CookieSecure && !isLocalListen(c.ListenAddr) {
		return fmt.Errorf("COOKIE_SECURE=false is allowed only for local listen addresses")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	switch c.ContentBackend {
	case "sqlite":
	case "mongo":
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("MONGO_URI is required when CONTENT_BACKEND=mongo")
		}
	default:
		return fmt.Errorf("CONTENT_BACKEND must be one of: sqlite, mongo")
	}
	switch c.MailQueue {
	case "outbox", "log":
	case "amqp":
		if strings.TrimSpace(c.AMQPURL) == "" {
			return fmt.Errorf("AMQP_URL is required when MAIL_QUEUE=amqp")
		}
	default:
		return fmt.Errorf("MAIL_QUEUE must be one of: outbox, amqp, log")
	}
	if c.MailMaxAttempts <= 0 || c.MailPollInterval <= 0 {
		return fmt.Errorf("mail delivery attempts and poll interval must be positive")
	}
	switch c.RoleDirectoryDriver {
	case "":
	case "mysql", "pgx", "postgres":
		if strings.TrimSpace(c.RoleDirectoryDSN) == "" {
			return fmt.Errorf("ROLE_DIRECTORY_DSN is required when ROLE_DIRECTORY_DRIVER is set")
		}
	default:
		return fmt.Errorf("ROLE_DIRECTORY_DRIVER must be one of: mysql, pgx, postgres")
	}
	if c.IMAPArchiveEnabled && strings.TrimSpace(c.IMAPUser) == "" {
		return fmt.Errorf("IMAP_USER is required when IMAP_ARCHIVE_ENABLED=true")
	}
	if (c.PayPalClientID == "") != (c.PayPalClientSecret == "") {
		return fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET must be set together")
	}
	if c.CaptchaEnabled {
		if strings.TrimSpace(c.CaptchaSecret) == "" {
			return fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(c.CaptchaVerifyURL) == "" {
			switch c.CaptchaProvider {
			case "turnstile", "":
				c.CaptchaVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
			case "hcaptcha":
				c.CaptchaVerifyURL = "https://hcaptcha.com/siteverify"
			default:
				return fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", c.CaptchaProvider)
			}
		}
	}
	return nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

func (c Config) CheckoutTTL() time.Duration {
	return time.Duration(c.CheckoutTTLMinutes) * time.Minute
}

func (c Config) PaymentsEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
