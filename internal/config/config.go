package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

// Config holds all application configuration, including secrets, flags, etc.
type Config struct {
	OrganizationName string
	AppName          string
	Env              string
	AppPort          string
	AppUrl           string
	SiteURL          string

	DBUrl             string
	SendGridAPIKey    string
	SessionSigningKey []byte
	NotifyServiceKey  string

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StagingDir       string

	MailFrom     string
	MailTo       string
	BusinessName string

	TwilioAccountSID string
	TwilioAuthToken  string

	VerificationCodeLength    int
	VerificationCodeExpiry    time.Duration
	ResendCooldown            time.Duration
	SessionTTL                time.Duration
	SignedURLTTL              time.Duration
	EmailLimitPerIPPerHour    int
	EmailLimitPerEmailPerHour int
	GlobalEmailLimitPerHour   int
	RateLimitWindow           time.Duration

	// Static flags fetched once from LaunchDarkly
	LDFlag_SendgridSandboxMode       bool
	LDFlag_ValidateEmailWithSendGrid bool
	LDFlag_ValidatePhoneWithTwilio   bool
	LDFlag_EagerLeadCreation         bool
	LDFlag_AllowEarlyAttachments     bool
	LDFlag_AcceptTestEmails          bool
	LDFlag_CORSHighSecurity          bool

	presence map[string]bool
}

const (
	OrganizationName                 = utils.OrganizationName
	DefaultAppName                   = "intake-service"
	DefaultAppPort                   = "8080"
	DefaultStorageBucket             = "bids"
	DefaultMailFrom                  = "2nd Opinion Construction <no-reply@2ndopinionconstruction.com>"
	DefaultMailTo                    = "upcountrycontractors@gmail.com"
	DefaultBusinessName              = "2nd Opinion"
	VerificationCodeLength           = 6
	DefaultVerificationCodeExpiry    = 10 * time.Minute
	DefaultResendCooldown            = 45 * time.Second
	DefaultSessionTTL                = 2 * time.Hour
	SignedURLTTL                     = 24 * time.Hour
	LDConnectionTimeout              = 5 * time.Second
	DefaultEmailLimitPerIPPerHour    = 20
	DefaultEmailLimitPerEmailPerHour = 5
	DefaultGlobalEmailLimitPerHour   = 500
	DefaultRateLimitWindow           = 1 * time.Hour
	minSessionKeyLength              = 32
)

// Secrets whose presence (never value) is reported by the ping endpoint.
var reportedKeys = []string{
	"DB_URL",
	"SENDGRID_API_KEY",
	"SESSION_SIGNING_KEY",
	"NOTIFY_SERVICE_KEY",
	"STORAGE_ENDPOINT",
	"STORAGE_ACCESS_KEY",
	"STORAGE_SECRET_KEY",
	"TWILIO_ACCOUNT_SID",
	"TWILIO_AUTH_TOKEN",
	"LD_SDK_KEY",
}

// Build-time overrides, set with -ldflags.
var (
	AppName             = DefaultAppName
	LDServerContextKey  string
	LDServerContextKind string
)

// flagSource is the part of the LaunchDarkly client config reads from.
type flagSource interface {
	BoolVariation(key string, context ldcontext.Context, defaultVal bool) (bool, error)
}

// LoadConfig reads .env (if any), the environment and, when
// BWS_ACCESS_TOKEN is set, the Bitwarden project "<app>-<env>", then
// snapshots LaunchDarkly flags. Any missing required value is fatal.
func LoadConfig() *Config {
	if AppName == "" {
		AppName = DefaultAppName
	}
	if LDServerContextKind == "" {
		LDServerContextKind = "service"
	}
	if LDServerContextKey == "" {
		LDServerContextKey = AppName
	}

	utils.Logger.Info("Loading config for app: ", AppName)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		utils.Logger.WithError(err).Warn("Failed to parse .env file; continuing with process environment")
	}

	env := os.Getenv("ENV")
	if env == "" {
		utils.Logger.Fatal("ENV env var is missing")
	}

	//----------------------------------------------------------------------
	// Secrets: Bitwarden project overrides the process environment.
	//----------------------------------------------------------------------
	secrets := map[string]string{}
	if token := os.Getenv("BWS_ACCESS_TOKEN"); token != "" {
		project := fmt.Sprintf("%s-%s", AppName, env)
		utils.Logger.Debugf("Fetching secrets from Bitwarden project %s", project)
		var err error
		secrets, err = bitwardenSecrets(token, os.Getenv("BWS_ORGANIZATION_ID"), project)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to fetch secrets from Bitwarden")
		}
	} else {
		utils.Logger.Info("BWS_ACCESS_TOKEN not set; reading secrets from the environment")
	}

	lookup := func(key string) string {
		if v := strings.TrimSpace(secrets[key]); v != "" {
			return v
		}
		return strings.TrimSpace(os.Getenv(key))
	}

	//----------------------------------------------------------------------
	// LaunchDarkly: offline client (defaults only) when no SDK key.
	//----------------------------------------------------------------------
	var (
		ldClient *ld.LDClient
		err      error
	)
	if sdkKey := lookup("LD_SDK_KEY"); sdkKey != "" {
		ldClient, err = ld.MakeClient(sdkKey, LDConnectionTimeout)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
		}
		if !ldClient.Initialized() {
			ldClient.Close()
			utils.Logger.Fatal("LaunchDarkly client failed to initialize")
		}
	} else {
		utils.Logger.Warn("LD_SDK_KEY not set; feature flags use their defaults")
		ldClient, err = ld.MakeCustomClient("", ld.Config{Offline: true}, 0)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to create offline LaunchDarkly client")
		}
	}
	defer ldClient.Close()

	cfg, err := build(env, lookup, ldClient)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Invalid configuration")
	}

	utils.Logger.Debugf("App can be accessed at: %s", cfg.AppUrl)
	return cfg
}

// build assembles a Config from a key lookup and a flag source.
func build(env string, lookup func(string) string, flags flagSource) (*Config, error) {
	var missing []string
	require := func(key string) string {
		v := lookup(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	orDefault := func(key, def string) string {
		if v := lookup(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		OrganizationName: OrganizationName,
		AppName:          AppName,
		Env:              env,
		AppPort:          orDefault("APP_PORT", DefaultAppPort),
		AppUrl:           require("APP_URL_FROM_ANYWHERE"),
		SiteURL:          lookup("SITE_URL"),

		DBUrl:             require("DB_URL"),
		SendGridAPIKey:    require("SENDGRID_API_KEY"),
		SessionSigningKey: []byte(require("SESSION_SIGNING_KEY")),
		NotifyServiceKey:  require("NOTIFY_SERVICE_KEY"),

		StorageEndpoint:  require("STORAGE_ENDPOINT"),
		StorageAccessKey: require("STORAGE_ACCESS_KEY"),
		StorageSecretKey: require("STORAGE_SECRET_KEY"),
		StorageBucket:    orDefault("STORAGE_BUCKET", DefaultStorageBucket),
		StagingDir:       orDefault("STAGING_DIR", os.TempDir()),

		MailFrom:     orDefault("MAIL_FROM", DefaultMailFrom),
		MailTo:       orDefault("MAIL_TO", DefaultMailTo),
		BusinessName: orDefault("BUSINESS_NAME", DefaultBusinessName),

		TwilioAccountSID: lookup("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  lookup("TWILIO_AUTH_TOKEN"),

		VerificationCodeLength:    VerificationCodeLength,
		VerificationCodeExpiry:    DefaultVerificationCodeExpiry,
		ResendCooldown:            DefaultResendCooldown,
		SessionTTL:                DefaultSessionTTL,
		SignedURLTTL:              SignedURLTTL,
		EmailLimitPerIPPerHour:    DefaultEmailLimitPerIPPerHour,
		EmailLimitPerEmailPerHour: DefaultEmailLimitPerEmailPerHour,
		GlobalEmailLimitPerHour:   DefaultGlobalEmailLimitPerHour,
		RateLimitWindow:           DefaultRateLimitWindow,

		presence: map[string]bool{},
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	for _, key := range reportedKeys {
		cfg.presence[key] = lookup(key) != ""
	}

	if len(cfg.SessionSigningKey) < minSessionKeyLength {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes", minSessionKeyLength)
	}
	if _, err := mail.ParseAddress(cfg.MailFrom); err != nil {
		return nil, fmt.Errorf("MAIL_FROM is not a valid address: %w", err)
	}
	if _, err := mail.ParseAddress(cfg.MailTo); err != nil {
		return nil, fmt.Errorf("MAIL_TO is not a valid address: %w", err)
	}
	if raw := lookup("STORAGE_USE_SSL"); raw != "" {
		useSSL, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("STORAGE_USE_SSL: %w", err)
		}
		cfg.StorageUseSSL = useSSL
	}
	if raw := lookup("SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = ttl
	}

	//----------------------------------------------------------------------
	// Feature flags.
	//----------------------------------------------------------------------
	context := ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)
	boolFlags := []struct {
		key  string
		def  bool
		dest *bool
	}{
		{"sendgrid_sandbox_mode", env != "prod", &cfg.LDFlag_SendgridSandboxMode},
		{"validate_email_with_sendgrid", false, &cfg.LDFlag_ValidateEmailWithSendGrid},
		{"validate_phone_with_twilio", false, &cfg.LDFlag_ValidatePhoneWithTwilio},
		{"eager_lead_creation", true, &cfg.LDFlag_EagerLeadCreation},
		{"allow_early_attachments", false, &cfg.LDFlag_AllowEarlyAttachments},
		{"accept_test_emails", env != "prod", &cfg.LDFlag_AcceptTestEmails},
		{"cors_high_security", env == "prod", &cfg.LDFlag_CORSHighSecurity},
	}
	for _, f := range boolFlags {
		v, err := flags.BoolVariation(f.key, context, f.def)
		if err != nil {
			// The SDK still hands back the default on evaluation errors.
			utils.Logger.WithError(err).Warnf("Error retrieving %s flag; using %t", f.key, v)
		}
		*f.dest = v
		utils.Logger.Debugf("%s flag: %t", f.key, v)
	}

	if cfg.LDFlag_ValidatePhoneWithTwilio && (cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "") {
		return nil, errors.New("validate_phone_with_twilio is on but TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN are missing")
	}

	return cfg, nil
}

// Presence reports, per reported secret, "set" or "missing".
func (c *Config) Presence() map[string]string {
	out := make(map[string]string, len(reportedKeys))
	for _, key := range reportedKeys {
		if c.presence[key] {
			out[key] = "set"
		} else {
			out[key] = "missing"
		}
	}
	return out
}
