package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFlags map[string]bool

func (f fakeFlags) BoolVariation(key string, _ ldcontext.Context, def bool) (bool, error) {
	if v, ok := f[key]; ok {
		return v, nil
	}
	return def, errors.New("flag not found")
}

func baseEnv() map[string]string {
	return map[string]string{
		"APP_URL_FROM_ANYWHERE": "https://intake.example.com",
		"SITE_URL":              "https://2ndopinionconstruction.com",
		"DB_URL":                "postgres://localhost/intake",
		"SENDGRID_API_KEY":      "SG.key",
		"SESSION_SIGNING_KEY":   strings.Repeat("k", 32),
		"NOTIFY_SERVICE_KEY":    "notify-key",
		"STORAGE_ENDPOINT":      "localhost:9000",
		"STORAGE_ACCESS_KEY":    "minio",
		"STORAGE_SECRET_KEY":    "minio123",
	}
}

func lookupFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestBuildDefaults(t *testing.T) {
	cfg, err := build("dev", lookupFrom(baseEnv()), fakeFlags{})
	require.NoError(t, err)

	assert.Equal(t, DefaultAppPort, cfg.AppPort)
	assert.Equal(t, DefaultStorageBucket, cfg.StorageBucket)
	assert.Equal(t, DefaultMailFrom, cfg.MailFrom)
	assert.Equal(t, DefaultMailTo, cfg.MailTo)
	assert.Equal(t, DefaultBusinessName, cfg.BusinessName)
	assert.False(t, cfg.StorageUseSSL)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)

	// offline defaults depend on env
	assert.True(t, cfg.LDFlag_SendgridSandboxMode)
	assert.True(t, cfg.LDFlag_EagerLeadCreation)
	assert.False(t, cfg.LDFlag_AllowEarlyAttachments)
	assert.False(t, cfg.LDFlag_CORSHighSecurity)

	prod, err := build("prod", lookupFrom(baseEnv()), fakeFlags{})
	require.NoError(t, err)
	assert.False(t, prod.LDFlag_SendgridSandboxMode)
	assert.True(t, prod.LDFlag_CORSHighSecurity)
}

func TestBuildReportsEveryMissingKey(t *testing.T) {
	env := baseEnv()
	delete(env, "DB_URL")
	delete(env, "NOTIFY_SERVICE_KEY")

	_, err := build("dev", lookupFrom(env), fakeFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_URL")
	assert.Contains(t, err.Error(), "NOTIFY_SERVICE_KEY")
}

func TestBuildRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_SIGNING_KEY": "short",
		"MAIL_TO":             "not an address",
		"STORAGE_USE_SSL":     "maybe",
		"SESSION_TTL":         "forever",
	}
	for key, val := range cases {
		env := baseEnv()
		env[key] = val
		_, err := build("dev", lookupFrom(env), fakeFlags{})
		assert.Error(t, err, key)
	}
}

func TestBuildFlagsAndTwilioGuard(t *testing.T) {
	flags := fakeFlags{"allow_early_attachments": true, "eager_lead_creation": false, "validate_phone_with_twilio": true}

	_, err := build("dev", lookupFrom(baseEnv()), flags)
	require.Error(t, err)

	env := baseEnv()
	env["TWILIO_ACCOUNT_SID"] = "AC123"
	env["TWILIO_AUTH_TOKEN"] = "tok"
	cfg, err := build("dev", lookupFrom(env), flags)
	require.NoError(t, err)
	assert.True(t, cfg.LDFlag_AllowEarlyAttachments)
	assert.False(t, cfg.LDFlag_EagerLeadCreation)
	assert.True(t, cfg.LDFlag_ValidatePhoneWithTwilio)
}

func TestPresenceNeverLeaksValues(t *testing.T) {
	cfg, err := build("dev", lookupFrom(baseEnv()), fakeFlags{})
	require.NoError(t, err)

	p := cfg.Presence()
	assert.Equal(t, "set", p["SENDGRID_API_KEY"])
	assert.Equal(t, "missing", p["TWILIO_AUTH_TOKEN"])
	assert.Equal(t, "missing", p["LD_SDK_KEY"])
	for _, v := range p {
		assert.Contains(t, []string{"set", "missing"}, v)
	}
}

func TestLoginWithBackoff(t *testing.T) {
	calls := 0
	err := loginWithBackoff(func() error {
		calls++
		return errors.New("invalid access token")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = loginWithBackoff(func() error {
		calls++
		if calls == 1 {
			return errors.New("status 429 Too Many Requests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
