package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  http_port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.ListenAddr)
	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "squad", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 3*time.Second, cfg.NATS.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenDuration)
	assert.Equal(t, DefaultSwitchConfig(), cfg.Switch)
}

func TestParseKeepsExplicitZero(t *testing.T) {
	cfg, err := Parse([]byte(`
switch:
  max_unbalanced_slots: 0
  double_switch_delay_seconds: 0
  matchend_grace: 2s
`))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Switch.MaxUnbalancedSlots)
	assert.Equal(t, time.Duration(0), cfg.Switch.DoubleSwitchDelay())
	assert.Equal(t, 2*time.Second, cfg.Switch.MatchEndGrace)
	assert.Equal(t, 5*time.Second, cfg.Switch.RejoinDelay)
}

func TestParseRejectsNegative(t *testing.T) {
	_, err := Parse([]byte("switch:\n  switch_cooldown_hours: -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "switch_cooldown_hours")
}

func TestParseRequiresSecretForAdmins(t *testing.T) {
	admins := "auth:\n  admins:\n    - username: ops\n      password_hash: x\n"

	_, err := Parse([]byte(admins))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret")

	cfg, err := Parse([]byte(admins + "  jwt_secret: s3cret\n"))
	require.NoError(t, err)
	assert.Len(t, cfg.Auth.Admins, 1)

	_, err = Parse([]byte("auth:\n  jwt_secret: \"\"\n"))
	assert.NoError(t, err, "no admins means no tokens to forge")
}

func TestCooldownDuration(t *testing.T) {
	tests := []struct {
		name    string
		hours   float64
		minutes float64
		want    time.Duration
	}{
		{"hours only", 3, 0, 3 * time.Hour},
		{"minutes override hours", 3, 5, 5 * time.Minute},
		{"fractional hours", 0.5, 0, 30 * time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultSwitchConfig()
			c.SwitchCooldownHours = tc.hours
			c.SwitchCooldownMinutes = tc.minutes
			assert.Equal(t, tc.want, c.CooldownDuration())
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEAMSWITCH_TEST_SECRET", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: ${TEAMSWITCH_TEST_SECRET}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestDiscordEnabled(t *testing.T) {
	assert.False(t, DiscordConfig{Token: "x"}.Enabled())
	assert.True(t, DiscordConfig{Token: "x", ChannelID: "1"}.Enabled())
}
