package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiconf/focus/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "focus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
xmpp:
  domain: meet.example.net
  focus_jid: focus@auth.meet.example.net
  muc_service: conference.meet.example.net
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "region-based-cascade", cfg.Selection.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Selection.FailureCooldown)
	assert.Equal(t, 90*time.Second, cfg.Jibri.PendingTimeout)
	assert.Equal(t, 1, cfg.Jibri.NumRetries)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLifetime)
	assert.Equal(t, ":8080", cfg.HTTP.BindAddress)
	assert.Equal(t, 10*time.Second, cfg.Colibri.NetworkTimeout)
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
xmpp:
  domain: meet.example.net
  focus_jid: focus@auth.meet.example.net
  muc_service: conference.meet.example.net
  bridge_muc: jvbbrewery@internal.meet.example.net
bridge_selection:
  strategy: single-bridge
jibri:
  pending_timeout: 45s
  num_retries: 3
http:
  bind_address: 127.0.0.1:9090
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "single-bridge", cfg.Selection.Strategy)
	assert.Equal(t, 45*time.Second, cfg.Jibri.PendingTimeout)
	assert.Equal(t, 3, cfg.Jibri.NumRetries)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.BindAddress)
	assert.Equal(t, "jvbbrewery@internal.meet.example.net", cfg.XMPP.BridgeMuc)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
xmpp:
  domain: meet.example.net
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
xmpp:
  domain: meet.example.net
  focus_jid: focus@auth.meet.example.net
  muc_service: conference.meet.example.net
bridge_selection:
  strategy: round-robin
`)

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
