package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4222", cfg.NATS.Host)
	assert.Equal(t, "tcp:127.0.0.1:6641", cfg.OVN.NBAddr)
	assert.Equal(t, "tcp:127.0.0.1:6642", cfg.OVN.SBAddr)
	assert.Equal(t, 43200, cfg.DHCP.LeaseTime)
	assert.Equal(t, "fa:16:3e:00:00:00", cfg.DHCP.BaseMAC)
	assert.True(t, cfg.DHCP.MetadataEnabled)
	assert.Equal(t, "leastloaded", cfg.GatewayScheduler)
	assert.Equal(t, 30, cfg.GatewayRescheduleSeconds)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ovnd.toml")
	content := `
gateway_scheduler = "chance"
gateway_reschedule_seconds = 60

[nats]
host = "nats.example.org:4222"
token = "secret"

[ovn]
nb_addr = "tcp:10.0.0.1:6641"

[dhcp]
lease_time = 86400
metadata_enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nats.example.org:4222", cfg.NATS.Host)
	assert.Equal(t, "secret", cfg.NATS.Token)
	assert.Equal(t, "tcp:10.0.0.1:6641", cfg.OVN.NBAddr)
	assert.Equal(t, "chance", cfg.GatewayScheduler)
	assert.Equal(t, 60, cfg.GatewayRescheduleSeconds)
	assert.Equal(t, 86400, cfg.DHCP.LeaseTime)
	assert.False(t, cfg.DHCP.MetadataEnabled)
	// Unset fields keep their defaults.
	assert.Equal(t, "tcp:127.0.0.1:6642", cfg.OVN.SBAddr)
}

func TestLoadConfig_MissingFileFallsBack(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4222", cfg.NATS.Host)
}
