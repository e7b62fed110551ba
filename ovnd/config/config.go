// Package config loads the ovnd configuration from file and environment.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for ovnd.
type Config struct {
	NATS NATSConfig `mapstructure:"nats"`
	OVN  OVNConfig  `mapstructure:"ovn"`
	DHCP DHCPConfig `mapstructure:"dhcp"`

	// GatewayScheduler selects the gateway scheduling strategy
	// ("leastloaded" or "chance").
	GatewayScheduler string `mapstructure:"gateway_scheduler"`
	// GatewayRescheduleSeconds is the interval between unhosted-gateway
	// sweeps. Zero disables the periodic sweep.
	GatewayRescheduleSeconds int `mapstructure:"gateway_reschedule_seconds"`
	// Debug enables debug logging.
	Debug bool `mapstructure:"debug"`
}

// NATSConfig holds the NATS connection configuration.
type NATSConfig struct {
	Host  string `mapstructure:"host"`
	Token string `mapstructure:"token"`
}

// OVNConfig holds the OVN database endpoints.
type OVNConfig struct {
	// NBAddr is the Northbound DB address (e.g. "tcp:127.0.0.1:6641").
	NBAddr string `mapstructure:"nb_addr"`
	// SBAddr is the Southbound DB address (e.g. "tcp:127.0.0.1:6642").
	SBAddr string `mapstructure:"sb_addr"`
}

// DHCPConfig holds the native DHCP knobs.
type DHCPConfig struct {
	// LeaseTime is the v4 lease time in seconds.
	LeaseTime int `mapstructure:"lease_time"`
	// BaseMAC is the prefix pool for generated DHCP server MACs.
	BaseMAC string `mapstructure:"base_mac"`
	// MetadataEnabled allocates a metadata port per network.
	MetadataEnabled bool `mapstructure:"metadata_enabled"`
}

// LoadConfig loads the configuration from an optional TOML file plus OVND_*
// environment variables, applying defaults for everything unset.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OVND")
	v.AutomaticEnv()

	v.SetDefault("nats.host", "0.0.0.0:4222")
	v.SetDefault("ovn.nb_addr", "tcp:127.0.0.1:6641")
	v.SetDefault("ovn.sb_addr", "tcp:127.0.0.1:6642")
	v.SetDefault("dhcp.lease_time", 43200)
	v.SetDefault("dhcp.base_mac", "fa:16:3e:00:00:00")
	v.SetDefault("dhcp.metadata_enabled", true)
	v.SetDefault("gateway_scheduler", "leastloaded")
	v.SetDefault("gateway_reschedule_seconds", 30)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Config file not found: %s, using environment variables and defaults\n", configPath)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.NATS.Host == "" {
		return nil, fmt.Errorf("NATS host is required")
	}
	if config.OVN.NBAddr == "" {
		return nil, fmt.Errorf("OVN NB DB address is required")
	}
	return &config, nil
}
