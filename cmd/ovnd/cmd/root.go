/*
Copyright © 2025 Mulga Defense Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/mulgadc/ovnd/ovnd/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ovnd",
	Short: "ovnd - OVN network translation daemon",
	Long: `ovnd consumes network lifecycle events from NATS and translates them
into OVN Northbound database state: logical switches, ports, routers,
DHCP options, ACLs and NAT rules.
It can be configured via config file, environment variables, or command line flags.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML)")
	viper.BindEnv("config", "OVND_CONFIG_PATH")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	// NATS specific flags
	rootCmd.PersistentFlags().String("nats-host", "", "NATS server host (overrides config file and env)")
	viper.BindEnv("nats-host", "OVND_NATS_HOST")
	viper.BindPFlag("nats-host", rootCmd.PersistentFlags().Lookup("nats-host"))

	rootCmd.PersistentFlags().String("nats-token", "", "NATS authentication token (overrides config file and env)")
	viper.BindEnv("nats-token", "OVND_NATS_TOKEN")
	viper.BindPFlag("nats-token", rootCmd.PersistentFlags().Lookup("nats-token"))

	// OVN database flags
	rootCmd.PersistentFlags().String("ovn-nb-addr", "", "OVN Northbound DB address (overrides config file and env)")
	viper.BindEnv("ovn-nb-addr", "OVND_OVN_NB_ADDR")
	viper.BindPFlag("ovn-nb-addr", rootCmd.PersistentFlags().Lookup("ovn-nb-addr"))

	rootCmd.PersistentFlags().String("ovn-sb-addr", "", "OVN Southbound DB address (overrides config file and env)")
	viper.BindEnv("ovn-sb-addr", "OVND_OVN_SB_ADDR")
	viper.BindPFlag("ovn-sb-addr", rootCmd.PersistentFlags().Lookup("ovn-sb-addr"))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	viper.BindEnv("debug", "OVND_DEBUG")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// initConfig reads in the config file and applies CLI/env overrides.
func initConfig() {
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}

	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI first, config second, env third
	if host := viper.GetString("nats-host"); host != "" {
		cfg.NATS.Host = host
	}
	if token := viper.GetString("nats-token"); token != "" {
		cfg.NATS.Token = token
	}
	if addr := viper.GetString("ovn-nb-addr"); addr != "" {
		cfg.OVN.NBAddr = addr
	}
	if addr := viper.GetString("ovn-sb-addr"); addr != "" {
		cfg.OVN.SBAddr = addr
	}
	if viper.GetBool("debug") {
		cfg.Debug = true
	}

	appConfig = cfg
}
