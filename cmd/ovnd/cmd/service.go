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
	"log/slog"
	"os"

	"github.com/mulgadc/ovnd/ovnd/daemon"
	"github.com/spf13/cobra"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the ovnd service",
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ovnd service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		if appConfig.Debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		svc, err := daemon.New(appConfig)
		if err != nil {
			return err
		}

		pid, err := svc.Start()
		if err != nil {
			return err
		}
		slog.Info("ovnd service stopped", "pid", pid)
		return nil
	},
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the ovnd service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		svc, err := daemon.New(appConfig)
		if err != nil {
			return err
		}
		return svc.Stop()
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ovnd service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if appConfig == nil {
			return fmt.Errorf("configuration not loaded")
		}

		svc, err := daemon.New(appConfig)
		if err != nil {
			return err
		}
		status, err := svc.Status()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
