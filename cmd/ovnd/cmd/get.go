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
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mulgadc/ovnd/ovnd/ovn"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Display OVN topology",
	Long:  `Display the logical topology ovnd has programmed into the OVN Northbound database.`,
}

var getSwitchesCmd = &cobra.Command{
	Use:     "switches",
	Aliases: []string{"networks"},
	Short:   "Display logical switches",
	Run:     runGetSwitches,
}

var getRoutersCmd = &cobra.Command{
	Use:   "routers",
	Short: "Display logical routers",
	Run:   runGetRouters,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.AddCommand(getSwitchesCmd)
	getCmd.AddCommand(getRoutersCmd)

	getCmd.PersistentFlags().Duration("timeout", 5*time.Second, "Timeout for connecting to the OVN NB DB")
}

// connectNB connects to the OVN Northbound DB using the loaded config.
func connectNB(cmd *cobra.Command) (*ovn.LiveNBClient, context.Context, context.CancelFunc, error) {
	if appConfig == nil {
		return nil, nil, nil, fmt.Errorf("configuration not loaded")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	nb := ovn.NewLiveNBClient(appConfig.OVN.NBAddr, ovn.DefaultRetryConfig)
	if err := nb.Connect(ctx); err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect OVN NB DB %s: %w", appConfig.OVN.NBAddr, err)
	}
	return nb, ctx, cancel, nil
}

func runGetSwitches(cmd *cobra.Command, args []string) {
	nb, ctx, cancel, err := connectNB(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cancel()
	defer nb.Close()

	switches, err := nb.ListLogicalSwitches(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sort.Slice(switches, func(i, j int) bool { return switches[i].Name < switches[j].Name })

	tableData := pterm.TableData{
		{"NAME", "NETWORK", "PORTS", "ACLS"},
	}
	for _, ls := range switches {
		tableData = append(tableData, []string{
			ls.Name,
			ls.ExternalIDs[ovn.NetworkNameExtIDKey],
			fmt.Sprintf("%d", len(ls.Ports)),
			fmt.Sprintf("%d", len(ls.ACLs)),
		})
	}

	pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(tableData).Render()
}

func runGetRouters(cmd *cobra.Command, args []string) {
	nb, ctx, cancel, err := connectNB(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cancel()
	defer nb.Close()

	routers, err := nb.ListLogicalRouters(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sort.Slice(routers, func(i, j int) bool { return routers[i].Name < routers[j].Name })

	tableData := pterm.TableData{
		{"NAME", "ROUTER", "ENABLED", "PORTS", "ROUTES", "NAT"},
	}
	for _, lr := range routers {
		enabled := "true"
		if lr.Enabled != nil && !*lr.Enabled {
			enabled = "false"
		}
		tableData = append(tableData, []string{
			lr.Name,
			lr.ExternalIDs[ovn.RouterNameExtIDKey],
			enabled,
			fmt.Sprintf("%d", len(lr.Ports)),
			fmt.Sprintf("%d", len(lr.StaticRoutes)),
			fmt.Sprintf("%d", len(lr.NAT)),
		})
	}

	pterm.DefaultTable.WithHasHeader().WithLeftAlignment().WithData(tableData).Render()
}
