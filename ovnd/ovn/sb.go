package ovn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ovn-kubernetes/libovsdb/client"

	"github.com/mulgadc/ovnd/ovnd/sbdb"
)

// LiveSBClient implements SBClient using libovsdb against the OVN SB DB.
// Only the Chassis table is monitored: the southbound side is read-only for
// us, consulted when scheduling gateway ports onto chassis.
type LiveSBClient struct {
	endpoint string
	client   client.Client
}

func NewLiveSBClient(endpoint string) *LiveSBClient {
	return &LiveSBClient{endpoint: endpoint}
}

func (c *LiveSBClient) Connect(ctx context.Context) error {
	dbModel, err := sbdb.FullDatabaseModel()
	if err != nil {
		return fmt.Errorf("create SB database model: %w", err)
	}

	ovn, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(c.endpoint))
	if err != nil {
		return fmt.Errorf("create OVSDB client: %w", err)
	}

	if err := ovn.Connect(ctx); err != nil {
		return fmt.Errorf("connect to OVN SB DB at %s: %w", c.endpoint, err)
	}

	if _, err := ovn.MonitorAll(ctx); err != nil {
		ovn.Close()
		return fmt.Errorf("monitor OVN SB DB: %w", err)
	}

	c.client = ovn
	slog.Info("Connected to OVN SB DB", "endpoint", c.endpoint)
	return nil
}

func (c *LiveSBClient) Close() {
	if c.client != nil {
		c.client.Close()
		slog.Info("Disconnected from OVN SB DB")
	}
}

func (c *LiveSBClient) Connected() bool {
	return c.client != nil
}

// ChassisPhysnets returns, per chassis name, the physical networks it
// bridges, taken from the ovn-bridge-mappings entry in its config.
func (c *LiveSBClient) ChassisPhysnets(ctx context.Context) (map[string][]string, error) {
	var chassis []sbdb.Chassis
	if err := c.client.List(ctx, &chassis); err != nil {
		return nil, fmt.Errorf("list chassis: %w", err)
	}
	physnets := make(map[string][]string, len(chassis))
	for _, ch := range chassis {
		physnets[ch.Name] = ch.Physnets()
	}
	return physnets, nil
}

// GatewayChassis returns the names of chassis eligible to host gateway
// ports, either flagged enable-chassis-as-gw in ovn-cms-options or carrying
// bridge mappings.
func (c *LiveSBClient) GatewayChassis(ctx context.Context) ([]string, error) {
	var chassis []sbdb.Chassis
	if err := c.client.List(ctx, &chassis); err != nil {
		return nil, fmt.Errorf("list chassis: %w", err)
	}
	var names []string
	for _, ch := range chassis {
		if ch.GatewayCapable() {
			names = append(names, ch.Name)
		}
	}
	return names, nil
}
