package translate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// CreateNetwork creates the logical switch for a network and, when the
// network is bound to a physical network, the localnet provider port
// bridging it, in one transaction. With metadata enabled a metadata port is
// allocated in the store afterwards.
func (c *Client) CreateNetwork(ctx context.Context, network *cloud.Network) error {
	switchName := SwitchName(network.ID)

	txn := c.nb.Txn()
	txn.CreateLogicalSwitch(&nbdb.LogicalSwitch{
		Name:        switchName,
		ExternalIDs: map[string]string{ovn.NetworkNameExtIDKey: network.Name},
	})
	if network.PhysicalNetwork != "" {
		addProvnetPort(txn, network)
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create logical switch", "network", network.ID, "error", err)
		return err
	}
	slog.Info("Created logical switch", "switch", switchName, "network", network.ID)

	if c.cfg.MetadataEnabled {
		port := &cloud.Port{
			ID:          uuid.NewString(),
			NetworkID:   network.ID,
			MACAddress:  randomMAC(c.cfg.BaseMAC),
			DeviceOwner: cloud.DeviceOwnerDHCP,
		}
		if err := c.store.CreatePort(ctx, port); err != nil {
			return err
		}
		if err := c.CreatePort(ctx, port); err != nil {
			return err
		}
	}
	return nil
}

// addProvnetPort enqueues the localnet port connecting a switch to its
// physical network. Flat networks carry no tag; VLAN networks tag with the
// segmentation id.
func addProvnetPort(txn ovn.Txn, network *cloud.Network) {
	lsp := &nbdb.LogicalSwitchPort{
		Name:      ProvnetPortName(network.ID),
		Type:      "localnet",
		Addresses: []string{"unknown"},
		Options:   map[string]string{"network_name": network.PhysicalNetwork},
	}
	if network.SegmentationID != 0 {
		tag := network.SegmentationID
		lsp.Tag = &tag
	}
	txn.CreateLogicalSwitchPort(SwitchName(network.ID), lsp)
}

// UpdateNetwork propagates a network rename into the switch external ids.
func (c *Client) UpdateNetwork(ctx context.Context, network, original *cloud.Network) error {
	if network.Name == original.Name {
		return nil
	}
	txn := c.nb.Txn()
	txn.SetLogicalSwitchExternalIDs(SwitchName(network.ID),
		map[string]string{ovn.NetworkNameExtIDKey: network.Name})
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update logical switch", "network", network.ID, "error", err)
		return err
	}
	return nil
}

// DeleteNetwork removes the logical switch; its ports and ACLs go with it.
func (c *Client) DeleteNetwork(ctx context.Context, networkID string) error {
	txn := c.nb.Txn()
	txn.DeleteLogicalSwitch(SwitchName(networkID))
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete logical switch", "network", networkID, "error", err)
		return err
	}
	slog.Info("Deleted logical switch", "network", networkID)
	return nil
}
