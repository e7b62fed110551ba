package translate

import (
	"context"
	"log/slog"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// CreateSubnet installs the subnet's DHCP options row. For v4 subnets the
// metadata port is first given an address on the subnet so the metadata
// host route can point at it.
func (c *Client) CreateSubnet(ctx context.Context, subnet *cloud.Subnet, network *cloud.Network) error {
	if !subnet.EnableDHCP || dhcpOptionsIgnored(subnet) {
		return nil
	}

	metadataPortIP := ""
	if subnet.IPVersion == 4 {
		if err := c.UpdateMetadataPort(ctx, network.ID); err != nil {
			return err
		}
		ip, err := c.findMetadataPortIP(ctx, subnet)
		if err != nil {
			return err
		}
		metadataPortIP = ip
	}

	txn := c.nb.Txn()
	txn.CreateDHCPOptions(c.subnetDHCPOptions(subnet, network, "", metadataPortIP))
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create subnet DHCP options", "subnet", subnet.ID, "error", err)
		return err
	}
	return nil
}

// UpdateSubnet reconciles the subnet's DHCP state after an update: DHCP
// switched on installs rows for the subnet and its ports, switched off
// removes every row, otherwise changed option content is rewritten in place.
func (c *Client) UpdateSubnet(ctx context.Context, subnet, original *cloud.Subnet, network *cloud.Network) error {
	if err := c.propagateGatewayChange(ctx, subnet, original); err != nil {
		return err
	}

	if !subnet.EnableDHCP && !original.EnableDHCP {
		return nil
	}

	metadataPortIP := ""
	if subnet.IPVersion == 4 {
		if err := c.UpdateMetadataPort(ctx, network.ID); err != nil {
			return err
		}
		ip, err := c.findMetadataPortIP(ctx, subnet)
		if err != nil {
			return err
		}
		metadataPortIP = ip
	}

	switch {
	case !original.EnableDHCP:
		return c.enableSubnetDHCP(ctx, subnet, network, metadataPortIP)
	case !subnet.EnableDHCP:
		return c.DeleteSubnet(ctx, subnet.ID)
	default:
		return c.updateSubnetDHCP(ctx, subnet, network, metadataPortIP)
	}
}

// propagateGatewayChange rewrites the default route of every router
// gatewayed on the subnet when its gateway IP moves.
func (c *Client) propagateGatewayChange(ctx context.Context, subnet, original *cloud.Subnet) error {
	if subnet.IPVersion != 4 || subnet.GatewayIP == original.GatewayIP {
		return nil
	}

	gwPorts, err := c.store.ListPorts(ctx, cloud.PortFilter{DeviceOwner: cloud.DeviceOwnerRouterGateway, SubnetID: subnet.ID})
	if err != nil {
		return err
	}

	txn := c.nb.Txn()
	for _, port := range gwPorts {
		routerName := RouterName(port.DeviceID)
		if original.GatewayIP != "" {
			txn.DeleteStaticRoute(routerName, defaultRouteV4, original.GatewayIP)
		}
		if subnet.GatewayIP != "" {
			txn.AddStaticRoute(routerName, &nbdb.LogicalRouterStaticRoute{
				IPPrefix: defaultRouteV4,
				Nexthop:  subnet.GatewayIP,
			})
		}
	}
	if txn.Empty() {
		return nil
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to move default routes to new gateway", "subnet", subnet.ID, "gateway", subnet.GatewayIP, "error", err)
		return err
	}
	return nil
}

// DeleteSubnet removes the subnet's DHCP options rows, both the subnet-level
// row and any port-override rows. Port references to the removed rows are
// cleared by OVN through the dropped UUIDs.
func (c *Client) DeleteSubnet(ctx context.Context, subnetID string) error {
	rows, err := c.nb.SubnetAndPortDHCPOptions(ctx, subnetID)
	if err != nil {
		return err
	}
	txn := c.nb.Txn()
	for _, row := range rows {
		txn.DeleteDHCPOptions(row.UUID)
	}
	if txn.Empty() {
		return nil
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete subnet DHCP options", "subnet", subnetID, "error", err)
		return err
	}
	return nil
}

// enableSubnetDHCP installs the subnet row and relinks every non-infra port
// on the subnet to it, creating override rows for ports with extra options.
// The subnet row and the port links land in one transaction so no port ever
// references a row that failed to appear.
func (c *Client) enableSubnetDHCP(ctx context.Context, subnet *cloud.Subnet, network *cloud.Network, metadataPortIP string) error {
	if dhcpOptionsIgnored(subnet) {
		return nil
	}

	ports, err := c.store.ListPorts(ctx, cloud.PortFilter{SubnetID: subnet.ID})
	if err != nil {
		return err
	}

	subnetRow := c.subnetDHCPOptions(subnet, network, "", metadataPortIP)

	txn := c.nb.Txn()
	subnetHandle := txn.CreateDHCPOptions(subnetRow)

	for _, port := range ports {
		if port.IsNetworkDevice() {
			continue
		}
		disabled, overrides := portDHCPOverrides(port, subnet.IPVersion)
		if disabled {
			continue
		}

		handle := subnetHandle
		if len(overrides) > 0 {
			portRow := &nbdb.DHCPOptions{
				CIDR:        subnetRow.CIDR,
				Options:     map[string]string{},
				ExternalIDs: map[string]string{ovn.SubnetIDExtIDKey: subnet.ID, ovn.PortIDExtIDKey: port.ID},
			}
			for k, v := range subnetRow.Options {
				portRow.Options[k] = v
			}
			for k, v := range overrides {
				portRow.Options[k] = v
			}
			handle = txn.CreateDHCPOptions(portRow)
		}

		lsp, err := c.nb.GetLogicalSwitchPort(ctx, port.ID)
		if err != nil {
			return err
		}
		linked := handle
		if subnet.IPVersion == 6 {
			lsp.DHCPv6Options = &linked
		} else {
			lsp.DHCPv4Options = &linked
		}
		txn.UpdateLogicalSwitchPort(lsp)
	}

	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to enable subnet DHCP", "subnet", subnet.ID, "error", err)
		return err
	}
	return nil
}

// updateSubnetDHCP rewrites the subnet row when the derived options changed.
// The previously generated server MAC is carried over so clients do not see
// the DHCP server move.
func (c *Client) updateSubnetDHCP(ctx context.Context, subnet *cloud.Subnet, network *cloud.Network, metadataPortIP string) error {
	if dhcpOptionsIgnored(subnet) {
		return nil
	}
	rows, err := c.nb.SubnetDHCPOptions(ctx, []string{subnet.ID})
	if err != nil {
		return err
	}

	serverMAC := ""
	if len(rows) > 0 {
		if subnet.IPVersion == 6 {
			serverMAC = rows[0].Options["server_id"]
		} else {
			serverMAC = rows[0].Options["server_mac"]
		}
	}

	newRow := c.subnetDHCPOptions(subnet, network, serverMAC, metadataPortIP)
	if len(rows) > 0 && rows[0].CIDR == newRow.CIDR && mapsEqual(rows[0].Options, newRow.Options) {
		return nil
	}

	txn := c.nb.Txn()
	if len(rows) > 0 {
		txn.UpdateDHCPOptions(rows[0].UUID, newRow)
	} else {
		txn.CreateDHCPOptions(newRow)
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update subnet DHCP options", "subnet", subnet.ID, "error", err)
		return err
	}
	return nil
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
