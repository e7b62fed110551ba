package translate

import (
	"context"
	"log/slog"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// externalRouterAndGatewayIP picks the router's external IPv4 address and
// the matching subnet gateway. Only the first IPv4 external subnet is
// considered even when several are attached; multi-homed gateways would need
// equal-cost default routes OVN does not provide.
func (c *Client) externalRouterAndGatewayIP(ctx context.Context, router *cloud.Router) (string, string, error) {
	if router.ExternalGateway == nil {
		return "", "", nil
	}
	for _, fip := range router.ExternalGateway.ExternalFixedIPs {
		subnet, err := c.store.GetSubnet(ctx, fip.SubnetID)
		if err != nil {
			return "", "", err
		}
		if subnet.IPVersion == 4 {
			return fip.IPAddress, subnet.GatewayIP, nil
		}
	}
	return "", "", nil
}

// updateFloatingIP applies or removes the dnat_and_snat rule backing a
// floating IP association. On associate the floating IP's own switch port is
// deleted first: it cannot be bound to a chassis, so traffic to it would be
// dropped. A stale rule already holding the external IP is updated in place
// rather than duplicated, covering the case where the associated port was
// deleted before disassociation completed.
func (c *Client) updateFloatingIP(ctx context.Context, fip *cloud.FloatingIP, routerID string, associate bool) error {
	routerName := RouterName(routerID)
	txn := c.nb.Txn()

	if associate {
		if fip.FloatingPortID != "" {
			txn.DeleteLogicalSwitchPort(SwitchName(fip.FloatingNetworkID), fip.FloatingPortID)
		}

		existing, err := c.nb.ListNAT(ctx, routerName)
		if err != nil && !isNotFound(err) {
			return err
		}
		repaired := false
		for _, nat := range existing {
			if nat.Type == "dnat_and_snat" && nat.ExternalIP == fip.FloatingIPAddress {
				txn.SetNAT(nat.UUID, "dnat_and_snat", fip.FixedIPAddress, fip.FloatingIPAddress)
				repaired = true
				break
			}
		}
		if !repaired {
			txn.AddNAT(routerName, &nbdb.NAT{
				Type:        "dnat_and_snat",
				LogicalIP:   fip.FixedIPAddress,
				ExternalIP:  fip.FloatingIPAddress,
				ExternalIDs: map[string]string{ovn.FloatingIPIDKey: fip.ID},
			})
		}
	} else {
		txn.DeleteNAT(routerName, "dnat_and_snat", fip.FixedIPAddress, fip.FloatingIPAddress)
	}

	if err := txn.Commit(ctx); err != nil {
		slog.Error("Unable to update NAT rule in gateway router", "router", routerName, "fip", fip.ID, "associate", associate, "error", err)
		return err
	}
	return nil
}

// CreateFloatingIP associates a floating IP on its gateway router.
func (c *Client) CreateFloatingIP(ctx context.Context, fip *cloud.FloatingIP, routerID string) error {
	return c.updateFloatingIP(ctx, fip, routerID, true)
}

// UpdateFloatingIP re-applies or removes the association after a floating IP
// update.
func (c *Client) UpdateFloatingIP(ctx context.Context, fip *cloud.FloatingIP, routerID string, associate bool) error {
	return c.updateFloatingIP(ctx, fip, routerID, associate)
}

// DeleteFloatingIP removes the association when the floating IP is deleted.
func (c *Client) DeleteFloatingIP(ctx context.Context, fip *cloud.FloatingIP, routerID string) error {
	return c.updateFloatingIP(ctx, fip, routerID, false)
}

// DisassociateFloatingIP removes the association while keeping the floating
// IP allocated.
func (c *Client) DisassociateFloatingIP(ctx context.Context, fip *cloud.FloatingIP, routerID string) error {
	return c.updateFloatingIP(ctx, fip, routerID, false)
}

// UpdateNATRules adds or removes one snat rule per tenant network CIDR on
// the router, with the router's external IPv4 address as the translation
// target. Unrelated SNAT rules are never touched.
func (c *Client) UpdateNATRules(ctx context.Context, router *cloud.Router, networks []string, enableSNAT bool) error {
	routerIP, _, err := c.externalRouterAndGatewayIP(ctx, router)
	if err != nil {
		return err
	}
	routerName := RouterName(router.ID)

	txn := c.nb.Txn()
	for _, network := range networks {
		if enableSNAT {
			txn.AddNAT(routerName, &nbdb.NAT{
				Type:       "snat",
				LogicalIP:  network,
				ExternalIP: routerIP,
			})
		} else {
			txn.DeleteNAT(routerName, "snat", network, routerIP)
		}
	}
	if txn.Empty() {
		return nil
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update SNAT rules", "router", routerName, "enable", enableSNAT, "error", err)
		return err
	}
	return nil
}
