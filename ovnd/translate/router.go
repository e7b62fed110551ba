package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
	"github.com/mulgadc/ovnd/ovnd/scheduler"
)

const defaultRouteV4 = "0.0.0.0/0"

// routerPortNetworks converts a router port's fixed IPs into the
// "<ip>/<prefixlen>" list carried on the logical router port.
func (c *Client) routerPortNetworks(ctx context.Context, fixedIPs []cloud.FixedIP) ([]string, error) {
	seen := map[string]bool{}
	var networks []string
	for _, fip := range fixedIPs {
		subnet, err := c.store.GetSubnet(ctx, fip.SubnetID)
		if err != nil {
			return nil, err
		}
		parts := strings.SplitN(subnet.CIDR, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: subnet %s has malformed CIDR %q", ErrInvalidInput, subnet.ID, subnet.CIDR)
		}
		network := fip.IPAddress + "/" + parts[1]
		if !seen[network] {
			seen[network] = true
			networks = append(networks, network)
		}
	}
	sort.Strings(networks)
	return networks, nil
}

// routerTenantNetworks returns the v4 subnet CIDRs attached to the router
// through its interface ports. These are the SNAT source networks.
func (c *Client) routerTenantNetworks(ctx context.Context, routerID string) ([]string, error) {
	ports, err := c.store.ListPorts(ctx, cloud.PortFilter{
		DeviceID:    routerID,
		DeviceOwner: cloud.DeviceOwnerRouterInterface,
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var networks []string
	for _, port := range ports {
		for _, fip := range port.FixedIPs {
			subnet, err := c.store.GetSubnet(ctx, fip.SubnetID)
			if err != nil {
				return nil, err
			}
			if subnet.IPVersion != 4 || seen[subnet.CIDR] {
				continue
			}
			seen[subnet.CIDR] = true
			networks = append(networks, subnet.CIDR)
		}
	}
	sort.Strings(networks)
	return networks, nil
}

// CreateRouter creates the logical router and, when the router carries an
// external gateway, runs the gateway-add compound operation.
func (c *Client) CreateRouter(ctx context.Context, router *cloud.Router) error {
	routerName := RouterName(router.ID)

	txn := c.nb.Txn()
	txn.CreateLogicalRouter(&nbdb.LogicalRouter{
		Name:        routerName,
		Enabled:     &router.AdminStateUp,
		ExternalIDs: map[string]string{ovn.RouterNameExtIDKey: router.Name},
		Options:     map[string]string{},
	})
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create logical router", "router", router.ID, "error", err)
		return err
	}
	slog.Info("Created logical router", "router", routerName)

	if router.ExternalGateway != nil {
		networks, err := c.routerTenantNetworks(ctx, router.ID)
		if err != nil {
			return err
		}
		return c.addRouterExternalGateway(ctx, router, networks)
	}
	return nil
}

// UpdateRouter reconciles gateway transitions, admin state, name and static
// route changes between the old and new router payloads.
func (c *Client) UpdateRouter(ctx context.Context, router, original *cloud.Router) error {
	networks, err := c.routerTenantNetworks(ctx, router.ID)
	if err != nil {
		return err
	}

	gwNew := router.ExternalGateway
	gwOld := original.ExternalGateway
	switch {
	case gwNew != nil && gwOld == nil:
		if err := c.addRouterExternalGateway(ctx, router, networks); err != nil {
			return err
		}
	case gwNew == nil && gwOld != nil:
		if err := c.deleteRouterExternalGateway(ctx, original, networks); err != nil {
			return err
		}
	case gwNew != nil && gwOld != nil:
		if externalIPsChanged(gwOld, gwNew) {
			if err := c.deleteRouterExternalGateway(ctx, original, networks); err != nil {
				return err
			}
			if err := c.addRouterExternalGateway(ctx, router, networks); err != nil {
				return err
			}
		} else if original.SNATEnabled() != router.SNATEnabled() && len(networks) > 0 {
			if err := c.UpdateNATRules(ctx, router, networks, router.SNATEnabled()); err != nil {
				return err
			}
		}
	}

	var enabled *bool
	if router.AdminStateUp != original.AdminStateUp {
		enabled = &router.AdminStateUp
	}
	var externalIDs map[string]string
	if router.Name != original.Name {
		externalIDs = map[string]string{ovn.RouterNameExtIDKey: router.Name}
	}
	if enabled != nil || externalIDs != nil {
		txn := c.nb.Txn()
		txn.UpdateLogicalRouter(RouterName(router.ID), enabled, externalIDs)
		if err := txn.Commit(ctx); err != nil {
			slog.Error("Failed to update logical router", "router", router.ID, "error", err)
			return err
		}
	}

	add, remove := diffRoutes(original.Routes, router.Routes)
	return c.UpdateRouterRoutes(ctx, router.ID, add, remove)
}

// DeleteRouter removes the logical router; NB cascades its ports, NAT rules
// and routes through the dropped row.
func (c *Client) DeleteRouter(ctx context.Context, routerID string) error {
	txn := c.nb.Txn()
	txn.DeleteLogicalRouter(RouterName(routerID))
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete logical router", "router", routerID, "error", err)
		return err
	}
	return nil
}

// UpdateRouterRoutes applies a static route diff on the router.
func (c *Client) UpdateRouterRoutes(ctx context.Context, routerID string, add, remove []cloud.HostRoute) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	routerName := RouterName(routerID)
	txn := c.nb.Txn()
	for _, route := range add {
		txn.AddStaticRoute(routerName, &nbdb.LogicalRouterStaticRoute{
			IPPrefix: route.Destination,
			Nexthop:  route.Nexthop,
		})
	}
	for _, route := range remove {
		txn.DeleteStaticRoute(routerName, route.Destination, route.Nexthop)
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update static routes", "router", routerID, "error", err)
		return err
	}
	return nil
}

func diffRoutes(old, new []cloud.HostRoute) (add, remove []cloud.HostRoute) {
	key := func(r cloud.HostRoute) string { return r.Destination + "|" + r.Nexthop }
	oldSet := map[string]cloud.HostRoute{}
	for _, r := range old {
		oldSet[key(r)] = r
	}
	newSet := map[string]cloud.HostRoute{}
	for _, r := range new {
		newSet[key(r)] = r
		if _, ok := oldSet[key(r)]; !ok {
			add = append(add, r)
		}
	}
	for k, r := range oldSet {
		if _, ok := newSet[k]; !ok {
			remove = append(remove, r)
		}
	}
	return add, remove
}

// externalIPsChanged reports whether the external gateway moved to another
// network, subnet set or address set.
func externalIPsChanged(old, new *cloud.ExternalGatewayInfo) bool {
	if old.NetworkID != new.NetworkID {
		return true
	}
	subnetIDs := func(ips []cloud.FixedIP) map[string]bool {
		m := map[string]bool{}
		for _, ip := range ips {
			if ip.SubnetID != "" {
				m[ip.SubnetID] = true
			}
		}
		return m
	}
	addresses := func(ips []cloud.FixedIP) map[string]bool {
		m := map[string]bool{}
		for _, ip := range ips {
			if ip.IPAddress != "" {
				m[ip.IPAddress] = true
			}
		}
		return m
	}
	if !boolMapsEqual(subnetIDs(old.ExternalFixedIPs), subnetIDs(new.ExternalFixedIPs)) {
		return true
	}
	return !boolMapsEqual(addresses(old.ExternalFixedIPs), addresses(new.ExternalFixedIPs))
}

func boolMapsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// CreateRouterPort creates the logical router port for a router-owning cloud
// port and rewires the paired switch port to it. Gateway ports additionally
// get a chassis assigned.
func (c *Client) CreateRouterPort(ctx context.Context, routerID string, port *cloud.Port) error {
	routerName := RouterName(routerID)
	lrpName := RouterPortName(port.ID)
	networks, err := c.routerPortNetworks(ctx, port.FixedIPs)
	if err != nil {
		return err
	}

	externalIDs := map[string]string{}
	isGateway := port.DeviceOwner == cloud.DeviceOwnerRouterGateway
	if isGateway {
		externalIDs[ovn.RouterIsExtGWKey] = "true"
	}

	txn := c.nb.Txn()
	txn.CreateLogicalRouterPort(routerName, &nbdb.LogicalRouterPort{
		Name:        lrpName,
		MAC:         port.MACAddress,
		Networks:    networks,
		ExternalIDs: externalIDs,
	})
	txn.ConnectRouterPort(port.ID, lrpName)
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create logical router port", "router", routerName, "port", lrpName, "error", err)
		return err
	}

	if isGateway {
		// The chassis binding references the freshly committed port row, so
		// it has to land in a follow-up transaction.
		return c.scheduleGatewayPort(ctx, port, lrpName)
	}
	return nil
}

// UpdateRouterPort refreshes the router port's networks and its switch port
// connection after an address change.
func (c *Client) UpdateRouterPort(ctx context.Context, routerID string, port *cloud.Port) error {
	lrpName := RouterPortName(port.ID)
	networks, err := c.routerPortNetworks(ctx, port.FixedIPs)
	if err != nil {
		return err
	}
	txn := c.nb.Txn()
	txn.UpdateLogicalRouterPortNetworks(lrpName, networks)
	txn.ConnectRouterPort(port.ID, lrpName)
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update logical router port", "port", lrpName, "error", err)
		return err
	}
	return nil
}

// DeleteRouterPort removes the logical router port.
func (c *Client) DeleteRouterPort(ctx context.Context, portID, routerID string) error {
	txn := c.nb.Txn()
	txn.DeleteLogicalRouterPort(RouterName(routerID), RouterPortName(portID))
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete logical router port", "port", portID, "router", routerID, "error", err)
		return err
	}
	return nil
}

// addRouterExternalGateway runs the gateway-add compound operation: create
// the gateway router port, install the default route via the external
// gateway IP, and install SNAT rules for the attached tenant networks when
// SNAT is enabled. A failing step rolls the already-applied ones back in
// reverse order before the failure propagates.
func (c *Client) addRouterExternalGateway(ctx context.Context, router *cloud.Router, networks []string) error {
	_, extGwIP, err := c.externalRouterAndGatewayIP(ctx, router)
	if err != nil {
		return err
	}
	gwPort, err := c.store.GetPort(ctx, router.GWPortID)
	if err != nil {
		return fmt.Errorf("lookup gateway port %s: %w", router.GWPortID, err)
	}

	steps := []step{
		{
			name: "create gateway router port",
			forward: func(ctx context.Context) error {
				return c.CreateRouterPort(ctx, router.ID, gwPort)
			},
			compensate: func(ctx context.Context) error {
				return c.DeleteRouterPort(ctx, gwPort.ID, router.ID)
			},
		},
		{
			name: "install default route",
			forward: func(ctx context.Context) error {
				return c.UpdateRouterRoutes(ctx, router.ID,
					[]cloud.HostRoute{{Destination: defaultRouteV4, Nexthop: extGwIP}}, nil)
			},
			compensate: func(ctx context.Context) error {
				return c.UpdateRouterRoutes(ctx, router.ID, nil,
					[]cloud.HostRoute{{Destination: defaultRouteV4, Nexthop: extGwIP}})
			},
		},
	}
	if router.SNATEnabled() && len(networks) > 0 {
		steps = append(steps, step{
			name: "install SNAT rules",
			forward: func(ctx context.Context) error {
				return c.UpdateNATRules(ctx, router, networks, true)
			},
			compensate: func(ctx context.Context) error {
				return c.UpdateNATRules(ctx, router, networks, false)
			},
		})
	}
	return runSteps(ctx, steps)
}

// deleteRouterExternalGateway tears the gateway down in one transaction:
// default route, gateway router port and the SNAT rules for every tenant
// network.
func (c *Client) deleteRouterExternalGateway(ctx context.Context, router *cloud.Router, networks []string) error {
	routerName := RouterName(router.ID)
	routerIP, extGwIP, err := c.externalRouterAndGatewayIP(ctx, router)
	if err != nil {
		return err
	}

	txn := c.nb.Txn()
	txn.DeleteStaticRoute(routerName, defaultRouteV4, extGwIP)
	txn.DeleteLogicalRouterPort(routerName, RouterPortName(router.GWPortID))
	for _, network := range networks {
		txn.DeleteNAT(routerName, "snat", network, routerIP)
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete router external gateway", "router", routerName, "error", err)
		return err
	}
	return nil
}

// scheduleGatewayPort picks a chassis for a gateway router port and records
// the binding.
func (c *Client) scheduleGatewayPort(ctx context.Context, port *cloud.Port, lrpName string) error {
	candidates, load, err := c.gatewayCandidates(ctx, port.NetworkID)
	if err != nil {
		return err
	}
	chassis, err := c.sched.Select(lrpName, candidates, load)
	if err != nil {
		return err
	}

	txn := c.nb.Txn()
	txn.SetGatewayChassis(lrpName, chassis, 1)
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to bind gateway port to chassis", "port", lrpName, "chassis", chassis, "error", err)
		return err
	}
	slog.Info("Scheduled gateway port", "port", lrpName, "chassis", chassis)
	return nil
}

// gatewayCandidates computes the candidate chassis set for a gateway port on
// the given external network, and the current per-chassis gateway load.
func (c *Client) gatewayCandidates(ctx context.Context, networkID string) ([]string, map[string]int, error) {
	physnet := ""
	network, err := c.store.GetNetwork(ctx, networkID)
	if err == nil && (network.NetworkType == cloud.NetworkTypeFlat || network.NetworkType == cloud.NetworkTypeVLAN) {
		physnet = network.PhysicalNetwork
	} else if err != nil && !isNotFound(err) {
		return nil, nil, err
	}

	chassisPhysnets, err := c.sb.ChassisPhysnets(ctx)
	if err != nil {
		return nil, nil, err
	}
	gateways, err := c.sb.GatewayChassis(ctx)
	if err != nil {
		return nil, nil, err
	}
	candidates := scheduler.Candidates(physnet, gateways, chassisPhysnets)

	bindings, err := c.nb.GatewayChassisBindings(ctx)
	if err != nil {
		return nil, nil, err
	}
	load := map[string]int{}
	for _, hosted := range bindings {
		if len(hosted) > 0 {
			load[hosted[0]]++
		}
	}
	return candidates, load, nil
}

// ScheduleUnhostedGateways finds every gateway router port with no live
// chassis binding, or a binding pointing at a chassis no longer a valid
// candidate, and schedules it. The batch is idempotent: rerunning with no
// topology change issues no writes.
func (c *Client) ScheduleUnhostedGateways(ctx context.Context) error {
	gwPorts, err := c.store.ListPorts(ctx, cloud.PortFilter{DeviceOwner: cloud.DeviceOwnerRouterGateway})
	if err != nil {
		return err
	}
	if len(gwPorts) == 0 {
		return nil
	}

	external := true
	networks, err := c.store.ListNetworks(ctx, cloud.NetworkFilter{External: &external})
	if err != nil {
		return err
	}
	netPhysnet := map[string]string{}
	for _, n := range networks {
		if n.NetworkType == cloud.NetworkTypeFlat || n.NetworkType == cloud.NetworkTypeVLAN {
			netPhysnet[n.ID] = n.PhysicalNetwork
		}
	}

	chassisPhysnets, err := c.sb.ChassisPhysnets(ctx)
	if err != nil {
		return err
	}
	gateways, err := c.sb.GatewayChassis(ctx)
	if err != nil {
		return err
	}
	bindings, err := c.nb.GatewayChassisBindings(ctx)
	if err != nil {
		return err
	}
	load := map[string]int{}
	for _, hosted := range bindings {
		if len(hosted) > 0 {
			load[hosted[0]]++
		}
	}

	sort.Slice(gwPorts, func(i, j int) bool { return gwPorts[i].ID < gwPorts[j].ID })

	txn := c.nb.Txn()
	for _, port := range gwPorts {
		lrpName := RouterPortName(port.ID)
		if _, err := c.nb.GetLogicalRouterPort(ctx, lrpName); isNotFound(err) {
			// Router port not created yet; the gateway-add flow owns it.
			continue
		} else if err != nil {
			return err
		}

		candidates := scheduler.Candidates(netPhysnet[port.NetworkID], gateways, chassisPhysnets)
		hosted := bindings[lrpName]
		if len(hosted) > 0 && contains(candidates, hosted[0]) {
			continue
		}

		chassis, err := c.sched.Select(lrpName, candidates, load)
		if err != nil {
			slog.Error("No candidate chassis for unhosted gateway", "port", lrpName, "error", err)
			continue
		}
		txn.SetGatewayChassis(lrpName, chassis, 1)
		load[chassis]++
		slog.Info("Rescheduling unhosted gateway", "port", lrpName, "chassis", chassis)
	}

	if txn.Empty() {
		return nil
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to schedule unhosted gateways", "error", err)
		return err
	}
	return nil
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// RouterInterfaceAdded handles a new router interface: create the router
// port and, when the router has a SNAT-enabled gateway, add the interface's
// v4 networks to the SNAT rule set.
func (c *Client) RouterInterfaceAdded(ctx context.Context, router *cloud.Router, port *cloud.Port) error {
	if err := c.CreateRouterPort(ctx, router.ID, port); err != nil {
		return err
	}
	if router.ExternalGateway == nil || !router.SNATEnabled() {
		return nil
	}
	networks, err := c.interfaceV4Networks(ctx, port)
	if err != nil {
		return err
	}
	return c.UpdateNATRules(ctx, router, networks, true)
}

// RouterInterfaceRemoved handles interface removal: delete the router port
// and drop exactly the SNAT rules for the interface's networks. When the
// cloud port already disappeared concurrently this degrades to pure router
// port cleanup.
func (c *Client) RouterInterfaceRemoved(ctx context.Context, router *cloud.Router, portID string) error {
	port, err := c.store.GetPort(ctx, portID)
	if isNotFound(err) {
		return c.DeleteRouterPort(ctx, portID, router.ID)
	}
	if err != nil {
		return err
	}
	if err := c.DeleteRouterPort(ctx, portID, router.ID); err != nil {
		return err
	}
	if router.ExternalGateway == nil || !router.SNATEnabled() {
		return nil
	}
	networks, err := c.interfaceV4Networks(ctx, port)
	if err != nil {
		return err
	}
	return c.UpdateNATRules(ctx, router, networks, false)
}

func (c *Client) interfaceV4Networks(ctx context.Context, port *cloud.Port) ([]string, error) {
	seen := map[string]bool{}
	var networks []string
	for _, fip := range port.FixedIPs {
		subnet, err := c.store.GetSubnet(ctx, fip.SubnetID)
		if err != nil {
			return nil, err
		}
		if subnet.IPVersion != 4 || seen[subnet.CIDR] {
			continue
		}
		if ip := net.ParseIP(fip.IPAddress); ip == nil || ip.To4() == nil {
			continue
		}
		seen[subnet.CIDR] = true
		networks = append(networks, subnet.CIDR)
	}
	sort.Strings(networks)
	return networks, nil
}
