package translate

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// Per-port DHCP option names ovnd accepts as overrides, per IP version.
// Unknown options are dropped rather than passed through.
var supportedDHCPOpts = map[int]map[string]bool{
	4: {
		"netmask": true, "router": true, "dns_server": true,
		"log_server": true, "lpr_server": true, "hostname": true,
		"bootfile_name": true, "domain_name": true, "swap_server": true,
		"server_id": true, "server_mac": true, "tftp_server": true,
		"classless_static_route": true, "ms_classless_static_route": true,
		"ip_forward_enable": true, "router_discovery": true,
		"arp_cache_timeout": true, "tcp_keepalive_interval": true,
		"t1": true, "t2": true, "lease_time": true, "mtu": true,
	},
	6: {
		"server_id": true, "dns_server": true, "domain_search": true,
	},
}

// dhcpOptionsIgnored reports whether a subnet gets no DHCP_Options row at
// all. DHCPv6 is meaningless for pure-SLAAC v6 subnets.
func dhcpOptionsIgnored(subnet *cloud.Subnet) bool {
	return subnet.IPVersion == 6 && subnet.IPv6AddressMode == cloud.IPv6SLAAC
}

// portDHCPOverrides extracts the per-port DHCP option overrides for one IP
// version. disabled is true for infra ports and for ports carrying an
// explicit dhcp_disabled=true option for that version; in the latter case
// any collected overrides are discarded so the result does not depend on
// option order.
func portDHCPOverrides(port *cloud.Port, ipVersion int) (disabled bool, opts map[string]string) {
	if port.IsNetworkDevice() {
		return true, nil
	}
	opts = map[string]string{}
	for _, edo := range port.ExtraDHCPOptions {
		if edo.IPVersion != ipVersion {
			continue
		}
		if edo.OptName == "dhcp_disabled" && (edo.OptValue == "True" || edo.OptValue == "true") {
			return true, nil
		}
		name := strings.ReplaceAll(edo.OptName, "-", "_")
		if !supportedDHCPOpts[ipVersion][name] {
			continue
		}
		opts[name] = edo.OptValue
	}
	return false, opts
}

// subnetDHCPRowForPort fetches the subnet-level DHCP options row serving a
// port for one IP version. For v6, a stateful row wins over a stateless one
// so a port with mixed v6 subnets still obtains a stateful address.
func (c *Client) subnetDHCPRowForPort(ctx context.Context, port *cloud.Port, ipVersion int) (*nbdb.DHCPOptions, error) {
	var subnetIDs []string
	for _, fip := range port.FixedIPs {
		ip := net.ParseIP(fip.IPAddress)
		if ip == nil {
			continue
		}
		v := 6
		if ip.To4() != nil {
			v = 4
		}
		if v == ipVersion {
			subnetIDs = append(subnetIDs, fip.SubnetID)
		}
	}
	if len(subnetIDs) == 0 {
		return nil, nil
	}

	rows, err := c.nb.SubnetDHCPOptions(ctx, subnetIDs)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if ipVersion == 6 {
		for i := range rows {
			if rows[i].Options[ovn.DHCPv6StatelessOpt] != "true" {
				return &rows[i], nil
			}
		}
	}
	return &rows[0], nil
}

// portDHCPOptions returns the DHCP options reference for (port, IP version),
// or nil when DHCP is disabled or no subnet row exists. Ports with extra
// options get a fresh override row to create alongside the port write.
func (c *Client) portDHCPOptions(ctx context.Context, lc *lookupCache, port *cloud.Port, ipVersion int) (*DHCPOptionsRef, error) {
	disabled, overrides := portDHCPOverrides(port, ipVersion)
	if disabled {
		return nil, nil
	}

	subnetRow, err := c.subnetDHCPRowForPort(ctx, port, ipVersion)
	if err != nil {
		return nil, err
	}
	if subnetRow == nil {
		// Possible when every matching subnet has DHCP disabled.
		return nil, nil
	}

	existing, err := c.portOverrideDHCPRow(ctx, subnetRow.ExternalIDs[ovn.SubnetIDExtIDKey], port.ID)
	if err != nil {
		return nil, err
	}

	if len(overrides) == 0 {
		ref := &DHCPOptionsRef{UUID: subnetRow.UUID}
		if existing != nil {
			ref.Stale = existing.UUID
		}
		return ref, nil
	}

	row := &nbdb.DHCPOptions{
		CIDR:        subnetRow.CIDR,
		Options:     map[string]string{},
		ExternalIDs: map[string]string{},
	}
	for k, v := range subnetRow.Options {
		row.Options[k] = v
	}
	for k, v := range overrides {
		row.Options[k] = v
	}
	for k, v := range subnetRow.ExternalIDs {
		row.ExternalIDs[k] = v
	}
	row.ExternalIDs[ovn.PortIDExtIDKey] = port.ID

	if existing == nil {
		return &DHCPOptionsRef{NewRow: row}, nil
	}
	if existing.CIDR == row.CIDR && mapsEqual(existing.Options, row.Options) {
		return &DHCPOptionsRef{UUID: existing.UUID}, nil
	}
	return &DHCPOptionsRef{UUID: existing.UUID, UpdateRow: row}, nil
}

// portOverrideDHCPRow finds the port's existing override row on a subnet,
// if any.
func (c *Client) portOverrideDHCPRow(ctx context.Context, subnetID, portID string) (*nbdb.DHCPOptions, error) {
	if subnetID == "" {
		return nil, nil
	}
	rows, err := c.nb.SubnetAndPortDHCPOptions(ctx, subnetID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].ExternalIDs[ovn.PortIDExtIDKey] == portID {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// dhcpV4Options synthesizes the v4 option map for a subnet. A subnet without
// a gateway gets none. Host routes and the metadata route go into
// classless_static_route with a trailing default route: per RFC 3442 a
// client must ignore the plain router option once option 121 is present.
func (c *Client) dhcpV4Options(subnet *cloud.Subnet, network *cloud.Network, serverMAC, metadataPortIP string) map[string]string {
	if subnet.GatewayIP == "" {
		return map[string]string{}
	}

	options := map[string]string{
		"server_id":  subnet.GatewayIP,
		"lease_time": strconv.Itoa(c.cfg.DHCPDefaultLeaseTime),
		"mtu":        strconv.Itoa(network.MTU),
		"router":     subnet.GatewayIP,
	}
	if serverMAC != "" {
		options["server_mac"] = serverMAC
	} else {
		options["server_mac"] = randomMAC(c.cfg.BaseMAC)
	}
	if len(subnet.DNSNameservers) > 0 {
		options["dns_server"] = "{" + strings.Join(subnet.DNSNameservers, ", ") + "}"
	}

	var routes []string
	if metadataPortIP != "" {
		routes = append(routes, MetadataDefaultIP+"/32,"+metadataPortIP)
	}
	for _, route := range subnet.HostRoutes {
		routes = append(routes, route.Destination+","+route.Nexthop)
	}
	if len(routes) > 0 {
		routes = append(routes, "0.0.0.0/0,"+subnet.GatewayIP)
		options["classless_static_route"] = "{" + strings.Join(routes, ", ") + "}"
	}
	return options
}

// dhcpV6Options synthesizes the v6 option map for a subnet.
func (c *Client) dhcpV6Options(subnet *cloud.Subnet, serverID string) map[string]string {
	if serverID == "" {
		serverID = randomMAC(c.cfg.BaseMAC)
	}
	options := map[string]string{"server_id": serverID}
	if len(subnet.DNSNameservers) > 0 {
		options["dns_server"] = "{" + strings.Join(subnet.DNSNameservers, ", ") + "}"
	}
	if subnet.IPv6AddressMode == cloud.IPv6DHCPv6Stateless {
		options[ovn.DHCPv6StatelessOpt] = "true"
	}
	return options
}

// subnetDHCPOptions builds the full DHCP_Options row for a subnet. The
// option map is empty when DHCP is disabled; the row still exists so ports
// keep a stable reference target.
func (c *Client) subnetDHCPOptions(subnet *cloud.Subnet, network *cloud.Network, serverMAC, metadataPortIP string) *nbdb.DHCPOptions {
	row := &nbdb.DHCPOptions{
		CIDR:        subnet.CIDR,
		Options:     map[string]string{},
		ExternalIDs: map[string]string{ovn.SubnetIDExtIDKey: subnet.ID},
	}
	if subnet.EnableDHCP {
		if subnet.IPVersion == 4 {
			row.Options = c.dhcpV4Options(subnet, network, serverMAC, metadataPortIP)
		} else {
			row.Options = c.dhcpV6Options(subnet, serverMAC)
		}
	}
	return row
}

// randomMAC generates a MAC address from a base prefix, randomizing the zero
// octets.
func randomMAC(baseMAC string) string {
	parts := strings.Split(baseMAC, ":")
	if len(parts) != 6 {
		parts = []string{"fa", "16", "3e", "00", "00", "00"}
	}
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	out := make([]string, 6)
	for i, p := range parts {
		if p == "00" && i > 0 {
			out[i] = fmt.Sprintf("%02x", buf[i])
		} else {
			out[i] = p
		}
	}
	return strings.Join(out, ":")
}

// findMetadataPort returns the metadata/DHCP port for a network, or nil when
// no single one exists.
func (c *Client) findMetadataPort(ctx context.Context, networkID string) (*cloud.Port, error) {
	ports, err := c.store.ListPorts(ctx, cloud.PortFilter{
		NetworkID:   networkID,
		DeviceOwner: cloud.DeviceOwnerDHCP,
	})
	if err != nil {
		return nil, err
	}
	if len(ports) != 1 {
		// One metadata port per network; anything else means metadata is
		// not in play here.
		return nil, nil
	}
	return ports[0], nil
}

// findMetadataPortIP returns the metadata port's address on a subnet, or ""
// when it has none.
func (c *Client) findMetadataPortIP(ctx context.Context, subnet *cloud.Subnet) (string, error) {
	port, err := c.findMetadataPort(ctx, subnet.NetworkID)
	if err != nil || port == nil {
		return "", err
	}
	for _, fip := range port.FixedIPs {
		if fip.SubnetID == subnet.ID {
			return fip.IPAddress, nil
		}
	}
	return "", nil
}

// UpdateMetadataPort allocates an address for the network's metadata port in
// every IPv4 subnet it does not cover yet. The store performs the actual
// address assignment.
func (c *Client) UpdateMetadataPort(ctx context.Context, networkID string) error {
	if !c.cfg.MetadataEnabled {
		return nil
	}
	port, err := c.findMetadataPort(ctx, networkID)
	if err != nil || port == nil {
		return err
	}

	subnets, err := c.store.ListSubnets(ctx, cloud.SubnetFilter{NetworkID: networkID, IPVersion: 4})
	if err != nil {
		return err
	}
	subnetIDs := map[string]bool{}
	for _, s := range subnets {
		subnetIDs[s.ID] = true
	}
	covered := map[string]bool{}
	for _, fip := range port.FixedIPs {
		covered[fip.SubnetID] = true
	}

	var missing []cloud.FixedIP
	for id := range subnetIDs {
		if !covered[id] {
			missing = append(missing, cloud.FixedIP{SubnetID: id})
		}
	}
	if len(missing) == 0 {
		return nil
	}

	port.FixedIPs = append(port.FixedIPs, missing...)
	if err := c.store.UpdatePort(ctx, port); err != nil {
		return fmt.Errorf("allocate metadata port addresses: %w", err)
	}
	slog.Info("Allocated metadata port addresses", "network", networkID, "port", port.ID, "subnets", len(missing))
	return nil
}
