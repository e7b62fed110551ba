// Package cloud defines the cloud-network object model ovnd translates from:
// networks, subnets, ports, routers, floating IPs and security groups. These
// objects are owned by the orchestration layer; ovnd treats them as read-only
// inputs except where an operation explicitly allocates addresses on a port.
package cloud

import "strings"

// Device owners classifying a port's role.
const (
	DeviceOwnerDHCP            = "network:dhcp"
	DeviceOwnerRouterInterface = "network:router_interface"
	DeviceOwnerRouterGateway   = "network:router_gateway"
	DeviceOwnerFloatingIP      = "network:floatingip"

	// DeviceOwnerNetworkPrefix marks infrastructure ports. Ports with this
	// prefix are trusted and bypass port security.
	DeviceOwnerNetworkPrefix = "network:"
)

// Network types.
const (
	NetworkTypeFlat   = "flat"
	NetworkTypeVLAN   = "vlan"
	NetworkTypeGeneve = "geneve"
)

// IPv6 address modes.
const (
	IPv6SLAAC           = "slaac"
	IPv6DHCPv6Stateful  = "dhcpv6-stateful"
	IPv6DHCPv6Stateless = "dhcpv6-stateless"
)

// Network is a virtual L2 network.
type Network struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	NetworkType     string `json:"network_type"`
	PhysicalNetwork string `json:"physical_network"` // empty for tunnel-only networks
	SegmentationID  int    `json:"segmentation_id"`
	MTU             int    `json:"mtu"`
	External        bool   `json:"external"`
}

// HostRoute is a static route pushed to instances via DHCP.
type HostRoute struct {
	Destination string `json:"destination"`
	Nexthop     string `json:"nexthop"`
}

// Subnet is an address block carved out of a network.
type Subnet struct {
	ID              string      `json:"id"`
	NetworkID       string      `json:"network_id"`
	CIDR            string      `json:"cidr"`
	IPVersion       int         `json:"ip_version"`
	EnableDHCP      bool        `json:"enable_dhcp"`
	GatewayIP       string      `json:"gateway_ip"`
	DNSNameservers  []string    `json:"dns_nameservers"`
	HostRoutes      []HostRoute `json:"host_routes"`
	IPv6AddressMode string      `json:"ipv6_address_mode"`
}

// FixedIP is an address assignment on a port.
type FixedIP struct {
	SubnetID  string `json:"subnet_id"`
	IPAddress string `json:"ip_address"`
}

// AllowedAddressPair is an extra MAC/IP pair a port may source traffic from.
type AllowedAddressPair struct {
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
}

// ExtraDHCPOption is a per-port DHCP option override.
type ExtraDHCPOption struct {
	OptName   string `json:"opt_name"`
	OptValue  string `json:"opt_value"`
	IPVersion int    `json:"ip_version"`
}

// Port is an attachment point on a network.
type Port struct {
	ID                  string               `json:"id"`
	NetworkID           string               `json:"network_id"`
	Name                string               `json:"name"`
	MACAddress          string               `json:"mac_address"`
	DeviceOwner         string               `json:"device_owner"`
	DeviceID            string               `json:"device_id"`
	ProjectID           string               `json:"project_id"`
	AdminStateUp        bool                 `json:"admin_state_up"`
	PortSecurityEnabled bool                 `json:"port_security_enabled"`
	FixedIPs            []FixedIP            `json:"fixed_ips"`
	AllowedAddressPairs []AllowedAddressPair `json:"allowed_address_pairs"`
	SecurityGroups      []string             `json:"security_groups"`
	ExtraDHCPOptions    []ExtraDHCPOption    `json:"extra_dhcp_options"`
	BindingProfile      map[string]any       `json:"binding_profile"`
	BindingHostID       string               `json:"binding_host_id"`
}

// Trusted reports whether the port is an infrastructure port that bypasses
// port security.
func (p *Port) Trusted() bool {
	return p.DeviceOwner != "" &&
		strings.HasPrefix(p.DeviceOwner, DeviceOwnerNetworkPrefix)
}

// IsNetworkDevice reports whether the port belongs to a system/infra device
// (DHCP server, router interface, ...). Such ports never consume OVN native
// DHCP.
func (p *Port) IsNetworkDevice() bool {
	return strings.HasPrefix(p.DeviceOwner, DeviceOwnerNetworkPrefix)
}

// IsRouterPort reports whether the port is owned by a router.
func (p *Port) IsRouterPort() bool {
	return p.DeviceOwner == DeviceOwnerRouterInterface ||
		p.DeviceOwner == DeviceOwnerRouterGateway
}

// IsFloatingIPPort reports whether the port backs a floating IP. Such ports
// get no logical representation: they cannot be bound to a chassis, so
// traffic to them would be dropped.
func (p *Port) IsFloatingIPPort() bool {
	return p.DeviceOwner == DeviceOwnerFloatingIP
}

// SecurityGroupIDs returns the port's security groups, skipping trusted
// ports when skipTrusted is set. Cleanup paths pass skipTrusted=false so
// removal is unconditional.
func (p *Port) SecurityGroupIDs(skipTrusted bool) []string {
	if skipTrusted && p.Trusted() {
		return nil
	}
	return p.SecurityGroups
}

// ExternalGatewayInfo describes a router's uplink to an external network.
type ExternalGatewayInfo struct {
	NetworkID        string    `json:"network_id"`
	ExternalFixedIPs []FixedIP `json:"external_fixed_ips"`
	EnableSNAT       *bool     `json:"enable_snat"`
}

// Router is a virtual L3 router.
type Router struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	AdminStateUp    bool                 `json:"admin_state_up"`
	GWPortID        string               `json:"gw_port_id"`
	ExternalGateway *ExternalGatewayInfo `json:"external_gateway_info"`
	Routes          []HostRoute          `json:"routes"`
}

// SNATEnabled reports whether source NAT is enabled on the router's external
// gateway. Defaults to true when unset.
func (r *Router) SNATEnabled() bool {
	if r.ExternalGateway == nil {
		return false
	}
	if r.ExternalGateway.EnableSNAT == nil {
		return true
	}
	return *r.ExternalGateway.EnableSNAT
}

// FloatingIP is a one-to-one NAT association.
type FloatingIP struct {
	ID                string `json:"id"`
	FloatingNetworkID string `json:"floating_network_id"`
	FloatingIPAddress string `json:"floating_ip_address"`
	FixedIPAddress    string `json:"fixed_ip_address"`
	PortID            string `json:"port_id"`
	RouterID          string `json:"router_id"`
	FloatingPortID    string `json:"floating_port_id"`
}

// SecurityGroupRule is a single filtering rule in a security group.
type SecurityGroupRule struct {
	ID              string `json:"id"`
	SecurityGroupID string `json:"security_group_id"`
	Direction       string `json:"direction"` // "ingress", "egress"
	EtherType       string `json:"ethertype"` // "IPv4", "IPv6"
	Protocol        string `json:"protocol"`
	PortRangeMin    int    `json:"port_range_min"`
	PortRangeMax    int    `json:"port_range_max"`
	RemoteGroupID   string `json:"remote_group_id"`
	RemoteIPPrefix  string `json:"remote_ip_prefix"`
}

// SecurityGroup is a named collection of filtering rules.
type SecurityGroup struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Rules []SecurityGroupRule `json:"rules"`
}
