package translate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

func testClient() *Client {
	return NewClient(ovn.NewMockNBClient(), ovn.NewMockSBClient(), cloud.NewMemStore(), nil, nil, Config{})
}

func TestDHCPv4Options(t *testing.T) {
	c := testClient()
	subnet := &cloud.Subnet{
		ID: "sub-1", CIDR: "10.0.0.0/24", IPVersion: 4,
		GatewayIP:      "10.0.0.1",
		DNSNameservers: []string{"8.8.8.8", "8.8.4.4"},
	}
	network := &cloud.Network{ID: "net-1", MTU: 1442}

	opts := c.dhcpV4Options(subnet, network, "fa:16:3e:11:22:33", "")
	assert.Equal(t, "10.0.0.1", opts["server_id"])
	assert.Equal(t, "10.0.0.1", opts["router"])
	assert.Equal(t, "43200", opts["lease_time"])
	assert.Equal(t, "1442", opts["mtu"])
	assert.Equal(t, "fa:16:3e:11:22:33", opts["server_mac"])
	assert.Equal(t, "{8.8.8.8, 8.8.4.4}", opts["dns_server"])
	// No host routes and no metadata port: no option 121 at all.
	assert.NotContains(t, opts, "classless_static_route")
}

func TestDHCPv4Options_ClasslessStaticRoutes(t *testing.T) {
	c := testClient()
	subnet := &cloud.Subnet{
		ID: "sub-1", CIDR: "10.0.0.0/24", IPVersion: 4,
		GatewayIP: "10.0.0.1",
		HostRoutes: []cloud.HostRoute{
			{Destination: "192.168.100.0/24", Nexthop: "10.0.0.254"},
		},
	}
	network := &cloud.Network{MTU: 1442}

	opts := c.dhcpV4Options(subnet, network, "", "10.0.0.2")
	// Metadata route first, then host routes, then the default route: a
	// client honoring option 121 ignores the plain router option.
	assert.Equal(t,
		"{169.254.169.254/32,10.0.0.2, 192.168.100.0/24,10.0.0.254, 0.0.0.0/0,10.0.0.1}",
		opts["classless_static_route"])
}

func TestDHCPv4Options_NoGateway(t *testing.T) {
	c := testClient()
	opts := c.dhcpV4Options(&cloud.Subnet{CIDR: "10.0.0.0/24"}, &cloud.Network{MTU: 1442}, "", "")
	assert.Empty(t, opts)
}

func TestDHCPv6Options(t *testing.T) {
	c := testClient()
	opts := c.dhcpV6Options(&cloud.Subnet{
		IPv6AddressMode: cloud.IPv6DHCPv6Stateless,
		DNSNameservers:  []string{"2001:4860:4860::8888"},
	}, "fa:16:3e:11:22:33")
	assert.Equal(t, "fa:16:3e:11:22:33", opts["server_id"])
	assert.Equal(t, "{2001:4860:4860::8888}", opts["dns_server"])
	assert.Equal(t, "true", opts[ovn.DHCPv6StatelessOpt])

	opts = c.dhcpV6Options(&cloud.Subnet{IPv6AddressMode: cloud.IPv6DHCPv6Stateful}, "")
	assert.NotContains(t, opts, ovn.DHCPv6StatelessOpt)
	assert.NotEmpty(t, opts["server_id"])
}

func TestDHCPOptionsIgnored(t *testing.T) {
	assert.True(t, dhcpOptionsIgnored(&cloud.Subnet{IPVersion: 6, IPv6AddressMode: cloud.IPv6SLAAC}))
	assert.False(t, dhcpOptionsIgnored(&cloud.Subnet{IPVersion: 6, IPv6AddressMode: cloud.IPv6DHCPv6Stateless}))
	assert.False(t, dhcpOptionsIgnored(&cloud.Subnet{IPVersion: 4}))
}

func TestPortDHCPOverrides_DisabledDiscardsCollected(t *testing.T) {
	// dhcp_disabled wins regardless of where it sits in the option list.
	first := &cloud.Port{ExtraDHCPOptions: []cloud.ExtraDHCPOption{
		{OptName: "dhcp_disabled", OptValue: "True", IPVersion: 4},
		{OptName: "mtu", OptValue: "1400", IPVersion: 4},
	}}
	last := &cloud.Port{ExtraDHCPOptions: []cloud.ExtraDHCPOption{
		{OptName: "mtu", OptValue: "1400", IPVersion: 4},
		{OptName: "dhcp_disabled", OptValue: "True", IPVersion: 4},
	}}
	for _, port := range []*cloud.Port{first, last} {
		disabled, opts := portDHCPOverrides(port, 4)
		assert.True(t, disabled)
		assert.Nil(t, opts)
	}
}

func TestPortDHCPOverrides_FiltersAndNormalizes(t *testing.T) {
	port := &cloud.Port{ExtraDHCPOptions: []cloud.ExtraDHCPOption{
		{OptName: "dns-server", OptValue: "1.1.1.1", IPVersion: 4},
		{OptName: "bogus-option", OptValue: "x", IPVersion: 4},
		{OptName: "domain_search", OptValue: "example.org", IPVersion: 6},
	}}
	disabled, opts := portDHCPOverrides(port, 4)
	require.False(t, disabled)
	assert.Equal(t, map[string]string{"dns_server": "1.1.1.1"}, opts)

	_, opts = portDHCPOverrides(port, 6)
	assert.Equal(t, map[string]string{"domain_search": "example.org"}, opts)
}

func TestSubnetDHCPRowForPort_PrefersStatefulV6(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-stateless", NetworkID: "net-1", CIDR: "2001:db8:1::/64",
		IPVersion: 6, EnableDHCP: true, IPv6AddressMode: cloud.IPv6DHCPv6Stateless,
	})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-stateful", NetworkID: "net-1", CIDR: "2001:db8:2::/64",
		IPVersion: 6, EnableDHCP: true, IPv6AddressMode: cloud.IPv6DHCPv6Stateful,
	})

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		FixedIPs: []cloud.FixedIP{
			{SubnetID: "sub-stateless", IPAddress: "2001:db8:1::5"},
			{SubnetID: "sub-stateful", IPAddress: "2001:db8:2::5"},
		},
	}
	row, err := env.c.subnetDHCPRowForPort(ctx, port, 6)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "2001:db8:2::/64", row.CIDR)
}

func TestRandomMAC(t *testing.T) {
	mac := randomMAC("fa:16:3e:00:00:00")
	assert.True(t, strings.HasPrefix(mac, "fa:16:3e:"))
	assert.Len(t, strings.Split(mac, ":"), 6)
	// Non-zero prefix octets stay fixed.
	assert.NotEqual(t, "fa:16:3e:00:00:00", randomMAC("fa:16:3e:00:00:00"))
}
