package cloud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *MemStore {
	t.Helper()
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.UpsertNetwork(ctx, &Network{ID: "net-1", External: false}))
	require.NoError(t, s.UpsertNetwork(ctx, &Network{ID: "ext-net", External: true}))
	require.NoError(t, s.UpsertSubnet(ctx, &Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24", IPVersion: 4, GatewayIP: "10.0.0.1",
	}))
	require.NoError(t, s.UpsertSubnet(ctx, &Subnet{
		ID: "sub-v6", NetworkID: "net-1", CIDR: "2001:db8::/64", IPVersion: 6,
	}))
	return s
}

func TestMemStore_ListPortsFilters(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	require.NoError(t, s.CreatePort(ctx, &Port{
		ID: "p1", NetworkID: "net-1", DeviceOwner: DeviceOwnerDHCP,
		FixedIPs: []FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.2"}},
	}))
	require.NoError(t, s.CreatePort(ctx, &Port{
		ID: "p2", NetworkID: "net-1", DeviceID: "rtr-1", DeviceOwner: DeviceOwnerRouterInterface,
	}))
	require.NoError(t, s.CreatePort(ctx, &Port{ID: "p3", NetworkID: "ext-net"}))

	ports, err := s.ListPorts(ctx, PortFilter{NetworkID: "net-1"})
	require.NoError(t, err)
	assert.Len(t, ports, 2)

	ports, err = s.ListPorts(ctx, PortFilter{DeviceOwner: DeviceOwnerDHCP})
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "p1", ports[0].ID)

	ports, err = s.ListPorts(ctx, PortFilter{DeviceID: "rtr-1"})
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "p2", ports[0].ID)

	ports, err = s.ListPorts(ctx, PortFilter{SubnetID: "sub-1"})
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, "p1", ports[0].ID)
}

func TestMemStore_ListNetworksExternal(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	external := true
	networks, err := s.ListNetworks(ctx, NetworkFilter{External: &external})
	require.NoError(t, err)
	require.Len(t, networks, 1)
	assert.Equal(t, "ext-net", networks[0].ID)
}

func TestMemStore_ListSubnetsByVersion(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	subnets, err := s.ListSubnets(ctx, SubnetFilter{NetworkID: "net-1", IPVersion: 4})
	require.NoError(t, err)
	require.Len(t, subnets, 1)
	assert.Equal(t, "sub-1", subnets[0].ID)
}

func TestMemStore_AllocatesAddresses(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)

	require.NoError(t, s.CreatePort(ctx, &Port{
		ID: "p1", NetworkID: "net-1",
		FixedIPs: []FixedIP{{SubnetID: "sub-1"}},
	}))
	p1, err := s.GetPort(ctx, "p1")
	require.NoError(t, err)
	// The gateway address is reserved, so allocation starts past it.
	assert.Equal(t, "10.0.0.2", p1.FixedIPs[0].IPAddress)

	require.NoError(t, s.CreatePort(ctx, &Port{
		ID: "p2", NetworkID: "net-1",
		FixedIPs: []FixedIP{{SubnetID: "sub-1"}},
	}))
	p2, err := s.GetPort(ctx, "p2")
	require.NoError(t, err)
	assert.NotEqual(t, p1.FixedIPs[0].IPAddress, p2.FixedIPs[0].IPAddress)
}

func TestMemStore_DeleteResource(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t)
	require.NoError(t, s.DeleteResource(ctx, "subnet", "sub-1"))
	_, err := s.GetSubnet(ctx, "sub-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Replayed deletes are harmless.
	require.NoError(t, s.DeleteResource(ctx, "subnet", "sub-1"))
	assert.Error(t, s.DeleteResource(ctx, "bogus", "x"))
}

func TestPortClassification(t *testing.T) {
	assert.True(t, (&Port{DeviceOwner: DeviceOwnerDHCP}).Trusted())
	assert.False(t, (&Port{DeviceOwner: "compute:nova"}).Trusted())
	assert.True(t, (&Port{DeviceOwner: DeviceOwnerRouterGateway}).IsRouterPort())
	assert.True(t, (&Port{DeviceOwner: DeviceOwnerFloatingIP}).IsFloatingIPPort())

	trusted := &Port{DeviceOwner: DeviceOwnerDHCP, SecurityGroups: []string{"sg-1"}}
	assert.Empty(t, trusted.SecurityGroupIDs(true))
	assert.Equal(t, []string{"sg-1"}, trusted.SecurityGroupIDs(false))
}

func TestRouterSNATEnabled(t *testing.T) {
	assert.False(t, (&Router{}).SNATEnabled())

	r := &Router{ExternalGateway: &ExternalGatewayInfo{}}
	assert.True(t, r.SNATEnabled(), "SNAT defaults on when unset")

	off := false
	r.ExternalGateway.EnableSNAT = &off
	assert.False(t, r.SNATEnabled())
}
