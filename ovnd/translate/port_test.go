package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

func TestParseBindingProfile(t *testing.T) {
	tests := []struct {
		name    string
		profile map[string]any
		wantErr bool
	}{
		{name: "empty", profile: nil},
		{name: "parent and tag", profile: map[string]any{"parent_name": "trunk", "tag": 100}},
		{name: "vtep pair", profile: map[string]any{"vtep-physical-switch": "ps1", "vtep-logical-switch": "ls1"}},
		{name: "parent without tag", profile: map[string]any{"parent_name": "trunk"}, wantErr: true},
		{name: "tag without parent", profile: map[string]any{"tag": 100}, wantErr: true},
		{name: "vtep without logical switch", profile: map[string]any{"vtep-physical-switch": "ps1"}, wantErr: true},
		{name: "extra key", profile: map[string]any{"parent_name": "trunk", "tag": 100, "bogus": 1}, wantErr: true},
		{name: "tag too large", profile: map[string]any{"parent_name": "trunk", "tag": 4096}, wantErr: true},
		{name: "tag negative", profile: map[string]any{"parent_name": "trunk", "tag": -1}, wantErr: true},
		{name: "tag not numeric", profile: map[string]any{"parent_name": "trunk", "tag": "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBindingProfile(&cloud.Port{BindingProfile: tt.profile})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseBindingProfile_JSONNumbers(t *testing.T) {
	// json.Unmarshal delivers numbers as float64.
	prof, err := parseBindingProfile(&cloud.Port{
		BindingProfile: map[string]any{"parent_name": "trunk", "tag": float64(42)},
	})
	require.NoError(t, err)
	require.NotNil(t, prof.tag)
	assert.Equal(t, 42, *prof.tag)

	_, err = parseBindingProfile(&cloud.Port{
		BindingProfile: map[string]any{"parent_name": "trunk", "tag": float64(1.5)},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAllowedAddresses_Consolidation(t *testing.T) {
	port := &cloud.Port{
		MACAddress:          "fa:16:3e:00:00:01",
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "s1", IPAddress: "10.0.0.5"}},
		AllowedAddressPairs: []cloud.AllowedAddressPair{
			{MACAddress: "fa:16:3e:00:00:01", IPAddress: "10.0.0.100"},
			{MACAddress: "fa:16:3e:00:00:02", IPAddress: "10.0.0.101"},
		},
	}
	got := allowedAddresses(port)
	require.Len(t, got, 2)
	// The port MAC appears exactly once, with its own IPs and the same-MAC
	// pair folded together.
	assert.Contains(t, got, "fa:16:3e:00:00:01 10.0.0.5 10.0.0.100")
	assert.Contains(t, got, "fa:16:3e:00:00:02 10.0.0.101")
}

func TestAllowedAddresses_OrderIndependent(t *testing.T) {
	a := &cloud.Port{
		MACAddress:          "fa:16:3e:00:00:01",
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{IPAddress: "10.0.0.5"}},
		AllowedAddressPairs: []cloud.AllowedAddressPair{
			{MACAddress: "fa:16:3e:00:00:02", IPAddress: "10.0.0.101"},
			{MACAddress: "fa:16:3e:00:00:03", IPAddress: "10.0.0.102"},
		},
	}
	b := &cloud.Port{
		MACAddress:          a.MACAddress,
		PortSecurityEnabled: true,
		FixedIPs:            a.FixedIPs,
		AllowedAddressPairs: []cloud.AllowedAddressPair{
			a.AllowedAddressPairs[1], a.AllowedAddressPairs[0],
		},
	}
	assert.Equal(t, allowedAddresses(a), allowedAddresses(b))
}

func TestAllowedAddresses_Disabled(t *testing.T) {
	assert.Nil(t, allowedAddresses(&cloud.Port{MACAddress: "fa:16:3e:00:00:01"}))
	assert.Nil(t, allowedAddresses(&cloud.Port{
		MACAddress:          "fa:16:3e:00:00:01",
		PortSecurityEnabled: true,
		DeviceOwner:         cloud.DeviceOwnerDHCP,
	}))
}

func TestCreatePort(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1", Name: "tenant"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	require.NoError(t, env.store.UpsertSecurityGroup(ctx, &cloud.SecurityGroup{
		ID: "sg-1", Rules: []cloud.SecurityGroupRule{
			{ID: "rule-1", SecurityGroupID: "sg-1", Direction: "ingress", EtherType: "IPv4", Protocol: "tcp", PortRangeMin: 22, PortRangeMax: 22},
		},
	}))
	require.NoError(t, env.c.CreateSecurityGroup(ctx, &cloud.SecurityGroup{ID: "sg-1"}))

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1", Name: "vm1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		SecurityGroups:      []string{"sg-1"},
	}
	env.seedPort(t, port)

	lsp, err := env.nb.GetLogicalSwitchPort(ctx, "port-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fa:16:3e:aa:bb:cc 10.0.0.5"}, lsp.Addresses)
	assert.Equal(t, []string{"fa:16:3e:aa:bb:cc 10.0.0.5"}, lsp.PortSecurity)
	assert.Equal(t, "vm1", lsp.ExternalIDs[ovn.PortNameExtIDKey])
	assert.Equal(t, "10.0.0.5/24", lsp.ExternalIDs[ovn.CIDRsExtIDKey])
	require.NotNil(t, lsp.DHCPv4Options)
	opts, ok := env.nb.DHCPOptionsByUUID(*lsp.DHCPv4Options)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/24", opts.CIDR)

	// Baseline drop pair, DHCP allow, one rule allow.
	acls, err := env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	assert.Len(t, acls, 4)

	assert.Equal(t, []string{"10.0.0.5"}, env.addressSet(t, "sg-1", "ip4"))
}

func TestCreatePort_VTEP(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress:   "fa:16:3e:aa:bb:cc",
		AdminStateUp: true,
		BindingProfile: map[string]any{
			"vtep-physical-switch": "ps1",
			"vtep-logical-switch":  "ls1",
		},
	}
	env.seedPort(t, port)

	lsp, err := env.nb.GetLogicalSwitchPort(ctx, "port-1")
	require.NoError(t, err)
	assert.Equal(t, "vtep", lsp.Type)
	assert.Equal(t, []string{"unknown"}, lsp.Addresses)
	assert.Equal(t, "ps1", lsp.Options["vtep-physical-switch"])
	assert.Empty(t, lsp.PortSecurity)
	assert.Nil(t, lsp.DHCPv4Options)
}

func TestCreatePort_InvalidProfileWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.nb.ResetCounters()

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress:     "fa:16:3e:aa:bb:cc",
		BindingProfile: map[string]any{"tag": 100},
	}
	err := env.c.CreatePort(ctx, port)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, env.nb.CommitCount)
}

func TestUpdatePort_SecurityGroupSwap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	for _, sg := range []*cloud.SecurityGroup{
		{ID: "sg-1", Rules: []cloud.SecurityGroupRule{{ID: "rule-1", SecurityGroupID: "sg-1", Direction: "ingress", EtherType: "IPv4"}}},
		{ID: "sg-2", Rules: []cloud.SecurityGroupRule{{ID: "rule-2", SecurityGroupID: "sg-2", Direction: "egress", EtherType: "IPv4"}}},
	} {
		require.NoError(t, env.store.UpsertSecurityGroup(ctx, sg))
		require.NoError(t, env.c.CreateSecurityGroup(ctx, sg))
	}

	original := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		SecurityGroups:      []string{"sg-1"},
	}
	env.seedPort(t, original)

	updated := *original
	updated.SecurityGroups = []string{"sg-2"}
	require.NoError(t, env.store.UpdatePort(ctx, &updated))
	require.NoError(t, env.c.UpdatePort(ctx, &updated, original))

	// Exactly one membership moved: the address left sg-1 and joined sg-2.
	assert.Empty(t, env.addressSet(t, "sg-1", "ip4"))
	assert.Equal(t, []string{"10.0.0.5"}, env.addressSet(t, "sg-2", "ip4"))

	// ACLs were recomputed for the new group only.
	acls, err := env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	var ruleIDs []string
	for _, acl := range acls {
		if id := acl.ExternalIDs[ovn.SGRuleIDExtIDKey]; id != "" {
			ruleIDs = append(ruleIDs, id)
		}
	}
	assert.Equal(t, []string{"rule-2"}, ruleIDs)
}

func TestUpdatePort_FixedIPChangeUpdatesAddressSets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	sg := &cloud.SecurityGroup{ID: "sg-1"}
	require.NoError(t, env.store.UpsertSecurityGroup(ctx, sg))
	require.NoError(t, env.c.CreateSecurityGroup(ctx, sg))

	original := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		SecurityGroups:      []string{"sg-1"},
	}
	env.seedPort(t, original)

	updated := *original
	updated.FixedIPs = []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.6"}}
	require.NoError(t, env.store.UpdatePort(ctx, &updated))
	require.NoError(t, env.c.UpdatePort(ctx, &updated, original))

	assert.Equal(t, []string{"10.0.0.6"}, env.addressSet(t, "sg-1", "ip4"))
}

func TestDeletePort_CleansUpEverything(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	sg := &cloud.SecurityGroup{ID: "sg-1"}
	require.NoError(t, env.store.UpsertSecurityGroup(ctx, sg))
	require.NoError(t, env.c.CreateSecurityGroup(ctx, sg))

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		SecurityGroups:      []string{"sg-1"},
		ExtraDHCPOptions:    []cloud.ExtraDHCPOption{{OptName: "mtu", OptValue: "1400", IPVersion: 4}},
	}
	env.seedPort(t, port)

	// The extra option produced a port-override DHCP row.
	rows, err := env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, env.c.DeletePort(ctx, port))

	_, err = env.nb.GetLogicalSwitchPort(ctx, "port-1")
	assert.ErrorIs(t, err, ovn.ErrNotFound)

	acls, err := env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	assert.Empty(t, acls)

	rows, err = env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	assert.Empty(t, env.addressSet(t, "sg-1", "ip4"))
}

func TestUpdatePort_RouterPortKeepsConnection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	env.seedRouter(t, &cloud.Router{ID: "rtr-1", AdminStateUp: true})

	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		DeviceOwner: cloud.DeviceOwnerRouterInterface, DeviceID: "rtr-1",
		FixedIPs: []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.1"}},
	}
	env.seedPort(t, port)
	require.NoError(t, env.c.CreateRouterPort(ctx, "rtr-1", port))

	updated := *port
	updated.Name = "renamed"
	require.NoError(t, env.store.UpdatePort(ctx, &updated))
	require.NoError(t, env.c.UpdatePort(ctx, &updated, port))

	lsp, err := env.nb.GetLogicalSwitchPort(ctx, "port-1")
	require.NoError(t, err)
	assert.Equal(t, "router", lsp.Type)
	assert.Equal(t, []string{"router"}, lsp.Addresses)
	assert.Equal(t, RouterPortName("port-1"), lsp.Options["router-port"])
}

func TestCreatePort_FloatingIPPortWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.nb.ResetCounters()

	port := &cloud.Port{
		ID: "fip-port", NetworkID: "net-1",
		MACAddress:  "fa:16:3e:00:00:40",
		DeviceOwner: cloud.DeviceOwnerFloatingIP,
	}
	require.NoError(t, env.c.CreatePort(ctx, port))
	assert.Zero(t, env.nb.CommitCount)
	_, err := env.nb.GetLogicalSwitchPort(ctx, "fip-port")
	assert.ErrorIs(t, err, ovn.ErrNotFound)

	require.NoError(t, env.c.UpdatePort(ctx, port, port))
	assert.Zero(t, env.nb.CommitCount)
}

func TestUpdatePort_DHCPOverrideRowIsStable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	port := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:00:00:01", AdminStateUp: true,
		FixedIPs: []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		ExtraDHCPOptions: []cloud.ExtraDHCPOption{
			{OptName: "mtu", OptValue: "1400", IPVersion: 4},
		},
	}
	env.seedPort(t, port)

	rows, err := env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	var overrideUUID string
	for _, row := range rows {
		if row.ExternalIDs[ovn.PortIDExtIDKey] == "port-1" {
			overrideUUID = row.UUID
		}
	}
	require.NotEmpty(t, overrideUUID)

	// Repeated updates reuse the row instead of stacking fresh ones.
	for i := 0; i < 3; i++ {
		require.NoError(t, env.c.UpdatePort(ctx, port, port))
	}
	rows, err = env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		if row.ExternalIDs[ovn.PortIDExtIDKey] == "port-1" {
			assert.Equal(t, overrideUUID, row.UUID)
			assert.Equal(t, "1400", row.Options["mtu"])
		}
	}

	// Changed override content rewrites the same row in place.
	changed := *port
	changed.ExtraDHCPOptions = []cloud.ExtraDHCPOption{
		{OptName: "mtu", OptValue: "1200", IPVersion: 4},
	}
	require.NoError(t, env.c.UpdatePort(ctx, &changed, port))
	rows, err = env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		if row.ExternalIDs[ovn.PortIDExtIDKey] == "port-1" {
			assert.Equal(t, overrideUUID, row.UUID)
			assert.Equal(t, "1200", row.Options["mtu"])
		}
	}

	// Dropping the override deletes the row and relinks the subnet row.
	plain := *port
	plain.ExtraDHCPOptions = nil
	require.NoError(t, env.c.UpdatePort(ctx, &plain, &changed))
	rows, err = env.nb.SubnetAndPortDHCPOptions(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].ExternalIDs[ovn.PortIDExtIDKey])
	lsp, err := env.nb.GetLogicalSwitchPort(ctx, "port-1")
	require.NoError(t, err)
	require.NotNil(t, lsp.DHCPv4Options)
	assert.Equal(t, rows[0].UUID, *lsp.DHCPv4Options)
}
