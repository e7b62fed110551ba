package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

func TestRuleACLs_Matches(t *testing.T) {
	port := &cloud.Port{
		ID:       "port-1",
		FixedIPs: []cloud.FixedIP{{IPAddress: "10.0.0.5"}},
	}
	b := DefaultACLBuilder{}

	tests := []struct {
		name      string
		rule      cloud.SecurityGroupRule
		match     string
		direction string
	}{
		{
			name:      "ingress ssh",
			rule:      cloud.SecurityGroupRule{Direction: "ingress", EtherType: "IPv4", Protocol: "tcp", PortRangeMin: 22, PortRangeMax: 22},
			match:     `outport == "port-1" && ip4 && tcp && tcp.dst == 22`,
			direction: "to-lport",
		},
		{
			name:      "ingress port range",
			rule:      cloud.SecurityGroupRule{Direction: "ingress", EtherType: "IPv4", Protocol: "tcp", PortRangeMin: 8000, PortRangeMax: 8100},
			match:     `outport == "port-1" && ip4 && tcp && tcp.dst >= 8000 && tcp.dst <= 8100`,
			direction: "to-lport",
		},
		{
			name:      "egress with remote prefix",
			rule:      cloud.SecurityGroupRule{Direction: "egress", EtherType: "IPv4", RemoteIPPrefix: "10.1.0.0/16"},
			match:     `inport == "port-1" && ip4 && ip4.dst == 10.1.0.0/16`,
			direction: "from-lport",
		},
		{
			name:      "ingress remote group",
			rule:      cloud.SecurityGroupRule{Direction: "ingress", EtherType: "IPv4", RemoteGroupID: "sg-peer"},
			match:     `outport == "port-1" && ip4 && ip4.src == $` + AddressSetName("sg-peer", "ip4"),
			direction: "to-lport",
		},
		{
			name:      "ingress v6 icmp",
			rule:      cloud.SecurityGroupRule{Direction: "ingress", EtherType: "IPv6", Protocol: "icmp6"},
			match:     `outport == "port-1" && ip6 && icmp6`,
			direction: "to-lport",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acls := b.RuleACLs(&tt.rule, port)
			require.Len(t, acls, 1)
			assert.Equal(t, tt.match, acls[0].Match)
			assert.Equal(t, tt.direction, acls[0].Direction)
			assert.Equal(t, "allow-related", acls[0].Action)
		})
	}
}

func TestRuleACLs_NoAddresses(t *testing.T) {
	rule := cloud.SecurityGroupRule{Direction: "ingress", EtherType: "IPv4"}
	assert.Empty(t, DefaultACLBuilder{}.RuleACLs(&rule, &cloud.Port{ID: "port-1"}))
}

func TestSecurityGroupLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sg := &cloud.SecurityGroup{ID: "sg-1", Name: "web"}
	require.NoError(t, env.store.UpsertSecurityGroup(ctx, sg))
	require.NoError(t, env.c.CreateSecurityGroup(ctx, sg))

	for _, ver := range []string{"ip4", "ip6"} {
		as, err := env.nb.GetAddressSet(ctx, AddressSetName("sg-1", ver))
		require.NoError(t, err)
		assert.Equal(t, "web", as.ExternalIDs[ovn.SGNameExtIDKey])
		assert.Equal(t, "sg-1", as.ExternalIDs[ovn.SGIDExtIDKey])
	}

	renamed := *sg
	renamed.Name = "web-frontend"
	require.NoError(t, env.c.UpdateSecurityGroup(ctx, &renamed))
	as, err := env.nb.GetAddressSet(ctx, AddressSetName("sg-1", "ip4"))
	require.NoError(t, err)
	assert.Equal(t, "web-frontend", as.ExternalIDs[ovn.SGNameExtIDKey])

	require.NoError(t, env.c.DeleteSecurityGroup(ctx, sg))
	_, err = env.nb.GetAddressSet(ctx, AddressSetName("sg-1", "ip4"))
	assert.ErrorIs(t, err, ovn.ErrNotFound)
}

func TestSecurityGroupRule_AppliedToMemberPorts(t *testing.T) {
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

	member := &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
		SecurityGroups:      []string{"sg-1"},
	}
	outsider := &cloud.Port{
		ID: "port-2", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cd", AdminStateUp: true,
		PortSecurityEnabled: true,
		FixedIPs:            []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.6"}},
	}
	env.seedPort(t, member)
	env.seedPort(t, outsider)

	rule := &cloud.SecurityGroupRule{
		ID: "rule-1", SecurityGroupID: "sg-1",
		Direction: "ingress", EtherType: "IPv4", Protocol: "tcp",
		PortRangeMin: 443, PortRangeMax: 443,
	}
	require.NoError(t, env.c.CreateSecurityGroupRule(ctx, rule))

	acls, err := env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	var ruleACLs []string
	for _, acl := range acls {
		if acl.ExternalIDs[ovn.SGRuleIDExtIDKey] == "rule-1" {
			ruleACLs = append(ruleACLs, acl.ExternalIDs[ovn.PortIDExtIDKey])
		}
	}
	assert.Equal(t, []string{"port-1"}, ruleACLs)

	// Re-applying is idempotent: still exactly one row.
	require.NoError(t, env.c.CreateSecurityGroupRule(ctx, rule))
	acls, err = env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	count := 0
	for _, acl := range acls {
		if acl.ExternalIDs[ovn.SGRuleIDExtIDKey] == "rule-1" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	require.NoError(t, env.c.DeleteSecurityGroupRule(ctx, rule))
	acls, err = env.nb.ListACLs(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	for _, acl := range acls {
		assert.NotEqual(t, "rule-1", acl.ExternalIDs[ovn.SGRuleIDExtIDKey])
	}
}
