package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// ACL priorities. Rule allows sit above the baseline drop.
const (
	aclPriorityAllow = 1002
	aclPriorityDrop  = 1001
)

// SecurityGroupLookup resolves a security group id, memoized per operation.
type SecurityGroupLookup func(ctx context.Context, id string) (*cloud.SecurityGroup, error)

// ACLBuilder turns security group rules into ACL rows. The default
// implementation covers the stock rule table; deployments with custom
// filtering semantics supply their own.
type ACLBuilder interface {
	// PortACLs returns the complete ACL row set for a port: the baseline
	// drop pair, the DHCP allow, and one row per rule of every group the
	// port belongs to.
	PortACLs(ctx context.Context, lookup SecurityGroupLookup, port *cloud.Port) ([]nbdb.ACL, error)

	// RuleACLs returns the rows a single rule contributes to one port.
	RuleACLs(rule *cloud.SecurityGroupRule, port *cloud.Port) []nbdb.ACL
}

// DefaultACLBuilder is the built-in rule table.
type DefaultACLBuilder struct{}

func (DefaultACLBuilder) PortACLs(ctx context.Context, lookup SecurityGroupLookup, port *cloud.Port) ([]nbdb.ACL, error) {
	sgIDs := port.SecurityGroupIDs(true)
	if len(sgIDs) == 0 || len(port.FixedIPs) == 0 {
		return nil, nil
	}

	acls := baselineACLs(port)
	for _, sgID := range sgIDs {
		sg, err := lookup(ctx, sgID)
		if err != nil {
			return nil, err
		}
		for i := range sg.Rules {
			acls = append(acls, DefaultACLBuilder{}.RuleACLs(&sg.Rules[i], port)...)
		}
	}
	return acls, nil
}

// baselineACLs drops all IP traffic in both directions and lets DHCP
// responses through; rule allows punch holes above this.
func baselineACLs(port *cloud.Port) []nbdb.ACL {
	ids := func() map[string]string {
		return map[string]string{ovn.PortIDExtIDKey: port.ID}
	}
	return []nbdb.ACL{
		{
			Priority:    aclPriorityDrop,
			Direction:   "from-lport",
			Match:       fmt.Sprintf(`inport == %q && ip`, port.ID),
			Action:      "drop",
			ExternalIDs: ids(),
		},
		{
			Priority:    aclPriorityDrop,
			Direction:   "to-lport",
			Match:       fmt.Sprintf(`outport == %q && ip`, port.ID),
			Action:      "drop",
			ExternalIDs: ids(),
		},
		{
			Priority:    aclPriorityAllow,
			Direction:   "from-lport",
			Match:       fmt.Sprintf(`inport == %q && ip4 && ip4.dst == {255.255.255.255, 0.0.0.0/0} && udp && udp.src == 68 && udp.dst == 67`, port.ID),
			Action:      "allow",
			ExternalIDs: ids(),
		},
	}
}

func (DefaultACLBuilder) RuleACLs(rule *cloud.SecurityGroupRule, port *cloud.Port) []nbdb.ACL {
	if len(port.FixedIPs) == 0 {
		return nil
	}

	ipPrefix := "ip4"
	addrSetVersion := "ip4"
	if rule.EtherType == "IPv6" {
		ipPrefix = "ip6"
		addrSetVersion = "ip6"
	}

	var direction, portMatch, remoteField string
	if rule.Direction == "ingress" {
		direction = "to-lport"
		portMatch = fmt.Sprintf(`outport == %q`, port.ID)
		remoteField = ipPrefix + ".src"
	} else {
		direction = "from-lport"
		portMatch = fmt.Sprintf(`inport == %q`, port.ID)
		remoteField = ipPrefix + ".dst"
	}

	match := portMatch + " && " + ipPrefix
	switch {
	case rule.RemoteIPPrefix != "":
		match += fmt.Sprintf(" && %s == %s", remoteField, rule.RemoteIPPrefix)
	case rule.RemoteGroupID != "":
		match += fmt.Sprintf(" && %s == $%s", remoteField,
			AddressSetName(rule.RemoteGroupID, addrSetVersion))
	}
	if rule.Protocol != "" {
		match += " && " + rule.Protocol
		if rule.PortRangeMin > 0 && (rule.Protocol == "tcp" || rule.Protocol == "udp") {
			if rule.PortRangeMin == rule.PortRangeMax || rule.PortRangeMax == 0 {
				match += fmt.Sprintf(" && %s.dst == %d", rule.Protocol, rule.PortRangeMin)
			} else {
				match += fmt.Sprintf(" && %s.dst >= %d && %s.dst <= %d",
					rule.Protocol, rule.PortRangeMin, rule.Protocol, rule.PortRangeMax)
			}
		}
	}

	return []nbdb.ACL{{
		Priority:  aclPriorityAllow,
		Direction: direction,
		Match:     match,
		Action:    "allow-related",
		ExternalIDs: map[string]string{
			ovn.PortIDExtIDKey:   port.ID,
			ovn.SGRuleIDExtIDKey: rule.ID,
		},
	}}
}

// CreateSecurityGroup creates the group's two address sets, one per IP
// version. The human-readable name rides along in external ids for
// diagnostics.
func (c *Client) CreateSecurityGroup(ctx context.Context, sg *cloud.SecurityGroup) error {
	txn := c.nb.Txn()
	for _, ipVersion := range []string{"ip4", "ip6"} {
		txn.CreateAddressSet(&nbdb.AddressSet{
			Name: AddressSetName(sg.ID, ipVersion),
			ExternalIDs: map[string]string{
				ovn.SGNameExtIDKey: sg.Name,
				ovn.SGIDExtIDKey:   sg.ID,
			},
		})
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create security group address sets", "sg", sg.ID, "error", err)
		return err
	}
	return nil
}

// UpdateSecurityGroup refreshes the address set external ids after a group
// rename.
func (c *Client) UpdateSecurityGroup(ctx context.Context, sg *cloud.SecurityGroup) error {
	txn := c.nb.Txn()
	for _, ipVersion := range []string{"ip4", "ip6"} {
		txn.SetAddressSetExternalIDs(AddressSetName(sg.ID, ipVersion),
			map[string]string{
				ovn.SGNameExtIDKey: sg.Name,
				ovn.SGIDExtIDKey:   sg.ID,
			})
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update security group address sets", "sg", sg.ID, "error", err)
		return err
	}
	return nil
}

// DeleteSecurityGroup removes the group's address sets.
func (c *Client) DeleteSecurityGroup(ctx context.Context, sg *cloud.SecurityGroup) error {
	txn := c.nb.Txn()
	for _, ipVersion := range []string{"ip4", "ip6"} {
		txn.DeleteAddressSet(AddressSetName(sg.ID, ipVersion))
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete security group address sets", "sg", sg.ID, "error", err)
		return err
	}
	return nil
}

// CreateSecurityGroupRule installs the new rule's ACL rows on every port in
// the group.
func (c *Client) CreateSecurityGroupRule(ctx context.Context, rule *cloud.SecurityGroupRule) error {
	return c.applySecurityGroupRule(ctx, rule, true)
}

// DeleteSecurityGroupRule removes the rule's ACL rows from every port in the
// group.
func (c *Client) DeleteSecurityGroupRule(ctx context.Context, rule *cloud.SecurityGroupRule) error {
	return c.applySecurityGroupRule(ctx, rule, false)
}

func (c *Client) applySecurityGroupRule(ctx context.Context, rule *cloud.SecurityGroupRule, add bool) error {
	ports, err := c.portsInSecurityGroup(ctx, rule.SecurityGroupID)
	if err != nil {
		return err
	}

	txn := c.nb.Txn()
	for _, port := range ports {
		switchName := SwitchName(port.NetworkID)
		// Delete-then-readd keeps the operation idempotent regardless of
		// interleaving with port updates on the same group.
		txn.DeleteACLsByExternalID(switchName, ovn.SGRuleIDExtIDKey, rule.ID)
		if add {
			for _, acl := range c.acl.RuleACLs(rule, port) {
				aclCopy := acl
				txn.AddACL(switchName, &aclCopy)
			}
		}
	}
	if txn.Empty() {
		return nil
	}
	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to apply security group rule", "rule", rule.ID, "sg", rule.SecurityGroupID, "add", add, "error", err)
		return err
	}
	return nil
}

func (c *Client) portsInSecurityGroup(ctx context.Context, sgID string) ([]*cloud.Port, error) {
	all, err := c.store.ListPorts(ctx, cloud.PortFilter{})
	if err != nil {
		return nil, err
	}
	var members []*cloud.Port
	for _, port := range all {
		for _, id := range port.SecurityGroupIDs(true) {
			if id == sgID {
				members = append(members, port)
				break
			}
		}
	}
	return members, nil
}
