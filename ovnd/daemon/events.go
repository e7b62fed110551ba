package daemon

import "github.com/mulgadc/ovnd/ovnd/cloud"

// NATS topics for cloud resource lifecycle events published by the
// orchestration layer.
const (
	TopicNetworkCreate = "network.create"
	TopicNetworkUpdate = "network.update"
	TopicNetworkDelete = "network.delete"

	TopicSubnetCreate = "subnet.create"
	TopicSubnetUpdate = "subnet.update"
	TopicSubnetDelete = "subnet.delete"

	TopicPortCreate = "port.create"
	TopicPortUpdate = "port.update"
	TopicPortDelete = "port.delete"

	TopicRouterCreate = "router.create"
	TopicRouterUpdate = "router.update"
	TopicRouterDelete = "router.delete"

	TopicRouterInterfaceAdd = "router.interface-add"
	TopicRouterInterfaceDel = "router.interface-del"

	TopicFloatingIPCreate = "floatingip.create"
	TopicFloatingIPUpdate = "floatingip.update"
	TopicFloatingIPDelete = "floatingip.delete"

	TopicSecGroupCreate = "secgroup.create"
	TopicSecGroupUpdate = "secgroup.update"
	TopicSecGroupDelete = "secgroup.delete"

	TopicSecGroupRuleCreate = "secgroup.rule-create"
	TopicSecGroupRuleDelete = "secgroup.rule-delete"

	TopicGatewaySchedule = "gateway.schedule"
)

// NetworkEvent carries a network lifecycle change. Original is the
// pre-update state on update events.
type NetworkEvent struct {
	Network  cloud.Network  `json:"network"`
	Original *cloud.Network `json:"original,omitempty"`
}

// SubnetEvent carries a subnet lifecycle change.
type SubnetEvent struct {
	Subnet   cloud.Subnet  `json:"subnet"`
	Original *cloud.Subnet `json:"original,omitempty"`
}

// PortEvent carries a port lifecycle change.
type PortEvent struct {
	Port     cloud.Port  `json:"port"`
	Original *cloud.Port `json:"original,omitempty"`
}

// RouterEvent carries a router lifecycle change.
type RouterEvent struct {
	Router   cloud.Router  `json:"router"`
	Original *cloud.Router `json:"original,omitempty"`
}

// RouterInterfaceEvent attaches or detaches a router interface port.
type RouterInterfaceEvent struct {
	RouterID string     `json:"router_id"`
	Port     cloud.Port `json:"port"`
}

// FloatingIPEvent carries a floating IP association change.
type FloatingIPEvent struct {
	FloatingIP cloud.FloatingIP `json:"floating_ip"`
	// Associate is true when the floating IP points at a fixed IP after
	// this event.
	Associate bool `json:"associate"`
}

// SecurityGroupEvent carries a security group lifecycle change.
type SecurityGroupEvent struct {
	SecurityGroup cloud.SecurityGroup `json:"security_group"`
}

// SecurityGroupRuleEvent carries a single rule change.
type SecurityGroupRuleEvent struct {
	Rule cloud.SecurityGroupRule `json:"rule"`
}
