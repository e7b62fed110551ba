// Package ovn provides clients for the OVN Northbound and Southbound
// databases. The NBClient pairs read queries with a transaction builder: all
// write commands are enqueued on a Txn and committed as a single OVSDB
// transaction, applied in enqueue order or not at all.
package ovn

import (
	"context"
	"errors"
	"time"

	"github.com/mulgadc/ovnd/ovnd/nbdb"
)

// ErrNotFound is returned by read queries when no row matches.
var ErrNotFound = errors.New("not found")

// External-id keys linking OVN rows back to their owning cloud resources.
const (
	PortNameExtIDKey    = "neutron:port_name"
	DeviceIDExtIDKey    = "neutron:device_id"
	ProjectIDExtIDKey   = "neutron:project_id"
	CIDRsExtIDKey       = "neutron:cidrs"
	NetworkNameExtIDKey = "neutron:network_name"
	RouterNameExtIDKey  = "neutron:router_name"
	SGNameExtIDKey      = "neutron:security_group_name"
	SGIDExtIDKey        = "neutron:security_group_id"
	SGRuleIDExtIDKey    = "neutron:security_group_rule_id"
	SubnetIDExtIDKey    = "subnet_id"
	PortIDExtIDKey      = "port_id"
	RouterIsExtGWKey    = "neutron:is_ext_gw"
	FloatingIPIDKey     = "neutron:fip_id"
)

// DHCPv6StatelessOpt marks a DHCP_Options row as serving a stateless v6
// subnet.
const DHCPv6StatelessOpt = "dhcpv6_stateless"

// RetryConfig bounds the eventual-consistency wait for rows created by
// another control-plane instance (see WaitForLogicalSwitch).
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig is used when no retry configuration is supplied. The
// bound is a pragmatic choice: long enough for NB replication between
// instances, short enough that a genuinely missing row fails fast.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:      10,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// Txn collects deferred NB write commands. Commands are applied in enqueue
// order inside exactly one OVSDB transaction on Commit; if any command fails
// the whole batch is rolled back by the database. Delete commands are
// idempotent: a missing target row is not an error.
type Txn interface {
	CreateLogicalSwitch(ls *nbdb.LogicalSwitch)
	SetLogicalSwitchExternalIDs(name string, ids map[string]string)
	DeleteLogicalSwitch(name string)

	CreateLogicalSwitchPort(switchName string, lsp *nbdb.LogicalSwitchPort)
	UpdateLogicalSwitchPort(lsp *nbdb.LogicalSwitchPort)
	DeleteLogicalSwitchPort(switchName, portName string)

	CreateLogicalRouter(lr *nbdb.LogicalRouter)
	UpdateLogicalRouter(name string, enabled *bool, externalIDs map[string]string)
	DeleteLogicalRouter(name string)

	CreateLogicalRouterPort(routerName string, lrp *nbdb.LogicalRouterPort)
	UpdateLogicalRouterPortNetworks(name string, networks []string)
	DeleteLogicalRouterPort(routerName, portName string)

	// ConnectRouterPort rewrites the switch-side port as type "router"
	// patched to the named router port.
	ConnectRouterPort(portID, routerPortName string)

	// CreateDHCPOptions returns a handle resolvable within this transaction
	// (an OVSDB named-uuid) so the referencing port row can be enqueued in
	// the same batch.
	CreateDHCPOptions(opts *nbdb.DHCPOptions) string
	UpdateDHCPOptions(uuid string, opts *nbdb.DHCPOptions)
	DeleteDHCPOptions(uuid string)

	CreateAddressSet(as *nbdb.AddressSet)
	UpdateAddressSet(name string, add, remove []string)
	SetAddressSetExternalIDs(name string, ids map[string]string)
	DeleteAddressSet(name string)

	AddACL(switchName string, acl *nbdb.ACL)
	DeleteACLsByExternalID(switchName, key, value string)

	AddNAT(routerName string, nat *nbdb.NAT)
	// SetNAT updates an existing NAT rule in place, preserving its identity.
	SetNAT(uuid string, natType, logicalIP, externalIP string)
	DeleteNAT(routerName, natType, logicalIP, externalIP string)

	AddStaticRoute(routerName string, route *nbdb.LogicalRouterStaticRoute)
	DeleteStaticRoute(routerName, ipPrefix, nexthop string)

	// SetGatewayChassis replaces the gateway bindings of a router port with
	// a single binding to the given chassis.
	SetGatewayChassis(portName, chassisName string, priority int)

	// Empty reports whether no commands have been enqueued.
	Empty() bool

	Commit(ctx context.Context) error
}

// NBClient is the OVN Northbound database collaborator: read queries plus a
// transaction factory for writes.
type NBClient interface {
	Connect(ctx context.Context) error
	Close()
	Connected() bool

	Txn() Txn

	// WaitForLogicalSwitch polls for the named switch with bounded backoff,
	// tolerating eventually-consistent replication between control-plane
	// instances.
	WaitForLogicalSwitch(ctx context.Context, name string) error

	GetLogicalSwitch(ctx context.Context, name string) (*nbdb.LogicalSwitch, error)
	GetLogicalSwitchPort(ctx context.Context, name string) (*nbdb.LogicalSwitchPort, error)
	GetLogicalRouter(ctx context.Context, name string) (*nbdb.LogicalRouter, error)
	GetLogicalRouterPort(ctx context.Context, name string) (*nbdb.LogicalRouterPort, error)
	GetAddressSet(ctx context.Context, name string) (*nbdb.AddressSet, error)

	ListLogicalSwitches(ctx context.Context) ([]nbdb.LogicalSwitch, error)
	ListLogicalRouters(ctx context.Context) ([]nbdb.LogicalRouter, error)
	ListACLs(ctx context.Context, switchName string) ([]nbdb.ACL, error)
	ListNAT(ctx context.Context, routerName string) ([]nbdb.NAT, error)
	ListStaticRoutes(ctx context.Context, routerName string) ([]nbdb.LogicalRouterStaticRoute, error)

	// SubnetDHCPOptions returns the subnet-level DHCP_Options rows (rows
	// without a port_id external-id) for the given subnets.
	SubnetDHCPOptions(ctx context.Context, subnetIDs []string) ([]nbdb.DHCPOptions, error)
	// SubnetAndPortDHCPOptions returns every DHCP_Options row belonging to
	// the subnet, including port-specific override rows.
	SubnetAndPortDHCPOptions(ctx context.Context, subnetID string) ([]nbdb.DHCPOptions, error)

	// GatewayChassisBindings maps gateway router-port names to the chassis
	// they are currently bound to.
	GatewayChassisBindings(ctx context.Context) (map[string][]string, error)
}

// SBClient is the OVN Southbound database collaborator, read-only: chassis
// inventory for gateway scheduling.
type SBClient interface {
	Connect(ctx context.Context) error
	Close()
	Connected() bool

	// ChassisPhysnets maps every chassis name to the physical networks it
	// advertises through bridge mappings.
	ChassisPhysnets(ctx context.Context) (map[string][]string, error)
	// GatewayChassis lists chassis advertising the gateway-capable CMS
	// option.
	GatewayChassis(ctx context.Context) ([]string, error)
}
