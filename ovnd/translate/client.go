// Package translate converts the cloud-network object model into OVN
// Northbound rows and keeps the two representations consistent. The Client
// exposes one operation per resource lifecycle event; each operation derives
// the full set of OVN rows for the resource and applies them in a single
// OVSDB transaction.
package translate

import (
	"context"
	"fmt"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
	"github.com/mulgadc/ovnd/ovnd/scheduler"
)

// MetadataDefaultIP is the well-known address instances use to reach the
// metadata service; DHCP injects a host route for it via the metadata port.
const MetadataDefaultIP = "169.254.169.254"

// Config holds the translation knobs.
type Config struct {
	// DHCPDefaultLeaseTime is the v4 lease time in seconds.
	DHCPDefaultLeaseTime int
	// BaseMAC is the prefix pool for generated DHCP server MACs, e.g.
	// "fa:16:3e:00:00:00". Zero octets are randomized.
	BaseMAC string
	// MetadataEnabled creates a metadata port per network and injects the
	// metadata host route into v4 DHCP options.
	MetadataEnabled bool
}

// DefaultConfig returns the stock translation configuration.
func DefaultConfig() Config {
	return Config{
		DHCPDefaultLeaseTime: 43200,
		BaseMAC:              "fa:16:3e:00:00:00",
		MetadataEnabled:      true,
	}
}

// Client sequences the per-resource translators inside OVN transactions. All
// collaborators are injected at construction; the Client holds no connection
// state of its own.
type Client struct {
	nb    ovn.NBClient
	sb    ovn.SBClient
	store cloud.Store
	sched scheduler.Strategy
	acl   ACLBuilder
	cfg   Config
}

// NewClient creates a translation client. A nil aclBuilder falls back to the
// built-in rule table; a nil strategy falls back to least-loaded scheduling.
func NewClient(nb ovn.NBClient, sb ovn.SBClient, store cloud.Store, sched scheduler.Strategy, aclBuilder ACLBuilder, cfg Config) *Client {
	if sched == nil {
		sched = scheduler.LeastLoaded{}
	}
	if aclBuilder == nil {
		aclBuilder = DefaultACLBuilder{}
	}
	if cfg.DHCPDefaultLeaseTime == 0 {
		cfg.DHCPDefaultLeaseTime = DefaultConfig().DHCPDefaultLeaseTime
	}
	if cfg.BaseMAC == "" {
		cfg.BaseMAC = DefaultConfig().BaseMAC
	}
	return &Client{nb: nb, sb: sb, store: store, sched: sched, acl: aclBuilder, cfg: cfg}
}

// lookupCache memoizes store reads within one facade operation, so preparing
// a transaction does not hit the store repeatedly for the same subnet or
// security group.
type lookupCache struct {
	store   cloud.Store
	subnets map[string]*cloud.Subnet
	groups  map[string]*cloud.SecurityGroup
}

func newLookupCache(store cloud.Store) *lookupCache {
	return &lookupCache{
		store:   store,
		subnets: make(map[string]*cloud.Subnet),
		groups:  make(map[string]*cloud.SecurityGroup),
	}
}

func (lc *lookupCache) subnet(ctx context.Context, id string) (*cloud.Subnet, error) {
	if s, ok := lc.subnets[id]; ok {
		return s, nil
	}
	s, err := lc.store.GetSubnet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup subnet %s: %w", id, err)
	}
	lc.subnets[id] = s
	return s, nil
}

func (lc *lookupCache) securityGroup(ctx context.Context, id string) (*cloud.SecurityGroup, error) {
	if g, ok := lc.groups[id]; ok {
		return g, nil
	}
	g, err := lc.store.GetSecurityGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup security group %s: %w", id, err)
	}
	lc.groups[id] = g
	return g, nil
}
