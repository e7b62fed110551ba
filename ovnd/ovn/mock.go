package ovn

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mulgadc/ovnd/ovnd/nbdb"
)

// nbState is a full in-memory snapshot of the mock northbound database.
// Switch, port, router and address-set tables are keyed by name; rows only
// referenced through parent sets (DHCP options, ACLs, NAT, routes, gateway
// chassis) are keyed by UUID.
type nbState struct {
	switches    map[string]*nbdb.LogicalSwitch
	switchPorts map[string]*nbdb.LogicalSwitchPort
	routers     map[string]*nbdb.LogicalRouter
	routerPorts map[string]*nbdb.LogicalRouterPort
	dhcpOptions map[string]*nbdb.DHCPOptions
	addressSets map[string]*nbdb.AddressSet
	acls        map[string]*nbdb.ACL
	nats        map[string]*nbdb.NAT
	routes      map[string]*nbdb.LogicalRouterStaticRoute
	gwChassis   map[string]*nbdb.GatewayChassis
}

func newNBState() *nbState {
	return &nbState{
		switches:    make(map[string]*nbdb.LogicalSwitch),
		switchPorts: make(map[string]*nbdb.LogicalSwitchPort),
		routers:     make(map[string]*nbdb.LogicalRouter),
		routerPorts: make(map[string]*nbdb.LogicalRouterPort),
		dhcpOptions: make(map[string]*nbdb.DHCPOptions),
		addressSets: make(map[string]*nbdb.AddressSet),
		acls:        make(map[string]*nbdb.ACL),
		nats:        make(map[string]*nbdb.NAT),
		routes:      make(map[string]*nbdb.LogicalRouterStaticRoute),
		gwChassis:   make(map[string]*nbdb.GatewayChassis),
	}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func copyLS(ls *nbdb.LogicalSwitch) *nbdb.LogicalSwitch {
	out := *ls
	out.Ports = copySlice(ls.Ports)
	out.ACLs = copySlice(ls.ACLs)
	out.OtherConfig = copyMap(ls.OtherConfig)
	out.ExternalIDs = copyMap(ls.ExternalIDs)
	return &out
}

func copyLSP(lsp *nbdb.LogicalSwitchPort) *nbdb.LogicalSwitchPort {
	out := *lsp
	out.Addresses = copySlice(lsp.Addresses)
	out.PortSecurity = copySlice(lsp.PortSecurity)
	out.Options = copyMap(lsp.Options)
	out.ExternalIDs = copyMap(lsp.ExternalIDs)
	out.Enabled = copyBool(lsp.Enabled)
	out.ParentName = copyString(lsp.ParentName)
	out.Tag = copyInt(lsp.Tag)
	out.DHCPv4Options = copyString(lsp.DHCPv4Options)
	out.DHCPv6Options = copyString(lsp.DHCPv6Options)
	return &out
}

func copyLR(lr *nbdb.LogicalRouter) *nbdb.LogicalRouter {
	out := *lr
	out.Ports = copySlice(lr.Ports)
	out.NAT = copySlice(lr.NAT)
	out.StaticRoutes = copySlice(lr.StaticRoutes)
	out.Options = copyMap(lr.Options)
	out.ExternalIDs = copyMap(lr.ExternalIDs)
	out.Enabled = copyBool(lr.Enabled)
	return &out
}

func copyLRP(lrp *nbdb.LogicalRouterPort) *nbdb.LogicalRouterPort {
	out := *lrp
	out.Networks = copySlice(lrp.Networks)
	out.GatewayChassis = copySlice(lrp.GatewayChassis)
	out.Options = copyMap(lrp.Options)
	out.ExternalIDs = copyMap(lrp.ExternalIDs)
	return &out
}

func copyDHCP(o *nbdb.DHCPOptions) *nbdb.DHCPOptions {
	out := *o
	out.Options = copyMap(o.Options)
	out.ExternalIDs = copyMap(o.ExternalIDs)
	return &out
}

func copyAS(as *nbdb.AddressSet) *nbdb.AddressSet {
	out := *as
	out.Addresses = copySlice(as.Addresses)
	out.ExternalIDs = copyMap(as.ExternalIDs)
	return &out
}

func copyACL(acl *nbdb.ACL) *nbdb.ACL {
	out := *acl
	out.ExternalIDs = copyMap(acl.ExternalIDs)
	return &out
}

func copyNAT(nat *nbdb.NAT) *nbdb.NAT {
	out := *nat
	out.ExternalIDs = copyMap(nat.ExternalIDs)
	out.LogicalPort = copyString(nat.LogicalPort)
	out.ExternalMAC = copyString(nat.ExternalMAC)
	return &out
}

func copyRoute(r *nbdb.LogicalRouterStaticRoute) *nbdb.LogicalRouterStaticRoute {
	out := *r
	out.ExternalIDs = copyMap(r.ExternalIDs)
	return &out
}

func copyGWC(gc *nbdb.GatewayChassis) *nbdb.GatewayChassis {
	out := *gc
	out.ExternalIDs = copyMap(gc.ExternalIDs)
	return &out
}

func (s *nbState) clone() *nbState {
	out := newNBState()
	for k, v := range s.switches {
		out.switches[k] = copyLS(v)
	}
	for k, v := range s.switchPorts {
		out.switchPorts[k] = copyLSP(v)
	}
	for k, v := range s.routers {
		out.routers[k] = copyLR(v)
	}
	for k, v := range s.routerPorts {
		out.routerPorts[k] = copyLRP(v)
	}
	for k, v := range s.dhcpOptions {
		out.dhcpOptions[k] = copyDHCP(v)
	}
	for k, v := range s.addressSets {
		out.addressSets[k] = copyAS(v)
	}
	for k, v := range s.acls {
		out.acls[k] = copyACL(v)
	}
	for k, v := range s.nats {
		out.nats[k] = copyNAT(v)
	}
	for k, v := range s.routes {
		out.routes[k] = copyRoute(v)
	}
	for k, v := range s.gwChassis {
		out.gwChassis[k] = copyGWC(v)
	}
	return out
}

// MockNBClient is an in-memory NBClient for tests. Transactions stage their
// writes against a clone of the state and swap it in only if every step
// succeeds, so a failed commit leaves the database untouched.
type MockNBClient struct {
	mu    sync.Mutex
	state *nbState

	// CommitCount is the number of non-empty transactions committed.
	CommitCount int
	// WriteCount is the total number of write steps applied.
	WriteCount int
	// FailNext causes the next non-empty commit to fail with this error.
	FailNext error
}

func NewMockNBClient() *MockNBClient {
	return &MockNBClient{state: newNBState()}
}

func (c *MockNBClient) Connect(ctx context.Context) error { return nil }
func (c *MockNBClient) Close()                            {}
func (c *MockNBClient) Connected() bool                   { return true }

func (c *MockNBClient) WaitForLogicalSwitch(ctx context.Context, name string) error {
	_, err := c.GetLogicalSwitch(ctx, name)
	return err
}

// ResetCounters zeroes the commit and write counters.
func (c *MockNBClient) ResetCounters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CommitCount = 0
	c.WriteCount = 0
}

func (c *MockNBClient) Txn() Txn {
	return &mockTxn{c: c}
}

func (c *MockNBClient) GetLogicalSwitch(ctx context.Context, name string) (*nbdb.LogicalSwitch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.state.switches[name]
	if !ok {
		return nil, fmt.Errorf("logical switch %q: %w", name, ErrNotFound)
	}
	return copyLS(ls), nil
}

func (c *MockNBClient) GetLogicalSwitchPort(ctx context.Context, name string) (*nbdb.LogicalSwitchPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lsp, ok := c.state.switchPorts[name]
	if !ok {
		return nil, fmt.Errorf("logical switch port %q: %w", name, ErrNotFound)
	}
	return copyLSP(lsp), nil
}

func (c *MockNBClient) GetLogicalRouter(ctx context.Context, name string) (*nbdb.LogicalRouter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lr, ok := c.state.routers[name]
	if !ok {
		return nil, fmt.Errorf("logical router %q: %w", name, ErrNotFound)
	}
	return copyLR(lr), nil
}

func (c *MockNBClient) GetLogicalRouterPort(ctx context.Context, name string) (*nbdb.LogicalRouterPort, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lrp, ok := c.state.routerPorts[name]
	if !ok {
		return nil, fmt.Errorf("logical router port %q: %w", name, ErrNotFound)
	}
	return copyLRP(lrp), nil
}

func (c *MockNBClient) GetAddressSet(ctx context.Context, name string) (*nbdb.AddressSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	as, ok := c.state.addressSets[name]
	if !ok {
		return nil, fmt.Errorf("address set %q: %w", name, ErrNotFound)
	}
	return copyAS(as), nil
}

func (c *MockNBClient) ListLogicalSwitches(ctx context.Context) ([]nbdb.LogicalSwitch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]nbdb.LogicalSwitch, 0, len(c.state.switches))
	for _, ls := range c.state.switches {
		out = append(out, *copyLS(ls))
	}
	return out, nil
}

func (c *MockNBClient) ListLogicalRouters(ctx context.Context) ([]nbdb.LogicalRouter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]nbdb.LogicalRouter, 0, len(c.state.routers))
	for _, lr := range c.state.routers {
		out = append(out, *copyLR(lr))
	}
	return out, nil
}

func (c *MockNBClient) ListACLs(ctx context.Context, switchName string) ([]nbdb.ACL, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.state.switches[switchName]
	if !ok {
		return nil, fmt.Errorf("logical switch %q: %w", switchName, ErrNotFound)
	}
	var out []nbdb.ACL
	for _, uuid := range ls.ACLs {
		if acl, ok := c.state.acls[uuid]; ok {
			out = append(out, *copyACL(acl))
		}
	}
	return out, nil
}

func (c *MockNBClient) ListNAT(ctx context.Context, routerName string) ([]nbdb.NAT, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lr, ok := c.state.routers[routerName]
	if !ok {
		return nil, fmt.Errorf("logical router %q: %w", routerName, ErrNotFound)
	}
	var out []nbdb.NAT
	for _, uuid := range lr.NAT {
		if nat, ok := c.state.nats[uuid]; ok {
			out = append(out, *copyNAT(nat))
		}
	}
	return out, nil
}

func (c *MockNBClient) ListStaticRoutes(ctx context.Context, routerName string) ([]nbdb.LogicalRouterStaticRoute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lr, ok := c.state.routers[routerName]
	if !ok {
		return nil, fmt.Errorf("logical router %q: %w", routerName, ErrNotFound)
	}
	var out []nbdb.LogicalRouterStaticRoute
	for _, uuid := range lr.StaticRoutes {
		if route, ok := c.state.routes[uuid]; ok {
			out = append(out, *copyRoute(route))
		}
	}
	return out, nil
}

func (c *MockNBClient) SubnetDHCPOptions(ctx context.Context, subnetIDs []string) ([]nbdb.DHCPOptions, error) {
	wanted := make(map[string]bool, len(subnetIDs))
	for _, id := range subnetIDs {
		wanted[id] = true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []nbdb.DHCPOptions
	for _, o := range c.state.dhcpOptions {
		if wanted[o.ExternalIDs[SubnetIDExtIDKey]] && o.ExternalIDs[PortIDExtIDKey] == "" {
			out = append(out, *copyDHCP(o))
		}
	}
	return out, nil
}

func (c *MockNBClient) SubnetAndPortDHCPOptions(ctx context.Context, subnetID string) ([]nbdb.DHCPOptions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []nbdb.DHCPOptions
	for _, o := range c.state.dhcpOptions {
		if o.ExternalIDs[SubnetIDExtIDKey] == subnetID {
			out = append(out, *copyDHCP(o))
		}
	}
	return out, nil
}

func (c *MockNBClient) GatewayChassisBindings(ctx context.Context) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bindings := make(map[string][]string)
	for _, lrp := range c.state.routerPorts {
		for _, uuid := range lrp.GatewayChassis {
			if gc, ok := c.state.gwChassis[uuid]; ok {
				bindings[lrp.Name] = append(bindings[lrp.Name], gc.ChassisName)
			}
		}
	}
	return bindings, nil
}

// DHCPOptionsByUUID returns a DHCP options row directly, for test assertions.
func (c *MockNBClient) DHCPOptionsByUUID(uuid string) (*nbdb.DHCPOptions, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.state.dhcpOptions[uuid]
	if !ok {
		return nil, false
	}
	return copyDHCP(o), true
}

type mockTxn struct {
	c     *MockNBClient
	steps []func(s *nbState) error
}

func (t *mockTxn) add(step func(s *nbState) error) {
	t.steps = append(t.steps, step)
}

func (t *mockTxn) Empty() bool { return len(t.steps) == 0 }

func (t *mockTxn) Commit(ctx context.Context) error {
	if len(t.steps) == 0 {
		return nil
	}
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.c.FailNext != nil {
		err := t.c.FailNext
		t.c.FailNext = nil
		return err
	}
	staged := t.c.state.clone()
	for _, step := range t.steps {
		if err := step(staged); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	t.c.state = staged
	t.c.CommitCount++
	t.c.WriteCount += len(t.steps)
	return nil
}

func (t *mockTxn) CreateLogicalSwitch(ls *nbdb.LogicalSwitch) {
	row := copyLS(ls)
	t.add(func(s *nbState) error {
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		if _, ok := s.switches[row.Name]; ok {
			return fmt.Errorf("logical switch %q already exists", row.Name)
		}
		s.switches[row.Name] = row
		return nil
	})
}

func (t *mockTxn) SetLogicalSwitchExternalIDs(name string, ids map[string]string) {
	ids = copyMap(ids)
	t.add(func(s *nbState) error {
		ls, ok := s.switches[name]
		if !ok {
			return fmt.Errorf("logical switch %q: %w", name, ErrNotFound)
		}
		ls.ExternalIDs = ids
		return nil
	})
}

func (t *mockTxn) DeleteLogicalSwitch(name string) {
	t.add(func(s *nbState) error {
		ls, ok := s.switches[name]
		if !ok {
			return nil
		}
		for _, portUUID := range ls.Ports {
			for portName, lsp := range s.switchPorts {
				if lsp.UUID == portUUID {
					delete(s.switchPorts, portName)
				}
			}
		}
		for _, aclUUID := range ls.ACLs {
			delete(s.acls, aclUUID)
		}
		delete(s.switches, name)
		return nil
	})
}

func (t *mockTxn) CreateLogicalSwitchPort(switchName string, lsp *nbdb.LogicalSwitchPort) {
	row := copyLSP(lsp)
	t.add(func(s *nbState) error {
		ls, ok := s.switches[switchName]
		if !ok {
			return fmt.Errorf("logical switch %q: %w", switchName, ErrNotFound)
		}
		if _, ok := s.switchPorts[row.Name]; ok {
			return fmt.Errorf("logical switch port %q already exists", row.Name)
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		s.switchPorts[row.Name] = row
		ls.Ports = append(ls.Ports, row.UUID)
		return nil
	})
}

func (t *mockTxn) UpdateLogicalSwitchPort(lsp *nbdb.LogicalSwitchPort) {
	row := copyLSP(lsp)
	t.add(func(s *nbState) error {
		existing, ok := s.switchPorts[row.Name]
		if !ok {
			return fmt.Errorf("logical switch port %q: %w", row.Name, ErrNotFound)
		}
		row.UUID = existing.UUID
		s.switchPorts[row.Name] = row
		return nil
	})
}

func (t *mockTxn) DeleteLogicalSwitchPort(switchName, portName string) {
	t.add(func(s *nbState) error {
		lsp, ok := s.switchPorts[portName]
		if !ok {
			return nil
		}
		if ls, ok := s.switches[switchName]; ok {
			ls.Ports = removeString(ls.Ports, lsp.UUID)
		}
		delete(s.switchPorts, portName)
		return nil
	})
}

func (t *mockTxn) CreateLogicalRouter(lr *nbdb.LogicalRouter) {
	row := copyLR(lr)
	t.add(func(s *nbState) error {
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		if _, ok := s.routers[row.Name]; ok {
			return fmt.Errorf("logical router %q already exists", row.Name)
		}
		s.routers[row.Name] = row
		return nil
	})
}

func (t *mockTxn) UpdateLogicalRouter(name string, enabled *bool, externalIDs map[string]string) {
	enabled = copyBool(enabled)
	externalIDs = copyMap(externalIDs)
	t.add(func(s *nbState) error {
		lr, ok := s.routers[name]
		if !ok {
			return fmt.Errorf("logical router %q: %w", name, ErrNotFound)
		}
		if enabled != nil {
			lr.Enabled = enabled
		}
		if externalIDs != nil {
			lr.ExternalIDs = externalIDs
		}
		return nil
	})
}

func (t *mockTxn) DeleteLogicalRouter(name string) {
	t.add(func(s *nbState) error {
		lr, ok := s.routers[name]
		if !ok {
			return nil
		}
		for _, portUUID := range lr.Ports {
			for portName, lrp := range s.routerPorts {
				if lrp.UUID == portUUID {
					for _, gcUUID := range lrp.GatewayChassis {
						delete(s.gwChassis, gcUUID)
					}
					delete(s.routerPorts, portName)
				}
			}
		}
		for _, natUUID := range lr.NAT {
			delete(s.nats, natUUID)
		}
		for _, routeUUID := range lr.StaticRoutes {
			delete(s.routes, routeUUID)
		}
		delete(s.routers, name)
		return nil
	})
}

func (t *mockTxn) CreateLogicalRouterPort(routerName string, lrp *nbdb.LogicalRouterPort) {
	row := copyLRP(lrp)
	t.add(func(s *nbState) error {
		lr, ok := s.routers[routerName]
		if !ok {
			return fmt.Errorf("logical router %q: %w", routerName, ErrNotFound)
		}
		if _, ok := s.routerPorts[row.Name]; ok {
			return fmt.Errorf("logical router port %q already exists", row.Name)
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		s.routerPorts[row.Name] = row
		lr.Ports = append(lr.Ports, row.UUID)
		return nil
	})
}

func (t *mockTxn) UpdateLogicalRouterPortNetworks(name string, networks []string) {
	networks = copySlice(networks)
	t.add(func(s *nbState) error {
		lrp, ok := s.routerPorts[name]
		if !ok {
			return fmt.Errorf("logical router port %q: %w", name, ErrNotFound)
		}
		lrp.Networks = networks
		return nil
	})
}

func (t *mockTxn) DeleteLogicalRouterPort(routerName, portName string) {
	t.add(func(s *nbState) error {
		lrp, ok := s.routerPorts[portName]
		if !ok {
			return nil
		}
		if lr, ok := s.routers[routerName]; ok {
			lr.Ports = removeString(lr.Ports, lrp.UUID)
		}
		for _, gcUUID := range lrp.GatewayChassis {
			delete(s.gwChassis, gcUUID)
		}
		delete(s.routerPorts, portName)
		return nil
	})
}

func (t *mockTxn) ConnectRouterPort(portID, routerPortName string) {
	t.add(func(s *nbState) error {
		lsp, ok := s.switchPorts[portID]
		if !ok {
			return fmt.Errorf("logical switch port %q: %w", portID, ErrNotFound)
		}
		lsp.Type = "router"
		lsp.Addresses = []string{"router"}
		if lsp.Options == nil {
			lsp.Options = map[string]string{}
		}
		lsp.Options["router-port"] = routerPortName
		return nil
	})
}

func (t *mockTxn) CreateDHCPOptions(opts *nbdb.DHCPOptions) string {
	row := copyDHCP(opts)
	if row.UUID == "" {
		row.UUID = uuid.NewString()
	}
	t.add(func(s *nbState) error {
		s.dhcpOptions[row.UUID] = row
		return nil
	})
	return row.UUID
}

func (t *mockTxn) UpdateDHCPOptions(uuidStr string, opts *nbdb.DHCPOptions) {
	row := copyDHCP(opts)
	t.add(func(s *nbState) error {
		if _, ok := s.dhcpOptions[uuidStr]; !ok {
			return fmt.Errorf("DHCP options %q: %w", uuidStr, ErrNotFound)
		}
		row.UUID = uuidStr
		s.dhcpOptions[uuidStr] = row
		return nil
	})
}

func (t *mockTxn) DeleteDHCPOptions(uuidStr string) {
	t.add(func(s *nbState) error {
		delete(s.dhcpOptions, uuidStr)
		return nil
	})
}

func (t *mockTxn) CreateAddressSet(as *nbdb.AddressSet) {
	row := copyAS(as)
	t.add(func(s *nbState) error {
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		if _, ok := s.addressSets[row.Name]; ok {
			return fmt.Errorf("address set %q already exists", row.Name)
		}
		s.addressSets[row.Name] = row
		return nil
	})
}

func (t *mockTxn) UpdateAddressSet(name string, add, remove []string) {
	add = copySlice(add)
	remove = copySlice(remove)
	t.add(func(s *nbState) error {
		as, ok := s.addressSets[name]
		if !ok {
			return fmt.Errorf("address set %q: %w", name, ErrNotFound)
		}
		present := make(map[string]bool, len(as.Addresses))
		for _, a := range as.Addresses {
			present[a] = true
		}
		for _, a := range add {
			if !present[a] {
				as.Addresses = append(as.Addresses, a)
				present[a] = true
			}
		}
		for _, a := range remove {
			as.Addresses = removeString(as.Addresses, a)
		}
		return nil
	})
}

func (t *mockTxn) SetAddressSetExternalIDs(name string, ids map[string]string) {
	ids = copyMap(ids)
	t.add(func(s *nbState) error {
		as, ok := s.addressSets[name]
		if !ok {
			return fmt.Errorf("address set %q: %w", name, ErrNotFound)
		}
		as.ExternalIDs = ids
		return nil
	})
}

func (t *mockTxn) DeleteAddressSet(name string) {
	t.add(func(s *nbState) error {
		delete(s.addressSets, name)
		return nil
	})
}

func (t *mockTxn) AddACL(switchName string, acl *nbdb.ACL) {
	row := copyACL(acl)
	t.add(func(s *nbState) error {
		ls, ok := s.switches[switchName]
		if !ok {
			return fmt.Errorf("logical switch %q: %w", switchName, ErrNotFound)
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		s.acls[row.UUID] = row
		ls.ACLs = append(ls.ACLs, row.UUID)
		return nil
	})
}

func (t *mockTxn) DeleteACLsByExternalID(switchName, key, value string) {
	t.add(func(s *nbState) error {
		ls, ok := s.switches[switchName]
		if !ok {
			return nil
		}
		kept := ls.ACLs[:0]
		for _, aclUUID := range ls.ACLs {
			acl, ok := s.acls[aclUUID]
			if ok && acl.ExternalIDs[key] == value {
				delete(s.acls, aclUUID)
				continue
			}
			kept = append(kept, aclUUID)
		}
		ls.ACLs = kept
		return nil
	})
}

func (t *mockTxn) AddNAT(routerName string, nat *nbdb.NAT) {
	row := copyNAT(nat)
	t.add(func(s *nbState) error {
		lr, ok := s.routers[routerName]
		if !ok {
			return fmt.Errorf("logical router %q: %w", routerName, ErrNotFound)
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		s.nats[row.UUID] = row
		lr.NAT = append(lr.NAT, row.UUID)
		return nil
	})
}

func (t *mockTxn) SetNAT(uuidStr, natType, logicalIP, externalIP string) {
	t.add(func(s *nbState) error {
		nat, ok := s.nats[uuidStr]
		if !ok {
			return fmt.Errorf("NAT %q: %w", uuidStr, ErrNotFound)
		}
		nat.Type = natType
		nat.LogicalIP = logicalIP
		nat.ExternalIP = externalIP
		return nil
	})
}

func (t *mockTxn) DeleteNAT(routerName, natType, logicalIP, externalIP string) {
	t.add(func(s *nbState) error {
		lr, ok := s.routers[routerName]
		if !ok {
			return nil
		}
		kept := lr.NAT[:0]
		for _, natUUID := range lr.NAT {
			nat, ok := s.nats[natUUID]
			if ok && nat.Type == natType && nat.LogicalIP == logicalIP &&
				(externalIP == "" || nat.ExternalIP == externalIP) {
				delete(s.nats, natUUID)
				continue
			}
			kept = append(kept, natUUID)
		}
		lr.NAT = kept
		return nil
	})
}

func (t *mockTxn) AddStaticRoute(routerName string, route *nbdb.LogicalRouterStaticRoute) {
	row := copyRoute(route)
	t.add(func(s *nbState) error {
		lr, ok := s.routers[routerName]
		if !ok {
			return fmt.Errorf("logical router %q: %w", routerName, ErrNotFound)
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		s.routes[row.UUID] = row
		lr.StaticRoutes = append(lr.StaticRoutes, row.UUID)
		return nil
	})
}

func (t *mockTxn) DeleteStaticRoute(routerName, ipPrefix, nexthop string) {
	t.add(func(s *nbState) error {
		lr, ok := s.routers[routerName]
		if !ok {
			return nil
		}
		kept := lr.StaticRoutes[:0]
		for _, routeUUID := range lr.StaticRoutes {
			route, ok := s.routes[routeUUID]
			if ok && route.IPPrefix == ipPrefix &&
				(nexthop == "" || route.Nexthop == nexthop) {
				delete(s.routes, routeUUID)
				continue
			}
			kept = append(kept, routeUUID)
		}
		lr.StaticRoutes = kept
		return nil
	})
}

func (t *mockTxn) SetGatewayChassis(portName, chassisName string, priority int) {
	t.add(func(s *nbState) error {
		lrp, ok := s.routerPorts[portName]
		if !ok {
			return fmt.Errorf("logical router port %q: %w", portName, ErrNotFound)
		}
		for _, gcUUID := range lrp.GatewayChassis {
			delete(s.gwChassis, gcUUID)
		}
		gc := &nbdb.GatewayChassis{
			UUID:        uuid.NewString(),
			Name:        portName + "_" + chassisName,
			ChassisName: chassisName,
			Priority:    priority,
		}
		s.gwChassis[gc.UUID] = gc
		lrp.GatewayChassis = []string{gc.UUID}
		return nil
	})
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, e := range s {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}

// MockSBClient is an in-memory SBClient for tests.
type MockSBClient struct {
	mu sync.Mutex
	// Physnets maps chassis name to the physical networks it bridges.
	Physnets map[string][]string
	// Gateways lists chassis eligible to host gateway ports.
	Gateways []string
}

func NewMockSBClient() *MockSBClient {
	return &MockSBClient{Physnets: make(map[string][]string)}
}

func (c *MockSBClient) Connect(ctx context.Context) error { return nil }
func (c *MockSBClient) Close()                            {}
func (c *MockSBClient) Connected() bool                   { return true }

// AddChassis registers a chassis with its bridged physnets, marking it
// gateway capable.
func (c *MockSBClient) AddChassis(name string, physnets ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Physnets[name] = physnets
	c.Gateways = append(c.Gateways, name)
}

// RemoveChassis deletes a chassis, simulating it going away.
func (c *MockSBClient) RemoveChassis(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Physnets, name)
	c.Gateways = removeString(c.Gateways, name)
}

func (c *MockSBClient) ChassisPhysnets(ctx context.Context) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string, len(c.Physnets))
	for k, v := range c.Physnets {
		out[k] = copySlice(v)
	}
	return out, nil
}

func (c *MockSBClient) GatewayChassis(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySlice(c.Gateways), nil
}

var _ NBClient = (*MockNBClient)(nil)
var _ SBClient = (*MockSBClient)(nil)
