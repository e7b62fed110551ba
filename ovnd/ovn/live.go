package ovn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/ovn-kubernetes/libovsdb/client"
	"github.com/ovn-kubernetes/libovsdb/model"
	"github.com/ovn-kubernetes/libovsdb/ovsdb"

	"github.com/mulgadc/ovnd/ovnd/nbdb"
)

// namedUUID generates a valid OVSDB named-uuid from a prefix and name.
// OVSDB named-uuids must match [_a-zA-Z][_a-zA-Z0-9]* — hyphens, dots and
// slashes are replaced with underscores.
func namedUUID(prefix, name string) string {
	s := prefix + name
	result := make([]byte, len(s))
	for i := range s {
		if s[i] == '-' || s[i] == '.' || s[i] == '/' || s[i] == ':' {
			result[i] = '_'
		} else {
			result[i] = s[i]
		}
	}
	return string(result)
}

var (
	_ NBClient = (*LiveNBClient)(nil)
	_ SBClient = (*LiveSBClient)(nil)
)

// LiveNBClient implements NBClient using libovsdb against a real OVN NB DB.
type LiveNBClient struct {
	endpoint string
	retry    RetryConfig
	client   client.Client
}

// NewLiveNBClient creates a LiveNBClient targeting the given OVN NB DB
// endpoint ("tcp:host:port" or "unix:/path/to/socket").
func NewLiveNBClient(endpoint string, retry RetryConfig) *LiveNBClient {
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig
	}
	return &LiveNBClient{endpoint: endpoint, retry: retry}
}

func (c *LiveNBClient) Connect(ctx context.Context) error {
	dbModel, err := nbdb.FullDatabaseModel()
	if err != nil {
		return fmt.Errorf("create NB database model: %w", err)
	}

	ovn, err := client.NewOVSDBClient(dbModel, client.WithEndpoint(c.endpoint))
	if err != nil {
		return fmt.Errorf("create OVSDB client: %w", err)
	}

	if err := ovn.Connect(ctx); err != nil {
		return fmt.Errorf("connect to OVN NB DB at %s: %w", c.endpoint, err)
	}

	if _, err := ovn.MonitorAll(ctx); err != nil {
		ovn.Close()
		return fmt.Errorf("monitor OVN NB DB: %w", err)
	}

	c.client = ovn
	slog.Info("Connected to OVN NB DB", "endpoint", c.endpoint)
	return nil
}

func (c *LiveNBClient) Close() {
	if c.client != nil {
		c.client.Close()
		slog.Info("Disconnected from OVN NB DB")
	}
}

func (c *LiveNBClient) Connected() bool {
	return c.client != nil
}

// transactOps executes a set of OVSDB operations as a single transaction,
// checking both the RPC error and individual operation results.
func (c *LiveNBClient) transactOps(ctx context.Context, ops []ovsdb.Operation) error {
	results, err := c.client.Transact(ctx, ops...)
	if err != nil {
		return err
	}
	_, err = ovsdb.CheckOperationResults(results, ops)
	if err != nil {
		for i, r := range results {
			if r.Error != "" {
				opTable := ""
				if i < len(ops) {
					opTable = fmt.Sprintf("%s on %s", ops[i].Op, ops[i].Table)
				}
				slog.Error("OVSDB operation failed", "index", i, "op", opTable, "error", r.Error, "details", r.Details)
			}
		}
	}
	return err
}

func (c *LiveNBClient) Txn() Txn {
	return &liveTxn{c: c}
}

func (c *LiveNBClient) WaitForLogicalSwitch(ctx context.Context, name string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retry.InitialInterval
	bo.MaxInterval = c.retry.MaxInterval
	check := func() error {
		_, err := c.GetLogicalSwitch(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	err := backoff.Retry(check,
		backoff.WithContext(backoff.WithMaxRetries(bo, c.retry.MaxRetries), ctx))
	if err != nil {
		return fmt.Errorf("logical switch %q not visible after retries: %w", name, err)
	}
	return nil
}

func (c *LiveNBClient) GetLogicalSwitch(ctx context.Context, name string) (*nbdb.LogicalSwitch, error) {
	var switches []nbdb.LogicalSwitch
	err := c.client.WhereCache(func(ls *nbdb.LogicalSwitch) bool {
		return ls.Name == name
	}).List(ctx, &switches)
	if err != nil {
		return nil, fmt.Errorf("get logical switch: %w", err)
	}
	if len(switches) == 0 {
		return nil, fmt.Errorf("logical switch %q: %w", name, ErrNotFound)
	}
	return &switches[0], nil
}

func (c *LiveNBClient) GetLogicalSwitchPort(ctx context.Context, name string) (*nbdb.LogicalSwitchPort, error) {
	var ports []nbdb.LogicalSwitchPort
	err := c.client.WhereCache(func(lsp *nbdb.LogicalSwitchPort) bool {
		return lsp.Name == name
	}).List(ctx, &ports)
	if err != nil {
		return nil, fmt.Errorf("get logical switch port: %w", err)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("logical switch port %q: %w", name, ErrNotFound)
	}
	return &ports[0], nil
}

func (c *LiveNBClient) GetLogicalRouter(ctx context.Context, name string) (*nbdb.LogicalRouter, error) {
	var routers []nbdb.LogicalRouter
	err := c.client.WhereCache(func(lr *nbdb.LogicalRouter) bool {
		return lr.Name == name
	}).List(ctx, &routers)
	if err != nil {
		return nil, fmt.Errorf("get logical router: %w", err)
	}
	if len(routers) == 0 {
		return nil, fmt.Errorf("logical router %q: %w", name, ErrNotFound)
	}
	return &routers[0], nil
}

func (c *LiveNBClient) GetLogicalRouterPort(ctx context.Context, name string) (*nbdb.LogicalRouterPort, error) {
	var ports []nbdb.LogicalRouterPort
	err := c.client.WhereCache(func(lrp *nbdb.LogicalRouterPort) bool {
		return lrp.Name == name
	}).List(ctx, &ports)
	if err != nil {
		return nil, fmt.Errorf("get logical router port: %w", err)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("logical router port %q: %w", name, ErrNotFound)
	}
	return &ports[0], nil
}

func (c *LiveNBClient) GetAddressSet(ctx context.Context, name string) (*nbdb.AddressSet, error) {
	var sets []nbdb.AddressSet
	err := c.client.WhereCache(func(as *nbdb.AddressSet) bool {
		return as.Name == name
	}).List(ctx, &sets)
	if err != nil {
		return nil, fmt.Errorf("get address set: %w", err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("address set %q: %w", name, ErrNotFound)
	}
	return &sets[0], nil
}

func (c *LiveNBClient) ListLogicalSwitches(ctx context.Context) ([]nbdb.LogicalSwitch, error) {
	var switches []nbdb.LogicalSwitch
	if err := c.client.List(ctx, &switches); err != nil {
		return nil, fmt.Errorf("list logical switches: %w", err)
	}
	return switches, nil
}

func (c *LiveNBClient) ListLogicalRouters(ctx context.Context) ([]nbdb.LogicalRouter, error) {
	var routers []nbdb.LogicalRouter
	if err := c.client.List(ctx, &routers); err != nil {
		return nil, fmt.Errorf("list logical routers: %w", err)
	}
	return routers, nil
}

func (c *LiveNBClient) ListACLs(ctx context.Context, switchName string) ([]nbdb.ACL, error) {
	ls, err := c.GetLogicalSwitch(ctx, switchName)
	if err != nil {
		return nil, err
	}
	member := make(map[string]bool, len(ls.ACLs))
	for _, uuid := range ls.ACLs {
		member[uuid] = true
	}
	var acls []nbdb.ACL
	err = c.client.WhereCache(func(acl *nbdb.ACL) bool {
		return member[acl.UUID]
	}).List(ctx, &acls)
	if err != nil {
		return nil, fmt.Errorf("list ACLs: %w", err)
	}
	return acls, nil
}

func (c *LiveNBClient) ListNAT(ctx context.Context, routerName string) ([]nbdb.NAT, error) {
	lr, err := c.GetLogicalRouter(ctx, routerName)
	if err != nil {
		return nil, err
	}
	member := make(map[string]bool, len(lr.NAT))
	for _, uuid := range lr.NAT {
		member[uuid] = true
	}
	var nats []nbdb.NAT
	err = c.client.WhereCache(func(nat *nbdb.NAT) bool {
		return member[nat.UUID]
	}).List(ctx, &nats)
	if err != nil {
		return nil, fmt.Errorf("list NAT rules: %w", err)
	}
	return nats, nil
}

func (c *LiveNBClient) ListStaticRoutes(ctx context.Context, routerName string) ([]nbdb.LogicalRouterStaticRoute, error) {
	lr, err := c.GetLogicalRouter(ctx, routerName)
	if err != nil {
		return nil, err
	}
	member := make(map[string]bool, len(lr.StaticRoutes))
	for _, uuid := range lr.StaticRoutes {
		member[uuid] = true
	}
	var routes []nbdb.LogicalRouterStaticRoute
	err = c.client.WhereCache(func(r *nbdb.LogicalRouterStaticRoute) bool {
		return member[r.UUID]
	}).List(ctx, &routes)
	if err != nil {
		return nil, fmt.Errorf("list static routes: %w", err)
	}
	return routes, nil
}

func (c *LiveNBClient) SubnetDHCPOptions(ctx context.Context, subnetIDs []string) ([]nbdb.DHCPOptions, error) {
	wanted := make(map[string]bool, len(subnetIDs))
	for _, id := range subnetIDs {
		wanted[id] = true
	}
	var options []nbdb.DHCPOptions
	err := c.client.WhereCache(func(o *nbdb.DHCPOptions) bool {
		return wanted[o.ExternalIDs[SubnetIDExtIDKey]] && o.ExternalIDs[PortIDExtIDKey] == ""
	}).List(ctx, &options)
	if err != nil {
		return nil, fmt.Errorf("subnet DHCP options: %w", err)
	}
	return options, nil
}

func (c *LiveNBClient) SubnetAndPortDHCPOptions(ctx context.Context, subnetID string) ([]nbdb.DHCPOptions, error) {
	var options []nbdb.DHCPOptions
	err := c.client.WhereCache(func(o *nbdb.DHCPOptions) bool {
		return o.ExternalIDs[SubnetIDExtIDKey] == subnetID
	}).List(ctx, &options)
	if err != nil {
		return nil, fmt.Errorf("subnet and port DHCP options: %w", err)
	}
	return options, nil
}

func (c *LiveNBClient) GatewayChassisBindings(ctx context.Context) (map[string][]string, error) {
	var gcs []nbdb.GatewayChassis
	if err := c.client.List(ctx, &gcs); err != nil {
		return nil, fmt.Errorf("list gateway chassis: %w", err)
	}
	byUUID := make(map[string]*nbdb.GatewayChassis, len(gcs))
	for i := range gcs {
		byUUID[gcs[i].UUID] = &gcs[i]
	}
	var lrps []nbdb.LogicalRouterPort
	if err := c.client.List(ctx, &lrps); err != nil {
		return nil, fmt.Errorf("list logical router ports: %w", err)
	}
	bindings := make(map[string][]string)
	for _, lrp := range lrps {
		for _, uuid := range lrp.GatewayChassis {
			if gc, ok := byUUID[uuid]; ok {
				bindings[lrp.Name] = append(bindings[lrp.Name], gc.ChassisName)
			}
		}
	}
	return bindings, nil
}

// liveTxn defers command construction until Commit: each enqueued command is
// a builder resolving names against the client cache into concrete OVSDB
// operations, applied together in one Transact call.
type liveTxn struct {
	c        *LiveNBClient
	builders []func(ctx context.Context) ([]ovsdb.Operation, error)
}

func (t *liveTxn) add(b func(ctx context.Context) ([]ovsdb.Operation, error)) {
	t.builders = append(t.builders, b)
}

func (t *liveTxn) Empty() bool { return len(t.builders) == 0 }

func (t *liveTxn) Commit(ctx context.Context) error {
	if len(t.builders) == 0 {
		return nil
	}
	var ops []ovsdb.Operation
	for _, build := range t.builders {
		built, err := build(ctx)
		if err != nil {
			return err
		}
		ops = append(ops, built...)
	}
	if len(ops) == 0 {
		return nil
	}
	if err := t.c.transactOps(ctx, ops); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *liveTxn) CreateLogicalSwitch(ls *nbdb.LogicalSwitch) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if ls.UUID == "" {
			ls.UUID = namedUUID("ls_", ls.Name)
		}
		return t.c.client.Create(ls)
	})
}

func (t *liveTxn) SetLogicalSwitchExternalIDs(name string, ids map[string]string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		ls, err := t.c.GetLogicalSwitch(ctx, name)
		if err != nil {
			return nil, err
		}
		ls.ExternalIDs = ids
		return t.c.client.Where(ls).Update(ls, &ls.ExternalIDs)
	})
}

func (t *liveTxn) DeleteLogicalSwitch(name string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		ls, err := t.c.GetLogicalSwitch(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return t.c.client.Where(ls).Delete()
	})
}

func (t *liveTxn) CreateLogicalSwitchPort(switchName string, lsp *nbdb.LogicalSwitchPort) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if lsp.UUID == "" {
			lsp.UUID = namedUUID("lsp_", lsp.Name)
		}
		createOps, err := t.c.client.Create(lsp)
		if err != nil {
			return nil, fmt.Errorf("create logical switch port ops: %w", err)
		}
		ls, err := t.c.GetLogicalSwitch(ctx, switchName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(ls).Mutate(ls, model.Mutation{
			Field:   &ls.Ports,
			Mutator: "insert",
			Value:   []string{lsp.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical switch ports ops: %w", err)
		}
		return append(createOps, mutateOps...), nil
	})
}

func (t *liveTxn) UpdateLogicalSwitchPort(lsp *nbdb.LogicalSwitchPort) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		existing, err := t.c.GetLogicalSwitchPort(ctx, lsp.Name)
		if err != nil {
			return nil, err
		}
		lsp.UUID = existing.UUID
		return t.c.client.Where(lsp).Update(lsp)
	})
}

func (t *liveTxn) DeleteLogicalSwitchPort(switchName, portName string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lsp, err := t.c.GetLogicalSwitchPort(ctx, portName)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		deleteOps, err := t.c.client.Where(lsp).Delete()
		if err != nil {
			return nil, fmt.Errorf("delete logical switch port ops: %w", err)
		}
		ls, err := t.c.GetLogicalSwitch(ctx, switchName)
		if errors.Is(err, ErrNotFound) {
			return deleteOps, nil
		}
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(ls).Mutate(ls, model.Mutation{
			Field:   &ls.Ports,
			Mutator: "delete",
			Value:   []string{lsp.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical switch ports ops: %w", err)
		}
		return append(mutateOps, deleteOps...), nil
	})
}

func (t *liveTxn) CreateLogicalRouter(lr *nbdb.LogicalRouter) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if lr.UUID == "" {
			lr.UUID = namedUUID("lr_", lr.Name)
		}
		return t.c.client.Create(lr)
	})
}

func (t *liveTxn) UpdateLogicalRouter(name string, enabled *bool, externalIDs map[string]string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lr, err := t.c.GetLogicalRouter(ctx, name)
		if err != nil {
			return nil, err
		}
		var fields []any
		if enabled != nil {
			lr.Enabled = enabled
			fields = append(fields, &lr.Enabled)
		}
		if externalIDs != nil {
			lr.ExternalIDs = externalIDs
			fields = append(fields, &lr.ExternalIDs)
		}
		if len(fields) == 0 {
			return nil, nil
		}
		return t.c.client.Where(lr).Update(lr, fields...)
	})
}

func (t *liveTxn) DeleteLogicalRouter(name string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lr, err := t.c.GetLogicalRouter(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return t.c.client.Where(lr).Delete()
	})
}

func (t *liveTxn) CreateLogicalRouterPort(routerName string, lrp *nbdb.LogicalRouterPort) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if lrp.UUID == "" {
			lrp.UUID = namedUUID("lrp_", lrp.Name)
		}
		createOps, err := t.c.client.Create(lrp)
		if err != nil {
			return nil, fmt.Errorf("create logical router port ops: %w", err)
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.Ports,
			Mutator: "insert",
			Value:   []string{lrp.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical router ports ops: %w", err)
		}
		return append(createOps, mutateOps...), nil
	})
}

func (t *liveTxn) UpdateLogicalRouterPortNetworks(name string, networks []string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lrp, err := t.c.GetLogicalRouterPort(ctx, name)
		if err != nil {
			return nil, err
		}
		lrp.Networks = networks
		return t.c.client.Where(lrp).Update(lrp, &lrp.Networks)
	})
}

func (t *liveTxn) DeleteLogicalRouterPort(routerName, portName string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lrp, err := t.c.GetLogicalRouterPort(ctx, portName)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		deleteOps, err := t.c.client.Where(lrp).Delete()
		if err != nil {
			return nil, fmt.Errorf("delete logical router port ops: %w", err)
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if errors.Is(err, ErrNotFound) {
			return deleteOps, nil
		}
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.Ports,
			Mutator: "delete",
			Value:   []string{lrp.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical router ports ops: %w", err)
		}
		return append(mutateOps, deleteOps...), nil
	})
}

func (t *liveTxn) ConnectRouterPort(portID, routerPortName string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lsp, err := t.c.GetLogicalSwitchPort(ctx, portID)
		if err != nil {
			return nil, err
		}
		lsp.Type = "router"
		lsp.Addresses = []string{"router"}
		if lsp.Options == nil {
			lsp.Options = map[string]string{}
		}
		lsp.Options["router-port"] = routerPortName
		return t.c.client.Where(lsp).Update(lsp, &lsp.Type, &lsp.Addresses, &lsp.Options)
	})
}

func (t *liveTxn) CreateDHCPOptions(opts *nbdb.DHCPOptions) string {
	if opts.UUID == "" {
		key := opts.ExternalIDs[SubnetIDExtIDKey]
		if portID := opts.ExternalIDs[PortIDExtIDKey]; portID != "" {
			key += "_" + portID
		}
		opts.UUID = namedUUID("dhcp_", key)
	}
	handle := opts.UUID
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		return t.c.client.Create(opts)
	})
	return handle
}

func (t *liveTxn) UpdateDHCPOptions(uuid string, opts *nbdb.DHCPOptions) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		opts.UUID = uuid
		return t.c.client.Where(opts).Update(opts, &opts.CIDR, &opts.Options, &opts.ExternalIDs)
	})
}

func (t *liveTxn) DeleteDHCPOptions(uuid string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		opts := &nbdb.DHCPOptions{UUID: uuid}
		return t.c.client.Where(opts).Delete()
	})
}

func (t *liveTxn) CreateAddressSet(as *nbdb.AddressSet) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if as.UUID == "" {
			as.UUID = namedUUID("as_", as.Name)
		}
		return t.c.client.Create(as)
	})
}

func (t *liveTxn) UpdateAddressSet(name string, add, remove []string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		as, err := t.c.GetAddressSet(ctx, name)
		if err != nil {
			return nil, err
		}
		var mutations []model.Mutation
		if len(add) > 0 {
			mutations = append(mutations, model.Mutation{
				Field: &as.Addresses, Mutator: "insert", Value: add,
			})
		}
		if len(remove) > 0 {
			mutations = append(mutations, model.Mutation{
				Field: &as.Addresses, Mutator: "delete", Value: remove,
			})
		}
		if len(mutations) == 0 {
			return nil, nil
		}
		return t.c.client.Where(as).Mutate(as, mutations...)
	})
}

func (t *liveTxn) SetAddressSetExternalIDs(name string, ids map[string]string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		as, err := t.c.GetAddressSet(ctx, name)
		if err != nil {
			return nil, err
		}
		as.ExternalIDs = ids
		return t.c.client.Where(as).Update(as, &as.ExternalIDs)
	})
}

func (t *liveTxn) DeleteAddressSet(name string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		as, err := t.c.GetAddressSet(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return t.c.client.Where(as).Delete()
	})
}

func (t *liveTxn) AddACL(switchName string, acl *nbdb.ACL) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if acl.UUID == "" {
			acl.UUID = namedUUID("acl_", switchName+"_"+acl.Direction+"_"+acl.Match)
		}
		createOps, err := t.c.client.Create(acl)
		if err != nil {
			return nil, fmt.Errorf("create ACL ops: %w", err)
		}
		ls, err := t.c.GetLogicalSwitch(ctx, switchName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(ls).Mutate(ls, model.Mutation{
			Field:   &ls.ACLs,
			Mutator: "insert",
			Value:   []string{acl.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical switch ACLs ops: %w", err)
		}
		return append(createOps, mutateOps...), nil
	})
}

func (t *liveTxn) DeleteACLsByExternalID(switchName, key, value string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		acls, err := t.c.ListACLs(ctx, switchName)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var ops []ovsdb.Operation
		var uuids []string
		for i := range acls {
			acl := &acls[i]
			if acl.ExternalIDs[key] != value {
				continue
			}
			deleteOps, err := t.c.client.Where(acl).Delete()
			if err != nil {
				return nil, fmt.Errorf("delete ACL ops: %w", err)
			}
			ops = append(ops, deleteOps...)
			uuids = append(uuids, acl.UUID)
		}
		if len(uuids) == 0 {
			return nil, nil
		}
		ls, err := t.c.GetLogicalSwitch(ctx, switchName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(ls).Mutate(ls, model.Mutation{
			Field:   &ls.ACLs,
			Mutator: "delete",
			Value:   uuids,
		})
		if err != nil {
			return nil, fmt.Errorf("mutate logical switch ACLs ops: %w", err)
		}
		return append(mutateOps, ops...), nil
	})
}

func (t *liveTxn) AddNAT(routerName string, nat *nbdb.NAT) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if nat.UUID == "" {
			nat.UUID = namedUUID("nat_", nat.Type+"_"+nat.LogicalIP+"_"+nat.ExternalIP)
		}
		createOps, err := t.c.client.Create(nat)
		if err != nil {
			return nil, fmt.Errorf("create NAT ops: %w", err)
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.NAT,
			Mutator: "insert",
			Value:   []string{nat.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate router NAT ops: %w", err)
		}
		return append(createOps, mutateOps...), nil
	})
}

func (t *liveTxn) SetNAT(uuid string, natType, logicalIP, externalIP string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		nat := &nbdb.NAT{
			UUID:       uuid,
			Type:       natType,
			LogicalIP:  logicalIP,
			ExternalIP: externalIP,
		}
		return t.c.client.Where(nat).Update(nat, &nat.Type, &nat.LogicalIP, &nat.ExternalIP)
	})
}

func (t *liveTxn) DeleteNAT(routerName, natType, logicalIP, externalIP string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		nats, err := t.c.ListNAT(ctx, routerName)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var ops []ovsdb.Operation
		var uuids []string
		for i := range nats {
			nat := &nats[i]
			if nat.Type != natType || nat.LogicalIP != logicalIP {
				continue
			}
			if externalIP != "" && nat.ExternalIP != externalIP {
				continue
			}
			deleteOps, err := t.c.client.Where(nat).Delete()
			if err != nil {
				return nil, fmt.Errorf("delete NAT ops: %w", err)
			}
			ops = append(ops, deleteOps...)
			uuids = append(uuids, nat.UUID)
		}
		if len(uuids) == 0 {
			return nil, nil
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.NAT,
			Mutator: "delete",
			Value:   uuids,
		})
		if err != nil {
			return nil, fmt.Errorf("mutate router NAT ops: %w", err)
		}
		return append(mutateOps, ops...), nil
	})
}

func (t *liveTxn) AddStaticRoute(routerName string, route *nbdb.LogicalRouterStaticRoute) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		if route.UUID == "" {
			route.UUID = namedUUID("route_", route.IPPrefix+"_"+route.Nexthop)
		}
		createOps, err := t.c.client.Create(route)
		if err != nil {
			return nil, fmt.Errorf("create static route ops: %w", err)
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.StaticRoutes,
			Mutator: "insert",
			Value:   []string{route.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate router static routes ops: %w", err)
		}
		return append(createOps, mutateOps...), nil
	})
}

func (t *liveTxn) DeleteStaticRoute(routerName, ipPrefix, nexthop string) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		routes, err := t.c.ListStaticRoutes(ctx, routerName)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var ops []ovsdb.Operation
		var uuids []string
		for i := range routes {
			route := &routes[i]
			if route.IPPrefix != ipPrefix {
				continue
			}
			if nexthop != "" && route.Nexthop != nexthop {
				continue
			}
			deleteOps, err := t.c.client.Where(route).Delete()
			if err != nil {
				return nil, fmt.Errorf("delete static route ops: %w", err)
			}
			ops = append(ops, deleteOps...)
			uuids = append(uuids, route.UUID)
		}
		if len(uuids) == 0 {
			return nil, nil
		}
		lr, err := t.c.GetLogicalRouter(ctx, routerName)
		if err != nil {
			return nil, err
		}
		mutateOps, err := t.c.client.Where(lr).Mutate(lr, model.Mutation{
			Field:   &lr.StaticRoutes,
			Mutator: "delete",
			Value:   uuids,
		})
		if err != nil {
			return nil, fmt.Errorf("mutate router static routes ops: %w", err)
		}
		return append(mutateOps, ops...), nil
	})
}

func (t *liveTxn) SetGatewayChassis(portName, chassisName string, priority int) {
	t.add(func(ctx context.Context) ([]ovsdb.Operation, error) {
		lrp, err := t.c.GetLogicalRouterPort(ctx, portName)
		if err != nil {
			return nil, err
		}
		var ops []ovsdb.Operation
		if len(lrp.GatewayChassis) > 0 {
			for _, uuid := range lrp.GatewayChassis {
				gc := &nbdb.GatewayChassis{UUID: uuid}
				deleteOps, err := t.c.client.Where(gc).Delete()
				if err != nil {
					return nil, fmt.Errorf("delete gateway chassis ops: %w", err)
				}
				ops = append(ops, deleteOps...)
			}
			mutateOps, err := t.c.client.Where(lrp).Mutate(lrp, model.Mutation{
				Field:   &lrp.GatewayChassis,
				Mutator: "delete",
				Value:   lrp.GatewayChassis,
			})
			if err != nil {
				return nil, fmt.Errorf("mutate gateway chassis ops: %w", err)
			}
			ops = append(ops, mutateOps...)
		}
		gc := &nbdb.GatewayChassis{
			UUID:        namedUUID("gwc_", portName+"_"+chassisName),
			Name:        portName + "_" + chassisName,
			ChassisName: chassisName,
			Priority:    priority,
		}
		createOps, err := t.c.client.Create(gc)
		if err != nil {
			return nil, fmt.Errorf("create gateway chassis ops: %w", err)
		}
		ops = append(ops, createOps...)
		mutateOps, err := t.c.client.Where(lrp).Mutate(lrp, model.Mutation{
			Field:   &lrp.GatewayChassis,
			Mutator: "insert",
			Value:   []string{gc.UUID},
		})
		if err != nil {
			return nil, fmt.Errorf("mutate gateway chassis ops: %w", err)
		}
		return append(ops, mutateOps...), nil
	})
}
