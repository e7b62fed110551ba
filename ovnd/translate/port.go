package translate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/nbdb"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// Binding profile keys.
const (
	profileVTEPPhysicalSwitch = "vtep-physical-switch"
	profileVTEPLogicalSwitch  = "vtep-logical-switch"
	profileParentName         = "parent_name"
	profileTag                = "tag"
)

// DHCPOptionsRef points a port at its DHCP options row: an existing row by
// UUID, a fresh port-override row that must be created in the same
// transaction as the port write referencing it, or an in-place rewrite of
// the port's existing override row. Stale names an override row superseded
// by the reference, deleted in the same transaction.
type DHCPOptionsRef struct {
	UUID      string
	NewRow    *nbdb.DHCPOptions
	UpdateRow *nbdb.DHCPOptions
	Stale     string
}

// resolve enqueues the row writes if needed and returns the handle to link
// into the port.
func (r *DHCPOptionsRef) resolve(txn ovn.Txn) *string {
	if r == nil {
		return nil
	}
	if r.Stale != "" {
		txn.DeleteDHCPOptions(r.Stale)
	}
	if r.NewRow != nil {
		handle := txn.CreateDHCPOptions(r.NewRow)
		return &handle
	}
	if r.UpdateRow != nil {
		txn.UpdateDHCPOptions(r.UUID, r.UpdateRow)
	}
	uuid := r.UUID
	return &uuid
}

// PortInfo is the full bundle of OVN logical switch port attributes derived
// from a cloud port.
type PortInfo struct {
	Type         string
	Options      map[string]string
	Addresses    []string
	PortSecurity []string
	ParentName   *string
	Tag          *int
	DHCPv4       *DHCPOptionsRef
	DHCPv6       *DHCPOptionsRef
	CIDRs        string
}

// bindingProfile is the validated subset of a port's binding profile ovnd
// understands.
type bindingProfile struct {
	vtepPhysicalSwitch string
	vtepLogicalSwitch  string
	parentName         string
	tag                *int
}

// profileParamSets enumerates the mutually exclusive binding profile shapes.
// A profile must match exactly one set completely, with no extra keys.
var profileParamSets = [][]string{
	{profileParentName, profileTag},
	{profileVTEPPhysicalSwitch, profileVTEPLogicalSwitch},
}

func parseBindingProfile(port *cloud.Port) (*bindingProfile, error) {
	if len(port.BindingProfile) == 0 {
		return &bindingProfile{}, nil
	}

	var matched []string
	for _, paramSet := range profileParamSets {
		present := 0
		for _, key := range paramSet {
			if _, ok := port.BindingProfile[key]; ok {
				present++
			}
		}
		if present == 0 {
			continue
		}
		if present != len(paramSet) {
			return nil, fmt.Errorf("%w: binding profile requires all of %v", ErrInvalidInput, paramSet)
		}
		matched = paramSet
		break
	}
	if matched == nil {
		return &bindingProfile{}, nil
	}
	if len(port.BindingProfile) != len(matched) {
		return nil, fmt.Errorf("%w: binding profile has too many parameters", ErrInvalidInput)
	}

	prof := &bindingProfile{}
	for _, key := range matched {
		value := port.BindingProfile[key]
		switch key {
		case profileVTEPPhysicalSwitch, profileVTEPLogicalSwitch, profileParentName:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: binding profile %s must be a string", ErrInvalidInput, key)
			}
			switch key {
			case profileVTEPPhysicalSwitch:
				prof.vtepPhysicalSwitch = s
			case profileVTEPLogicalSwitch:
				prof.vtepLogicalSwitch = s
			case profileParentName:
				prof.parentName = s
			}
		case profileTag:
			tag, ok := profileTagValue(value)
			if !ok {
				return nil, fmt.Errorf("%w: binding profile tag must be an integer", ErrInvalidInput)
			}
			if tag < 0 || tag > 4095 {
				return nil, fmt.Errorf("%w: binding profile tag %d outside 0-4095", ErrInvalidInput, tag)
			}
			prof.tag = &tag
		}
	}
	return prof, nil
}

// profileTagValue accepts the numeric encodings a JSON round-trip can
// produce.
func profileTagValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// allowedAddresses computes the port security entries for a port. The port's
// own MAC and fixed IPs consolidate into one entry; allowed address pairs
// sharing the port MAC fold into that entry too, so a MAC never appears
// twice. The result is sorted so identical input always yields identical
// output regardless of pair order.
func allowedAddresses(port *cloud.Port) []string {
	if !port.PortSecurityEnabled || port.Trusted() {
		return nil
	}

	own := port.MACAddress
	for _, ip := range port.FixedIPs {
		own += " " + ip.IPAddress
	}

	entries := make(map[string]bool)
	for _, pair := range port.AllowedAddressPairs {
		if pair.MACAddress == port.MACAddress {
			own += " " + pair.IPAddress
		} else {
			entries[pair.MACAddress+" "+pair.IPAddress] = true
		}
	}
	entries[own] = true

	result := make([]string, 0, len(entries))
	for e := range entries {
		result = append(result, e)
	}
	sort.Strings(result)
	return result
}

// portTypeForOwner maps a device owner to the OVN logical switch port type.
// Router-owned ports become type "router" when connected to their logical
// router port; DHCP ports are local to each chassis.
func portTypeForOwner(owner string) string {
	switch owner {
	case cloud.DeviceOwnerRouterInterface, cloud.DeviceOwnerRouterGateway:
		return "router"
	case cloud.DeviceOwnerDHCP:
		return "localport"
	default:
		return ""
	}
}

// buildPortInfo computes the OVN attribute bundle for a port.
func (c *Client) buildPortInfo(ctx context.Context, lc *lookupCache, port *cloud.Port) (*PortInfo, error) {
	prof, err := parseBindingProfile(port)
	if err != nil {
		return nil, err
	}

	if prof.vtepPhysicalSwitch != "" {
		// A VTEP-bound port fronts an external hardware switch: no concrete
		// MAC or IP is known, so no port security or DHCP either.
		return &PortInfo{
			Type: "vtep",
			Options: map[string]string{
				profileVTEPPhysicalSwitch: prof.vtepPhysicalSwitch,
				profileVTEPLogicalSwitch:  prof.vtepLogicalSwitch,
			},
			Addresses: []string{"unknown"},
		}, nil
	}

	addresses := port.MACAddress
	var cidrs []string
	for _, ip := range port.FixedIPs {
		addresses += " " + ip.IPAddress
		subnet, err := lc.subnet(ctx, ip.SubnetID)
		if err != nil {
			return nil, err
		}
		prefixLen := strings.SplitN(subnet.CIDR, "/", 2)
		if len(prefixLen) == 2 {
			cidrs = append(cidrs, ip.IPAddress+"/"+prefixLen[1])
		}
	}

	info := &PortInfo{
		Type:         portTypeForOwner(port.DeviceOwner),
		Options:      map[string]string{},
		Addresses:    []string{addresses},
		PortSecurity: allowedAddresses(port),
		Tag:          prof.tag,
		CIDRs:        strings.Join(cidrs, " "),
	}
	if prof.parentName != "" {
		info.ParentName = &prof.parentName
	}

	info.DHCPv4, err = c.portDHCPOptions(ctx, lc, port, 4)
	if err != nil {
		return nil, err
	}
	info.DHCPv6, err = c.portDHCPOptions(ctx, lc, port, 6)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func portExternalIDs(port *cloud.Port, cidrs string) map[string]string {
	return map[string]string{
		ovn.PortNameExtIDKey:  port.Name,
		ovn.DeviceIDExtIDKey:  port.DeviceID,
		ovn.ProjectIDExtIDKey: port.ProjectID,
		ovn.CIDRsExtIDKey:     cidrs,
	}
}

// addressesByIPVersion splits a port's security-relevant addresses (fixed IPs
// plus allowed address pair IPs) into "ip4" and "ip6" buckets for address
// set updates.
func addressesByIPVersion(port *cloud.Port) map[string][]string {
	result := map[string][]string{}
	add := func(addr string) {
		ip := net.ParseIP(addr)
		if ip == nil {
			return
		}
		key := "ip6"
		if ip.To4() != nil {
			key = "ip4"
		}
		result[key] = append(result[key], addr)
	}
	for _, ip := range port.FixedIPs {
		add(ip.IPAddress)
	}
	for _, pair := range port.AllowedAddressPairs {
		add(pair.IPAddress)
	}
	return result
}

// CreatePort creates the logical switch port for a cloud port, any
// port-override DHCP rows, its ACLs and its address set memberships, all in
// one transaction. The owning switch may have been created by another
// control-plane instance and not yet replicated here, so its existence is
// polled first.
func (c *Client) CreatePort(ctx context.Context, port *cloud.Port) error {
	if port.IsFloatingIPPort() {
		// Floating IP ports can never be bound to a chassis; a logical
		// port for one would blackhole the floating address.
		return nil
	}
	lc := newLookupCache(c.store)
	info, err := c.buildPortInfo(ctx, lc, port)
	if err != nil {
		return err
	}

	switchName := SwitchName(port.NetworkID)
	if err := c.nb.WaitForLogicalSwitch(ctx, switchName); err != nil {
		return err
	}

	txn := c.nb.Txn()
	lsp := &nbdb.LogicalSwitchPort{
		// The port name must be the cloud port id: it matches the iface-id
		// the compute layer sets on the OVS interface.
		Name:          port.ID,
		Type:          info.Type,
		Addresses:     info.Addresses,
		PortSecurity:  info.PortSecurity,
		ParentName:    info.ParentName,
		Tag:           info.Tag,
		Enabled:       &port.AdminStateUp,
		Options:       info.Options,
		ExternalIDs:   portExternalIDs(port, info.CIDRs),
		DHCPv4Options: info.DHCPv4.resolve(txn),
		DHCPv6Options: info.DHCPv6.resolve(txn),
	}
	txn.CreateLogicalSwitchPort(switchName, lsp)

	acls, err := c.acl.PortACLs(ctx, lc.securityGroup, port)
	if err != nil {
		return err
	}
	for i := range acls {
		txn.AddACL(switchName, &acls[i])
	}

	sgIDs := port.SecurityGroupIDs(true)
	if len(port.FixedIPs) > 0 && len(sgIDs) > 0 {
		addresses := addressesByIPVersion(port)
		for _, sgID := range sgIDs {
			for ipVersion, addrs := range addresses {
				if len(addrs) > 0 {
					txn.UpdateAddressSet(AddressSetName(sgID, ipVersion), addrs, nil)
				}
			}
		}
	}

	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to create logical switch port", "port", port.ID, "switch", switchName, "error", err)
		return err
	}
	return nil
}

// UpdatePort reconciles the logical switch port after a cloud port update,
// diffing security group membership and fixed IPs against the prior state so
// only affected address sets are touched.
func (c *Client) UpdatePort(ctx context.Context, port, original *cloud.Port) error {
	if port.IsFloatingIPPort() {
		return nil
	}
	lc := newLookupCache(c.store)
	info, err := c.buildPortInfo(ctx, lc, port)
	if err != nil {
		return err
	}

	switchName := SwitchName(port.NetworkID)
	existing, err := c.nb.GetLogicalSwitchPort(ctx, port.ID)
	if err != nil {
		return err
	}

	txn := c.nb.Txn()
	lsp := &nbdb.LogicalSwitchPort{
		Name:          port.ID,
		Type:          existing.Type,
		Addresses:     existing.Addresses,
		PortSecurity:  info.PortSecurity,
		ParentName:    info.ParentName,
		Tag:           info.Tag,
		Enabled:       &port.AdminStateUp,
		Options:       existing.Options,
		ExternalIDs:   portExternalIDs(port, info.CIDRs),
		DHCPv4Options: info.DHCPv4.resolve(txn),
		DHCPv6Options: info.DHCPv6.resolve(txn),
	}
	if !port.IsRouterPort() {
		// Router ports keep the type and router-port option their logical
		// router port connection installed.
		lsp.Type = info.Type
		lsp.Addresses = info.Addresses
		lsp.Options = info.Options
	}
	txn.UpdateLogicalSwitchPort(lsp)

	oldSGs := stringSet(original.SecurityGroupIDs(true))
	newSGs := stringSet(port.SecurityGroupIDs(true))
	detached := setDiff(oldSGs, newSGs)
	attached := setDiff(newSGs, oldSGs)
	fixedIPsChanged := !fixedIPsEqual(original.FixedIPs, port.FixedIPs)

	if len(detached) > 0 || len(attached) > 0 || fixedIPsChanged {
		// Recompute the full ACL set rather than patching: a port create
		// racing a rule change must converge to the same state either way.
		txn.DeleteACLsByExternalID(switchName, ovn.PortIDExtIDKey, port.ID)
		acls, err := c.acl.PortACLs(ctx, lc.securityGroup, port)
		if err != nil {
			return err
		}
		for i := range acls {
			txn.AddACL(switchName, &acls[i])
		}
	}

	if len(port.FixedIPs) > 0 || len(original.FixedIPs) > 0 {
		addresses := addressesByIPVersion(port)
		addressesOld := addressesByIPVersion(original)

		for sgID := range attached {
			for ipVersion, addrs := range addresses {
				if len(addrs) > 0 {
					txn.UpdateAddressSet(AddressSetName(sgID, ipVersion), addrs, nil)
				}
			}
		}
		for sgID := range detached {
			for ipVersion, addrs := range addressesOld {
				if len(addrs) > 0 {
					txn.UpdateAddressSet(AddressSetName(sgID, ipVersion), nil, addrs)
				}
			}
		}

		if fixedIPsChanged {
			for sgID := range setIntersect(oldSGs, newSGs) {
				for _, ipVersion := range []string{"ip4", "ip6"} {
					add := sliceDiff(addresses[ipVersion], addressesOld[ipVersion])
					remove := sliceDiff(addressesOld[ipVersion], addresses[ipVersion])
					if len(add) > 0 || len(remove) > 0 {
						txn.UpdateAddressSet(AddressSetName(sgID, ipVersion), add, remove)
					}
				}
			}
		}
	}

	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to update logical switch port", "port", port.ID, "error", err)
		return err
	}
	return nil
}

// DeletePort removes the logical switch port, its ACLs, its port-override
// DHCP rows and its address set memberships. The trusted-port exemption does
// not apply here: cleanup is unconditional.
func (c *Client) DeletePort(ctx context.Context, port *cloud.Port) error {
	if port.IsFloatingIPPort() {
		return nil
	}
	switchName := SwitchName(port.NetworkID)
	txn := c.nb.Txn()
	txn.DeleteLogicalSwitchPort(switchName, port.ID)
	txn.DeleteACLsByExternalID(switchName, ovn.PortIDExtIDKey, port.ID)

	// Floating IPs still pointing at the port are disassociated in the same
	// transaction so no dnat_and_snat rule outlives its target.
	fips, err := c.store.ListFloatingIPs(ctx, cloud.FloatingIPFilter{PortID: port.ID})
	if err != nil {
		return err
	}
	for _, fip := range fips {
		if fip.RouterID == "" {
			continue
		}
		txn.DeleteNAT(RouterName(fip.RouterID), "dnat_and_snat", fip.FixedIPAddress, fip.FloatingIPAddress)
	}

	seen := map[string]bool{}
	for _, ip := range port.FixedIPs {
		if seen[ip.SubnetID] {
			continue
		}
		seen[ip.SubnetID] = true
		rows, err := c.nb.SubnetAndPortDHCPOptions(ctx, ip.SubnetID)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.ExternalIDs[ovn.PortIDExtIDKey] == port.ID {
				txn.DeleteDHCPOptions(row.UUID)
			}
		}
	}

	if len(port.FixedIPs) > 0 {
		addresses := addressesByIPVersion(port)
		for _, sgID := range port.SecurityGroupIDs(false) {
			for ipVersion, addrs := range addresses {
				if len(addrs) > 0 {
					txn.UpdateAddressSet(AddressSetName(sgID, ipVersion), nil, addrs)
				}
			}
		}
	}

	if err := txn.Commit(ctx); err != nil {
		slog.Error("Failed to delete logical switch port", "port", port.ID, "error", err)
		return err
	}
	return nil
}

func stringSet(s []string) map[string]bool {
	out := make(map[string]bool, len(s))
	for _, v := range s {
		out[v] = true
	}
	return out
}

func setDiff(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if !b[k] {
			out[k] = true
		}
	}
	return out
}

func setIntersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func sliceDiff(a, b []string) []string {
	present := stringSet(b)
	var out []string
	for _, v := range a {
		if !present[v] {
			out = append(out, v)
		}
	}
	return out
}

func fixedIPsEqual(a, b []cloud.FixedIP) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(ips []cloud.FixedIP) map[string]bool {
		m := make(map[string]bool, len(ips))
		for _, ip := range ips {
			m[ip.SubnetID+"|"+ip.IPAddress] = true
		}
		return m
	}
	am, bm := key(a), key(b)
	for k := range am {
		if !bm[k] {
			return false
		}
	}
	return true
}
