package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// ErrNotFound is returned when a referenced resource does not exist.
var ErrNotFound = errors.New("resource not found")

// PortFilter selects ports in List operations. Zero fields match everything.
type PortFilter struct {
	NetworkID   string
	DeviceOwner string
	DeviceID    string
	SubnetID    string
}

// SubnetFilter selects subnets in List operations.
type SubnetFilter struct {
	NetworkID string
	IPVersion int
}

// NetworkFilter selects networks in List operations.
type NetworkFilter struct {
	External *bool
}

// FloatingIPFilter selects floating IPs in List operations.
type FloatingIPFilter struct {
	PortID string
}

// Store provides read access to the cloud-network object model, plus the few
// write capabilities ovnd needs (metadata-port address allocation and the
// daemon's cache maintenance).
type Store interface {
	GetNetwork(ctx context.Context, id string) (*Network, error)
	GetSubnet(ctx context.Context, id string) (*Subnet, error)
	GetPort(ctx context.Context, id string) (*Port, error)
	GetRouter(ctx context.Context, id string) (*Router, error)
	GetSecurityGroup(ctx context.Context, id string) (*SecurityGroup, error)

	ListNetworks(ctx context.Context, f NetworkFilter) ([]*Network, error)
	ListSubnets(ctx context.Context, f SubnetFilter) ([]*Subnet, error)
	ListPorts(ctx context.Context, f PortFilter) ([]*Port, error)
	ListFloatingIPs(ctx context.Context, f FloatingIPFilter) ([]*FloatingIP, error)

	CreatePort(ctx context.Context, port *Port) error
	UpdatePort(ctx context.Context, port *Port) error

	UpsertNetwork(ctx context.Context, network *Network) error
	UpsertSubnet(ctx context.Context, subnet *Subnet) error
	UpsertRouter(ctx context.Context, router *Router) error
	UpsertSecurityGroup(ctx context.Context, sg *SecurityGroup) error
	UpsertFloatingIP(ctx context.Context, fip *FloatingIP) error
	DeleteResource(ctx context.Context, kind, id string) error
}

// MemStore is an in-memory Store. The daemon keeps it in sync from lifecycle
// events; tests seed it directly.
type MemStore struct {
	mu       sync.RWMutex
	networks map[string]*Network
	subnets  map[string]*Subnet
	ports    map[string]*Port
	routers  map[string]*Router
	secgrps  map[string]*SecurityGroup
	fips     map[string]*FloatingIP
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		networks: make(map[string]*Network),
		subnets:  make(map[string]*Subnet),
		ports:    make(map[string]*Port),
		routers:  make(map[string]*Router),
		secgrps:  make(map[string]*SecurityGroup),
		fips:     make(map[string]*FloatingIP),
	}
}

func (s *MemStore) GetNetwork(_ context.Context, id string) (*Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.networks[id]
	if !ok {
		return nil, fmt.Errorf("network %q: %w", id, ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (s *MemStore) GetSubnet(_ context.Context, id string) (*Subnet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.subnets[id]
	if !ok {
		return nil, fmt.Errorf("subnet %q: %w", id, ErrNotFound)
	}
	cp := *sn
	return &cp, nil
}

func (s *MemStore) GetPort(_ context.Context, id string) (*Port, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.ports[id]
	if !ok {
		return nil, fmt.Errorf("port %q: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) GetRouter(_ context.Context, id string) (*Router, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routers[id]
	if !ok {
		return nil, fmt.Errorf("router %q: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) GetSecurityGroup(_ context.Context, id string) (*SecurityGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.secgrps[id]
	if !ok {
		return nil, fmt.Errorf("security group %q: %w", id, ErrNotFound)
	}
	cp := *sg
	return &cp, nil
}

func (s *MemStore) ListNetworks(_ context.Context, f NetworkFilter) ([]*Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Network
	for _, n := range s.networks {
		if f.External != nil && n.External != *f.External {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemStore) ListSubnets(_ context.Context, f SubnetFilter) ([]*Subnet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Subnet
	for _, sn := range s.subnets {
		if f.NetworkID != "" && sn.NetworkID != f.NetworkID {
			continue
		}
		if f.IPVersion != 0 && sn.IPVersion != f.IPVersion {
			continue
		}
		cp := *sn
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemStore) ListPorts(_ context.Context, f PortFilter) ([]*Port, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Port
	for _, p := range s.ports {
		if f.NetworkID != "" && p.NetworkID != f.NetworkID {
			continue
		}
		if f.DeviceOwner != "" && p.DeviceOwner != f.DeviceOwner {
			continue
		}
		if f.DeviceID != "" && p.DeviceID != f.DeviceID {
			continue
		}
		if f.SubnetID != "" && !portOnSubnet(p, f.SubnetID) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemStore) ListFloatingIPs(_ context.Context, f FloatingIPFilter) ([]*FloatingIP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*FloatingIP
	for _, fip := range s.fips {
		if f.PortID != "" && fip.PortID != f.PortID {
			continue
		}
		cp := *fip
		result = append(result, &cp)
	}
	return result, nil
}

func portOnSubnet(p *Port, subnetID string) bool {
	for _, ip := range p.FixedIPs {
		if ip.SubnetID == subnetID {
			return true
		}
	}
	return false
}

func (s *MemStore) CreatePort(_ context.Context, port *Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ports[port.ID]; exists {
		return fmt.Errorf("port %q already exists", port.ID)
	}
	cp := *port
	if err := s.allocateAddresses(&cp); err != nil {
		return err
	}
	s.ports[port.ID] = &cp
	return nil
}

func (s *MemStore) UpdatePort(_ context.Context, port *Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ports[port.ID]; !exists {
		return fmt.Errorf("port %q: %w", port.ID, ErrNotFound)
	}
	cp := *port
	if err := s.allocateAddresses(&cp); err != nil {
		return err
	}
	s.ports[port.ID] = &cp
	return nil
}

// allocateAddresses assigns an address to every fixed IP that names a subnet
// but carries no address yet. Caller holds the write lock.
func (s *MemStore) allocateAddresses(port *Port) error {
	for i := range port.FixedIPs {
		fip := &port.FixedIPs[i]
		if fip.IPAddress != "" || fip.SubnetID == "" {
			continue
		}
		subnet, ok := s.subnets[fip.SubnetID]
		if !ok {
			return fmt.Errorf("subnet %q: %w", fip.SubnetID, ErrNotFound)
		}
		addr, err := s.nextFreeAddress(subnet, port)
		if err != nil {
			return err
		}
		fip.IPAddress = addr
	}
	return nil
}

func (s *MemStore) nextFreeAddress(subnet *Subnet, port *Port) (string, error) {
	prefix, err := netip.ParsePrefix(subnet.CIDR)
	if err != nil {
		return "", fmt.Errorf("subnet %q has invalid CIDR %q: %w", subnet.ID, subnet.CIDR, err)
	}

	used := map[string]bool{subnet.GatewayIP: true}
	for _, p := range s.ports {
		for _, ip := range p.FixedIPs {
			if ip.SubnetID == subnet.ID {
				used[ip.IPAddress] = true
			}
		}
	}
	for _, ip := range port.FixedIPs {
		used[ip.IPAddress] = true
	}

	// Skip the network address.
	for addr := prefix.Addr().Next(); prefix.Contains(addr); addr = addr.Next() {
		if !used[addr.String()] {
			return addr.String(), nil
		}
	}
	return "", fmt.Errorf("subnet %q exhausted", subnet.ID)
}

func (s *MemStore) UpsertNetwork(_ context.Context, network *Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *network
	s.networks[network.ID] = &cp
	return nil
}

func (s *MemStore) UpsertSubnet(_ context.Context, subnet *Subnet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *subnet
	s.subnets[subnet.ID] = &cp
	return nil
}

func (s *MemStore) UpsertRouter(_ context.Context, router *Router) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *router
	s.routers[router.ID] = &cp
	return nil
}

func (s *MemStore) UpsertSecurityGroup(_ context.Context, sg *SecurityGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sg
	s.secgrps[sg.ID] = &cp
	return nil
}

func (s *MemStore) UpsertFloatingIP(_ context.Context, fip *FloatingIP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fip
	s.fips[fip.ID] = &cp
	return nil
}

// DeleteResource removes a resource from the cache. Unknown ids are ignored
// so delete events can be replayed safely.
func (s *MemStore) DeleteResource(_ context.Context, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case "network":
		delete(s.networks, id)
	case "subnet":
		delete(s.subnets, id)
	case "port":
		delete(s.ports, id)
	case "router":
		delete(s.routers, id)
	case "security_group":
		delete(s.secgrps, id)
	case "floatingip":
		delete(s.fips, id)
	default:
		return fmt.Errorf("unknown resource kind %q", kind)
	}
	return nil
}
