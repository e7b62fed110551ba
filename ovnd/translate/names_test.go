package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwitchAndRouterNames(t *testing.T) {
	assert.Equal(t, "neutron-net-1", SwitchName("net-1"))
	assert.Equal(t, "neutron-rtr-1", RouterName("rtr-1"))
	assert.Equal(t, "lrp-port-1", RouterPortName("port-1"))
	assert.Equal(t, "provnet-net-1", ProvnetPortName("net-1"))
}

func TestNameRoundTrip(t *testing.T) {
	id := "a1b2c3d4-0000-1111-2222-333344445555"
	assert.Equal(t, id, CloudIDFromName(SwitchName(id)))
	assert.Equal(t, id, PortIDFromRouterPortName(RouterPortName(id)))
}

func TestAddressSetName(t *testing.T) {
	// OVN address set names cannot contain '-'.
	got := AddressSetName("a1b2-c3d4", "ip4")
	assert.Equal(t, "as_ip4_a1b2_c3d4", got)
	assert.NotContains(t, got, "-")

	// Distinct groups and versions never collide.
	assert.NotEqual(t, AddressSetName("sg1", "ip4"), AddressSetName("sg1", "ip6"))
	assert.NotEqual(t, AddressSetName("sg1", "ip4"), AddressSetName("sg2", "ip4"))
}
