package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

// testEnv wires a translation client against in-memory OVN and store
// backends.
type testEnv struct {
	nb    *ovn.MockNBClient
	sb    *ovn.MockSBClient
	store *cloud.MemStore
	c     *Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		nb:    ovn.NewMockNBClient(),
		sb:    ovn.NewMockSBClient(),
		store: cloud.NewMemStore(),
	}
	env.c = NewClient(env.nb, env.sb, env.store, nil, nil, Config{})
	return env
}

// seedNetwork registers a network in the store and creates its logical
// switch.
func (env *testEnv) seedNetwork(t *testing.T, network *cloud.Network) {
	t.Helper()
	ctx := context.Background()
	if network.MTU == 0 {
		network.MTU = 1442
	}
	require.NoError(t, env.store.UpsertNetwork(ctx, network))
	require.NoError(t, env.c.CreateNetwork(ctx, network))
}

// seedSubnet registers a subnet and installs its DHCP options.
func (env *testEnv) seedSubnet(t *testing.T, subnet *cloud.Subnet) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.UpsertSubnet(ctx, subnet))
	network, err := env.store.GetNetwork(ctx, subnet.NetworkID)
	require.NoError(t, err)
	require.NoError(t, env.c.CreateSubnet(ctx, subnet, network))
}

// seedPort registers a port and creates its logical switch port.
func (env *testEnv) seedPort(t *testing.T, port *cloud.Port) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.CreatePort(ctx, port))
	require.NoError(t, env.c.CreatePort(ctx, port))
}

// seedRouter registers a router and creates its logical router.
func (env *testEnv) seedRouter(t *testing.T, router *cloud.Router) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.store.UpsertRouter(ctx, router))
	require.NoError(t, env.c.CreateRouter(ctx, router))
}

func (env *testEnv) addressSet(t *testing.T, sgID, ipVersion string) []string {
	t.Helper()
	as, err := env.nb.GetAddressSet(context.Background(), AddressSetName(sgID, ipVersion))
	require.NoError(t, err)
	return as.Addresses
}
