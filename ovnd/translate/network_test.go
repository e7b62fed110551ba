package translate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mulgadc/ovnd/ovnd/cloud"
	"github.com/mulgadc/ovnd/ovnd/ovn"
)

func TestCreateNetwork(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1", Name: "tenant"})

	ls, err := env.nb.GetLogicalSwitch(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	assert.Equal(t, "tenant", ls.ExternalIDs[ovn.NetworkNameExtIDKey])

	_, err = env.nb.GetLogicalSwitchPort(ctx, ProvnetPortName("net-1"))
	assert.ErrorIs(t, err, ovn.ErrNotFound)
}

func TestCreateNetwork_VLANProviderPort(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{
		ID: "net-1", NetworkType: cloud.NetworkTypeVLAN,
		PhysicalNetwork: "physnet1", SegmentationID: 42,
	})

	lsp, err := env.nb.GetLogicalSwitchPort(ctx, ProvnetPortName("net-1"))
	require.NoError(t, err)
	assert.Equal(t, "localnet", lsp.Type)
	assert.Equal(t, []string{"unknown"}, lsp.Addresses)
	assert.Equal(t, "physnet1", lsp.Options["network_name"])
	require.NotNil(t, lsp.Tag)
	assert.Equal(t, 42, *lsp.Tag)
}

func TestCreateNetwork_FlatProviderPortHasNoTag(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{
		ID: "net-1", NetworkType: cloud.NetworkTypeFlat, PhysicalNetwork: "physnet1",
	})

	lsp, err := env.nb.GetLogicalSwitchPort(ctx, ProvnetPortName("net-1"))
	require.NoError(t, err)
	assert.Nil(t, lsp.Tag)
}

func TestUpdateNetwork_Rename(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	original := &cloud.Network{ID: "net-1", Name: "old"}
	env.seedNetwork(t, original)

	updated := *original
	updated.Name = "new"
	require.NoError(t, env.c.UpdateNetwork(ctx, &updated, original))

	ls, err := env.nb.GetLogicalSwitch(ctx, SwitchName("net-1"))
	require.NoError(t, err)
	assert.Equal(t, "new", ls.ExternalIDs[ovn.NetworkNameExtIDKey])

	// Same name again writes nothing.
	env.nb.ResetCounters()
	require.NoError(t, env.c.UpdateNetwork(ctx, &updated, &updated))
	assert.Zero(t, env.nb.CommitCount)
}

func TestDeleteNetwork(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seedNetwork(t, &cloud.Network{ID: "net-1"})
	env.seedSubnet(t, &cloud.Subnet{
		ID: "sub-1", NetworkID: "net-1", CIDR: "10.0.0.0/24",
		IPVersion: 4, EnableDHCP: true, GatewayIP: "10.0.0.1",
	})
	env.seedPort(t, &cloud.Port{
		ID: "port-1", NetworkID: "net-1",
		MACAddress: "fa:16:3e:aa:bb:cc", AdminStateUp: true,
		FixedIPs: []cloud.FixedIP{{SubnetID: "sub-1", IPAddress: "10.0.0.5"}},
	})

	require.NoError(t, env.c.DeleteNetwork(ctx, "net-1"))

	_, err := env.nb.GetLogicalSwitch(ctx, SwitchName("net-1"))
	assert.ErrorIs(t, err, ovn.ErrNotFound)
	// The switch took its ports with it.
	_, err = env.nb.GetLogicalSwitchPort(ctx, "port-1")
	assert.ErrorIs(t, err, ovn.ErrNotFound)
}
