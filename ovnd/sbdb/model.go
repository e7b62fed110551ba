// Package sbdb contains Go structs for the OVN Southbound Database tables
// ovnd reads for gateway scheduling. Only the Chassis table is needed: its
// external_ids carry the bridge mappings (advertised physical networks) and
// the CMS options marking a chassis as gateway-capable.
package sbdb

import (
	"strings"

	"github.com/ovn-kubernetes/libovsdb/model"
)

// Chassis represents an OVN SB Chassis row (a hosting node).
type Chassis struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Hostname    string            `ovsdb:"hostname"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
	OtherConfig map[string]string `ovsdb:"other_config"`
}

const (
	// BridgeMappingsKey holds "physnet:bridge[,physnet:bridge...]".
	BridgeMappingsKey = "ovn-bridge-mappings"
	// CMSOptionsKey holds comma-separated CMS options.
	CMSOptionsKey = "ovn-cms-options"
	// GatewayCapableOption marks a chassis as able to host gateway routers.
	GatewayCapableOption = "enable-chassis-as-gw"
)

// Physnets returns the physical networks this chassis advertises through its
// bridge mappings.
func (c *Chassis) Physnets() []string {
	mappings := c.ExternalIDs[BridgeMappingsKey]
	if mappings == "" {
		return nil
	}
	var physnets []string
	for _, m := range strings.Split(mappings, ",") {
		if name, _, ok := strings.Cut(strings.TrimSpace(m), ":"); ok && name != "" {
			physnets = append(physnets, name)
		}
	}
	return physnets
}

// GatewayCapable reports whether the chassis advertises the
// enable-chassis-as-gw CMS option.
func (c *Chassis) GatewayCapable() bool {
	for _, opt := range strings.Split(c.ExternalIDs[CMSOptionsKey], ",") {
		if strings.TrimSpace(opt) == GatewayCapableOption {
			return true
		}
	}
	return false
}

// FullDatabaseModel returns a ClientDBModel for the OVN Southbound database
// covering the tables ovnd reads.
func FullDatabaseModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel("OVN_Southbound", map[string]model.Model{
		"Chassis": &Chassis{},
	})
}
