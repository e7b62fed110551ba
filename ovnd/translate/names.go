package translate

import "strings"

// SwitchName returns the logical switch or router name for a cloud resource.
// The OVN tooling treats bare UUIDs specially, so the id is prefixed; the
// prefix also lets us recover the cloud id from the OVN name later.
func SwitchName(id string) string {
	return "neutron-" + id
}

// RouterName returns the logical router name for a cloud router id.
func RouterName(id string) string {
	return SwitchName(id)
}

// RouterPortName returns the logical router port name for a cloud port id.
// The lrp- prefix distinguishes it from the paired switch port, which keeps
// the cloud port id as its name, so OVS patch ports pair up properly.
func RouterPortName(id string) string {
	return "lrp-" + id
}

// ProvnetPortName returns the localnet port name bridging a logical switch
// to its bound physical network.
func ProvnetPortName(networkID string) string {
	return "provnet-" + networkID
}

// AddressSetName returns the address set name for a security group and IP
// version ("ip4" or "ip6"). OVN forbids '-' in address set names, so every
// '-' becomes '_'.
func AddressSetName(sgID, ipVersion string) string {
	return strings.ReplaceAll("as-"+ipVersion+"-"+sgID, "-", "_")
}

// CloudIDFromName strips the neutron- prefix off an OVN switch or router
// name, returning the owning cloud resource id.
func CloudIDFromName(name string) string {
	return strings.TrimPrefix(name, "neutron-")
}

// PortIDFromRouterPortName strips the lrp- prefix off a logical router port
// name.
func PortIDFromRouterPortName(name string) string {
	return strings.TrimPrefix(name, "lrp-")
}
