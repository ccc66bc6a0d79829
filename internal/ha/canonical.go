// Package ha implements the pure device-name canonicalization that collapses
// paired HA devices into one logical firewall_key (spec section 4.1).
package ha

import "strings"

const (
	masterSuffix = "_Master"
	slaveSuffix  = "_Slave"
)

// Result is the outcome of canonicalizing one raw device name.
type Result struct {
	FirewallKey string
	Member      string // raw device name, set only when HA collapsing applied
}

// Canonical returns the (firewall_key, member) pair for a raw device name,
// collapsing "<base>_Master"/"<base>_Slave" into "ha:<base>".
func Canonical(deviceRaw string) Result {
	d := strings.TrimSpace(deviceRaw)
	if d == "" {
		return Result{}
	}
	if base, ok := trimSuffix(d, masterSuffix); ok {
		return haResult(d, base)
	}
	if base, ok := trimSuffix(d, slaveSuffix); ok {
		return haResult(d, base)
	}
	return Result{FirewallKey: d}
}

func haResult(raw, base string) Result {
	base = strings.TrimSpace(base)
	if base == "" {
		return Result{FirewallKey: raw}
	}
	return Result{FirewallKey: "ha:" + base, Member: raw}
}

func trimSuffix(s, suffix string) (string, bool) {
	if strings.HasSuffix(s, suffix) {
		return strings.TrimSuffix(s, suffix), true
	}
	return "", false
}

// CanonicalForSyslog is the variant used on the live UDP ingest path: HA
// collapsing applies, because paired devices both emit syslog under their own
// member name.
func CanonicalForSyslog(deviceRaw string) string {
	return Canonical(deviceRaw).FirewallKey
}

// CanonicalForImport is the variant used on the file-import path: HA
// collapsing never applies, because an import firewall is always a
// single-node export (spec section 4.1).
func CanonicalForImport(deviceRaw string) string {
	return strings.TrimSpace(deviceRaw)
}

// ExpandMembers expands a firewall_key back into the raw device names it was
// built from. A canonical "ha:<base>" key expands to its two conventional
// member names; a plain device key expands to itself. Used by retention
// (spec section 4.9 step 2) and purge (spec section 4.10) to resolve a
// firewall_key into the raw "device" values recorded on events/raw_logs.
func ExpandMembers(firewallKey string) []string {
	if strings.HasPrefix(firewallKey, "ha:") {
		base := strings.TrimPrefix(firewallKey, "ha:")
		return []string{base + masterSuffix, base + slaveSuffix}
	}
	return []string{firewallKey}
}
