// Package flowagg derives the flow identities a single CONN_OPEN event
// touches and the rule/application counters to merge into each one (spec
// section 4.5). Only "open" events feed flows; any other event yields no
// updates.
package flowagg

import (
	"time"

	"netwallfa/internal/model"
)

// EndpointResolver resolves (or creates) the Endpoint row for a
// (firewall_key, ip, mac) triple, returning its id. Implemented by
// internal/store. Returns ok=false when ip is empty — flowagg skips any
// basis/view pairing that can't resolve both endpoints, exactly as the
// original implementation does.
type EndpointResolver interface {
	ResolveEndpoint(firewallKey, ip, mac, deviceName string) (id int64, ok bool)
}

// Update is one (flow identity, touch) pair to merge into the Flow table.
type Update struct {
	Identity model.FlowIdentity
	EventTS  time.Time
	Rule     string
	AppName  string
}

type basis struct {
	kind model.FlowBasis
	from string
	to   string
}

// DeriveUpdates returns up to 6 Updates for ev: 3 bases (side, zone,
// interface) x 2 views (original, translated). A basis/view pairing is
// omitted when either endpoint can't be resolved (no IP) or either basis
// value is empty, mirroring the original's early-return guard.
func DeriveUpdates(resolver EndpointResolver, ev *model.Event) []Update {
	if !ev.EventType.IsOpen() {
		return nil
	}

	srcOrigID, srcOrigOK := resolver.ResolveEndpoint(ev.FirewallKey, ev.SrcIP, ev.SrcMAC, ev.SrcDevice)
	dstOrigID, dstOrigOK := resolver.ResolveEndpoint(ev.FirewallKey, ev.DestIP, ev.DestMAC, ev.DestDevice)

	srcNatIP := firstNonEmpty(ev.XlatSrcIP, ev.SrcIP)
	dstNatIP := firstNonEmpty(ev.XlatDestIP, ev.DestIP)
	srcNatID, srcNatOK := resolver.ResolveEndpoint(ev.FirewallKey, srcNatIP, ev.SrcMAC, ev.SrcDevice)
	dstNatID, dstNatOK := resolver.ResolveEndpoint(ev.FirewallKey, dstNatIP, ev.DestMAC, ev.DestDevice)

	bases := []basis{
		{model.BasisSide, ev.RecvSide, ev.DestSide},
		{model.BasisZone, ev.RecvZone, ev.DestZone},
		{model.BasisInterface, ev.RecvIf, ev.DestIf},
	}

	type viewPair struct {
		kind        model.ViewKind
		srcID       int64
		dstID       int64
		srcResolved bool
		dstResolved bool
	}
	views := []viewPair{
		{model.ViewOriginal, srcOrigID, dstOrigID, srcOrigOK, dstOrigOK},
		{model.ViewTranslated, srcNatID, dstNatID, srcNatOK, dstNatOK},
	}

	var updates []Update
	for _, v := range views {
		if !v.srcResolved || !v.dstResolved {
			continue
		}
		for _, b := range bases {
			if b.from == "" || b.to == "" {
				continue
			}
			updates = append(updates, Update{
				Identity: model.FlowIdentity{
					FirewallKey:   ev.FirewallKey,
					Basis:         b.kind,
					FromValue:     b.from,
					ToValue:       b.to,
					Proto:         ev.Proto,
					DestPort:      ev.DestPort,
					SrcEndpointID: v.srcID,
					DstEndpointID: v.dstID,
					ViewKind:      v.kind,
				},
				EventTS: ev.TsUTC,
				Rule:    ev.Rule,
				AppName: ev.AppName,
			})
		}
	}
	return updates
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// TopCap bounds the distinct keys kept in a Flow's TopRules/TopApps map. The
// spec calls unbounded growth of these maps pathological and names a
// top-N/LFU cap as the sensible mitigation.
const TopCap = 32

// ApplyTopCount increments counts[key] (creating counts if nil) and, if this
// insertion would grow the map past TopCap distinct keys, evicts the single
// least-frequently-used entry first. Ties are broken by map iteration order,
// which is acceptable since eviction only matters for rarely-seen keys.
func ApplyTopCount(counts map[string]int64, key string) map[string]int64 {
	if counts == nil {
		counts = map[string]int64{}
	}
	if _, exists := counts[key]; !exists && len(counts) >= TopCap {
		evictLFU(counts)
	}
	counts[key]++
	return counts
}

func evictLFU(counts map[string]int64) {
	var lfuKey string
	var lfuCount int64 = -1
	for k, v := range counts {
		if lfuCount == -1 || v < lfuCount {
			lfuKey, lfuCount = k, v
		}
	}
	if lfuKey != "" {
		delete(counts, lfuKey)
	}
}
