// Package classify derives each event endpoint's network position (inside,
// outside, remote, or unknown) from per-device zone/interface classification
// rules, and tracks exposure for names that have no rule yet (spec section
// 4.4).
package classify

import (
	"fmt"

	"netwallfa/internal/model"
)

// Precedence picks which axis, zone or interface, is tried first when both
// are present on an event endpoint.
type Precedence string

const (
	PrecedenceZoneFirst      Precedence = "zone_first"
	PrecedenceInterfaceFirst Precedence = "interface_first"
)

// Lookup is the persistence seam classify needs: resolve a classification
// rule, and record exposure for a name that didn't resolve. Implemented by
// internal/store.
type Lookup interface {
	ClassificationSide(device string, kind model.ClassificationKind, name string) (model.Side, bool)
	RecordUnclassified(device string, kind model.ClassificationKind, name string)
}

type kindName struct {
	kind model.ClassificationKind
	name string
}

func orderedKinds(zone, iface string, precedence Precedence) []kindName {
	if precedence == PrecedenceInterfaceFirst {
		return []kindName{{model.KindInterface, iface}, {model.KindZone, zone}}
	}
	return []kindName{{model.KindZone, zone}, {model.KindInterface, iface}}
}

// DeriveSide resolves one endpoint's side, trying zone then interface (or the
// reverse, per precedence), recording every candidate as unclassified when
// none resolves.
func DeriveSide(lookup Lookup, device, zone, iface string, precedence Precedence) model.Side {
	kinds := orderedKinds(zone, iface, precedence)

	for _, kn := range kinds {
		if kn.name == "" {
			continue
		}
		if side, ok := lookup.ClassificationSide(device, kn.kind, kn.name); ok && side != model.SideUnknown {
			return side
		}
	}

	for _, kn := range kinds {
		if kn.name == "" {
			continue
		}
		lookup.RecordUnclassified(device, kn.kind, kn.name)
	}
	return model.SideUnknown
}

// ApplyDirection populates RecvSide, DestSide, and DirectionBucket on ev.
func ApplyDirection(lookup Lookup, ev *model.Event, precedence Precedence) {
	recvSide := DeriveSide(lookup, ev.Device, ev.RecvZone, ev.RecvIf, precedence)
	destSide := DeriveSide(lookup, ev.Device, ev.DestZone, ev.DestIf, precedence)

	ev.RecvSide = string(recvSide)
	ev.DestSide = string(destSide)

	if recvSide != model.SideUnknown && destSide != model.SideUnknown {
		ev.DirectionBucket = fmt.Sprintf("%s_to_%s", recvSide, destSide)
	} else {
		ev.DirectionBucket = "unknown"
	}
}
