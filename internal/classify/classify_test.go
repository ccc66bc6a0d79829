package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"netwallfa/internal/model"
)

type fakeLookup struct {
	rules        map[string]model.Side
	unclassified []kindName
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{rules: map[string]model.Side{}}
}

func (f *fakeLookup) key(device string, kind model.ClassificationKind, name string) string {
	return device + "|" + string(kind) + "|" + name
}

func (f *fakeLookup) set(device string, kind model.ClassificationKind, name string, side model.Side) {
	f.rules[f.key(device, kind, name)] = side
}

func (f *fakeLookup) ClassificationSide(device string, kind model.ClassificationKind, name string) (model.Side, bool) {
	side, ok := f.rules[f.key(device, kind, name)]
	return side, ok
}

func (f *fakeLookup) RecordUnclassified(device string, kind model.ClassificationKind, name string) {
	f.unclassified = append(f.unclassified, kindName{kind: kind, name: name})
}

func TestDeriveSide_ZoneFirstPrecedence(t *testing.T) {
	l := newFakeLookup()
	l.set("fw1", model.KindZone, "trust", model.SideInside)
	l.set("fw1", model.KindInterface, "eth0", model.SideOutside)

	side := DeriveSide(l, "fw1", "trust", "eth0", PrecedenceZoneFirst)
	assert.Equal(t, model.SideInside, side)
}

func TestDeriveSide_FallsBackToInterfaceWhenZoneUnresolved(t *testing.T) {
	l := newFakeLookup()
	l.set("fw1", model.KindInterface, "eth0", model.SideOutside)

	side := DeriveSide(l, "fw1", "dmz", "eth0", PrecedenceZoneFirst)
	assert.Equal(t, model.SideOutside, side)
}

func TestDeriveSide_InterfaceFirstPrecedence(t *testing.T) {
	l := newFakeLookup()
	l.set("fw1", model.KindZone, "trust", model.SideInside)
	l.set("fw1", model.KindInterface, "eth0", model.SideOutside)

	side := DeriveSide(l, "fw1", "trust", "eth0", PrecedenceInterfaceFirst)
	assert.Equal(t, model.SideOutside, side)
}

func TestDeriveSide_UnknownRecordsBothCandidates(t *testing.T) {
	l := newFakeLookup()
	side := DeriveSide(l, "fw1", "dmz", "eth0", PrecedenceZoneFirst)
	assert.Equal(t, model.SideUnknown, side)
	assert.Len(t, l.unclassified, 2)
}

func TestDeriveSide_SkipsEmptyNames(t *testing.T) {
	l := newFakeLookup()
	side := DeriveSide(l, "fw1", "", "", PrecedenceZoneFirst)
	assert.Equal(t, model.SideUnknown, side)
	assert.Empty(t, l.unclassified)
}

func TestApplyDirection_BucketsBothSidesKnown(t *testing.T) {
	l := newFakeLookup()
	l.set("fw1", model.KindZone, "trust", model.SideInside)
	l.set("fw1", model.KindZone, "untrust", model.SideOutside)

	ev := &model.Event{Device: "fw1", RecvZone: "trust", DestZone: "untrust"}
	ApplyDirection(l, ev, PrecedenceZoneFirst)

	assert.Equal(t, "inside", ev.RecvSide)
	assert.Equal(t, "outside", ev.DestSide)
	assert.Equal(t, "inside_to_outside", ev.DirectionBucket)
}

func TestApplyDirection_UnknownBucketWhenEitherSideUnresolved(t *testing.T) {
	l := newFakeLookup()
	l.set("fw1", model.KindZone, "trust", model.SideInside)

	ev := &model.Event{Device: "fw1", RecvZone: "trust", DestZone: "dmz"}
	ApplyDirection(l, ev, PrecedenceZoneFirst)

	assert.Equal(t, "unknown", ev.DirectionBucket)
}
