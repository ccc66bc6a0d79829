package flowagg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/model"
)

type fakeResolver struct {
	nextID int64
	ids    map[string]int64
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{ids: map[string]int64{}}
}

func (f *fakeResolver) ResolveEndpoint(firewallKey, ip, mac, deviceName string) (int64, bool) {
	if ip == "" {
		return 0, false
	}
	key := firewallKey + "|" + ip + "|" + mac
	if id, ok := f.ids[key]; ok {
		return id, true
	}
	f.nextID++
	f.ids[key] = f.nextID
	return f.nextID, true
}

func baseOpenEvent() *model.Event {
	return &model.Event{
		FirewallKey: "fw1",
		EventType:   model.EventConnOpen,
		TsUTC:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Rule:        "allow-web",
		AppName:     "https",
		Proto:       "tcp",
		DestPort:    443,
		SrcIP:       "10.0.0.5",
		DestIP:      "8.8.8.8",
		RecvSide:    "inside",
		DestSide:    "outside",
		RecvZone:    "trust",
		DestZone:    "untrust",
		RecvIf:      "eth0",
		DestIf:      "eth1",
	}
}

func TestDeriveUpdates_SixRowsWhenAllBasesAndViewsResolve(t *testing.T) {
	r := newFakeResolver()
	ev := baseOpenEvent()
	updates := DeriveUpdates(r, ev)
	require.Len(t, updates, 6)

	bySet := map[model.FlowBasis]int{}
	byView := map[model.ViewKind]int{}
	for _, u := range updates {
		bySet[u.Identity.Basis]++
		byView[u.Identity.ViewKind]++
	}
	assert.Equal(t, 2, bySet[model.BasisSide])
	assert.Equal(t, 2, bySet[model.BasisZone])
	assert.Equal(t, 2, bySet[model.BasisInterface])
	assert.Equal(t, 3, byView[model.ViewOriginal])
	assert.Equal(t, 3, byView[model.ViewTranslated])
}

func TestDeriveUpdates_NonOpenEventYieldsNothing(t *testing.T) {
	r := newFakeResolver()
	ev := baseOpenEvent()
	ev.EventType = model.EventConnClose
	assert.Empty(t, DeriveUpdates(r, ev))
}

func TestDeriveUpdates_MissingDestIPSkipsThatEndpoint(t *testing.T) {
	r := newFakeResolver()
	ev := baseOpenEvent()
	ev.DestIP = ""
	assert.Empty(t, DeriveUpdates(r, ev))
}

func TestDeriveUpdates_MissingBasisValueSkipsOnlyThatBasis(t *testing.T) {
	r := newFakeResolver()
	ev := baseOpenEvent()
	ev.RecvZone = ""
	updates := DeriveUpdates(r, ev)
	for _, u := range updates {
		assert.NotEqual(t, model.BasisZone, u.Identity.Basis)
	}
	assert.Len(t, updates, 4)
}

func TestDeriveUpdates_TranslatedViewPrefersNATAddress(t *testing.T) {
	r := newFakeResolver()
	ev := baseOpenEvent()
	ev.XlatSrcIP = "192.168.1.1"
	ev.XlatDestIP = "203.0.113.9"
	updates := DeriveUpdates(r, ev)

	origSrcID, _ := r.ResolveEndpoint("fw1", "10.0.0.5", "", "")
	natSrcID, _ := r.ResolveEndpoint("fw1", "192.168.1.1", "", "")
	assert.NotEqual(t, origSrcID, natSrcID)

	var sawTranslated bool
	for _, u := range updates {
		if u.Identity.ViewKind == model.ViewTranslated {
			sawTranslated = true
			assert.Equal(t, natSrcID, u.Identity.SrcEndpointID)
		}
	}
	assert.True(t, sawTranslated)
}

func TestApplyTopCount_IncrementsExistingKey(t *testing.T) {
	counts := map[string]int64{"allow-web": 3}
	counts = ApplyTopCount(counts, "allow-web")
	assert.EqualValues(t, 4, counts["allow-web"])
}

func TestApplyTopCount_EvictsLeastFrequentWhenOverCap(t *testing.T) {
	counts := map[string]int64{}
	for i := 0; i < TopCap; i++ {
		key := "rule-" + string(rune('a'+i))
		counts = ApplyTopCount(counts, key)
	}
	assert.Len(t, counts, TopCap)

	counts = ApplyTopCount(counts, "brand-new-rule")
	assert.Len(t, counts, TopCap)
	assert.Contains(t, counts, "brand-new-rule")
}
