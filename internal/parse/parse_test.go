package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netwallfa/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestParse_BSDDialect(t *testing.T) {
	raw := `Feb 10 17:37:13 fw1 EFW: CONN_OPEN: id="0060" event="conn_open" connsrcip="10.0.0.5" connsrcport="4512" conndestip="8.8.8.8" conndestport="53"`
	rec := Parse(raw, fixedNow)
	require.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.Equal(t, "fw1", rec.Device)
	assert.Equal(t, 2026, rec.TsUTC.Year())
	assert.Equal(t, time.February, rec.TsUTC.Month())
	assert.Equal(t, 10, rec.TsUTC.Day())
	assert.Equal(t, "10.0.0.5", ExtractStr(rec.KV, "connsrcip"))
	port, ok := ExtractInt(rec.KV, "connsrcport")
	assert.True(t, ok)
	assert.Equal(t, 4512, port)
}

func TestParse_BracketAltDialect(t *testing.T) {
	raw := `[2026-02-10 17:37:13] EFW: DEVICE_ID: id="0890" srcmac="aa:bb:cc:dd:ee:ff" hostname="laptop1"`
	rec := Parse(raw, fixedNow)
	require.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.Equal(t, "unknown", rec.Device)
	assert.Equal(t, 2026, rec.TsUTC.Year())
	assert.Equal(t, "laptop1", ExtractStr(rec.KV, "hostname"))
}

func TestParse_RFC5424ClassicDialect(t *testing.T) {
	raw := `1 2026-02-10T18:57:45.970+01:00 fw2 EFW - - - CONN_CLOSE: id="0060" event="conn_close" conntime="120"`
	rec := Parse(raw, fixedNow)
	require.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.Equal(t, "fw2", rec.Device)
	assert.Equal(t, time.UTC, rec.TsUTC.Location())
	assert.Equal(t, 17, rec.TsUTC.Hour())
	dur, ok := ExtractInt(rec.KV, "conntime")
	assert.True(t, ok)
	assert.Equal(t, 120, dur)
}

func TestParse_IncontrolDialect_NestedBrackets(t *testing.T) {
	raw := `<1>1 2026-02-09T07:32:47Z 15c8cb06-fw CONN : id=600004 event=conn_open_natsat [message=connection [srcip=10.0.0.1 destip=1.1.1.1]]`
	rec := Parse(raw, fixedNow)
	require.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.Equal(t, "15c8cb06-fw", rec.Device)
	assert.Equal(t, "600004", ExtractStr(rec.KV, "id"))
	assert.Equal(t, "conn_open_natsat", ExtractStr(rec.KV, "event"))
	assert.Equal(t, "10.0.0.1", ExtractStr(rec.KV, "srcip"))
	assert.Equal(t, "1.1.1.1", ExtractStr(rec.KV, "destip"))
}

func TestParse_IncontrolDialect_TakesPrecedenceOverRFC5424(t *testing.T) {
	raw := `<1>1 2026-02-09T07:32:47Z fw3 CONN : id=890001 srcmac=aa-bb-cc-dd-ee-ff`
	rec := Parse(raw, fixedNow)
	require.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.True(t, IsDevice(ExtractStr(rec.KV, "id")))
}

func TestParse_UnknownFormatFallsBackToNowUnknown(t *testing.T) {
	rec := Parse("garbage line with no known prefix at all", fixedNow)
	assert.Equal(t, model.ParseOK, rec.ParseStatus)
	assert.Equal(t, "unknown", rec.Device)
	assert.Equal(t, fixedNow, rec.TsUTC)
}

func TestNormalizeMAC(t *testing.T) {
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", NormalizeMAC("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", NormalizeMAC("AA-BB-CC-DD-EE-FF"))
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", NormalizeMAC("aabb.ccdd.eeff"))
	assert.Equal(t, "AA-BB-CC-DD-EE-FF", NormalizeMAC("aabbccddeeff"))
	assert.Equal(t, "", NormalizeMAC(""))
	assert.Equal(t, "NOT-A-MAC", NormalizeMAC("not:a:mac"))
}

func TestNormalizeMAC_Idempotent(t *testing.T) {
	once := NormalizeMAC("aa:bb:cc:dd:ee:ff")
	twice := NormalizeMAC(once)
	assert.Equal(t, once, twice)
}

func TestAccepted_FiltersUnknownIDPrefixes(t *testing.T) {
	assert.True(t, Accepted("0060"))
	assert.True(t, Accepted("600004"))
	assert.True(t, Accepted("0890"))
	assert.True(t, Accepted("890001"))
	assert.True(t, Accepted(""))
	assert.False(t, Accepted("0070"))
}

func TestToEvent_MapsCoreFieldsAndUnmapped(t *testing.T) {
	raw := `Feb 10 17:37:13 fw1 EFW: CONN_OPEN: id="0060" event="conn_open" action="accept" connsrcip="10.0.0.5" connsrcport="4512" conndestip="8.8.8.8" conndestport="53" origsent="100" termsent="200" weirdfield="xyz"`
	rec := Parse(raw, fixedNow)
	ev, ok := ToEvent(rec)
	require.True(t, ok)
	assert.Equal(t, model.EventType("conn_open"), ev.EventType)
	assert.Equal(t, "accept", ev.Action)
	assert.Equal(t, "10.0.0.5", ev.SrcIP)
	assert.EqualValues(t, 100, ev.BytesOrig)
	unmapped, ok := ev.Extra["unmapped"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "xyz", unmapped["weirdfield"])
}

func TestToEvent_ParseErrorYieldsNoEvent(t *testing.T) {
	rec := Record{ParseStatus: model.ParseError}
	_, ok := ToEvent(rec)
	assert.False(t, ok)
}
