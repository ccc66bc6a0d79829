// Package parse turns one reconstructed syslog record into key/value pairs
// and a UTC timestamp, trying each of the four wire dialects in turn (spec
// sections 4.3, 6.1, 6.2): InControl export, RFC 5424, the bracket-alt relay
// format, and classic BSD syslog.
package parse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"netwallfa/internal/model"
)

var (
	bsdPrefixRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?(?P<month>[A-Z][a-z]{2})\s+(?P<day>\d{1,2})\s+(?P<time>\d{2}:\d{2}:\d{2})\s+(?P<host>\S+)(?:\s+\[[^\]]+\])?\s+EFW:\s+[A-Z][A-Z0-9_]*:\s+`,
	)
	bracketAltPrefixRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?\[(?P<year>\d{4})-(?P<month>\d{1,2})-(?P<day>\d{1,2})\s+(?P<time>\d{2}:\d{2}:\d{2})\]\s+EFW:\s+[A-Z][A-Z0-9_]*:\s+`,
	)
	rfc5424ClassicRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?1\s+(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2}))\s+(?P<host>\S+)\s+EFW\s+(?:-\s+){3}[A-Z][A-Z0-9_]*:\s+`,
	)
	incontrolRE = regexp.MustCompile(
		`(?s)^<\d+>\d\s+(?P<timestamp>\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2}))\s+(?P<host>\S+)\s+(?P<app>[A-Z_]+)\s*:\s*(?P<msg>.*)$`,
	)
	kvPairRE = regexp.MustCompile(`(?P<key>\w+)=(?:"(?P<qval>[^"]*)"|(?P<uval>\S+))`)
)

var months = map[string]int{
	"Jan": 1, "Feb": 2, "Mar": 3, "Apr": 4, "May": 5, "Jun": 6,
	"Jul": 7, "Aug": 8, "Sep": 9, "Oct": 10, "Nov": 11, "Dec": 12,
}

// intFields are keys whose value is coerced from its leading digits to an int
// (spec section 6.2).
var intFields = map[string]bool{
	"prio": true, "rev": true, "origsent": true, "termsent": true,
	"conntime": true, "score": true, "iprep_src_score": true, "iprep_dest_score": true,
	"connsrcport": true, "conndestport": true, "connnewsrcport": true, "connnewdestport": true,
	"devicerank": true,
}

// AcceptedIDPrefixes are the record "id" prefixes kept past the filter: CONN
// (0060, 60) and DEVICE (0890, 89). InControl exports may send 600004/890001.
var AcceptedIDPrefixes = []string{"0060", "60", "0890", "89"}

// Accepted reports whether a record id passes the accepted-prefix filter. An
// empty id is accepted (legacy records sometimes carry no id field at all).
func Accepted(id string) bool {
	if id == "" {
		return true
	}
	for _, p := range AcceptedIDPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// IsDevice reports whether a record id identifies a DEVICE identification log.
func IsDevice(id string) bool {
	return strings.HasPrefix(id, "0890") || strings.HasPrefix(id, "89")
}

// IsConn reports whether a record id identifies a CONN log.
func IsConn(id string) bool {
	return strings.HasPrefix(id, "0060") || strings.HasPrefix(id, "60")
}

// NormalizeMAC normalizes a MAC address to uppercase hyphen-separated
// AA-BB-CC-DD-EE-FF. Handles colon, hyphen, and dot separated forms as well
// as bare hex. Falls back to an uppercased, hyphenated rendering of the
// original input when it isn't a well-formed 6-byte MAC, and returns "" for
// empty input.
func NormalizeMAC(mac string) string {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return ""
	}
	replacer := strings.NewReplacer(":", "", "-", "", ".", "")
	cleaned := strings.ToUpper(replacer.Replace(mac))
	if len(cleaned) != 12 || !isHex(cleaned) {
		fallback := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), ":", "-"))
		return fallback
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, cleaned[i:i+2])
	}
	return strings.Join(parts, "-")
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// Record is the result of parsing one reconstructed syslog line.
type Record struct {
	TsUTC       time.Time
	Device      string
	KV          map[string]interface{}
	Extra       map[string]interface{}
	ParseStatus model.ParseStatus
	ParseError  string
}

func errorRecord(now time.Time, err error) Record {
	return Record{
		TsUTC:       now,
		Device:      "unknown",
		KV:          map[string]interface{}{},
		Extra:       map[string]interface{}{},
		ParseStatus: model.ParseError,
		ParseError:  err.Error(),
	}
}

// Parse dispatches raw to the InControl parser first, falling back to the
// generic syslog-header + key/value parser used by the other three dialects.
func Parse(raw string, now time.Time) Record {
	if rec, ok := parseIncontrol(raw, now); ok {
		return rec
	}
	tsUTC, device, rest, err := parseSyslogHeader(raw, now)
	if err != nil {
		return errorRecord(now, err)
	}
	kv := parseKV(rest)
	return Record{
		TsUTC:       tsUTC,
		Device:      device,
		KV:          kv,
		Extra:       map[string]interface{}{},
		ParseStatus: model.ParseOK,
	}
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		out[name] = match[i]
	}
	return out
}

func parseIncontrol(raw string, now time.Time) (Record, bool) {
	match := incontrolRE.FindStringSubmatch(raw)
	if match == nil {
		return Record{}, false
	}
	groups := namedGroups(incontrolRE, match)

	tsUTC, err := parseISOTimestamp(groups["timestamp"])
	if err != nil {
		return errorRecord(now, fmt.Errorf("incontrol parse failed: %w", err)), true
	}
	host := strings.TrimSpace(groups["host"])
	if host == "" {
		host = "unknown"
	}
	appName := strings.TrimSpace(groups["app"])

	kv := parseIncontrolMessage(groups["msg"])
	normalizeIncontrolKV(kv)
	if id, ok := kv["id"]; ok && id != nil {
		kv["id"] = fmt.Sprintf("%v", id)
	}

	return Record{
		TsUTC:       tsUTC,
		Device:      host,
		KV:          kv,
		Extra:       map[string]interface{}{"log_type": appName},
		ParseStatus: model.ParseOK,
	}, true
}

// parseIncontrolMessage parses the "id=... event=..." prefix plus the
// key/value pairs carried inside every (possibly nested) bracket block,
// flattening all of them with later writes winning over earlier ones.
func parseIncontrolMessage(msg string) map[string]interface{} {
	prefix := msg
	rest := ""
	if idx := strings.IndexByte(msg, '['); idx >= 0 {
		prefix, rest = msg[:idx], msg[idx+1:]
	}
	kv := parseKVFromString(strings.TrimSpace(prefix))
	for _, part := range extractBracketInnerParts("[" + rest) {
		for k, v := range parseKVFromString(part) {
			kv[k] = v
		}
	}
	return kv
}

// extractBracketInnerParts returns, in outer-to-inner order, the contents of
// every matching bracket pair in s (including nested ones).
func extractBracketInnerParts(s string) []string {
	var parts []string
	i := 0
	for i < len(s) {
		if s[i] == '[' {
			depth := 1
			j := i + 1
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '[':
					depth++
				case ']':
					depth--
				}
				j++
			}
			if depth == 0 {
				inner := s[i+1 : j-1]
				parts = append(parts, inner)
				parts = append(parts, extractBracketInnerParts(inner)...)
			}
			i = j
		} else {
			i++
		}
	}
	return parts
}

func parseKVFromString(segment string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, m := range kvPairRE.FindAllStringSubmatch(segment, -1) {
		groups := namedGroups(kvPairRE, m)
		key := groups["key"]
		rawVal := kvRawValue(groups)
		out[key] = coerceKVValue(key, rawVal)
	}
	return out
}

// kvRawValue picks the matched alternative out of a key=value submatch. uval
// is \S+ so it can never match as an empty string; an empty uval therefore
// means the quoted alternative matched instead (possibly as "").
func kvRawValue(groups map[string]string) string {
	if groups["uval"] != "" {
		return groups["uval"]
	}
	return groups["qval"]
}

func coerceKVValue(key, rawVal string) interface{} {
	if intFields[key] {
		if iv, ok := coerceInt(rawVal); ok {
			return iv
		}
		return rawVal
	}
	return rawVal
}

// normalizeIncontrolKV lowercases enum-like fields and aliases srcuser to
// srcusername, mutating kv in place.
func normalizeIncontrolKV(kv map[string]interface{}) {
	for _, key := range []string{"conn", "action", "event"} {
		if v, ok := kv[key].(string); ok && v != "" {
			kv[key] = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if v, ok := kv["srcuser"]; ok {
		if _, already := kv["srcusername"]; !already {
			kv["srcusername"] = v
		}
	}
}

// parseISOTimestamp parses an RFC 3339-ish timestamp (fractional seconds and
// a literal "Z" both accepted) and normalizes it to UTC.
func parseISOTimestamp(ts string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", ts, lastErr)
}

// parseSyslogHeader tries RFC 5424, then bracket-alt, then BSD, returning the
// UTC timestamp, the device hostname, and the unconsumed remainder of the
// record carrying the key/value payload.
func parseSyslogHeader(record string, now time.Time) (time.Time, string, string, error) {
	if match := rfc5424ClassicRE.FindStringSubmatchIndex(record); match != nil {
		groups := namedGroups(rfc5424ClassicRE, rfc5424ClassicRE.FindStringSubmatch(record))
		ts, err := parseISOTimestamp(groups["timestamp"])
		if err != nil {
			return time.Time{}, "", "", err
		}
		host := strings.TrimSpace(groups["host"])
		if host == "" {
			host = "unknown"
		}
		return ts, host, record[match[1]:], nil
	}

	if match := bracketAltPrefixRE.FindStringSubmatchIndex(record); match != nil {
		groups := namedGroups(bracketAltPrefixRE, bracketAltPrefixRE.FindStringSubmatch(record))
		year, _ := strconv.Atoi(groups["year"])
		month, _ := strconv.Atoi(groups["month"])
		day, _ := strconv.Atoi(groups["day"])
		ts, err := time.Parse("2006-1-2 15:04:05", fmt.Sprintf("%04d-%d-%d %s", year, month, day, groups["time"]))
		if err != nil {
			return time.Time{}, "", "", err
		}
		return ts.UTC(), "unknown", record[match[1]:], nil
	}

	if match := bsdPrefixRE.FindStringSubmatchIndex(record); match != nil {
		groups := namedGroups(bsdPrefixRE, bsdPrefixRE.FindStringSubmatch(record))
		day, _ := strconv.Atoi(groups["day"])
		month := months[groups["month"]]
		if month == 0 {
			month = 1
		}
		host := strings.TrimSpace(groups["host"])
		if host == "" {
			host = "unknown"
		}
		ts, err := time.Parse("2006-1-2 15:04:05", fmt.Sprintf("%04d-%d-%d %s", now.Year(), month, day, groups["time"]))
		if err != nil {
			return time.Time{}, "", "", err
		}
		return ts.UTC(), host, record[match[1]:], nil
	}

	return now.UTC(), "unknown", record, nil
}

func coerceInt(value string) (int, bool) {
	digits := leadingDigitsRE.FindString(value)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

var leadingDigitsRE = regexp.MustCompile(`^\d+`)

func parseKV(rest string) map[string]interface{} {
	kv := map[string]interface{}{}
	for _, m := range kvPairRE.FindAllStringSubmatch(rest, -1) {
		groups := namedGroups(kvPairRE, m)
		key := groups["key"]
		rawVal := kvRawValue(groups)
		if intFields[key] {
			if iv, ok := coerceInt(rawVal); ok {
				kv[key] = iv
			} else {
				kv[key] = nil
			}
			continue
		}
		kv[key] = rawVal
	}
	return kv
}

// ExtractStr reads kv[key] as a string, returning "" when absent.
func ExtractStr(kv map[string]interface{}, key string) string {
	v, ok := kv[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// ExtractStrAny returns the first non-empty string among several candidate
// keys, used for the underscore/no-underscore DEVICE field aliases.
func ExtractStrAny(kv map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := ExtractStr(kv, k); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// ExtractInt reads kv[key] as an int, returning (0, false) when absent or
// non-numeric.
func ExtractInt(kv map[string]interface{}, key string) (int, bool) {
	v, ok := kv[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	default:
		return coerceInt(fmt.Sprintf("%v", v))
	}
}

// ExtractIntAny returns the first present int among several candidate keys.
func ExtractIntAny(kv map[string]interface{}, keys ...string) (int, bool) {
	for _, k := range keys {
		if v, ok := ExtractInt(kv, k); ok {
			return v, true
		}
	}
	return 0, false
}

// mappedEventKeys lists every CONN key the Event model consumes directly;
// anything outside this set is filed under Extra["unmapped"] instead of
// silently dropped.
var mappedEventKeys = map[string]bool{
	"event": true, "action": true, "rule": true, "satsrcrule": true, "satdestrule": true,
	"srcusername": true, "destusername": true, "connipproto": true,
	"connrecvif": true, "connrecvzone": true, "connsrcip": true, "connsrcport": true,
	"connsrcmac": true, "connsrcdevice": true, "conndestif": true, "conndestzone": true,
	"conndestip": true, "conndestport": true, "conndestmac": true, "conndestdevice": true,
	"connnewsrcip": true, "connnewsrcport": true, "connnewdestip": true, "connnewdestport": true,
	"origsent": true, "termsent": true, "conntime": true,
	"app_name": true, "app_risk": true, "app_family": true,
	"ip": true, "score": true, "categories": true,
	"iprep_src": true, "iprep_dest": true, "iprep_src_score": true, "iprep_dest_score": true,
}

// ToEvent maps a successfully parsed CONN record's key/values onto the domain
// Event model. Returns (nil, false) when the record didn't parse cleanly.
func ToEvent(rec Record) (*model.Event, bool) {
	if rec.ParseStatus != model.ParseOK {
		return nil, false
	}
	kv := rec.KV

	srcPort, _ := ExtractInt(kv, "connsrcport")
	destPort, _ := ExtractInt(kv, "conndestport")
	xlatSrcPort, _ := ExtractInt(kv, "connnewsrcport")
	xlatDestPort, _ := ExtractInt(kv, "connnewdestport")
	bytesOrig, _ := ExtractInt(kv, "origsent")
	bytesTerm, _ := ExtractInt(kv, "termsent")
	durationS, _ := ExtractInt(kv, "conntime")
	iprepScore, _ := ExtractInt(kv, "score")
	iprepSrcScore, _ := ExtractInt(kv, "iprep_src_score")
	iprepDestScore, _ := ExtractInt(kv, "iprep_dest_score")

	e := &model.Event{
		TsUTC:      rec.TsUTC,
		Device:     rec.Device,
		EventType:   model.EventType(ExtractStr(kv, "event")),
		Action:      ExtractStr(kv, "action"),
		Rule:        ExtractStr(kv, "rule"),
		SatSrcRule:  ExtractStr(kv, "satsrcrule"),
		SatDestRule: ExtractStr(kv, "satdestrule"),
		SrcUsername: ExtractStr(kv, "srcusername"),
		DestUsername: ExtractStr(kv, "destusername"),
		Proto:      ExtractStr(kv, "connipproto"),
		RecvIf:     ExtractStr(kv, "connrecvif"),
		RecvZone:   ExtractStr(kv, "connrecvzone"),
		SrcIP:      ExtractStr(kv, "connsrcip"),
		SrcPort:    srcPort,
		SrcMAC:     NormalizeMAC(ExtractStr(kv, "connsrcmac")),
		SrcDevice:  ExtractStr(kv, "connsrcdevice"),
		DestIf:     ExtractStr(kv, "conndestif"),
		DestZone:   ExtractStr(kv, "conndestzone"),
		DestIP:     ExtractStr(kv, "conndestip"),
		DestPort:   destPort,
		DestMAC:    NormalizeMAC(ExtractStr(kv, "conndestmac")),
		DestDevice: ExtractStr(kv, "conndestdevice"),

		XlatSrcIP:    ExtractStr(kv, "connnewsrcip"),
		XlatSrcPort:  xlatSrcPort,
		XlatDestIP:   ExtractStr(kv, "connnewdestip"),
		XlatDestPort: xlatDestPort,

		BytesOrig: int64(bytesOrig),
		BytesTerm: int64(bytesTerm),
		DurationS: int64(durationS),

		AppName:   ExtractStr(kv, "app_name"),
		AppRisk:   ExtractStr(kv, "app_risk"),
		AppFamily: ExtractStr(kv, "app_family"),

		IPRepIP:         ExtractStr(kv, "ip"),
		IPRepScore:      iprepScore,
		IPRepCategories: ExtractStr(kv, "categories"),
		IPRepSrc:        ExtractStr(kv, "iprep_src"),
		IPRepDest:       ExtractStr(kv, "iprep_dest"),
		IPRepSrcScore:   iprepSrcScore,
		IPRepDestScore:  iprepDestScore,

		Extra: map[string]interface{}{},
	}

	unmapped := map[string]interface{}{}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !mappedEventKeys[k] {
			unmapped[k] = kv[k]
		}
	}
	if len(unmapped) > 0 {
		e.Extra["unmapped"] = unmapped
	}
	return e, true
}

// ToDeviceIdentification maps a successfully parsed DEVICE record's
// key/values onto the domain DeviceIdentification model. Accepts both the
// underscore and no-underscore key spellings the wire format uses
// interchangeably. Returns (nil, false) when the record carries no usable
// MAC, mirroring _upsert_device_identification's own guard.
func ToDeviceIdentification(rec Record) (*model.DeviceIdentification, bool) {
	if rec.ParseStatus != model.ParseOK {
		return nil, false
	}
	kv := rec.KV
	mac := NormalizeMAC(ExtractStr(kv, "srcmac"))
	if mac == "" {
		return nil, false
	}
	rank, _ := ExtractIntAny(kv, "device_rank", "devicerank")
	return &model.DeviceIdentification{
		MAC:        mac,
		DeviceName: ExtractStrAny(kv, "device_name", "devicename"),
		Hostname:   ExtractStrAny(kv, "hostname"),
		Vendor:     ExtractStrAny(kv, "device_vendor", "devicevendor"),
		DeviceType: ExtractStrAny(kv, "device_type", "devicetype"),
		OS:         ExtractStrAny(kv, "device_os_name", "deviceosname"),
		Brand:      ExtractStrAny(kv, "device_brand", "devicebrand"),
		Model:      ExtractStrAny(kv, "device_model", "devicemodel"),
		Rank:       rank,
	}, true
}
