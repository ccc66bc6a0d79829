// Package reconstruct joins wrapped multi-line syslog records into one
// record per CONN/DEVICE event (spec section 4.2).
package reconstruct

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// The four record-start patterns from spec section 6.1.
var (
	bsdPrefixRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s+\S+(?:\s+\[[^\]]+\])?\s+EFW:\s+[A-Z][A-Z0-9_]*:\s+`,
	)
	bracketAltPrefixRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?\[\d{4}-\d{1,2}-\d{1,2}\s+\d{2}:\d{2}:\d{2}\]\s+EFW:\s+[A-Z][A-Z0-9_]*:\s+`,
	)
	rfc5424ClassicPrefixRE = regexp.MustCompile(
		`^(?:<\d+>\s*)?1\s+\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})\s+\S+\s+EFW\s+(?:-\s+){3}[A-Z][A-Z0-9_]*:\s+`,
	)
	incontrolPrefixRE = regexp.MustCompile(
		`^<\d+>\d\s+\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})\s+\S+\s+[A-Z_]+\s*:\s*`,
	)
)

func isRecordStart(line string) bool {
	return bsdPrefixRE.MatchString(line) ||
		bracketAltPrefixRE.MatchString(line) ||
		rfc5424ClassicPrefixRE.MatchString(line) ||
		incontrolPrefixRE.MatchString(line)
}

// Reconstructor accumulates wrapped syslog lines into complete records. It
// holds exactly one pending buffer and must be fed one line at a time.
type Reconstructor struct {
	logger  *logrus.Logger
	current *string
}

func New(logger *logrus.Logger) *Reconstructor {
	return &Reconstructor{logger: logger}
}

// FeedLine processes one line and returns a completed record if this line
// started a new one (the previously buffered record is emitted first).
func (r *Reconstructor) FeedLine(line string) (string, bool) {
	if isRecordStart(line) {
		var emitted string
		var ok bool
		if r.current != nil {
			emitted, ok = *r.current, true
		}
		trimmed := strings.TrimSpace(line)
		r.current = &trimmed
		return emitted, ok
	}

	if r.current == nil {
		if r.logger != nil {
			r.logger.WithField("line", strings.TrimSpace(line)).Debug("ignoring continuation line with no pending record")
		}
		return "", false
	}
	*r.current = *r.current + " " + strings.TrimSpace(line)
	return "", false
}

// Flush emits any remaining buffered record.
func (r *Reconstructor) Flush() (string, bool) {
	if r.current == nil {
		return "", false
	}
	out := *r.current
	r.current = nil
	return out, true
}

// SplitLines splits a bulk chunk of input on both \n and \r, as spec section
// 4.2 requires before feeding a chunk line-by-line into FeedLine.
func SplitLines(chunk string) []string {
	normalized := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(chunk)
	lines := strings.Split(normalized, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}
