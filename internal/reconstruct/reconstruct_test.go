package reconstruct

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func newTestReconstructor() *Reconstructor {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger)
}

func TestFeedLine_JoinsWrappedContinuation(t *testing.T) {
	r := newTestReconstructor()

	first := `Jan 15 10:30:00 fw1 EFW: CONN_OPEN: id="0060" time="2026-01-15 10:30:00"`
	second := `proto="tcp" src="10.0.0.1"`
	third := `Jan 15 10:30:05 fw1 EFW: CONN_CLOSE: id="0061" time="2026-01-15 10:30:05"`

	emitted, ok := r.FeedLine(first)
	assert.False(t, ok)
	assert.Empty(t, emitted)

	emitted, ok = r.FeedLine(second)
	assert.False(t, ok)
	assert.Empty(t, emitted)

	emitted, ok = r.FeedLine(third)
	assert.True(t, ok)
	assert.Contains(t, emitted, `id="0060"`)
	assert.Contains(t, emitted, `proto="tcp"`)

	final, ok := r.Flush()
	assert.True(t, ok)
	assert.Contains(t, final, `id="0061"`)
}

func TestFeedLine_SingleRecordNoContinuation(t *testing.T) {
	r := newTestReconstructor()
	line := `Jan 15 10:30:00 fw1 EFW: CONN_OPEN: id="0060"`
	_, ok := r.FeedLine(line)
	assert.False(t, ok)

	out, ok := r.Flush()
	assert.True(t, ok)
	assert.Equal(t, line, out)
}

func TestFlush_EmptyReconstructorReturnsFalse(t *testing.T) {
	r := newTestReconstructor()
	_, ok := r.Flush()
	assert.False(t, ok)
}

func TestFeedLine_ContinuationWithNoPendingRecordIsIgnored(t *testing.T) {
	r := newTestReconstructor()
	emitted, ok := r.FeedLine("proto=tcp orphaned continuation")
	assert.False(t, ok)
	assert.Empty(t, emitted)

	_, ok = r.Flush()
	assert.False(t, ok)
}

func TestIsRecordStart_AllFourDialects(t *testing.T) {
	assert.True(t, isRecordStart(`Jan 15 10:30:00 fw1 EFW: CONN_OPEN: id="0060"`))
	assert.True(t, isRecordStart(`[2026-01-15 10:30:00] EFW: CONN_OPEN: id="0060"`))
	assert.True(t, isRecordStart(`1 2026-01-15T10:30:00Z fw1 EFW - - - CONN_OPEN: id="0060"`))
	assert.True(t, isRecordStart(`<134>1 2026-01-15T10:30:00.123Z fw1 CEF: id="0060"`))
	assert.False(t, isRecordStart(`proto="tcp" src="10.0.0.1"`))
}

func TestSplitLines_NormalizesAndDropsEmpty(t *testing.T) {
	chunk := "line one\r\nline two\rline three\n\nline four"
	lines := SplitLines(chunk)
	assert.Equal(t, []string{"line one", "line two", "line three", "line four"}, lines)
}
