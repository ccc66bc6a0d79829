package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_TruncatesLongMessage(t *testing.T) {
	long := make([]byte, maxMessageLen+50)
	for i := range long {
		long[i] = 'x'
	}
	e := New(StageParse, "parse", "Parse", string(long))
	assert.Len(t, e.Message, maxMessageLen)
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	e := New(StagePersist, "store", "WriteBatch", "write failed").Wrap(cause)
	assert.ErrorIs(t, e, cause)
}

func TestAsAppError_FindsWrappedAppError(t *testing.T) {
	inner := New(StageUpload, "ingest", "Upload", "bad file")
	outer := errors.New("context: " + inner.Error())
	_, ok := AsAppError(outer)
	assert.False(t, ok, "plain wrapping via string concat should not satisfy errors.As")

	wrapped := fWrap(inner)
	found, ok := AsAppError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, StageUpload, found.Stage)
}

func fWrap(err error) error {
	return errors.Join(err)
}

func TestClassifyStage_PreservesExistingAppError(t *testing.T) {
	e := New(StageFlowAggregation, "flowagg", "Upsert", "dup")
	assert.Equal(t, StageFlowAggregation, ClassifyStage(e))
}

func TestClassifyStage_TransientLockingBeforeOthers(t *testing.T) {
	assert.Equal(t, StageTransientLocking, ClassifyStage(errors.New("database is locked")))
	assert.Equal(t, StageTransientLocking, ClassifyStage(errors.New("deadlock detected")))
}

func TestClassifyStage_FlowAggregation(t *testing.T) {
	assert.Equal(t, StageFlowAggregation, ClassifyStage(errors.New("MultipleResultsFound for flow identity")))
}

func TestClassifyStage_Persist(t *testing.T) {
	assert.Equal(t, StagePersist, ClassifyStage(errors.New("duplicate key violates unique constraint")))
}

func TestClassifyStage_Parse(t *testing.T) {
	assert.Equal(t, StageParse, ClassifyStage(errors.New("failed to parse timestamp")))
}

func TestClassifyStage_DefaultsToProcessing(t *testing.T) {
	assert.Equal(t, StageProcessing, ClassifyStage(errors.New("something unexpected happened")))
}

func TestWithMetadata_InitializesNilMap(t *testing.T) {
	e := &AppError{}
	e.WithMetadata("job_id", "abc")
	assert.Equal(t, "abc", e.Metadata["job_id"])
}
