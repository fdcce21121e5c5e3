package evaluator

import (
	"testing"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBuilder_Build(t *testing.T) {
	b := NewSignalBuilder("user-1", "sess-1", domain.InstrumentPHQ9)
	triggeredAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	sig := b.Build(domain.ReasonImmediateRisk, 7, 4, triggeredAt)

	require.NotEmpty(t, sig.SignalID)
	assert.Equal(t, "user-1", sig.UserID)
	assert.Equal(t, "sess-1", sig.SessionID)
	assert.Equal(t, domain.InstrumentPHQ9, sig.InstrumentType)
	assert.Equal(t, domain.ReasonImmediateRisk, sig.Reason)
	assert.Equal(t, 7, sig.ScoreSoFar)
	assert.Equal(t, 4, sig.AnsweredCount)
	assert.Equal(t, triggeredAt, sig.TriggeredAt)
}

func TestSignalBuilder_UniqueIDs(t *testing.T) {
	b := NewSignalBuilder("user-1", "sess-1", domain.InstrumentGAD7)

	first := b.Build(domain.ReasonConfirmedCrisis, 15, 6, time.Now())
	second := b.Build(domain.ReasonConfirmedCrisis, 15, 6, time.Now())

	assert.NotEqual(t, first.SignalID, second.SignalID)
}
