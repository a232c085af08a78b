package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckroyale/sixking/internal/domains/entities"
)

type recordingSink struct {
	intents []entities.WalletIntent
}

func (s *recordingSink) Submit(_ context.Context, intent entities.WalletIntent) error {
	s.intents = append(s.intents, intent)
	return nil
}

func TestReport_WinEmitsDoubleCredit(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("p1", sink)

	summary := r.Report(entities.Outcome{
		SessionId: "ABCD12",
		Winner:    "p1",
		Reason:    entities.ReasonNormal,
	}, 100, false)

	assert.True(t, summary.Won)
	assert.Equal(t, 200, summary.Amount)
	require.Len(t, sink.intents, 1)
	assert.Equal(t, entities.IntentCredit, sink.intents[0].Kind)
	assert.Equal(t, 200, sink.intents[0].Amount)
	assert.Equal(t, "ABCD12", sink.intents[0].SessionId)
	assert.NotEmpty(t, sink.intents[0].Id)
}

func TestReport_LossAcknowledgesStake(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("p2", sink)

	summary := r.Report(entities.Outcome{
		SessionId: "ABCD12",
		Winner:    "p1",
		Reason:    entities.ReasonNormal,
	}, 100, false)

	assert.False(t, summary.Won)
	assert.Equal(t, 100, summary.Amount)
	require.Len(t, sink.intents, 1)
	assert.Equal(t, entities.IntentDebitAck, sink.intents[0].Kind)
}

func TestReport_IdempotentPerSession(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("p1", sink)
	outcome := entities.Outcome{SessionId: "ABCD12", Winner: "p1", Reason: entities.ReasonNormal}

	r.Report(outcome, 100, false)
	// Duplicate game_ended delivery on reconnect must not pay twice.
	r.Report(outcome, 100, false)

	assert.Len(t, sink.intents, 1)
}

func TestReport_ProvisionalMovesNoMoney(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("p1", sink)

	summary := r.Report(entities.Outcome{
		SessionId: "ABCD12",
		Winner:    "p1",
		Reason:    entities.ReasonOpponentTimeout,
	}, 100, true)

	assert.True(t, summary.Provisional)
	assert.Empty(t, sink.intents)
}

func TestReport_AuthoritativeReplacesProvisionalSummary(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter("p1", sink)

	// Local timeout guessed a win for p1...
	r.Report(entities.Outcome{
		SessionId: "ABCD12",
		Winner:    "p1",
		Reason:    entities.ReasonOpponentTimeout,
	}, 100, true)
	// ...but the coordinator says p1 lost.
	r.Report(entities.Outcome{
		SessionId: "ABCD12",
		Winner:    "p2",
		Reason:    entities.ReasonNormal,
	}, 100, false)

	summary, ok := r.Summary("ABCD12")
	require.True(t, ok)
	assert.False(t, summary.Won)
	assert.False(t, summary.Provisional)
	require.Len(t, sink.intents, 1)
	assert.Equal(t, entities.IntentDebitAck, sink.intents[0].Kind)
}

func TestSummary_UnknownSession(t *testing.T) {
	r := NewReporter("p1", &recordingSink{})
	_, ok := r.Summary("nope")
	assert.False(t, ok)
}
