// Package settlement turns terminal duel outcomes into wallet intents and
// display-ready result summaries. The stake debit happens when the duel is
// staked; this layer only requests the winner's credit or acknowledges the
// loss, exactly once per session.
package settlement

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/pkg/logging"
)

// PayoutMultiplier is Six King's fixed payout: winner takes double the stake.
const PayoutMultiplier = 2

// Sink receives wallet intents; the wallet service itself is external.
type Sink interface {
	Submit(ctx context.Context, intent entities.WalletIntent) error
}

type record struct {
	summary    entities.ResultSummary
	intentSent bool
}

type Reporter struct {
	selfId string
	sink   Sink

	mu      sync.Mutex
	records map[string]*record
}

func NewReporter(selfId string, sink Sink) *Reporter {
	return &Reporter{
		selfId:  selfId,
		sink:    sink,
		records: make(map[string]*record),
	}
}

// Report settles an outcome. Provisional outcomes (local timeout guesses)
// only produce a summary; no money moves until an authoritative outcome
// lands. Intents are idempotent per session id, but a later authoritative
// report may still replace the displayed summary.
func (r *Reporter) Report(outcome entities.Outcome, stake int, provisional bool) entities.ResultSummary {
	won := outcome.Winner == r.selfId
	summary := entities.ResultSummary{
		SessionId:   outcome.SessionId,
		Won:         won,
		Reason:      outcome.Reason,
		Provisional: provisional,
	}
	if won {
		summary.Amount = stake * PayoutMultiplier
	} else {
		summary.Amount = stake
	}

	r.mu.Lock()
	rec, seen := r.records[outcome.SessionId]
	if !seen {
		rec = &record{}
		r.records[outcome.SessionId] = rec
	}
	rec.summary = summary
	emit := !provisional && !rec.intentSent
	if emit {
		rec.intentSent = true
	}
	r.mu.Unlock()

	if !emit {
		return summary
	}

	intent := entities.WalletIntent{
		Id:        uuid.NewString(),
		SessionId: outcome.SessionId,
		Amount:    summary.Amount,
		Kind:      entities.IntentDebitAck,
	}
	if won {
		intent.Kind = entities.IntentCredit
	}
	if err := r.sink.Submit(context.Background(), intent); err != nil {
		logging.Error("wallet intent not delivered",
			zap.String("session_id", outcome.SessionId),
			zap.String("kind", string(intent.Kind)),
			zap.Error(err),
		)
	} else {
		logging.Info("wallet intent submitted",
			zap.String("session_id", outcome.SessionId),
			zap.String("kind", string(intent.Kind)),
			zap.Int("amount", intent.Amount),
		)
	}
	return summary
}

// Summary returns the latest settlement shown for a session, if any.
func (r *Reporter) Summary(sessionId string) (entities.ResultSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionId]
	if !ok {
		return entities.ResultSummary{}, false
	}
	return rec.summary, true
}
