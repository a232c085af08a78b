package entities

// IntentKind distinguishes the two wallet messages the client may emit.
// The stake debit itself happens at stake time; a losing client only
// acknowledges it.
type IntentKind string

const (
	IntentCredit   IntentKind = "credit"
	IntentDebitAck IntentKind = "debit_ack"
)

type WalletIntent struct {
	Id        string     `json:"id"`
	SessionId string     `json:"sessionId"`
	Kind      IntentKind `json:"kind"`
	Amount    int        `json:"amount"`
}

// ResultSummary is the display-ready settlement of a duel. Provisional
// summaries come from local timeout guesses and may be replaced by an
// authoritative one.
type ResultSummary struct {
	SessionId   string
	Won         bool
	Amount      int
	Reason      EndReason
	Provisional bool
}
