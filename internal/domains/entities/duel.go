package entities

// EndReason explains how a duel reached its terminal state.
type EndReason string

const (
	ReasonNormal          EndReason = "normal"
	ReasonTimeout         EndReason = "timeout"
	ReasonOpponentTimeout EndReason = "opponent_timeout"
	ReasonOpponentLeft    EndReason = "opponent_left"
	ReasonForfeit         EndReason = "forfeit"
)

// Outcome records who won a finished duel and why.
type Outcome struct {
	SessionId string
	Winner    string
	Reason    EndReason
}

// CrownsToWin is the six count that ends a duel.
const CrownsToWin = 3
