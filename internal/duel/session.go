// Package duel holds the client-side state machine for one Six King session.
// The client is a projector of coordinator-asserted state: it never rolls a
// die or declares a winner on its own, with the single exception of the
// provisional local-timeout guess, which any later authoritative message
// overrides.
package duel

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/pkg/logging"
	"github.com/luckroyale/sixking/pkg/utils"
	"github.com/luckroyale/sixking/pkg/wire"
)

type Phase uint8

const (
	PhaseWaiting Phase = iota
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "WAITING"
	case PhasePlaying:
		return "PLAYING"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Conn is the slice of the transport channel a session uses.
type Conn interface {
	Send(msgType string, payload any) error
	SendCritical(msgType string, payload any) error
	BindSession(gameId, playerId string)
	ClearSession()
}

// Reporter settles a terminal outcome and returns the display summary.
type Reporter interface {
	Report(outcome entities.Outcome, stake int, provisional bool) entities.ResultSummary
}

// Seed is the authoritative initial state from game_started.
type Seed struct {
	GameId      string
	FirstPlayer string
	Players     []entities.Player
	Stake       int
}

type Config struct {
	// RollBudget is how long the turn holder has to roll.
	RollBudget time.Duration
	// TimeoutGrace runs after the budget before the client trusts its own
	// timeout guess over a still-silent coordinator.
	TimeoutGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.RollBudget == 0 {
		c.RollBudget = 120 * time.Second
	}
	if c.TimeoutGrace == 0 {
		c.TimeoutGrace = 2 * time.Second
	}
	return c
}

type Handlers struct {
	DiceRolled  func(playerId string, value, sixes int)
	TurnChanged func(playerId string)
	Finished    func(entities.ResultSummary)
	Error       func(code, message string, fatal bool)
}

type Session struct {
	conn     Conn
	reporter Reporter
	cfg      Config
	handlers Handlers

	self    entities.Player
	id      string
	stake   int
	players []entities.Player

	mu           sync.Mutex
	privileged   bool
	phase        Phase
	turn         string
	crowns       map[string]int
	rollCount    int
	rollInFlight bool
	forced       int
	provisional  bool
	outcome      *entities.Outcome
	timer        *time.Timer
}

func NewSession(
	conn Conn,
	reporter Reporter,
	cfg Config,
	self entities.Player,
	seed Seed,
	privileged bool,
	handlers Handlers,
) *Session {
	s := &Session{
		conn:       conn,
		reporter:   reporter,
		cfg:        cfg.withDefaults(),
		handlers:   handlers,
		self:       self,
		id:         seed.GameId,
		stake:      seed.Stake,
		players:    seed.Players,
		privileged: privileged,
		phase:      PhaseWaiting,
		crowns:     make(map[string]int),
		turn:       seed.FirstPlayer,
	}
	return s
}

// Begin moves the session into play using the seed it was built from.
func (s *Session) Begin() {
	s.mu.Lock()
	if s.phase != PhaseWaiting {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePlaying
	s.setTimerLocked()
	s.mu.Unlock()

	s.conn.BindSession(s.id, s.self.Id)
	logging.Info("duel begins",
		zap.String("game_id", s.id),
		zap.String("first_turn", s.turn),
		zap.Int("stake", s.stake),
	)
}

// Roll emits roll_dice for the local player. Out-of-turn or duplicate calls
// are no-ops; the UI is expected to have disabled the action already.
func (s *Session) Roll() error {
	s.mu.Lock()
	if s.phase != PhasePlaying || s.turn != s.self.Id || s.rollInFlight {
		s.mu.Unlock()
		return nil
	}
	s.rollInFlight = true
	forced := s.forced
	s.mu.Unlock()

	payload := wire.RollDice{GameId: s.id, PlayerId: s.self.Id}
	if forced != 0 {
		payload.AdminDiceValue = forced
	}
	err := s.conn.SendCritical(wire.TypeRollDice, payload)
	if err != nil {
		s.mu.Lock()
		s.rollInFlight = false
		s.mu.Unlock()
	}
	return err
}

// Leave is an explicit exit and always a forfeit: the coordinator is told
// first so the room is released, then the loss is settled locally.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.phase == PhaseFinished && !s.provisional {
		s.mu.Unlock()
		return
	}
	opponent := s.opponentLocked()
	stake := s.stake
	s.mu.Unlock()

	if err := s.conn.Send(wire.TypeLeaveGame, wire.LeaveGame{
		GameId:     s.id,
		PlayerId:   s.self.Id,
		OpponentId: opponent,
		Stake:      stake,
	}); err != nil {
		logging.Warn("leave_game not delivered", zap.Error(err))
	}
	s.finish(opponent, entities.ReasonForfeit, false)
}

// SetForcedValue pins the next roll's die for a privileged identity.
// Single use: it clears once the coordinator reports our roll.
func (s *Session) SetForcedValue(v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.privileged {
		return ErrNotPrivileged
	}
	if v < 1 || v > 6 {
		return ErrBadDieValue
	}
	s.forced = v
	return nil
}

// SetPrivileged records the admin override entitlement. The lookup happens
// against a remote collaborator, so callers grant it after the session is
// already receiving messages rather than holding the handoff on it.
func (s *Session) SetPrivileged(privileged bool) {
	s.mu.Lock()
	s.privileged = privileged
	s.mu.Unlock()
}

func (s *Session) Id() string { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Turn() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

func (s *Session) Crowns(playerId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crowns[playerId]
}

func (s *Session) RollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollCount
}

// Outcome returns the recorded outcome and whether it is provisional.
func (s *Session) Outcome() (entities.Outcome, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return entities.Outcome{}, false, false
	}
	return *s.outcome, s.provisional, true
}

func (s *Session) OnConnect() {
	// The channel re-announces the bound room via update_connection itself.
	logging.Info("duel connection restored", zap.String("game_id", s.id))
}

func (s *Session) OnDisconnect(err error) {
	logging.Warn("duel lost connection", zap.String("game_id", s.id), zap.Error(err))
}

func (s *Session) OnMessage(msgType string, data json.RawMessage) {
	switch msgType {
	case wire.TypeDiceRolled:
		var ev wire.DiceRolled
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.applyDiceRolled(ev)

	case wire.TypeTurnChanged:
		var ev wire.TurnChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.applyTurnChanged(ev)

	case wire.TypeGameEnded:
		var ev wire.GameEnded
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		reason := entities.ReasonNormal
		if out, prov, ok := s.Outcome(); ok && prov && out.Winner == ev.Winner {
			// Coordinator confirmed our timeout guess; keep its reason.
			reason = out.Reason
		}
		s.finish(ev.Winner, reason, false)

	case wire.TypePlayerLeft:
		s.applyPlayerLeft()

	case wire.TypeError:
		var ev wire.Error
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.applyError(ev)
	}
}

func (s *Session) applyDiceRolled(ev wire.DiceRolled) {
	s.mu.Lock()
	if s.phase == PhaseFinished && !s.provisional {
		s.mu.Unlock()
		return
	}
	if s.provisional {
		s.resumeLocked()
	}
	// Crowns only ever climb and never pass the win threshold; a stale or
	// duplicate report cannot lower them.
	sixes := utils.Clamp(ev.NewSixCount, 0, entities.CrownsToWin)
	if sixes > s.crowns[ev.PlayerId] {
		s.crowns[ev.PlayerId] = sixes
	}
	s.rollCount++
	if ev.PlayerId == s.self.Id {
		s.forced = 0
	}
	s.mu.Unlock()

	logging.Info("dice rolled",
		zap.String("game_id", s.id),
		zap.String("player_id", ev.PlayerId),
		zap.Int("value", ev.DiceValue),
		zap.Int("sixes", ev.NewSixCount),
	)
	if s.handlers.DiceRolled != nil {
		s.handlers.DiceRolled(ev.PlayerId, ev.DiceValue, ev.NewSixCount)
	}
}

func (s *Session) applyTurnChanged(ev wire.TurnChanged) {
	s.mu.Lock()
	if s.phase == PhaseFinished && !s.provisional {
		s.mu.Unlock()
		return
	}
	if s.provisional {
		s.resumeLocked()
	}
	s.turn = ev.NextPlayer
	s.rollInFlight = false
	s.setTimerLocked()
	s.mu.Unlock()

	if s.handlers.TurnChanged != nil {
		s.handlers.TurnChanged(ev.NextPlayer)
	}
}

func (s *Session) applyPlayerLeft() {
	s.mu.Lock()
	active := s.phase == PhasePlaying || s.provisional
	s.mu.Unlock()
	if !active {
		return
	}
	// The departing player forfeits; no further messages are awaited.
	logging.Info("opponent left", zap.String("game_id", s.id))
	s.finish(s.self.Id, entities.ReasonOpponentLeft, false)
}

func (s *Session) applyError(ev wire.Error) {
	s.mu.Lock()
	s.rollInFlight = false
	s.mu.Unlock()

	fatal := ev.Code == wire.CodeGameNotFound || ev.Code == wire.CodeGameFull
	logging.Warn("duel error",
		zap.String("game_id", s.id),
		zap.String("code", ev.Code),
		zap.String("message", ev.Message),
		zap.Bool("fatal", fatal),
	)
	if s.handlers.Error != nil {
		s.handlers.Error(ev.Code, ev.Message, fatal)
	}
}

// localTimeout fires when the roll budget plus grace elapses with no
// authoritative turn change or game end. The resulting outcome is
// provisional: advisory UI only, corrected by any later coordinator message.
func (s *Session) localTimeout() {
	s.mu.Lock()
	if s.phase != PhasePlaying {
		s.mu.Unlock()
		return
	}
	timedOut := s.turn
	opponent := s.opponentLocked()
	s.mu.Unlock()

	logging.Warn("local roll timeout",
		zap.String("game_id", s.id),
		zap.String("timed_out", timedOut),
	)
	if timedOut == s.self.Id {
		s.finish(opponent, entities.ReasonTimeout, true)
	} else {
		s.finish(s.self.Id, entities.ReasonOpponentTimeout, true)
	}
}

func (s *Session) finish(winner string, reason entities.EndReason, provisional bool) {
	s.mu.Lock()
	if s.phase == PhaseFinished && !s.provisional {
		// Outcome is set exactly once; only a provisional guess may be replaced.
		s.mu.Unlock()
		return
	}
	s.phase = PhaseFinished
	s.provisional = provisional
	s.outcome = &entities.Outcome{SessionId: s.id, Winner: winner, Reason: reason}
	outcome := *s.outcome
	stake := s.stake
	s.stopTimerLocked()
	s.mu.Unlock()

	logging.Info("duel finished",
		zap.String("game_id", s.id),
		zap.String("winner", winner),
		zap.String("reason", string(reason)),
		zap.Bool("provisional", provisional),
	)
	summary := s.reporter.Report(outcome, stake, provisional)
	if !provisional {
		s.conn.ClearSession()
	}
	if s.handlers.Finished != nil {
		s.handlers.Finished(summary)
	}
}

// resumeLocked rolls back a provisional timeout outcome because the
// coordinator turned out to still be playing.
func (s *Session) resumeLocked() {
	s.phase = PhasePlaying
	s.provisional = false
	s.outcome = nil
	s.setTimerLocked()
	logging.Info("provisional timeout rolled back", zap.String("game_id", s.id))
}

func (s *Session) opponentLocked() string {
	for _, p := range s.players {
		if p.Id != s.self.Id {
			return p.Id
		}
	}
	return ""
}

func (s *Session) setTimerLocked() {
	d := s.cfg.RollBudget + s.cfg.TimeoutGrace
	if s.timer != nil {
		s.timer.Reset(d)
		return
	}
	s.timer = time.AfterFunc(d, s.localTimeout)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
