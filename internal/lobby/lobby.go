// Package lobby drives pre-game matchmaking: creating a room, joining one by
// code, or queueing for a quick match. It validates stakes as a fast path
// before emitting intents; the coordinator remains the real enforcer.
package lobby

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/pkg/logging"
	"github.com/luckroyale/sixking/pkg/wire"
)

type State uint8

const (
	StateMenu State = iota
	StateCreating
	StateJoining
	StateWaiting
	StateQueued
	StateMatched
)

func (s State) String() string {
	switch s {
	case StateMenu:
		return "MENU"
	case StateCreating:
		return "CREATING"
	case StateJoining:
		return "JOINING"
	case StateWaiting:
		return "WAITING"
	case StateQueued:
		return "QUEUED"
	case StateMatched:
		return "MATCHED"
	default:
		return "UNKNOWN"
	}
}

// Conn is the slice of the transport channel the lobby needs.
type Conn interface {
	Send(msgType string, payload any) error
	SendCritical(msgType string, payload any) error
}

// WalletReader supplies the balance used for the client-side stake check.
type WalletReader interface {
	Balance(ctx context.Context) (int, error)
}

// Seed is the authoritative initial state carried by game_started, the only
// event that hands off to a duel session.
type Seed struct {
	GameId      string
	FirstPlayer string
	Players     []entities.Player
	Stake       int
}

type Handlers struct {
	Waiting func(roomCode string)
	Queued  func()
	Matched func(opponent entities.Player)
	Started func(Seed)
	Error   func(code, message string)
}

type Coordinator struct {
	conn     Conn
	wallet   WalletReader
	player   entities.Player
	minStake int
	handlers Handlers

	mu       sync.Mutex
	state    State
	roomCode string
	stake    int
}

func NewCoordinator(
	conn Conn,
	wallet WalletReader,
	player entities.Player,
	minStake int,
	handlers Handlers,
) *Coordinator {
	return &Coordinator{
		conn:     conn,
		wallet:   wallet,
		player:   player,
		minStake: minStake,
		handlers: handlers,
		state:    StateMenu,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) RoomCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomCode
}

// CreateGame opens a new room at the given stake and waits for an opponent.
func (c *Coordinator) CreateGame(ctx context.Context, stake int) error {
	if err := c.checkStake(ctx, stake); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateMenu {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateCreating
	c.stake = stake
	c.mu.Unlock()

	err := c.conn.Send(wire.TypeCreateGame, wire.CreateGame{
		PlayerId:   c.player.Id,
		PlayerName: c.player.Name,
		Stake:      stake,
		GameType:   wire.GameTypeSixKing,
	})
	if err != nil {
		c.reset()
	}
	return err
}

// JoinGame enters an existing room by its shareable code.
func (c *Coordinator) JoinGame(ctx context.Context, roomCode string, stake int) error {
	roomCode = strings.TrimSpace(roomCode)
	if roomCode == "" {
		return ErrEmptyRoomCode
	}
	if err := c.checkStake(ctx, stake); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateMenu {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateJoining
	c.roomCode = roomCode
	c.stake = stake
	c.mu.Unlock()

	err := c.conn.SendCritical(wire.TypeJoinGame, wire.JoinGame{
		GameId:     roomCode,
		PlayerId:   c.player.Id,
		PlayerName: c.player.Name,
		Stake:      stake,
	})
	if err != nil {
		c.reset()
	}
	return err
}

// QuickMatch asks the coordinator to pair us with any waiting player.
func (c *Coordinator) QuickMatch(ctx context.Context, stake int) error {
	if err := c.checkStake(ctx, stake); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateMenu {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateQueued
	c.stake = stake
	c.mu.Unlock()

	err := c.conn.Send(wire.TypeJoinQueue, wire.JoinQueue{
		PlayerId:   c.player.Id,
		PlayerName: c.player.Name,
		Stake:      stake,
	})
	if err != nil {
		c.reset()
	}
	return err
}

// Cancel abandons any pending room or queue entry and returns to the menu.
// Safe to call from any non-terminal lobby state.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	roomCode := c.roomCode
	state := c.state
	c.state = StateMenu
	c.roomCode = ""
	c.stake = 0
	c.mu.Unlock()

	if state == StateMenu {
		return
	}
	err := c.conn.Send(wire.TypeLeaveGame, wire.LeaveGame{
		GameId:   roomCode,
		PlayerId: c.player.Id,
	})
	if err != nil {
		logging.Warn("cancel leave_game not delivered", zap.Error(err))
	}
}

// Conclude returns to the menu after a handed-off duel has ended. Unlike
// Cancel it tells the coordinator nothing; the room is already gone.
func (c *Coordinator) Conclude() {
	c.reset()
}

// Detach is called when the lobby screen goes away. A room left waiting must
// be released so the coordinator does not orphan it.
func (c *Coordinator) Detach() {
	c.mu.Lock()
	waiting := c.state == StateWaiting || c.state == StateQueued
	c.mu.Unlock()
	if waiting {
		c.Cancel()
	}
}

func (c *Coordinator) OnConnect() {}

func (c *Coordinator) OnDisconnect(err error) {
	logging.Warn("lobby lost connection", zap.Error(err))
}

func (c *Coordinator) OnMessage(msgType string, data json.RawMessage) {
	switch msgType {
	case wire.TypeGameCreated:
		var ev wire.GameCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		c.state = StateWaiting
		c.roomCode = ev.GameId
		c.mu.Unlock()
		logging.Info("room created", zap.String("game_id", ev.GameId))
		if c.handlers.Waiting != nil {
			c.handlers.Waiting(ev.GameId)
		}

	case wire.TypeGameJoined:
		c.mu.Lock()
		c.state = StateWaiting
		c.mu.Unlock()

	case wire.TypePlayerJoined:
		var ev wire.PlayerJoined
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		roomCode := c.roomCode
		c.mu.Unlock()
		logging.Info("opponent joined",
			zap.String("game_id", roomCode),
			zap.String("opponent", ev.Player.Id),
		)
		// Room now has both players; ask the coordinator to begin.
		if err := c.conn.SendCritical(wire.TypeStartGame, wire.StartGame{
			GameId:   roomCode,
			PlayerId: c.player.Id,
		}); err != nil {
			logging.Warn("start_game not delivered", zap.Error(err))
		}

	case wire.TypeQueued:
		c.mu.Lock()
		c.state = StateQueued
		c.mu.Unlock()
		if c.handlers.Queued != nil {
			c.handlers.Queued()
		}

	case wire.TypeGameMatched:
		// Pairing announcement only; the duel is seeded by game_started.
		var ev wire.GameMatched
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		c.state = StateMatched
		c.mu.Unlock()
		if c.handlers.Matched != nil {
			c.handlers.Matched(entities.Player{Id: ev.Opponent.Id, Name: ev.Opponent.Name})
		}

	case wire.TypeGameStarted:
		var ev wire.GameStarted
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		seed := Seed{
			GameId:      ev.GameId,
			FirstPlayer: ev.FirstPlayer,
			Stake:       ev.Stake,
		}
		for _, p := range ev.Players {
			seed.Players = append(seed.Players, entities.Player{Id: p.Id, Name: p.Name})
		}
		c.mu.Lock()
		c.state = StateMatched
		c.roomCode = ev.GameId
		c.mu.Unlock()
		logging.Info("game started",
			zap.String("game_id", ev.GameId),
			zap.String("first_player", ev.FirstPlayer),
		)
		if c.handlers.Started != nil {
			c.handlers.Started(seed)
		}

	case wire.TypeError:
		var ev wire.Error
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		if c.state == StateMatched {
			// The duel owns error events after handoff.
			c.mu.Unlock()
			return
		}
		c.state = StateMenu
		c.roomCode = ""
		c.mu.Unlock()
		logging.Warn("lobby error",
			zap.String("code", ev.Code),
			zap.String("message", ev.Message),
		)
		if c.handlers.Error != nil {
			c.handlers.Error(ev.Code, UserMessage(ev.Code, ev.Message))
		}
	}
	// Game-session events (dice_rolled, turn_changed, ...) are not ours.
}

func (c *Coordinator) checkStake(ctx context.Context, stake int) error {
	if stake < c.minStake {
		return ErrStakeTooLow
	}
	balance, err := c.wallet.Balance(ctx)
	if err != nil {
		// Let the coordinator enforce; the local check is only a fast path.
		logging.Warn("balance check unavailable", zap.Error(err))
		return nil
	}
	if stake > balance {
		return ErrInsufficientBalance
	}
	return nil
}

func (c *Coordinator) reset() {
	c.mu.Lock()
	c.state = StateMenu
	c.roomCode = ""
	c.stake = 0
	c.mu.Unlock()
}

// UserMessage maps typed coordinator errors to display copy.
func UserMessage(code, fallback string) string {
	switch code {
	case wire.CodeGameNotFound:
		return "Game not found. Please check the room code."
	case wire.CodeGameFull:
		return "This game already has two players."
	case wire.CodeStakeMismatch:
		return "Your stake doesn't match this room."
	default:
		if fallback != "" {
			return fallback
		}
		return "Something went wrong. Please try again."
	}
}
