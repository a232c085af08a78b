// Package wire defines the message envelope and payloads exchanged with the
// session coordinator. Both directions use {"type": ..., "data": ...}.
package wire

import "encoding/json"

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client -> Coordinator intent types.
const (
	TypeCreateGame       = "create_game"
	TypeJoinGame         = "join_game"
	TypeJoinQueue        = "join_queue"
	TypeStartGame        = "start_game"
	TypeRollDice         = "roll_dice"
	TypeLeaveGame        = "leave_game"
	TypeUpdateConnection = "update_connection"
	TypePing             = "ping"
)

// Coordinator -> Client event types.
const (
	TypeConnected    = "connected"
	TypeGameCreated  = "game_created"
	TypeGameJoined   = "game_joined"
	TypePlayerJoined = "player_joined"
	TypeQueued       = "queued"
	TypeGameMatched  = "game_matched"
	TypeGameStarted  = "game_started"
	TypeDiceRolled   = "dice_rolled"
	TypeTurnChanged  = "turn_changed"
	TypeGameEnded    = "game_ended"
	TypePlayerLeft   = "player_left"
	TypeError        = "error"
	TypePong         = "pong"
)

// Typed error codes carried by TypeError events.
const (
	CodeGameNotFound  = "GAME_NOT_FOUND"
	CodeGameFull      = "GAME_FULL"
	CodeStakeMismatch = "STAKE_MISMATCH"
	CodeWrongTurn     = "WRONG_TURN"
	CodeNotPlaying    = "NOT_PLAYING"
)

// GameTypeSixKing is the only game coordinated over this protocol.
const GameTypeSixKing = "six_king"

type PlayerInfo struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type CreateGame struct {
	PlayerId   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Stake      int    `json:"stake"`
	GameType   string `json:"gameType"`
}

type JoinGame struct {
	GameId     string `json:"gameId"`
	PlayerId   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Stake      int    `json:"stake"`
}

type JoinQueue struct {
	PlayerId   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Stake      int    `json:"stake"`
}

type StartGame struct {
	GameId   string `json:"gameId"`
	PlayerId string `json:"playerId"`
}

type RollDice struct {
	GameId         string `json:"gameId"`
	PlayerId       string `json:"playerId"`
	AdminDiceValue int    `json:"adminDiceValue,omitempty"`
}

type LeaveGame struct {
	GameId     string `json:"gameId"`
	PlayerId   string `json:"playerId"`
	OpponentId string `json:"opponentId,omitempty"`
	Stake      int    `json:"stake,omitempty"`
}

type UpdateConnection struct {
	GameId   string `json:"gameId"`
	PlayerId string `json:"playerId"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Connected struct {
	Message string `json:"message"`
}

type GameCreated struct {
	GameId string `json:"gameId"`
}

type PlayerJoined struct {
	Player PlayerInfo `json:"player"`
}

type Queued struct {
	Message string `json:"message"`
}

type GameMatched struct {
	Opponent PlayerInfo `json:"opponent"`
}

type GameStarted struct {
	GameId      string       `json:"gameId"`
	FirstPlayer string       `json:"firstPlayer"`
	Players     []PlayerInfo `json:"players"`
	Stake       int          `json:"stake"`
}

type DiceRolled struct {
	PlayerId    string `json:"playerId"`
	DiceValue   int    `json:"diceValue"`
	NewSixCount int    `json:"newSixCount"`
}

type TurnChanged struct {
	NextPlayer string `json:"nextPlayer"`
}

type GameEnded struct {
	Winner string `json:"winner"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// Marshal wraps a payload in an envelope, returning the raw bytes to write.
func Marshal(msgType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: data})
}
