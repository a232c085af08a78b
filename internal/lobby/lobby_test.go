package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/pkg/wire"
)

var player = entities.Player{Id: "p1", Name: "Asha"}

type sentMsg struct {
	msgType string
	payload any
}

type fakeConn struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (c *fakeConn) Send(msgType string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMsg{msgType, payload})
	return nil
}

func (c *fakeConn) SendCritical(msgType string, payload any) error {
	return c.Send(msgType, payload)
}

func (c *fakeConn) last() (sentMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sentMsg{}, false
	}
	return c.sent[len(c.sent)-1], true
}

type fakeWallet struct {
	balance int
	err     error
}

func (w *fakeWallet) Balance(context.Context) (int, error) {
	return w.balance, w.err
}

type captured struct {
	mu       sync.Mutex
	waiting  []string
	seeds    []Seed
	errCodes []string
	errCopy  []string
	queued   int
}

func fixture(balance int) (*Coordinator, *fakeConn, *captured) {
	conn := &fakeConn{}
	cap := &captured{}
	c := NewCoordinator(conn, &fakeWallet{balance: balance}, player, 10, Handlers{
		Waiting: func(code string) {
			cap.mu.Lock()
			cap.waiting = append(cap.waiting, code)
			cap.mu.Unlock()
		},
		Queued: func() {
			cap.mu.Lock()
			cap.queued++
			cap.mu.Unlock()
		},
		Started: func(seed Seed) {
			cap.mu.Lock()
			cap.seeds = append(cap.seeds, seed)
			cap.mu.Unlock()
		},
		Error: func(code, message string) {
			cap.mu.Lock()
			cap.errCodes = append(cap.errCodes, code)
			cap.errCopy = append(cap.errCopy, message)
			cap.mu.Unlock()
		},
	})
	return c, conn, cap
}

func deliver(t *testing.T, c *Coordinator, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	c.OnMessage(msgType, raw)
}

func TestCreateGame_StakeValidation(t *testing.T) {
	c, conn, _ := fixture(500)

	assert.ErrorIs(t, c.CreateGame(context.Background(), 5), ErrStakeTooLow)
	assert.ErrorIs(t, c.CreateGame(context.Background(), 600), ErrInsufficientBalance)
	_, sentAny := conn.last()
	assert.False(t, sentAny)
	assert.Equal(t, StateMenu, c.State())
}

func TestCreateGame_BalanceCheckIsOnlyAFastPath(t *testing.T) {
	conn := &fakeConn{}
	c := NewCoordinator(conn, &fakeWallet{err: errors.New("wallet down")}, player, 10, Handlers{})

	// The coordinator enforces for real; an unreachable wallet must not
	// block play.
	require.NoError(t, c.CreateGame(context.Background(), 100))
	msg, ok := conn.last()
	require.True(t, ok)
	assert.Equal(t, wire.TypeCreateGame, msg.msgType)
}

func TestCreateGame_FlowToWaiting(t *testing.T) {
	c, conn, cap := fixture(500)

	require.NoError(t, c.CreateGame(context.Background(), 100))
	assert.Equal(t, StateCreating, c.State())

	msg, _ := conn.last()
	payload := msg.payload.(wire.CreateGame)
	assert.Equal(t, "p1", payload.PlayerId)
	assert.Equal(t, 100, payload.Stake)
	assert.Equal(t, wire.GameTypeSixKing, payload.GameType)

	deliver(t, c, wire.TypeGameCreated, wire.GameCreated{GameId: "ABCD12"})
	assert.Equal(t, StateWaiting, c.State())
	assert.Equal(t, "ABCD12", c.RoomCode())
	assert.Equal(t, []string{"ABCD12"}, cap.waiting)
}

func TestPlayerJoined_TriggersStartGame(t *testing.T) {
	c, conn, _ := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameCreated, wire.GameCreated{GameId: "ABCD12"})

	deliver(t, c, wire.TypePlayerJoined, wire.PlayerJoined{
		Player: wire.PlayerInfo{Id: "p2", Name: "Ravi"},
	})

	msg, _ := conn.last()
	require.Equal(t, wire.TypeStartGame, msg.msgType)
	start := msg.payload.(wire.StartGame)
	assert.Equal(t, "ABCD12", start.GameId)
	assert.Equal(t, "p1", start.PlayerId)
}

func TestGameStarted_HandsOffSeed(t *testing.T) {
	c, _, cap := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))

	deliver(t, c, wire.TypeGameStarted, wire.GameStarted{
		GameId:      "ABCD12",
		FirstPlayer: "p1",
		Players: []wire.PlayerInfo{
			{Id: "p1", Name: "Asha"},
			{Id: "p2", Name: "Ravi"},
		},
		Stake: 100,
	})

	require.Len(t, cap.seeds, 1)
	seed := cap.seeds[0]
	assert.Equal(t, "ABCD12", seed.GameId)
	assert.Equal(t, "p1", seed.FirstPlayer)
	assert.Equal(t, 100, seed.Stake)
	require.Len(t, seed.Players, 2)
	assert.Equal(t, StateMatched, c.State())
}

func TestQuickMatch_QueuedThenStarted(t *testing.T) {
	c, conn, cap := fixture(500)

	require.NoError(t, c.QuickMatch(context.Background(), 50))
	msg, _ := conn.last()
	assert.Equal(t, wire.TypeJoinQueue, msg.msgType)

	deliver(t, c, wire.TypeQueued, wire.Queued{Message: "searching"})
	assert.Equal(t, 1, cap.queued)
	assert.Equal(t, StateQueued, c.State())

	// Pairing alone does not start anything.
	deliver(t, c, wire.TypeGameMatched, wire.GameMatched{
		Opponent: wire.PlayerInfo{Id: "p2", Name: "Ravi"},
	})
	assert.Empty(t, cap.seeds)
	assert.Equal(t, StateMatched, c.State())

	deliver(t, c, wire.TypeGameStarted, wire.GameStarted{
		GameId:      "QQRR34",
		FirstPlayer: "p2",
		Players: []wire.PlayerInfo{
			{Id: "p1", Name: "Asha"},
			{Id: "p2", Name: "Ravi"},
		},
		Stake: 50,
	})
	require.Len(t, cap.seeds, 1)
}

func TestJoinGame_Validation(t *testing.T) {
	c, _, _ := fixture(500)

	assert.ErrorIs(t, c.JoinGame(context.Background(), "  ", 100), ErrEmptyRoomCode)
	assert.ErrorIs(t, c.JoinGame(context.Background(), "ABCD12", 5), ErrStakeTooLow)
}

func TestJoinGame_NotFoundReturnsToMenu(t *testing.T) {
	c, _, cap := fixture(500)
	require.NoError(t, c.JoinGame(context.Background(), "ZZZZ99", 100))
	assert.Equal(t, StateJoining, c.State())

	deliver(t, c, wire.TypeError, wire.Error{Code: wire.CodeGameNotFound, Message: "no such game"})

	assert.Equal(t, StateMenu, c.State())
	require.Len(t, cap.errCodes, 1)
	assert.Equal(t, wire.CodeGameNotFound, cap.errCodes[0])
	assert.Equal(t, "Game not found. Please check the room code.", cap.errCopy[0])
}

func TestErrorCopyMapping(t *testing.T) {
	assert.Equal(t, "This game already has two players.", UserMessage(wire.CodeGameFull, ""))
	assert.Equal(t, "Your stake doesn't match this room.", UserMessage(wire.CodeStakeMismatch, ""))
	assert.Equal(t, "server said so", UserMessage("SOMETHING_ELSE", "server said so"))
	assert.Equal(t, "Something went wrong. Please try again.", UserMessage("SOMETHING_ELSE", ""))
}

func TestBusyGuard(t *testing.T) {
	c, _, _ := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	assert.ErrorIs(t, c.QuickMatch(context.Background(), 100), ErrBusy)
}

func TestCancel_ReleasesRoom(t *testing.T) {
	c, conn, _ := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameCreated, wire.GameCreated{GameId: "ABCD12"})

	c.Cancel()

	assert.Equal(t, StateMenu, c.State())
	msg, _ := conn.last()
	require.Equal(t, wire.TypeLeaveGame, msg.msgType)
	assert.Equal(t, "ABCD12", msg.payload.(wire.LeaveGame).GameId)
}

func TestCancel_FromMenuIsNoop(t *testing.T) {
	c, conn, _ := fixture(500)
	c.Cancel()
	_, sentAny := conn.last()
	assert.False(t, sentAny)
}

func TestDetach_LeavesWaitingRoom(t *testing.T) {
	c, conn, _ := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameCreated, wire.GameCreated{GameId: "ABCD12"})

	c.Detach()

	msg, _ := conn.last()
	assert.Equal(t, wire.TypeLeaveGame, msg.msgType)
}

func startedSeed(gameId string) wire.GameStarted {
	return wire.GameStarted{
		GameId:      gameId,
		FirstPlayer: "p1",
		Players: []wire.PlayerInfo{
			{Id: "p1", Name: "Asha"},
			{Id: "p2", Name: "Ravi"},
		},
		Stake: 100,
	}
}

func TestConclude_FreesLobbyForNextGame(t *testing.T) {
	c, conn, cap := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameStarted, startedSeed("ABCD12"))
	require.Equal(t, StateMatched, c.State())

	// The duel ended; the room is gone, so nothing must be sent.
	c.Conclude()

	assert.Equal(t, StateMenu, c.State())
	assert.Empty(t, c.RoomCode())
	msg, _ := conn.last()
	assert.NotEqual(t, wire.TypeLeaveGame, msg.msgType)

	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameStarted, startedSeed("EFGH34"))
	require.Len(t, cap.seeds, 2)
	assert.Equal(t, "EFGH34", cap.seeds[1].GameId)
}

func TestErrorAfterHandoffIgnored(t *testing.T) {
	c, _, cap := fixture(500)
	require.NoError(t, c.CreateGame(context.Background(), 100))
	deliver(t, c, wire.TypeGameStarted, startedSeed("ABCD12"))

	// In-game errors belong to the duel session, not the lobby.
	deliver(t, c, wire.TypeError, wire.Error{Code: wire.CodeWrongTurn, Message: "not your turn"})

	assert.Empty(t, cap.errCodes)
	assert.Equal(t, StateMatched, c.State())
}

func TestIrrelevantMessagesIgnored(t *testing.T) {
	c, _, cap := fixture(500)
	deliver(t, c, wire.TypeDiceRolled, wire.DiceRolled{PlayerId: "p2", DiceValue: 6, NewSixCount: 1})
	assert.Equal(t, StateMenu, c.State())
	assert.Empty(t, cap.errCodes)
}
