package coordinatortest

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/pkg/logging"
	"github.com/luckroyale/sixking/pkg/utils"
	"github.com/luckroyale/sixking/pkg/wire"
)

type eventKind uint8

const (
	evStart eventKind = iota
	evRoll
	evLeave
	evDisconnect
	evTimeout
)

type event struct {
	kind   eventKind
	cli    *client
	forced int
}

type room struct {
	id      string
	stake   int
	players []*client
	turnIdx int
	crowns  map[string]int
	rolls   int
	started bool
	eventCh chan event
	timer   *time.Timer

	turnTimeout time.Duration
	onEnd       func(*room)

	ended bool
	mu    sync.Mutex
}

func newRoom(stake int, turnTimeout time.Duration, onEnd func(*room)) *room {
	r := &room{
		id:          utils.NewRoomCode(6),
		stake:       stake,
		crowns:      make(map[string]int),
		eventCh:     make(chan event, 16),
		turnTimeout: turnTimeout,
		onEnd:       onEnd,
	}
	go r.run()
	return r
}

func (r *room) run() {
	for ev := range r.eventCh {
		switch ev.kind {
		case evStart:
			r.handleStart()
		case evRoll:
			r.handleRoll(ev.cli, ev.forced)
		case evLeave, evDisconnect:
			r.handleLeave(ev.cli)
		case evTimeout:
			r.handleTimeout()
		}
	}
}

// seat adds a player, refusing when the room already holds two. Joins come in
// on connection-handler goroutines while the room goroutine reads the roster,
// so both go through mu.
func (r *room) seat(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.players) >= 2 {
		return false
	}
	r.players = append(r.players, c)
	return true
}

func (r *room) roster() []*client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*client(nil), r.players...)
}

func (r *room) post(ev event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return
	}
	select {
	case r.eventCh <- ev:
	default:
		// Room loop is wedged; drop the event, the turn timer reclaims it.
	}
}

func (r *room) handleStart() {
	players := r.roster()
	if r.started || len(players) != 2 {
		return
	}
	r.started = true
	r.turnIdx = rand.IntN(2)
	first := players[r.turnIdx]
	roster := []wire.PlayerInfo{
		{Id: players[0].id, Name: players[0].name},
		{Id: players[1].id, Name: players[1].name},
	}
	r.broadcast(wire.TypeGameStarted, wire.GameStarted{
		GameId:      r.id,
		FirstPlayer: first.id,
		Players:     roster,
		Stake:       r.stake,
	})
	r.setTimer()
	logging.Info("room started",
		zap.String("room_id", r.id),
		zap.String("first_player", first.id),
	)
}

func (r *room) handleRoll(cli *client, forced int) {
	if !r.started {
		cli.sendError(wire.CodeNotPlaying, "game has not started")
		return
	}
	players := r.roster()
	current := players[r.turnIdx]
	if cli.id != current.id {
		cli.sendError(wire.CodeWrongTurn, "not your turn")
		return
	}

	value := rand.IntN(6) + 1
	if forced >= 1 && forced <= 6 {
		value = forced
	}
	if value == 6 {
		r.crowns[cli.id]++
	}
	r.rolls++
	r.broadcast(wire.TypeDiceRolled, wire.DiceRolled{
		PlayerId:    cli.id,
		DiceValue:   value,
		NewSixCount: r.crowns[cli.id],
	})

	if r.crowns[cli.id] >= entities.CrownsToWin {
		r.broadcast(wire.TypeGameEnded, wire.GameEnded{Winner: cli.id})
		r.end()
		return
	}

	r.turnIdx = 1 - r.turnIdx
	r.broadcast(wire.TypeTurnChanged, wire.TurnChanged{
		NextPlayer: players[r.turnIdx].id,
	})
	r.setTimer()
}

func (r *room) handleLeave(cli *client) {
	for _, p := range r.roster() {
		if p.id != cli.id {
			p.send(wire.TypePlayerLeft, struct{}{})
		}
	}
	r.end()
}

func (r *room) handleTimeout() {
	if !r.started {
		// Nobody ever showed up to start; just reclaim the room.
		r.end()
		return
	}
	winner := r.roster()[1-r.turnIdx]
	logging.Info("turn timeout",
		zap.String("room_id", r.id),
		zap.String("winner", winner.id),
	)
	r.broadcast(wire.TypeGameEnded, wire.GameEnded{Winner: winner.id})
	r.end()
}

func (r *room) broadcast(msgType string, payload any) {
	for _, p := range r.roster() {
		p.send(msgType, payload)
	}
}

func (r *room) end() {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	// post also holds mu, so nothing can send once the channel closes.
	close(r.eventCh)
	r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}
	r.onEnd(r)
	logging.Info("room ended", zap.String("room_id", r.id))
}

func (r *room) isEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *room) setTimer() {
	if r.timer != nil {
		r.timer.Reset(r.turnTimeout)
		return
	}
	r.timer = time.AfterFunc(r.turnTimeout, func() {
		r.post(event{kind: evTimeout})
	})
}
