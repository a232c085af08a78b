// Package coordinatortest is an in-memory session coordinator implementing
// the Six King wire contract. It exists to exercise the client against the
// protocol in integration tests and manual runs; it keeps no state beyond
// the process and is not a production server.
package coordinatortest

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/pkg/logging"
	"github.com/luckroyale/sixking/pkg/wire"
)

type client struct {
	id   string
	name string
	room *room

	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msgType string, payload any) {
	raw, err := wire.Marshal(msgType, payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		logging.Error("couldn't notify player", zap.String("player_id", c.id), zap.Error(err))
	}
}

func (c *client) sendError(code, message string) {
	c.send(wire.TypeError, wire.Error{Code: code, Message: message})
}

func (c *client) rebind(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

type Server struct {
	address  string
	upgrader websocket.Upgrader
	config   Config

	mu     sync.Mutex
	rooms  map[string]*room
	queued []queueEntry
}

type queueEntry struct {
	cli   *client
	stake int
}

func NewServer(cfg Config) *Server {
	return &Server{
		address: "0.0.0.0:" + cfg.withDefaults().Port,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		config: cfg.withDefaults(),
		rooms:  make(map[string]*room),
	}
}

// Handler exposes the websocket endpoint for mounting under httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/game", s.handleConn)
	return mux
}

// Start runs the coordinator until the listener fails.
func (s *Server) Start() error {
	logging.Info("test coordinator started", zap.String("port", s.config.Port))
	return http.ListenAndServe(s.address, s.Handler())
}

func (s *Server) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	cli := &client{conn: conn}
	cli.send(wire.TypeConnected, wire.Connected{Message: "welcome"})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logging.Info("unexpected connection close",
					zap.String("remote_address", conn.RemoteAddr().String()),
					zap.Error(err),
				)
			}
			s.handleDisconnect(cli, conn)
			break
		}
		var env wire.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			conn.Close()
			break
		}
		s.handleMessage(cli, conn, env)
	}
}

func (s *Server) handleMessage(cli *client, conn *websocket.Conn, env wire.Envelope) {
	switch env.Type {
	case wire.TypePing:
		cli.send(wire.TypePong, wire.Pong{Timestamp: time.Now().UnixMilli()})

	case wire.TypeCreateGame:
		var in wire.CreateGame
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		if in.Stake < s.config.MinStake {
			cli.sendError(wire.CodeStakeMismatch, "stake below minimum")
			return
		}
		cli.id, cli.name = in.PlayerId, in.PlayerName
		room := newRoom(in.Stake, s.config.TurnTimeout, s.removeRoom)
		room.seat(cli)
		cli.room = room
		s.mu.Lock()
		s.rooms[room.id] = room
		s.mu.Unlock()
		cli.send(wire.TypeGameCreated, wire.GameCreated{GameId: room.id})
		logging.Info("room created",
			zap.String("room_id", room.id),
			zap.String("player_id", cli.id),
		)

	case wire.TypeJoinGame:
		var in wire.JoinGame
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		cli.id, cli.name = in.PlayerId, in.PlayerName
		s.mu.Lock()
		room, ok := s.rooms[in.GameId]
		s.mu.Unlock()
		if !ok || room.isEnded() {
			cli.sendError(wire.CodeGameNotFound, "no such game")
			return
		}
		if in.Stake != room.stake {
			cli.sendError(wire.CodeStakeMismatch, "stake does not match room")
			return
		}
		host := room.roster()[0]
		if !room.seat(cli) {
			cli.sendError(wire.CodeGameFull, "game already has two players")
			return
		}
		cli.room = room
		cli.send(wire.TypeGameJoined, struct{}{})
		host.send(wire.TypePlayerJoined, wire.PlayerJoined{
			Player: wire.PlayerInfo{Id: cli.id, Name: cli.name},
		})

	case wire.TypeJoinQueue:
		var in wire.JoinQueue
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		cli.id, cli.name = in.PlayerId, in.PlayerName
		s.matchmake(cli, in.Stake)

	case wire.TypeStartGame:
		if cli.room != nil {
			cli.room.post(event{kind: evStart})
		}

	case wire.TypeRollDice:
		var in wire.RollDice
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		if cli.room == nil {
			cli.sendError(wire.CodeGameNotFound, "no active game")
			return
		}
		// "*" opens the override to everyone, for scripted duels.
		forced := 0
		if cli.id == s.config.AdminPlayerId || s.config.AdminPlayerId == "*" {
			forced = in.AdminDiceValue
		}
		cli.room.post(event{kind: evRoll, cli: cli, forced: forced})

	case wire.TypeLeaveGame:
		s.dequeue(cli)
		if cli.room != nil {
			cli.room.post(event{kind: evLeave, cli: cli})
			cli.room = nil
		}

	case wire.TypeUpdateConnection:
		var in wire.UpdateConnection
		if json.Unmarshal(env.Data, &in) != nil {
			return
		}
		s.mu.Lock()
		room, ok := s.rooms[in.GameId]
		s.mu.Unlock()
		if !ok {
			cli.sendError(wire.CodeGameNotFound, "no such game")
			return
		}
		for _, p := range room.roster() {
			if p.id == in.PlayerId {
				p.rebind(conn)
				cli.id = in.PlayerId
				cli.room = room
			}
		}

	default:
		logging.Info("invalid payload type", zap.String("type", env.Type))
	}
}

// matchmake pairs two queued players at the same stake into a fresh room and
// starts it immediately.
func (s *Server) matchmake(cli *client, stake int) {
	s.mu.Lock()
	var waiting *client
	for i, entry := range s.queued {
		if entry.stake == stake && entry.cli != cli && entry.cli.room == nil {
			waiting = entry.cli
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			break
		}
	}
	if waiting == nil {
		s.queued = append(s.queued, queueEntry{cli: cli, stake: stake})
		s.mu.Unlock()
		cli.send(wire.TypeQueued, wire.Queued{Message: "searching for opponent"})
		return
	}
	room := newRoom(stake, s.config.TurnTimeout, s.removeRoom)
	room.seat(waiting)
	room.seat(cli)
	waiting.room = room
	cli.room = room
	s.rooms[room.id] = room
	s.mu.Unlock()

	waiting.send(wire.TypeGameMatched, wire.GameMatched{
		Opponent: wire.PlayerInfo{Id: cli.id, Name: cli.name},
	})
	cli.send(wire.TypeGameMatched, wire.GameMatched{
		Opponent: wire.PlayerInfo{Id: waiting.id, Name: waiting.name},
	})
	room.post(event{kind: evStart})
}

// handleDisconnect forfeits the player's room only after a grace period, so
// a reconnect followed by update_connection keeps the duel alive.
func (s *Server) handleDisconnect(cli *client, conn *websocket.Conn) {
	s.dequeue(cli)
	logging.Info("player disconnected", zap.String("player_id", cli.id))

	room := cli.room
	if room == nil || room.isEnded() {
		return
	}
	var player *client
	for _, p := range room.roster() {
		if p.id == cli.id {
			player = p
		}
	}
	if player == nil {
		return
	}
	player.mu.Lock()
	if player.conn == conn {
		player.conn = nil
	}
	player.mu.Unlock()

	time.AfterFunc(s.config.DisconnectGrace, func() {
		player.mu.Lock()
		gone := player.conn == nil
		player.mu.Unlock()
		if gone && !room.isEnded() {
			room.post(event{kind: evDisconnect, cli: player})
		}
	})
}

func (s *Server) dequeue(cli *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.queued {
		if entry.cli == cli {
			s.queued = append(s.queued[:i], s.queued[i+1:]...)
			return
		}
	}
}

func (s *Server) removeRoom(r *room) {
	s.mu.Lock()
	delete(s.rooms, r.id)
	s.mu.Unlock()
}
