// Package client wires the transport, lobby, duel, and settlement layers
// into an interactive terminal harness for playing Six King duels against a
// coordinator.
package client

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luckroyale/sixking/internal/domains/entities"
	"github.com/luckroyale/sixking/internal/duel"
	"github.com/luckroyale/sixking/internal/lobby"
	"github.com/luckroyale/sixking/internal/rest"
	"github.com/luckroyale/sixking/internal/settlement"
	"github.com/luckroyale/sixking/internal/transport"
	"github.com/luckroyale/sixking/pkg/logging"
)

type App struct {
	config   Config
	player   entities.Player
	channel  *transport.Channel
	rest     *rest.Client
	reporter *settlement.Reporter
	lobby    *lobby.Coordinator

	mu      sync.Mutex
	session *duel.Session
}

func NewApp() *App {
	cfg := NewConfig()
	restClient := rest.NewClient(cfg.RestBaseUrl, cfg.AuthToken)

	player, err := restClient.Profile(context.Background())
	if err != nil {
		logging.Warn("profile unavailable, playing as guest", zap.Error(err))
		player = entities.Player{Id: cfg.PlayerId, Name: cfg.PlayerName}
		if player.Id == "" {
			player.Id = uuid.NewString()
		}
		if player.Name == "" {
			player.Name = "guest"
		}
	}

	app := &App{
		config:   cfg,
		player:   player,
		channel:  transport.NewChannel(transport.Config{URL: cfg.CoordinatorUrl}),
		rest:     restClient,
		reporter: settlement.NewReporter(player.Id, restClient),
	}
	app.lobby = lobby.NewCoordinator(
		app.channel,
		restClient,
		player,
		cfg.MinStake,
		lobby.Handlers{
			Waiting: func(roomCode string) {
				fmt.Printf("room %s created, share the code and wait\n", roomCode)
			},
			Queued: func() {
				fmt.Println("searching for an opponent...")
			},
			Matched: func(op entities.Player) {
				fmt.Printf("matched with %s\n", op.Name)
			},
			Started: app.startSession,
			Error: func(code, message string) {
				fmt.Println(message)
			},
		},
	)
	return app
}

func (a *App) startSession(seed lobby.Seed) {
	session := duel.NewSession(
		a.channel,
		a.reporter,
		duel.Config{RollBudget: a.config.RollBudget, TimeoutGrace: a.config.TimeoutGrace},
		a.player,
		duel.Seed{
			GameId:      seed.GameId,
			FirstPlayer: seed.FirstPlayer,
			Players:     seed.Players,
			Stake:       seed.Stake,
		},
		false,
		duel.Handlers{
			DiceRolled: func(playerId string, value, sixes int) {
				who := "opponent"
				if playerId == a.player.Id {
					who = "you"
				}
				fmt.Printf("%s rolled %d (crowns: %d)\n", who, value, sixes)
			},
			TurnChanged: func(playerId string) {
				if playerId == a.player.Id {
					fmt.Println("your turn, type 'roll'")
				} else {
					fmt.Println("opponent's turn")
				}
			},
			Finished: a.showResult,
			Error: func(code, message string, fatal bool) {
				fmt.Println(message)
				if fatal {
					a.endSession()
				}
			},
		},
	)

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.channel.Register("duel", session)
	session.Begin()

	// The privilege lookup is a blocking HTTP call; it must not hold up the
	// handoff or the opponent's first roll would be missed.
	go func() {
		if a.rest.IsPrivileged(context.Background(), a.player.Id) {
			session.SetPrivileged(true)
		}
	}()

	if seed.FirstPlayer == a.player.Id {
		fmt.Println("duel started, you roll first")
	} else {
		fmt.Println("duel started, opponent rolls first")
	}
}

func (a *App) showResult(summary entities.ResultSummary) {
	verdict := "lost"
	if summary.Won {
		verdict = "won"
	}
	note := ""
	if summary.Provisional {
		note = " (awaiting confirmation)"
	}
	fmt.Printf("you %s %d (%s)%s\n", verdict, summary.Amount, summary.Reason, note)
	if !summary.Provisional {
		a.endSession()
	}
}

func (a *App) endSession() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.channel.Unregister("duel")
	// Free the lobby so the next create/join/quick works.
	a.lobby.Conclude()
}

func (a *App) currentSession() *duel.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Run connects and serves the interactive prompt until quit or EOF.
func (a *App) Run() error {
	a.channel.Register("lobby", a.lobby)
	defer a.channel.Unregister("lobby")
	if err := a.channel.Connect(); err != nil {
		return err
	}
	defer a.channel.Close()

	fmt.Printf("connected as %s (%s)\n", a.player.Name, a.player.Id)
	fmt.Println("commands: create <stake> | join <code> <stake> | quick <stake> | cancel | roll | force <1-6> | leave | balance | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if quit := a.dispatch(strings.Fields(scanner.Text())); quit {
			break
		}
	}
	if session := a.currentSession(); session != nil {
		session.Leave()
	} else {
		a.lobby.Detach()
	}
	return scanner.Err()
}

func (a *App) dispatch(args []string) (quit bool) {
	if len(args) == 0 {
		return false
	}
	ctx := context.Background()
	switch args[0] {
	case "create":
		stake, ok := stakeArg(args, 1)
		if !ok {
			return false
		}
		a.report(a.lobby.CreateGame(ctx, stake))
	case "join":
		if len(args) < 3 {
			fmt.Println("usage: join <code> <stake>")
			return false
		}
		stake, ok := stakeArg(args, 2)
		if !ok {
			return false
		}
		a.report(a.lobby.JoinGame(ctx, args[1], stake))
	case "quick":
		stake, ok := stakeArg(args, 1)
		if !ok {
			return false
		}
		a.report(a.lobby.QuickMatch(ctx, stake))
	case "cancel":
		a.lobby.Cancel()
	case "roll":
		if session := a.currentSession(); session != nil {
			a.report(session.Roll())
		} else {
			fmt.Println("no duel in progress")
		}
	case "force":
		session := a.currentSession()
		if session == nil {
			fmt.Println("no duel in progress")
			return false
		}
		v, err := strconv.Atoi(argAt(args, 1))
		if err != nil {
			fmt.Println("usage: force <1-6>")
			return false
		}
		a.report(session.SetForcedValue(v))
	case "leave":
		if session := a.currentSession(); session != nil {
			session.Leave()
		}
	case "balance":
		balance, err := a.rest.Balance(ctx)
		if err != nil {
			fmt.Println("balance unavailable")
		} else {
			fmt.Printf("balance: %d\n", balance)
		}
	case "quit", "exit":
		return true
	default:
		fmt.Println("unknown command")
	}
	return false
}

func (a *App) report(err error) {
	if err != nil {
		fmt.Println(err)
	}
}

func stakeArg(args []string, idx int) (int, bool) {
	stake, err := strconv.Atoi(argAt(args, idx))
	if err != nil || stake <= 0 {
		fmt.Println("stake must be a positive number")
		return 0, false
	}
	return stake, true
}

func argAt(args []string, idx int) string {
	if idx >= len(args) {
		return ""
	}
	return args[idx]
}
