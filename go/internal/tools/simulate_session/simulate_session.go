package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/clients/hub_api_client"
	"github.com/mcdev12/hotseat/go/internal/client"
	"github.com/mcdev12/hotseat/go/internal/session"
	"github.com/mcdev12/hotseat/go/internal/session/gateway"
	"github.com/mcdev12/hotseat/go/internal/session/hub"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

// Spins up an in-process hub and plays a full session with scripted
// participants. Useful as a smoke test for the whole stack without any
// external infrastructure.
func main() {
	participants := flag.Int("participants", 4, "number of scripted participants")
	scriptPath := flag.String("script", "", "phase script YAML file (default: built-in 3 question quiz)")
	timeout := flag.Duration("timeout", 60*time.Second, "abort if the session has not ended by then")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	script, err := loadScript(*scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load script: %v\n", err)
		os.Exit(1)
	}
	if *participants < 1 {
		fmt.Fprintln(os.Stderr, "need at least one participant")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// In-process hub on an ephemeral port.
	h := hub.NewHub(clockwork.NewRealClock(), nil, store.NewMemoryStore())
	svc := gateway.NewService(h, gateway.DefaultConfig())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	server := &http.Server{Handler: mux}
	go server.Serve(ln)
	defer server.Close()
	addr := ln.Addr().String()

	roster := make([]string, *participants)
	for i := range roster {
		roster[i] = fmt.Sprintf("player-%d", i+1)
	}

	api := hub_api_client.NewHubApiClient("http://" + addr)
	sessionID, err := api.CreateSession(ctx, "", roster, script)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create session: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("session %s on %s: %d participants, %d phases\n",
		sessionID, addr, len(roster), script.Len())

	start := time.Now()
	players := make([]*scriptedPlayer, len(roster))
	for i, id := range roster {
		players[i] = newScriptedPlayer(ctx, "ws://"+addr, sessionID, id, i)
	}

	if !script.AutoStart {
		if err := api.StartSession(ctx, sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "start session: %v\n", err)
			os.Exit(1)
		}
	}

	deadline := time.Now().Add(*timeout)
	for {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(1)
		}
		if time.Now().After(deadline) {
			for _, p := range players {
				fmt.Fprintf(os.Stderr, "  %s stuck in %s phase %d\n",
					p.id, p.c.View().Stage, p.c.View().PhaseIndex)
			}
			fmt.Fprintf(os.Stderr, "simulation timed out after %s\n", *timeout)
			os.Exit(1)
		}
		done := 0
		for _, p := range players {
			if p.c.View().Stage == client.StageEnded {
				done++
			}
		}
		if done == len(players) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, p := range players {
		p.c.Close()
	}
	fmt.Printf(
		"Simulation: participants=%d phases=%d answers=%d elapsed=%s\n",
		len(players), script.Len(), countAnswers(players), time.Since(start).Round(time.Millisecond),
	)
}

// scriptedPlayer answers every question with a fixed choice after a small
// per-player delay, so submissions land in a staggered but repeatable order.
type scriptedPlayer struct {
	id     string
	choice string
	delay  time.Duration
	c      *client.Client

	mu        sync.Mutex
	attempted map[int]bool
	answers   int
}

var choicePool = []string{"a", "b", "c", "d"}

func newScriptedPlayer(ctx context.Context, baseURL, sessionID, id string, seat int) *scriptedPlayer {
	p := &scriptedPlayer{
		id:        id,
		choice:    choicePool[seat%len(choicePool)],
		delay:     time.Duration(seat) * 40 * time.Millisecond,
		attempted: make(map[int]bool),
	}
	p.c = client.NewClient(client.Config{
		BaseURL:           baseURL,
		SessionID:         sessionID,
		ParticipantID:     id,
		AutoContinueDelay: time.Second,
		OnUpdate:          p.onUpdate,
	})
	if err := p.c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", id, err)
		os.Exit(1)
	}
	return p
}

func (p *scriptedPlayer) onUpdate(u client.Update) {
	if u.Stage != client.StageQuestion || u.Submitted {
		return
	}
	p.mu.Lock()
	if p.attempted[u.PhaseIndex] {
		p.mu.Unlock()
		return
	}
	p.attempted[u.PhaseIndex] = true
	p.mu.Unlock()

	go func() {
		time.Sleep(p.delay)
		payload, err := json.Marshal(map[string]string{"choice": p.choice})
		if err != nil {
			return
		}
		if err := p.c.Submit(payload); err != nil {
			log.Debug().Err(err).Str("participant", p.id).Msg("submit rejected")
			return
		}
		p.mu.Lock()
		p.answers++
		p.mu.Unlock()
	}()
}

func countAnswers(players []*scriptedPlayer) int {
	total := 0
	for _, p := range players {
		p.mu.Lock()
		total += p.answers
		p.mu.Unlock()
	}
	return total
}

func loadScript(path string) (*session.Script, error) {
	if path == "" {
		return &session.Script{
			Name:      "simulated-quiz",
			AutoStart: true,
			Phases: []session.PhaseDef{
				{Name: "warmup", Kind: "question", DurationSeconds: 30},
				{Name: "main round", Kind: "question", DurationSeconds: 30},
				{Name: "final", Kind: "question", DurationSeconds: 30},
			},
		}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return session.ParseScript(data)
}
