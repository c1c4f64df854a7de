package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/client"
)

// Headless participant for a hotseat session. Answers come from stdin, or
// from -answer for scripted runs.
func main() {
	hubURL := flag.String("hub", "ws://localhost:8080", "hub WebSocket base URL")
	sessionID := flag.String("session", "", "session id to join")
	participantID := flag.String("participant", "", "participant id")
	answer := flag.String("answer", "", "submit this choice for every question instead of prompting")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *sessionID == "" || *participantID == "" {
		fmt.Fprintln(os.Stderr, "usage: participant -session <id> -participant <id> [-hub ws://host:port] [-answer <choice>]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updates := make(chan client.Update, 64)

	c := client.NewClient(client.Config{
		BaseURL:       *hubURL,
		SessionID:     *sessionID,
		ParticipantID: *participantID,
		OnUpdate: func(u client.Update) {
			select {
			case updates <- u:
			default:
			}
		},
		OnConnectionChange: func(code int, reconnecting bool) {
			log.Warn().Int("code", code).Bool("reconnecting", reconnecting).Msg("connection lost")
		},
	})

	if err := c.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer c.Close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	fmt.Printf("joined session %s as %s\n", *sessionID, *participantID)

	var lastStage client.Stage
	lastPhase := -2
	for {
		select {
		case <-ctx.Done():
			return

		case u := <-updates:
			if u.Stage != lastStage || u.PhaseIndex != lastPhase {
				render(u)
				lastStage, lastPhase = u.Stage, u.PhaseIndex
			}
			switch u.Stage {
			case client.StageQuestion:
				if *answer != "" && !u.Submitted {
					submit(c, *answer)
				}
			case client.StageEnded:
				fmt.Println("session over, thanks for playing")
				return
			case client.StageRemoved:
				fmt.Println("you were removed from the session")
				return
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			submit(c, line)
		}
	}
}

func submit(c *client.Client, choice string) {
	payload, err := json.Marshal(map[string]string{"choice": choice})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal answer")
		return
	}
	if err := c.Submit(payload); err != nil {
		log.Debug().Err(err).Msg("submit rejected")
		return
	}
	fmt.Printf("submitted %q\n", choice)
}

func render(u client.Update) {
	switch u.Stage {
	case client.StageLobby:
		fmt.Printf("waiting in lobby with %s\n", strings.Join(u.Roster, ", "))
	case client.StageQuestion:
		fmt.Printf("[phase %d] %s (%ds): type your answer and press enter\n",
			u.PhaseIndex+1, u.PhaseName, u.RemainingSeconds)
	case client.StageAwaitingResults:
		fmt.Printf("[phase %d] waiting for results (%d submitted)\n", u.PhaseIndex+1, u.SubmissionCount)
	case client.StageResults:
		fmt.Printf("[phase %d] results are in (%d answers)\n", u.PhaseIndex+1, u.SubmissionCount)
		if u.Aggregates != nil {
			choices := make([]string, 0, len(u.Aggregates.Distribution))
			for choice := range u.Aggregates.Distribution {
				choices = append(choices, choice)
			}
			sort.Strings(choices)
			for _, choice := range choices {
				fmt.Printf("  %-12s %d\n", choice, u.Aggregates.Distribution[choice])
			}
		}
	}
}
