package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/observability"
	"github.com/comfortablynumb/quizmock/internal/realtime"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	simulateScenario  string
	simulateQuestions int
	simulatePlayer    string
	simulateTimeout   time.Duration
	simulateVerbose   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play one match against a mock realtime channel and print every event",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.Nop()
		if simulateVerbose {
			base, err := observability.NewZap("debug", true)
			if err != nil {
				return err
			}
			log = observability.NewLogger(base, true)
			defer log.Sync()
		}

		scenario := realtime.ResolveScenario(simulateScenario)
		if !scenario.Valid() {
			log.L().Warn("Unknown scenario, using default timings", zap.String("scenario", string(scenario)))
		}

		sim := &simulation{
			out:       cmd.OutOrStdout(),
			player:    simulatePlayer,
			questions: simulateQuestions,
			ended:     make(chan struct{}),
		}
		sim.ch = realtime.NewChannel("ws://localhost/simulate",
			realtime.WithScenario(scenario),
			realtime.WithLogger(log),
			realtime.WithListener(realtime.ListenerFuncs{
				Open:    sim.onOpen,
				Message: sim.onMessage,
				Close:   sim.onClose,
			}),
		)

		select {
		case <-sim.ended:
		case <-time.After(simulateTimeout):
			fmt.Fprintf(sim.out, "timed out after %s\n", simulateTimeout)
		case <-cmd.Context().Done():
		}

		_ = sim.ch.Close(1000, "simulation finished")
		<-sim.ch.Done()
		return nil
	},
}

// simulation plays the host side of a single match
type simulation struct {
	ch        *realtime.Channel
	out       io.Writer
	player    string
	questions int
	ended     chan struct{}
	once      sync.Once
}

func (s *simulation) onOpen() {
	fmt.Fprintf(s.out, "connected as %s (%s)\n", s.ch.PlayerID(), s.ch.Scenario())
	s.send(models.CommandCreateLobby, map[string]interface{}{
		"name":          "Simulated Match",
		"playerName":    s.player,
		"questionCount": s.questions,
	})
}

func (s *simulation) onMessage(data []byte) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	fmt.Fprintf(s.out, "<- %-16s %s\n", env.Type, string(env.Payload))

	switch env.Type {
	case models.EventLobbyCreated:
		s.send(models.CommandPlayerReady, nil)
		s.send(models.CommandStartGame, nil)
	case models.EventQuestionStart:
		var p struct {
			Question models.Question `json:"question"`
		}
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			s.send(models.CommandSubmitAnswer, map[string]interface{}{
				"questionId": p.Question.ID,
				"answer":     p.Question.CorrectAnswer,
				"timeSpent":  2.5,
			})
		}
	case models.EventGameEnded:
		s.finish()
	}
}

func (s *simulation) onClose(code int, reason string) {
	fmt.Fprintf(s.out, "closed %d %s\n", code, reason)
	s.finish()
}

func (s *simulation) finish() {
	s.once.Do(func() { close(s.ended) })
}

func (s *simulation) send(commandType string, payload interface{}) {
	env := map[string]interface{}{"type": commandType}
	if payload != nil {
		env["payload"] = payload
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(s.out, "-> %s\n", commandType)
	if err := s.ch.Send(data); err != nil {
		fmt.Fprintf(s.out, "send %s failed: %v\n", commandType, err)
	}
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScenario, "scenario", getEnvString("WS_MOCK_SCENARIO", string(realtime.ScenarioMatchHappyPath)), "Realtime scenario")
	simulateCmd.Flags().IntVar(&simulateQuestions, "questions", 3, "Number of questions in the match")
	simulateCmd.Flags().StringVar(&simulatePlayer, "player", "Simulator", "Player name")
	simulateCmd.Flags().DurationVar(&simulateTimeout, "timeout", 2*time.Minute, "Give up after this long")
	simulateCmd.Flags().BoolVar(&simulateVerbose, "verbose", false, "Log channel internals")
	rootCmd.AddCommand(simulateCmd)
}
