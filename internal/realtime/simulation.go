package realtime

import (
	"fmt"
	"os"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"go.uber.org/zap"
)

// ScenarioEnv names the environment variable consulted when no scenario is given
const ScenarioEnv = "WS_MOCK_SCENARIO"

// Scenario selects timing and behaviour profiles for a channel
type Scenario string

const (
	ScenarioLobbyBasic         Scenario = "lobbyBasic"
	ScenarioMatchHappyPath     Scenario = "matchHappyPath"
	ScenarioDisconnectRecovery Scenario = "disconnectRecovery"
	ScenarioTaskBoardLive      Scenario = "taskBoardLive"
)

// Scenarios lists every known scenario
var Scenarios = []Scenario{
	ScenarioLobbyBasic,
	ScenarioMatchHappyPath,
	ScenarioDisconnectRecovery,
	ScenarioTaskBoardLive,
}

// Timings drive the game state machine
type Timings struct {
	Countdown       time.Duration
	Question        time.Duration
	BetweenQuestion time.Duration
	StartDelay      time.Duration
}

var (
	defaultTimings = Timings{
		Countdown:       3 * time.Second,
		Question:        30 * time.Second,
		BetweenQuestion: 3 * time.Second,
		StartDelay:      time.Second,
	}
	fastTimings = Timings{
		Countdown:       time.Second,
		Question:        5 * time.Second,
		BetweenQuestion: 500 * time.Millisecond,
		StartDelay:      300 * time.Millisecond,
	}
)

const (
	simulationInterval = 5 * time.Second
	taskInterval       = 2 * time.Second
	disconnectAfter    = 10 * time.Second
	reconnectAfter     = 1500 * time.Millisecond
	autoStartDelay     = 800 * time.Millisecond

	botJoinChance = 0.1
	pingChance    = 0.05
)

// Timings returns the profile for the scenario
func (s Scenario) Timings() Timings {
	if s == ScenarioMatchHappyPath {
		return fastTimings
	}
	return defaultTimings
}

// Valid reports whether s is a known scenario
func (s Scenario) Valid() bool {
	for _, known := range Scenarios {
		if s == known {
			return true
		}
	}
	return false
}

// ResolveScenario picks explicit, then WS_MOCK_SCENARIO, then lobbyBasic
func ResolveScenario(explicit string) Scenario {
	if explicit != "" {
		return Scenario(explicit)
	}
	if env := os.Getenv(ScenarioEnv); env != "" {
		return Scenario(env)
	}
	return ScenarioLobbyBasic
}

func (c *Channel) startSimulation() {
	c.every("simulation", simulationInterval, c.simulationTick)

	if c.scenario == ScenarioTaskBoardLive {
		if _, running := c.periodic["tasks"]; !running {
			c.every("tasks", taskInterval, c.taskTick)
		}
	}
}

func (c *Channel) stopSimulation() {
	for name, id := range c.periodic {
		c.cancel(id)
		delete(c.periodic, name)
	}
}

// simulationTick occasionally adds a bot to the current lobby or pings the client.
// The ping branch is only reached when the join branch is not taken.
func (c *Channel) simulationTick() {
	if c.ReadyState() != StateOpen {
		c.stopSimulation()
		return
	}

	r := c.rand.Float64()

	if r < botJoinChance && c.currentLobby != "" {
		lobby := c.lobbies[c.currentLobby]
		if lobby != nil && lobby.HasRoom() && !lobby.GameStarted {
			bot := &models.Player{
				ID:        newID("bot"),
				Name:      template.PlayerName(c.rand),
				Connected: true,
			}
			lobby.Players = append(lobby.Players, bot)
			c.emit(models.EventPlayerJoined, map[string]interface{}{"player": bot})
		}
	} else if r < pingChance {
		c.emitEnvelope(models.Envelope{Type: models.EventPing, Timestamp: c.now()})
	}
}

func (c *Channel) taskTick() {
	if c.ReadyState() != StateOpen {
		return
	}

	task := models.Task{
		ID:        fmt.Sprintf("task_%d", c.rand.Intn(10000)),
		Title:     fmt.Sprintf("Live update %d", c.rand.Intn(100)),
		Status:    template.TaskStatus(c.rand),
		UpdatedAt: c.clock.Now().UTC().Format(time.RFC3339),
	}
	c.emit(models.EventTaskUpdate, task)
}

// scheduleDisconnect drops the connection once, 10s after opening, and reopens it 1.5s later
func (c *Channel) scheduleDisconnect() {
	c.disconnected = true

	c.after(disconnectAfter, func() {
		if c.ReadyState() != StateOpen {
			return
		}

		c.setState(StateClosing)
		c.stopSimulation()
		c.markClosed()
		c.after(reconnectAfter, c.reopen)
		c.setState(StateClosed)

		c.log.L().Info("Simulating network drop", zap.String("url", c.url))
		c.dispatch(func(l Listener) { l.OnClose(CloseGoingAway, "Simulated disconnect") })
	})
}

func (c *Channel) reopen() {
	c.stateMu.Lock()
	if c.closeSent {
		c.stateMu.Unlock()
		return
	}
	c.state = StateOpen
	c.stateMu.Unlock()

	c.markOpen()
	c.startSimulation()

	c.log.L().Info("Simulated reconnect", zap.String("url", c.url))
	c.dispatch(func(l Listener) { l.OnOpen() })
}
