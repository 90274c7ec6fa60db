package realtime

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/comfortablynumb/quizmock/internal/clock"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// recorder captures everything a channel tells its listeners
type recorder struct {
	mu     sync.Mutex
	opens  int
	events []models.Envelope
	raw    []string
	closes []int
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
}

func (r *recorder) OnMessage(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var env models.Envelope
	_ = json.Unmarshal(data, &env)
	r.events = append(r.events, env)
	r.raw = append(r.raw, string(data))
}

func (r *recorder) OnClose(code int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, code)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

// last returns the payload of the most recent event of the given type
func (r *recorder) last(t *testing.T, eventType string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return string(r.events[i].Payload)
		}
	}
	t.Fatalf("no %s event in %v", eventType, r.events)
	return ""
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.raw = nil
}

type harness struct {
	ch  *Channel
	clk *clock.Manual
	rec *recorder
}

func newHarness(t *testing.T, scenario Scenario, src template.Source) *harness {
	t.Helper()
	h := &harness{clk: clock.NewManual(epoch), rec: &recorder{}}
	h.ch = NewChannel("ws://quizmock.test/game",
		WithScenario(scenario),
		WithClock(h.clk),
		WithRandom(src),
		WithListener(h.rec),
	)
	h.ch.flush()

	t.Cleanup(func() {
		_ = h.ch.Close(CloseNormal, "test done")
		h.ch.flush()
		h.clk.Advance(closeDelay)
		select {
		case <-h.ch.Done():
		case <-time.After(2 * time.Second):
			t.Error("channel loop did not stop")
		}
	})
	return h
}

// open advances past the longest open delay
func (h *harness) open(t *testing.T) {
	t.Helper()
	h.advance(minOpenDelay + openDelaySpan)
	require.Equal(t, StateOpen, h.ch.ReadyState())
}

// advance moves the clock one due timer at a time so callbacks scheduled by the loop
// are always relative to the instant that triggered them
func (h *harness) advance(d time.Duration) {
	target := h.clk.Now().Add(d)
	for {
		next, ok := h.clk.Next()
		if !ok || next.After(target) {
			break
		}
		h.clk.Advance(next.Sub(h.clk.Now()))
		h.ch.flush()
	}
	h.clk.Advance(target.Sub(h.clk.Now()))
	h.ch.flush()
}

func (h *harness) send(t *testing.T, cmd string, payload string) {
	t.Helper()
	msg := `{"type":"` + cmd + `"`
	if payload != "" {
		msg += `,"payload":` + payload
	}
	msg += `}`
	require.NoError(t, h.ch.Send([]byte(msg)))
	h.ch.flush()
}

// inspect runs fn on the channel loop
func (h *harness) inspect(fn func(c *Channel)) {
	done := make(chan struct{})
	h.ch.post(func() {
		fn(h.ch)
		close(done)
	})
	<-done
}

func TestChannelOpensAfterRandomDelay(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0))

	assert.Equal(t, StateConnecting, h.ch.ReadyState())
	assert.ErrorIs(t, h.ch.Send([]byte(`{"type":"PING"}`)), ErrNotOpen)

	h.advance(99 * time.Millisecond)
	assert.Equal(t, StateConnecting, h.ch.ReadyState())

	h.advance(time.Millisecond)
	assert.Equal(t, StateOpen, h.ch.ReadyState())
	assert.Equal(t, 1, h.rec.opens)
}

func TestChannelCloseSequence(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)

	require.NoError(t, h.ch.Close(CloseNormal, "bye"))
	assert.Equal(t, StateClosing, h.ch.ReadyState())
	assert.ErrorIs(t, h.ch.Send([]byte(`{"type":"PING"}`)), ErrNotOpen)

	h.ch.flush()
	h.advance(closeDelay - time.Millisecond)
	assert.Equal(t, StateClosing, h.ch.ReadyState())

	h.clk.Advance(time.Millisecond)
	<-h.ch.Done()
	assert.Equal(t, StateClosed, h.ch.ReadyState())
	assert.Equal(t, []int{CloseNormal}, h.rec.closes)
	assert.Zero(t, h.clk.Pending(), "periodic work must be cancelled")

	// Second close is a no-op
	require.NoError(t, h.ch.Close(CloseNormal, "again"))
	assert.Len(t, h.rec.closes, 1)
}

func TestChannelCloseWhileConnecting(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(1))

	require.NoError(t, h.ch.Close(0, ""))
	h.ch.flush()
	h.clk.Advance(closeDelay)
	<-h.ch.Done()

	h.clk.Advance(time.Second)
	assert.Zero(t, h.rec.opens)
	assert.Equal(t, []int{CloseNormal}, h.rec.closes)
}

func TestMalformedAndUnknownCommandsIgnored(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)

	assert.NoError(t, h.ch.Send([]byte(`not json`)))
	assert.NoError(t, h.ch.Send([]byte(`{"type":"DANCE"}`)))
	assert.NoError(t, h.ch.Send([]byte(`{"type":"CREATE_LOBBY","payload":"oops"}`)))
	h.ch.flush()

	assert.Empty(t, h.rec.types())
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)

	h.send(t, models.CommandPing, "")

	require.Equal(t, []string{models.EventPong}, h.rec.types())
	assert.Equal(t, h.clk.Now().UnixMilli(), gjson.Get(h.rec.raw[0], "timestamp").Int())
}

func TestCreateLobby(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewSource(3))
	h.open(t)

	h.send(t, models.CommandCreateLobby, `{"name":"Room A","maxPlayers":4}`)

	payload := h.rec.last(t, models.EventLobbyCreated)
	code := gjson.Get(payload, "code").String()
	assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
	assert.Equal(t, code, gjson.Get(payload, "lobby.code").String())
	assert.Equal(t, "Room A", gjson.Get(payload, "lobby.name").String())

	players := gjson.Get(payload, "lobby.players").Array()
	require.Len(t, players, 1)
	assert.True(t, players[0].Get("ready").Bool())
	assert.Equal(t, h.ch.PlayerID(), players[0].Get("id").String())
	assert.Equal(t, h.ch.PlayerID(), gjson.Get(payload, "lobby.host").String())
	assert.EqualValues(t, 10, gjson.Get(payload, "lobby.totalQuestions").Int())
}

func TestJoinUnknownCodeSynthesizesLobby(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)

	h.send(t, models.CommandJoinLobby, `{"code":"ABC123","playerName":"Jo"}`)

	require.Equal(t, []string{models.EventLobbyJoined}, h.rec.types())
	payload := h.rec.last(t, models.EventLobbyJoined)
	players := gjson.Get(payload, "lobby.players").Array()
	require.Len(t, players, 2)
	assert.Equal(t, "host_123", players[0].Get("id").String())
	assert.Equal(t, "Jo", players[1].Get("name").String())
	assert.False(t, players[1].Get("ready").Bool())
	assert.Equal(t, h.ch.PlayerID(), gjson.Get(payload, "playerId").String())

	h.advance(broadcastDelay - time.Millisecond)
	assert.Equal(t, 0, h.rec.count(models.EventPlayerJoined))

	h.advance(time.Millisecond)
	assert.Equal(t, []string{models.EventLobbyJoined, models.EventPlayerJoined}, h.rec.types())
}

func TestJoinWithoutCodeIgnored(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)

	h.send(t, models.CommandJoinLobby, `{}`)
	h.advance(time.Second)

	assert.Empty(t, h.rec.types())
}

func TestSubmitAnswer(t *testing.T) {
	tests := []struct {
		name      string
		draw      float64
		timeSpent string
		correct   bool
		points    int
	}{
		{"correct fast answer", 0.5, "5", true, 950},
		{"correct slow answer floors at 100", 0.9, "200", true, 100},
		{"fractional time is floored", 0.9, "12.55", true, 874},
		{"incorrect answer", 0.2, "5", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(tt.draw))
			h.open(t)
			h.send(t, models.CommandCreateLobby, `{}`)
			h.rec.reset()

			h.send(t, models.CommandSubmitAnswer, `{"questionId":"q_1","answer":1,"timeSpent":`+tt.timeSpent+`}`)

			payload := h.rec.last(t, models.EventAnswerSubmitted)
			assert.Equal(t, tt.correct, gjson.Get(payload, "isCorrect").Bool())
			assert.EqualValues(t, tt.points, gjson.Get(payload, "points").Int())
			assert.Equal(t, "q_1", gjson.Get(payload, "questionId").String())

			h.advance(broadcastDelay)
			scores := gjson.Get(h.rec.last(t, models.EventScoresUpdated), "scores").Array()
			require.Len(t, scores, 1)
			assert.EqualValues(t, tt.points, scores[0].Get("score").Int())
		})
	}
}

func TestScoreNeverDecreases(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewSource(11))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{}`)

	prev := 0
	for _, spent := range []string{"0", "300", "-5", "45", "1e3", "-1e300", "1e300"} {
		h.send(t, models.CommandSubmitAnswer, `{"questionId":"q","timeSpent":`+spent+`}`)
		h.advance(broadcastDelay)

		score := int(gjson.Get(h.rec.last(t, models.EventScoresUpdated), "scores.0.score").Int())
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestAnswerPoints(t *testing.T) {
	assert.Equal(t, 1000, answerPoints(0))
	assert.Equal(t, 950, answerPoints(5))
	assert.Equal(t, 100, answerPoints(90))
	assert.Equal(t, 100, answerPoints(1000))
	assert.Equal(t, 1000, answerPoints(-5))
	assert.Equal(t, 1000, answerPoints(-1e300))
	assert.Equal(t, 100, answerPoints(1e300))
	assert.Equal(t, 1000, answerPoints(math.NaN()))
}

func TestHugeNegativeTimeSpentScoresMaximum(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.9))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{}`)

	h.send(t, models.CommandSubmitAnswer, `{"questionId":"q_1","timeSpent":-1e300}`)
	assert.Equal(t, int64(1000), gjson.Get(h.rec.last(t, models.EventAnswerSubmitted), "points").Int())

	h.advance(broadcastDelay)
	assert.Equal(t, int64(1000), gjson.Get(h.rec.last(t, models.EventScoresUpdated), "scores.0.score").Int())
}

func TestSendMessage(t *testing.T) {
	t.Run("echo with reply", func(t *testing.T) {
		h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.9))
		h.open(t)

		h.send(t, models.CommandSendMessage, `{"text":"hi all"}`)
		payload := h.rec.last(t, models.EventMessageReceived)
		assert.Equal(t, "hi all", gjson.Get(payload, "text").String())
		assert.Equal(t, "You", gjson.Get(payload, "playerName").String())

		// reply delay is 1000 + 0.9*2000 ms
		h.advance(2799 * time.Millisecond)
		assert.Equal(t, 1, h.rec.count(models.EventMessageReceived))

		h.advance(time.Millisecond)
		require.Equal(t, 2, h.rec.count(models.EventMessageReceived))
		reply := h.rec.last(t, models.EventMessageReceived)
		assert.Equal(t, "other_player", gjson.Get(reply, "playerId").String())
		assert.NotEmpty(t, gjson.Get(reply, "text").String())
	})

	t.Run("echo only", func(t *testing.T) {
		h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
		h.open(t)

		h.send(t, models.CommandSendMessage, `{"text":"hi"}`)
		h.advance(4 * time.Second)
		assert.Equal(t, 1, h.rec.count(models.EventMessageReceived))
	})
}

func TestPlayerReady(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandJoinLobby, `{"code":"ROOM42"}`)
	h.advance(broadcastDelay)
	h.rec.reset()

	h.send(t, models.CommandPlayerReady, "")

	assert.Equal(t, []string{models.EventPlayerReady, models.EventLobbyUpdated}, h.rec.types())
	assert.True(t, gjson.Get(h.rec.last(t, models.EventLobbyUpdated), "allReady").Bool())
}

func TestPeriodicBotJoinKeepsLobbyNotReady(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.05))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{"maxPlayers":2}`)
	h.rec.reset()

	h.advance(simulationInterval)
	require.Equal(t, []string{models.EventPlayerJoined}, h.rec.types())
	assert.Regexp(t, `^bot_`, gjson.Get(h.rec.last(t, models.EventPlayerJoined), "player.id").String())

	// Lobby is now full, so later ticks stay quiet
	h.advance(simulationInterval)
	assert.Equal(t, 1, h.rec.count(models.EventPlayerJoined))

	h.rec.reset()
	h.send(t, models.CommandPlayerReady, "")
	assert.Equal(t, []string{models.EventPlayerReady}, h.rec.types())
}

func TestPeriodicPingWithoutLobby(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.01))
	h.open(t)

	h.advance(simulationInterval)
	assert.Equal(t, []string{models.EventPing}, h.rec.types())
}

func TestLeaveLobby(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{}`)
	h.rec.reset()

	h.send(t, models.CommandLeaveLobby, "")
	assert.Equal(t, []string{models.EventLobbyLeft, models.EventPlayerLeft}, h.rec.types())

	h.rec.reset()
	h.send(t, models.CommandSubmitAnswer, `{"questionId":"q_1","timeSpent":1}`)
	h.send(t, models.CommandStartGame, "")
	assert.Empty(t, h.rec.types())
}

func TestCloseCancelsPendingOneShots(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandJoinLobby, `{"code":"ABC123"}`)

	require.NoError(t, h.ch.Close(CloseNormal, ""))
	h.ch.flush()
	h.clk.Advance(time.Second)
	<-h.ch.Done()

	assert.Equal(t, 0, h.rec.count(models.EventPlayerJoined))
	assert.Zero(t, h.clk.Pending())
}

func TestDisconnectRecovery(t *testing.T) {
	h := newHarness(t, ScenarioDisconnectRecovery, template.NewFixed(0.5))
	h.open(t)

	h.advance(disconnectAfter)
	assert.Equal(t, []int{CloseGoingAway}, h.rec.closes)
	assert.Equal(t, StateClosed, h.ch.ReadyState())
	assert.ErrorIs(t, h.ch.Send([]byte(`{"type":"PING"}`)), ErrNotOpen)

	h.advance(reconnectAfter)
	assert.Equal(t, StateOpen, h.ch.ReadyState())
	assert.Equal(t, 2, h.rec.opens)

	// Only once per instance
	h.advance(2 * disconnectAfter)
	assert.Len(t, h.rec.closes, 1)
	assert.Equal(t, StateOpen, h.ch.ReadyState())
}

func TestCloseDuringSimulatedDrop(t *testing.T) {
	h := newHarness(t, ScenarioDisconnectRecovery, template.NewFixed(0.5))
	h.open(t)

	h.advance(disconnectAfter)
	require.Equal(t, StateClosed, h.ch.ReadyState())

	require.NoError(t, h.ch.Close(CloseNormal, "bye"))
	assert.Equal(t, StateClosed, h.ch.ReadyState())
	<-h.ch.Done()

	h.clk.Advance(reconnectAfter + closeDelay)
	assert.Equal(t, StateClosed, h.ch.ReadyState())
	assert.Equal(t, []int{CloseGoingAway}, h.rec.closes)
	assert.Equal(t, 1, h.rec.opens)
	assert.Zero(t, h.clk.Pending())
}

func TestTaskBoardLive(t *testing.T) {
	h := newHarness(t, ScenarioTaskBoardLive, template.NewFixed(0.5))
	h.open(t)

	h.advance(taskInterval)
	require.Equal(t, []string{models.EventTaskUpdate}, h.rec.types())

	payload := h.rec.last(t, models.EventTaskUpdate)
	assert.Equal(t, "task_5000", gjson.Get(payload, "id").String())
	assert.Equal(t, "done", gjson.Get(payload, "status").String())

	h.advance(2 * taskInterval)
	assert.Equal(t, 3, h.rec.count(models.EventTaskUpdate))
}

func TestResolveScenario(t *testing.T) {
	t.Setenv(ScenarioEnv, "")
	assert.Equal(t, ScenarioLobbyBasic, ResolveScenario(""))

	t.Setenv(ScenarioEnv, "taskBoardLive")
	assert.Equal(t, ScenarioTaskBoardLive, ResolveScenario(""))
	assert.Equal(t, ScenarioMatchHappyPath, ResolveScenario("matchHappyPath"))

	assert.Equal(t, fastTimings, ScenarioMatchHappyPath.Timings())
	assert.Equal(t, defaultTimings, Scenario("custom").Timings())
	assert.False(t, Scenario("custom").Valid())
}
