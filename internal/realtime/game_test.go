package realtime

import (
	"testing"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestGameRunsEveryQuestionThenEnds(t *testing.T) {
	h := newHarness(t, ScenarioMatchHappyPath, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{"questionCount":2}`)
	h.rec.reset()

	h.send(t, models.CommandStartGame, "")
	assert.Equal(t, []string{models.EventGameStarting}, h.rec.types())
	assert.EqualValues(t, 1, gjson.Get(h.rec.last(t, models.EventGameStarting), "countdown").Int())

	var phase Phase
	lobbyID := ""
	h.inspect(func(c *Channel) {
		lobbyID = c.currentLobby
		phase = c.games[lobbyID].phase
	})
	assert.Equal(t, PhaseCountdown, phase)

	h.advance(fastTimings.Countdown)
	assert.Equal(t, 1, h.rec.count(models.EventGameStarted))

	h.advance(fastTimings.StartDelay)
	start := h.rec.last(t, models.EventQuestionStart)
	assert.Equal(t, "q_1", gjson.Get(start, "question.id").String())
	assert.EqualValues(t, 1, gjson.Get(start, "questionNumber").Int())
	assert.EqualValues(t, 2, gjson.Get(start, "totalQuestions").Int())
	assert.EqualValues(t, 5, gjson.Get(start, "question.timeLimit").Int())

	h.inspect(func(c *Channel) { phase = c.games[lobbyID].phase })
	assert.Equal(t, PhaseQuestion, phase)

	h.advance(fastTimings.Question)
	end := h.rec.last(t, models.EventQuestionEnd)
	assert.Equal(t, "q_1", gjson.Get(end, "questionId").String())
	assert.EqualValues(t, 1, gjson.Get(end, "correctAnswer").Int())

	h.inspect(func(c *Channel) { phase = c.games[lobbyID].phase })
	assert.Equal(t, PhaseIntermission, phase)

	h.advance(fastTimings.BetweenQuestion + fastTimings.Question + fastTimings.BetweenQuestion)

	assert.Equal(t, []string{
		models.EventGameStarting,
		models.EventGameStarted,
		models.EventQuestionStart,
		models.EventQuestionEnd,
		models.EventQuestionStart,
		models.EventQuestionEnd,
		models.EventGameEnded,
	}, h.rec.types())

	ended := h.rec.last(t, models.EventGameEnded)
	assert.Equal(t, h.ch.PlayerID(), gjson.Get(ended, "winner.playerId").String())
	assert.EqualValues(t, 1, gjson.Get(ended, "finalScores.0.rank").Int())

	h.inspect(func(c *Channel) {
		lobby := c.lobbies[lobbyID]
		assert.False(t, lobby.GameStarted)
		assert.Zero(t, lobby.CurrentQuestion)
		assert.NotContains(t, c.games, lobbyID)
	})

	// Nothing else fires afterwards
	h.advance(time.Minute)
	assert.Equal(t, 1, h.rec.count(models.EventGameEnded))
}

func TestDefaultTimingsAreSlower(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{"questionCount":1}`)
	h.send(t, models.CommandStartGame, "")

	h.advance(fastTimings.Countdown)
	assert.Equal(t, 0, h.rec.count(models.EventGameStarted))

	h.advance(defaultTimings.Countdown - fastTimings.Countdown + defaultTimings.StartDelay)
	require.Equal(t, 1, h.rec.count(models.EventQuestionStart))
	assert.EqualValues(t, 30, gjson.Get(h.rec.last(t, models.EventQuestionStart), "question.timeLimit").Int())

	h.advance(defaultTimings.Question + defaultTimings.BetweenQuestion)
	assert.Equal(t, 1, h.rec.count(models.EventGameEnded))
}

func TestCurrentQuestionStaysInRange(t *testing.T) {
	h := newHarness(t, ScenarioMatchHappyPath, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{"questionCount":3}`)
	h.send(t, models.CommandStartGame, "")

	for i := 0; i < 40; i++ {
		h.advance(500 * time.Millisecond)
		h.inspect(func(c *Channel) {
			lobby := c.lobbies[c.currentLobby]
			assert.GreaterOrEqual(t, lobby.CurrentQuestion, 0)
			assert.LessOrEqual(t, lobby.CurrentQuestion, lobby.TotalQuestions)
		})
	}
	assert.Equal(t, 1, h.rec.count(models.EventGameEnded))
	assert.Equal(t, 3, h.rec.count(models.EventQuestionStart))
}

func TestStartGameRequiresHost(t *testing.T) {
	h := newHarness(t, ScenarioLobbyBasic, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandJoinLobby, `{"code":"XYZ789"}`)
	h.advance(broadcastDelay)
	h.rec.reset()

	h.send(t, models.CommandStartGame, "")
	h.advance(defaultTimings.Countdown)
	assert.Empty(t, h.rec.types())
}

func TestStartGameTwiceIgnored(t *testing.T) {
	h := newHarness(t, ScenarioMatchHappyPath, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{}`)
	h.send(t, models.CommandStartGame, "")
	h.send(t, models.CommandStartGame, "")

	assert.Equal(t, 1, h.rec.count(models.EventGameStarting))
}

func TestMatchHappyPathAutoStarts(t *testing.T) {
	h := newHarness(t, ScenarioMatchHappyPath, template.NewFixed(0.5))
	h.open(t)

	h.send(t, models.CommandJoinLobby, `{"code":"FAST01"}`)
	h.advance(autoStartDelay)

	assert.Equal(t, []string{
		models.EventLobbyJoined,
		models.EventPlayerJoined,
		models.EventLobbyUpdated,
		models.EventGameStarting,
	}, h.rec.types())
	assert.True(t, gjson.Get(h.rec.last(t, models.EventLobbyUpdated), "allReady").Bool())

	h.advance(fastTimings.Countdown)
	assert.Equal(t, 1, h.rec.count(models.EventGameStarted))
}

func TestLeavingAbortsRunningGame(t *testing.T) {
	h := newHarness(t, ScenarioMatchHappyPath, template.NewFixed(0.5))
	h.open(t)
	h.send(t, models.CommandCreateLobby, `{}`)
	h.send(t, models.CommandStartGame, "")
	h.send(t, models.CommandLeaveLobby, "")
	h.rec.reset()

	h.advance(time.Minute)
	assert.Empty(t, h.rec.types())
}

func TestRankingIsStableDescending(t *testing.T) {
	players := []*models.Player{
		{ID: "a", Name: "A", Score: 100},
		{ID: "b", Name: "B", Score: 300},
		{ID: "c", Name: "C", Score: 100},
		{ID: "d", Name: "D", Score: 300},
	}

	scores := ranking(players)

	ids := make([]string, len(scores))
	for i, s := range scores {
		ids[i] = s.PlayerID
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
	assert.Equal(t, "a", players[0].ID, "input order must not change")
}
