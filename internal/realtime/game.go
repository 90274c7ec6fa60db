package realtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"go.uber.org/zap"
)

// Phase is the position of a lobby in the game state machine
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseCountdown
	PhaseQuestion
	PhaseIntermission
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "LOBBY"
	case PhaseCountdown:
		return "COUNTDOWN"
	case PhaseQuestion:
		return "QUESTION"
	case PhaseIntermission:
		return "INTERMISSION"
	case PhaseEnded:
		return "ENDED"
	}
	return "UNKNOWN"
}

// game tracks one running match. Each phase owns at most one pending timer.
type game struct {
	lobby    *models.Lobby
	phase    Phase
	timer    int
	question models.Question
}

// startGame moves the lobby from LOBBY to COUNTDOWN
func (c *Channel) startGame(lobby *models.Lobby) {
	if lobby.GameStarted {
		c.log.L().Debug("Game already running", zap.String("lobby", lobby.ID))
		return
	}

	lobby.GameStarted = true
	g := &game{lobby: lobby, phase: PhaseCountdown}
	c.games[lobby.ID] = g

	g.timer = c.after(c.timings.Countdown, func() { c.countdownElapsed(g) })
	c.emit(models.EventGameStarting, map[string]interface{}{
		"countdown": int(c.timings.Countdown.Round(time.Second).Seconds()),
	})
}

func (c *Channel) countdownElapsed(g *game) {
	g.timer = c.after(c.timings.StartDelay, func() { c.nextQuestion(g) })
	c.emit(models.EventGameStarted, map[string]interface{}{"lobby": g.lobby})
}

// nextQuestion enters QUESTION, or ENDED once every question has been asked
func (c *Channel) nextQuestion(g *game) {
	lobby := g.lobby
	if lobby.CurrentQuestion >= lobby.TotalQuestions {
		c.endGame(g)
		return
	}

	lobby.CurrentQuestion++
	g.phase = PhaseQuestion
	g.question = sampleQuestion(lobby.CurrentQuestion, c.timings)

	g.timer = c.after(c.timings.Question, func() { c.questionElapsed(g) })
	c.emit(models.EventQuestionStart, map[string]interface{}{
		"question":       g.question,
		"questionNumber": lobby.CurrentQuestion,
		"totalQuestions": lobby.TotalQuestions,
	})
}

// questionElapsed enters INTERMISSION
func (c *Channel) questionElapsed(g *game) {
	g.phase = PhaseIntermission

	g.timer = c.after(c.timings.BetweenQuestion, func() { c.nextQuestion(g) })
	c.emit(models.EventQuestionEnd, map[string]interface{}{
		"questionId":    g.question.ID,
		"correctAnswer": g.question.CorrectAnswer,
		"explanation":   "Paris is the capital of France.",
	})
}

// endGame ranks players, resets the lobby and returns it to LOBBY
func (c *Channel) endGame(g *game) {
	g.phase = PhaseEnded
	lobby := g.lobby

	scores := ranking(lobby.Players)
	lobby.GameStarted = false
	lobby.CurrentQuestion = 0
	delete(c.games, lobby.ID)

	payload := map[string]interface{}{"finalScores": scores}
	if len(scores) > 0 {
		payload["winner"] = scores[0]
	}
	c.emit(models.EventGameEnded, payload)

	g.phase = PhaseLobby
}

// abortGame cancels a running match without emitting anything
func (c *Channel) abortGame(lobbyID string) {
	g, ok := c.games[lobbyID]
	if !ok {
		return
	}
	c.cancel(g.timer)
	g.lobby.GameStarted = false
	g.lobby.CurrentQuestion = 0
	g.phase = PhaseLobby
	delete(c.games, lobbyID)
}

// ranking orders players by score, highest first, keeping join order on ties
func ranking(players []*models.Player) []models.ScoreEntry {
	sorted := make([]*models.Player, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	scores := make([]models.ScoreEntry, len(sorted))
	for i, p := range sorted {
		scores[i] = models.ScoreEntry{
			Rank:     i + 1,
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		}
	}
	return scores
}

func sampleQuestion(n int, t Timings) models.Question {
	return models.Question{
		ID:            fmt.Sprintf("q_%d", n),
		Text:          fmt.Sprintf("Question %d: What is the capital of France?", n),
		Options:       []string{"London", "Paris", "Berlin", "Madrid"},
		CorrectAnswer: 1,
		Category:      "Geography",
		Difficulty:    "easy",
		TimeLimit:     int(t.Question.Round(time.Second).Seconds()),
	}
}
