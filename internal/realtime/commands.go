package realtime

import (
	"encoding/json"
	"math"
	"time"

	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxPlayers     = 4
	defaultQuestionCount  = 10
	broadcastDelay        = 500 * time.Millisecond
	minChatReplyDelay     = time.Second
	chatReplyDelaySpan    = 2 * time.Second
	incorrectAnswerChance = 0.3
	chatReplyThreshold    = 0.7
	minAnswerPoints       = 100
	maxAnswerPoints       = 1000

	placeholderHostID   = "host_123"
	placeholderHostName = "Quiz Master"
)

type createLobbyPayload struct {
	Name          string `json:"name"`
	PlayerName    string `json:"playerName"`
	Avatar        string `json:"avatar"`
	MaxPlayers    int    `json:"maxPlayers"`
	QuestionCount int    `json:"questionCount"`
}

type joinLobbyPayload struct {
	Code       string `json:"code"`
	PlayerName string `json:"playerName"`
	Avatar     string `json:"avatar"`
}

type submitAnswerPayload struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
	TimeSpent  float64         `json:"timeSpent"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
}

// handle runs one command on the loop goroutine
func (c *Channel) handle(env models.Envelope) {
	switch env.Type {
	case models.CommandCreateLobby:
		var p createLobbyPayload
		if c.decode(env, &p) {
			c.createLobby(p)
		}
	case models.CommandJoinLobby:
		var p joinLobbyPayload
		if c.decode(env, &p) {
			c.joinLobby(p)
		}
	case models.CommandLeaveLobby:
		c.leaveLobby()
	case models.CommandStartGame:
		c.handleStartGame()
	case models.CommandSubmitAnswer:
		var p submitAnswerPayload
		if c.decode(env, &p) {
			c.submitAnswer(p)
		}
	case models.CommandSendMessage:
		var p sendMessagePayload
		if c.decode(env, &p) {
			c.sendMessage(p)
		}
	case models.CommandPlayerReady:
		c.playerReady()
	case models.CommandPing:
		c.emitEnvelope(models.Envelope{Type: models.EventPong, Timestamp: c.now()})
	default:
		c.log.L().Debug("Ignoring unknown command", zap.String("type", env.Type))
	}
}

func (c *Channel) decode(env models.Envelope, v interface{}) bool {
	if len(env.Payload) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		c.log.L().Debug("Ignoring command with bad payload", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (c *Channel) createLobby(p createLobbyPayload) {
	lobby := &models.Lobby{
		ID:   newID("lobby"),
		Code: template.JoinCode(c.rand),
		Name: orDefault(p.Name, "New Quiz Room"),
		Host: c.playerID,
		Players: []*models.Player{{
			ID:        c.playerID,
			Name:      orDefault(p.PlayerName, "Host"),
			Avatar:    p.Avatar,
			Ready:     true,
			Connected: true,
		}},
		MaxPlayers:     p.MaxPlayers,
		TotalQuestions: p.QuestionCount,
	}
	if lobby.MaxPlayers <= 0 {
		lobby.MaxPlayers = defaultMaxPlayers
	}
	if lobby.TotalQuestions <= 0 {
		lobby.TotalQuestions = defaultQuestionCount
	}

	c.lobbies[lobby.ID] = lobby
	c.currentLobby = lobby.ID
	c.isHost = true

	c.emit(models.EventLobbyCreated, map[string]interface{}{
		"lobbyId": lobby.ID,
		"code":    lobby.Code,
		"lobby":   lobby,
	})
}

// joinLobby finds the lobby by code or synthesizes one so any code is joinable
func (c *Channel) joinLobby(p joinLobbyPayload) {
	if p.Code == "" {
		c.log.L().Debug("Ignoring JOIN_LOBBY without code")
		return
	}

	var lobby *models.Lobby
	for _, l := range c.lobbies {
		if l.Code == p.Code {
			lobby = l
			break
		}
	}

	if lobby == nil {
		lobby = &models.Lobby{
			ID:   "lobby_" + p.Code,
			Code: p.Code,
			Name: "Quiz Room",
			Host: placeholderHostID,
			Players: []*models.Player{{
				ID:        placeholderHostID,
				Name:      placeholderHostName,
				Ready:     true,
				Connected: true,
			}},
			MaxPlayers:     defaultMaxPlayers,
			TotalQuestions: defaultQuestionCount,
		}
		c.lobbies[lobby.ID] = lobby
	}
	c.currentLobby = lobby.ID

	player := lobby.Player(c.playerID)
	if player == nil {
		player = &models.Player{
			ID:        c.playerID,
			Name:      orDefault(p.PlayerName, "Player"),
			Avatar:    p.Avatar,
			Connected: true,
		}
		lobby.Players = append(lobby.Players, player)
	}
	joined := *player

	c.after(broadcastDelay, func() {
		c.emit(models.EventPlayerJoined, map[string]interface{}{"player": joined})
	})

	if c.scenario == ScenarioMatchHappyPath {
		c.after(autoStartDelay, func() { c.autoStart(lobby) })
	}

	c.emit(models.EventLobbyJoined, map[string]interface{}{
		"lobby":    lobby,
		"playerId": c.playerID,
	})
}

// autoStart readies everyone and starts the game as if this client were host
func (c *Channel) autoStart(lobby *models.Lobby) {
	for _, p := range lobby.Players {
		p.Ready = true
	}
	c.isHost = true
	c.currentLobby = lobby.ID

	c.emit(models.EventLobbyUpdated, map[string]interface{}{
		"lobby":    lobby,
		"allReady": true,
	})
	c.handleStartGame()
}

func (c *Channel) leaveLobby() {
	lobby := c.lobbies[c.currentLobby]
	if lobby == nil {
		return
	}

	kept := lobby.Players[:0]
	for _, p := range lobby.Players {
		if p.ID != c.playerID {
			kept = append(kept, p)
		}
	}
	lobby.Players = kept

	c.abortGame(lobby.ID)
	c.currentLobby = ""
	c.isHost = false

	payload := map[string]interface{}{"playerId": c.playerID}
	c.emit(models.EventLobbyLeft, payload)
	c.emit(models.EventPlayerLeft, payload)
}

func (c *Channel) handleStartGame() {
	lobby := c.lobbies[c.currentLobby]
	if lobby == nil || !c.isHost {
		return
	}
	c.startGame(lobby)
}

// submitAnswer scores the answer: 70% correct, max(100, 1000 - timeSpent*10) points when correct
func (c *Channel) submitAnswer(p submitAnswerPayload) {
	lobby := c.lobbies[c.currentLobby]
	if lobby == nil {
		return
	}

	correct := c.rand.Float64() > incorrectAnswerChance
	points := 0
	if correct {
		points = answerPoints(p.TimeSpent)
	}

	if player := lobby.Player(c.playerID); player != nil {
		player.Score += points
	}

	c.after(broadcastDelay, func() {
		scores := make([]models.ScoreEntry, len(lobby.Players))
		for i, pl := range lobby.Players {
			scores[i] = models.ScoreEntry{PlayerID: pl.ID, Name: pl.Name, Score: pl.Score}
		}
		c.emit(models.EventScoresUpdated, map[string]interface{}{"scores": scores})
	})

	c.emit(models.EventAnswerSubmitted, map[string]interface{}{
		"playerId":   c.playerID,
		"questionId": p.QuestionID,
		"isCorrect":  correct,
		"points":     points,
	})
}

// answerPoints stays within [100, 1000] whatever the client reports
func answerPoints(timeSpent float64) int {
	if math.IsNaN(timeSpent) || timeSpent < 0 {
		timeSpent = 0
	}
	return int(math.Floor(math.Max(minAnswerPoints, maxAnswerPoints-timeSpent*10)))
}

// sendMessage echoes the chat line and sometimes schedules a reply from another player
func (c *Channel) sendMessage(p sendMessagePayload) {
	if c.rand.Float64() > chatReplyThreshold {
		delay := minChatReplyDelay + time.Duration(c.rand.Float64()*float64(chatReplyDelaySpan))
		c.after(delay, func() {
			c.emit(models.EventMessageReceived, map[string]interface{}{
				"id":         uuid.NewString(),
				"playerId":   "other_player",
				"playerName": "Other Player",
				"text":       template.ChatMessage(c.rand),
				"timestamp":  c.now(),
			})
		})
	}

	c.emit(models.EventMessageReceived, map[string]interface{}{
		"id":         uuid.NewString(),
		"playerId":   c.playerID,
		"playerName": "You",
		"text":       p.Text,
		"timestamp":  c.now(),
	})
}

func (c *Channel) playerReady() {
	lobby := c.lobbies[c.currentLobby]
	if lobby == nil {
		return
	}

	if player := lobby.Player(c.playerID); player != nil {
		player.Ready = true
	}

	c.emit(models.EventPlayerReady, map[string]interface{}{"playerId": c.playerID})
	if lobby.AllReady() {
		c.emit(models.EventLobbyUpdated, map[string]interface{}{
			"lobby":    lobby,
			"allReady": true,
		})
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
