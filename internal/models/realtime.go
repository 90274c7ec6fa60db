package models

import "encoding/json"

// Commands accepted by a realtime channel
const (
	CommandCreateLobby  = "CREATE_LOBBY"
	CommandJoinLobby    = "JOIN_LOBBY"
	CommandLeaveLobby   = "LEAVE_LOBBY"
	CommandStartGame    = "START_GAME"
	CommandSubmitAnswer = "SUBMIT_ANSWER"
	CommandSendMessage  = "SEND_MESSAGE"
	CommandPlayerReady  = "PLAYER_READY"
	CommandPing         = "PING"
)

// Events emitted by a realtime channel
const (
	EventLobbyCreated    = "LOBBY_CREATED"
	EventLobbyJoined     = "LOBBY_JOINED"
	EventLobbyLeft       = "LOBBY_LEFT"
	EventLobbyUpdated    = "LOBBY_UPDATED"
	EventPlayerJoined    = "PLAYER_JOINED"
	EventPlayerLeft      = "PLAYER_LEFT"
	EventPlayerReady     = "PLAYER_READY"
	EventGameStarting    = "GAME_STARTING"
	EventGameStarted     = "GAME_STARTED"
	EventGameEnded       = "GAME_ENDED"
	EventQuestionStart   = "QUESTION_START"
	EventQuestionEnd     = "QUESTION_END"
	EventAnswerSubmitted = "ANSWER_SUBMITTED"
	EventScoresUpdated   = "SCORES_UPDATED"
	EventMessageReceived = "MESSAGE_RECEIVED"
	EventPong            = "PONG"
	EventPing            = "PING"
	EventTaskUpdate      = "TASK_UPDATE"
)

// Envelope is the wire shape of every command and event.
// PING and PONG carry Timestamp (unix ms) instead of a payload.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Player is a member of a lobby
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Score     int    `json:"score"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

// Lobby is one simulated multiplayer room
type Lobby struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Host            string    `json:"host"`
	Players         []*Player `json:"players"`
	MaxPlayers      int       `json:"maxPlayers"`
	GameStarted     bool      `json:"gameStarted"`
	CurrentQuestion int       `json:"currentQuestion"`
	TotalQuestions  int       `json:"totalQuestions"`
}

// Player returns the player with the given id, or nil
func (l *Lobby) Player(id string) *Player {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// AllReady reports whether every player in the lobby is ready
func (l *Lobby) AllReady() bool {
	for _, p := range l.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// HasRoom reports whether another player can join
func (l *Lobby) HasRoom() bool {
	return len(l.Players) < l.MaxPlayers
}

// Question is the sample question pushed during a game
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	TimeLimit     int      `json:"timeLimit"` // Seconds
}

// ScoreEntry is one row of a scoreboard
type ScoreEntry struct {
	Rank     int    `json:"rank,omitempty"`
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Task is the payload of a TASK_UPDATE event
type Task struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}
