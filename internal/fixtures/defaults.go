package fixtures

import (
	"fmt"

	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/tidwall/gjson"
)

// defaultBody returns the static default payload for well-known paths
func (s *Synthesizer) defaultBody(req *template.RequestData) (interface{}, bool) {
	src := s.renderer.Source()
	now := s.now()

	switch req.Path {
	case "/auth/refresh":
		userID, email := "mock_user", ""
		if refresh := gjson.Get(requestJSON(req), "refreshToken").String(); refresh != "" {
			if claims, err := s.tokens.Parse(refresh); err == nil {
				userID = fmt.Sprint(claims["sub"])
				email = fmt.Sprint(claims["email"])
			}
		}
		pair, err := s.tokens.Issue(userID, email)
		if err != nil {
			return nil, false
		}
		return map[string]interface{}{
			"success":      true,
			"token":        pair.Access,
			"refreshToken": pair.Refresh,
		}, true

	case "/auth/logout":
		return map[string]interface{}{"success": true}, true

	case "/quiz/submit":
		return map[string]interface{}{
			"success":        true,
			"score":          src.Intn(100),
			"correctAnswers": src.Intn(10),
			"totalQuestions": 10,
			"xpEarned":       src.Intn(500),
		}, true

	case "/achievements":
		return map[string]interface{}{
			"success": true,
			"achievements": []map[string]interface{}{
				{"id": "first_quiz", "name": "First Quiz", "unlocked": true},
				{"id": "streak_3", "name": "3 Day Streak", "unlocked": false},
				{"id": "perfect_score", "name": "Perfect Score", "unlocked": false},
			},
		}, true

	case "/user/stats":
		return map[string]interface{}{
			"success": true,
			"stats": map[string]interface{}{
				"totalQuizzes": 42,
				"totalXP":      12500,
				"averageScore": 78,
				"streak":       5,
			},
		}, true

	case "/user/progress":
		return map[string]interface{}{
			"success": true,
			"progress": map[string]interface{}{
				"level":       15,
				"currentXP":   2500,
				"nextLevelXP": 3000,
				"rank":        "Expert",
			},
		}, true

	case "/lobby/create":
		return map[string]interface{}{
			"success": true,
			"lobbyId": fmt.Sprintf("lobby_%d", now.UnixMilli()),
			"code":    template.JoinCode(src),
		}, true

	case "/lobby/join":
		code := gjson.Get(requestJSON(req), "code").String()
		if code == "" {
			code = template.JoinCode(src)
		}
		return map[string]interface{}{
			"success":  true,
			"lobbyId":  "lobby_" + code,
			"code":     code,
			"playerId": newID("player"),
		}, true

	case "/lobby/list":
		return map[string]interface{}{
			"success": true,
			"lobbies": []map[string]interface{}{
				{"id": "lobby_1", "name": "Quick Match", "players": 3, "maxPlayers": 4},
				{"id": "lobby_2", "name": "Science Quiz", "players": 2, "maxPlayers": 6},
			},
		}, true
	}

	return nil, false
}
