package fixtures

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/comfortablynumb/quizmock/internal/matcher"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const randomQuestionCount = 10

// processFixture applies per-route post-processing to a fixture dataset
func (s *Synthesizer) processFixture(data []byte, route *matcher.Route, req *template.RequestData) (interface{}, error) {
	switch req.Path {
	case "/auth/login":
		return s.login(data, req)
	case "/auth/register":
		return s.register(req)
	case "/categories":
		return categories(data), nil
	case "/questions/random":
		return map[string]interface{}{
			"success":   true,
			"questions": s.shuffleQuestions(data, randomQuestionCount),
		}, nil
	case "/leaderboard":
		rankings := gjson.GetBytes(data, "rankings")
		if !rankings.Exists() {
			return map[string]interface{}{"success": true, "leaderboard": json.RawMessage(data)}, nil
		}
		return map[string]interface{}{"success": true, "leaderboard": json.RawMessage(rankings.Raw)}, nil
	}

	if id, ok := route.Params["id"]; ok && gjson.GetBytes(data, "questions").Exists() {
		return questionsByCategory(data, id), nil
	}

	return json.RawMessage(data), nil
}

func (s *Synthesizer) login(data []byte, req *template.RequestData) (interface{}, error) {
	email := gjson.Get(requestJSON(req), "email").String()
	if email == "" {
		return nil, ErrNoFixtureMatch
	}

	var user gjson.Result
	for _, u := range gjson.GetBytes(data, "users").Array() {
		if strings.EqualFold(u.Get("email").String(), email) {
			user = u
			break
		}
	}
	if !user.Exists() {
		return nil, ErrNoFixtureMatch
	}

	pair, err := s.tokens.Issue(user.Get("id").String(), user.Get("email").String())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":     user.Get("id").String(),
			"email":  user.Get("email").String(),
			"name":   user.Get("name").String(),
			"avatar": user.Get("avatar").String(),
		},
		"token":        pair.Access,
		"refreshToken": pair.Refresh,
	}, nil
}

func (s *Synthesizer) register(req *template.RequestData) (interface{}, error) {
	body := requestJSON(req)
	email := gjson.Get(body, "email").String()
	name := gjson.Get(body, "name").String()
	if name == "" {
		name = "New User"
	}

	id := fmt.Sprintf("user_%d", s.now().UnixMilli())
	pair, err := s.tokens.Issue(id, email)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success": true,
		"user": map[string]interface{}{
			"id":    id,
			"email": email,
			"name":  name,
		},
		"token":        pair.Access,
		"refreshToken": pair.Refresh,
	}, nil
}

type category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	QuestionCount int    `json:"questionCount"`
}

// categoryList derives categories from the question pool in first-seen order
func categoryList(data []byte) []category {
	var out []category
	index := make(map[string]int)
	for _, q := range gjson.GetBytes(data, "questions").Array() {
		name := q.Get("category").String()
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, category{ID: fmt.Sprintf("cat_%d", i+1), Name: name})
		}
		out[i].QuestionCount++
	}
	return out
}

func categories(data []byte) interface{} {
	return map[string]interface{}{
		"success":    true,
		"categories": categoryList(data),
	}
}

// questionsByCategory accepts either a derived category id (cat_2) or a category name
func questionsByCategory(data []byte, id string) interface{} {
	name := id
	for _, c := range categoryList(data) {
		if c.ID == id || strings.EqualFold(c.Name, id) {
			name = c.Name
			break
		}
	}

	questions := make([]json.RawMessage, 0)
	for _, q := range gjson.GetBytes(data, "questions").Array() {
		if strings.EqualFold(q.Get("category").String(), name) {
			questions = append(questions, json.RawMessage(q.Raw))
		}
	}

	return map[string]interface{}{
		"success":   true,
		"category":  name,
		"questions": questions,
	}
}

// shuffleQuestions returns up to n questions in random order
func (s *Synthesizer) shuffleQuestions(data []byte, n int) []json.RawMessage {
	all := gjson.GetBytes(data, "questions").Array()
	out := make([]json.RawMessage, len(all))
	for i, q := range all {
		out[i] = json.RawMessage(q.Raw)
	}

	src := s.renderer.Source()
	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	if len(out) > n {
		out = out[:n]
	}
	return out
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
