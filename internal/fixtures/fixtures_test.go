package fixtures

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/comfortablynumb/quizmock/internal/authtoken"
	"github.com/comfortablynumb/quizmock/internal/matcher"
	"github.com/comfortablynumb/quizmock/internal/models"
	"github.com/comfortablynumb/quizmock/internal/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newSynthesizer(t *testing.T, generators map[string]models.Generator) *Synthesizer {
	t.Helper()
	s, err := NewSynthesizer(generators, template.NewRenderer(template.NewSource(1)), authtoken.NewIssuer("test"))
	require.NoError(t, err)
	return s
}

func route(path, method string, ep models.Endpoint, params map[string]string) *matcher.Route {
	ep.Path = path
	ep.Method = method
	return &matcher.Route{Service: "test", Endpoint: ep, Params: params}
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestLoginKnownUser(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/auth/login", "POST", models.Endpoint{Fixture: "users"}, nil),
		&template.RequestData{Path: "/auth/login", Body: `{"email":"demo@quizmentor.com","password":"x"}`},
	)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFixture, res.Outcome)
	assert.Zero(t, res.Status)

	body := toJSON(t, res.Body)
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "user_demo", gjson.Get(body, "user.id").String())

	claims, err := authtoken.NewIssuer("test").Parse(gjson.Get(body, "token").String())
	require.NoError(t, err)
	assert.Equal(t, "user_demo", claims["sub"])
}

func TestLoginUnknownUserIsExplicitOutcome(t *testing.T) {
	s := newSynthesizer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"unknown email", `{"email":"nomatch@x.com"}`},
		{"malformed body", `{"email":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Body(
				route("/auth/login", "POST", models.Endpoint{Fixture: "users"}, nil),
				&template.RequestData{Path: "/auth/login", Body: tt.body},
			)
			require.NoError(t, err)
			assert.Equal(t, OutcomeNoFixtureMatch, res.Outcome)
			assert.Equal(t, http.StatusNotFound, res.Status)
			assert.False(t, gjson.Get(toJSON(t, res.Body), "success").Bool())
		})
	}
}

func TestRegisterCreatesUser(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/auth/register", "POST", models.Endpoint{Fixture: "users"}, nil),
		&template.RequestData{Path: "/auth/register", Body: `{"email":"new@x.com"}`},
	)
	require.NoError(t, err)

	body := toJSON(t, res.Body)
	assert.Equal(t, "new@x.com", gjson.Get(body, "user.email").String())
	assert.Equal(t, "New User", gjson.Get(body, "user.name").String())
	assert.NotEmpty(t, gjson.Get(body, "refreshToken").String())
}

func TestCategoriesDerivedFromQuestions(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/categories", "GET", models.Endpoint{Fixture: "questions"}, nil),
		&template.RequestData{Path: "/categories"},
	)
	require.NoError(t, err)

	body := toJSON(t, res.Body)
	cats := gjson.Get(body, "categories").Array()
	require.Len(t, cats, 4)
	assert.Equal(t, "cat_1", cats[0].Get("id").String())
	assert.Equal(t, "Geography", cats[0].Get("name").String())
	assert.EqualValues(t, 4, cats[0].Get("questionCount").Int())
}

func TestQuestionsByCategory(t *testing.T) {
	s := newSynthesizer(t, nil)

	for _, id := range []string{"cat_2", "science"} {
		res, err := s.Body(
			route("/questions/category/:id", "GET", models.Endpoint{Fixture: "questions"}, map[string]string{"id": id}),
			&template.RequestData{Path: "/questions/category/" + id},
		)
		require.NoError(t, err)

		body := toJSON(t, res.Body)
		assert.Equal(t, "Science", gjson.Get(body, "category").String())
		assert.Len(t, gjson.Get(body, "questions").Array(), 4)
	}
}

func TestRandomQuestionsSliceAndShuffle(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/questions/random", "GET", models.Endpoint{Fixture: "questions", Generator: "randomQuestions"}, nil),
		&template.RequestData{Path: "/questions/random"},
	)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFixture, res.Outcome, "fixture takes priority over generator")

	questions := gjson.Get(toJSON(t, res.Body), "questions").Array()
	require.Len(t, questions, 10)

	seen := make(map[string]bool)
	for _, q := range questions {
		id := q.Get("id").String()
		assert.False(t, seen[id], "duplicate question %s", id)
		seen[id] = true
	}
}

func TestBuiltinGenerator(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/quiz/daily", "GET", models.Endpoint{Generator: "randomQuestions"}, nil),
		&template.RequestData{Path: "/quiz/daily"},
	)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerator, res.Outcome)
	assert.Len(t, gjson.Get(toJSON(t, res.Body), "questions").Array(), 10)
}

func TestScriptGenerator(t *testing.T) {
	s := newSynthesizer(t, map[string]models.Generator{
		"echoCode": {JavaScript: `({success: true, code: request.body.code, total: fixtures.questions.questions.length})`},
	})

	res, err := s.Body(
		route("/lobby/peek", "POST", models.Endpoint{Generator: "echoCode"}, nil),
		&template.RequestData{Method: "POST", Path: "/lobby/peek", Body: `{"code":"XYZ999"}`},
	)
	require.NoError(t, err)

	body := toJSON(t, res.Body)
	assert.Equal(t, "XYZ999", gjson.Get(body, "code").String())
	assert.EqualValues(t, 14, gjson.Get(body, "total").Int())
}

func TestScriptGeneratorError(t *testing.T) {
	s := newSynthesizer(t, map[string]models.Generator{
		"broken": {JavaScript: `throw new Error("boom")`},
	})

	_, err := s.Body(route("/x", "GET", models.Endpoint{Generator: "broken"}, nil), &template.RequestData{Path: "/x"})
	assert.Error(t, err)
}

func TestInlineTemplateBody(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(
		route("/echo/:id", "GET", models.Endpoint{Body: `{"id":"{{index .Params "id"}}"}`, Template: true}, nil),
		&template.RequestData{Path: "/echo/7", Params: map[string]string{"id": "7"}},
	)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInline, res.Outcome)
	assert.JSONEq(t, `{"id":"7"}`, toJSON(t, res.Body))
}

func TestDefaultsAndGeneric(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(route("/quiz/submit", "POST", models.Endpoint{}, nil), &template.RequestData{Path: "/quiz/submit"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDefault, res.Outcome)
	body := toJSON(t, res.Body)
	assert.EqualValues(t, 10, gjson.Get(body, "totalQuestions").Int())
	assert.Less(t, gjson.Get(body, "score").Int(), int64(100))

	res, err = s.Body(route("/lobby/create", "POST", models.Endpoint{}, nil), &template.RequestData{Path: "/lobby/create"})
	require.NoError(t, err)
	assert.Len(t, gjson.Get(toJSON(t, res.Body), "code").String(), 6)

	res, err = s.Body(route("/unknown", "GET", models.Endpoint{}, nil), &template.RequestData{Path: "/unknown"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeGeneric, res.Outcome)
	assert.JSONEq(t, `{"success":true}`, toJSON(t, res.Body))
}

func TestRefreshKeepsSubject(t *testing.T) {
	s := newSynthesizer(t, nil)
	pair, err := authtoken.NewIssuer("test").Issue("user_sam", "sam@quizmentor.com")
	require.NoError(t, err)

	res, err := s.Body(
		route("/auth/refresh", "POST", models.Endpoint{}, nil),
		&template.RequestData{Path: "/auth/refresh", Body: `{"refreshToken":"` + pair.Refresh + `"}`},
	)
	require.NoError(t, err)

	claims, err := authtoken.NewIssuer("test").Parse(gjson.Get(toJSON(t, res.Body), "token").String())
	require.NoError(t, err)
	assert.Equal(t, "user_sam", claims["sub"])
}

func TestLeaderboardUnwrap(t *testing.T) {
	s := newSynthesizer(t, nil)

	res, err := s.Body(route("/leaderboard", "GET", models.Endpoint{Fixture: "leaderboard"}, nil), &template.RequestData{Path: "/leaderboard"})
	require.NoError(t, err)

	board := gjson.Get(toJSON(t, res.Body), "leaderboard").Array()
	require.Len(t, board, 5)
	assert.Equal(t, "user_sam", board[0].Get("userId").String())
}

func TestCompileScript(t *testing.T) {
	assert.NoError(t, CompileScript("ok", `({success: true})`))
	assert.Error(t, CompileScript("bad", `({success: `))
}
