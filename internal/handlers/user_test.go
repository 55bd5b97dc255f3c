package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/examarena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Cookie", "auth_token="+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateUserAndLogin(t *testing.T) {
	ts := setupTestServer(t)

	rr := doRequest(t, ts.router, http.MethodPost, "/user/create", `{"username":"ivan","password":"secret1"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "ivan", created.Username)
	assert.Empty(t, created.Password)
	assert.Equal(t, 1000, created.Rating)

	rr = doRequest(t, ts.router, http.MethodPost, "/user/login", `{"username":"ivan","password":"secret1"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == authCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login must set the auth cookie")
	assert.Equal(t, resp.Token, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	rr = doRequest(t, ts.router, http.MethodGet, "/user/me", "", cookie.Value)
	require.Equal(t, http.StatusOK, rr.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, created.ID, me.ID)
}

func TestCreateUserValidation(t *testing.T) {
	ts := setupTestServer(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"username":`, http.StatusBadRequest},
		{"short username", `{"username":"ab","password":"secret1"}`, http.StatusBadRequest},
		{"short password", `{"username":"ivan","password":"123"}`, http.StatusBadRequest},
		{"cyrillic username counts runes", `{"username":"Иван","password":"secret1"}`, http.StatusCreated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doRequest(t, ts.router, http.MethodPost, "/user/create", tc.body, "")
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
		})
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	ts := setupTestServer(t)
	body := `{"username":"ivan","password":"secret1"}`
	require.Equal(t, http.StatusCreated, doRequest(t, ts.router, http.MethodPost, "/user/create", body, "").Code)
	assert.Equal(t, http.StatusConflict, doRequest(t, ts.router, http.MethodPost, "/user/create", body, "").Code)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := setupTestServer(t)
	ts.accounts.addUser(t, "ivan", 1000)
	rr := doRequest(t, ts.router, http.MethodPost, "/user/login", `{"username":"ivan","password":"nope"}`, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestMeRequiresToken(t *testing.T) {
	ts := setupTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, ts.router, http.MethodGet, "/user/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, ts.router, http.MethodGet, "/user/me", "", "garbage").Code)
}

func TestMeAcceptsBearerToken(t *testing.T) {
	ts := setupTestServer(t)
	u, token := ts.accounts.addUser(t, "ivan", 1000)

	req := httptest.NewRequest(http.MethodGet, "/user/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), u.ID.String())
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := setupTestServer(t)
	rr := doRequest(t, ts.router, http.MethodPost, "/user/logout", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, authCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestLeaderboard(t *testing.T) {
	ts := setupTestServer(t)
	ts.accounts.addUser(t, "low", 900)
	ts.accounts.addUser(t, "high", 1300)
	ts.accounts.addUser(t, "mid", 1100)

	rr := doRequest(t, ts.router, http.MethodGet, "/leaderboard?limit=2", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "high", users[0].Username)
	assert.Equal(t, "mid", users[1].Username)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, ts.router, http.MethodGet, "/leaderboard?limit=x", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, ts.router, http.MethodGet, "/leaderboard?limit=0", "", "").Code)
}

func TestUserStats(t *testing.T) {
	ts := setupTestServer(t)
	a, _ := ts.accounts.addUser(t, "alice", 1000)
	b, _ := ts.accounts.addUser(t, "bob", 1000)
	ctx := context.Background()

	for i, winner := range []*uuid.UUID{&a.ID, &b.ID, nil} {
		id := uuid.New()
		require.NoError(t, ts.accounts.CreateMatch(ctx, &models.Match{ID: id, Player1ID: a.ID, Player2ID: b.ID, Status: models.MatchStatusPending}))
		require.NoError(t, ts.accounts.RecordMatchOutcome(ctx, &models.MatchOutcome{
			MatchID: id, WinnerUserID: winner, Reason: "both_submitted", EndedAt: time.Now(),
			Player1ID: a.ID, Player2ID: b.ID, Player1NewRating: 1000 + i, Player2NewRating: 1000 - i,
		}))
	}

	rr := doRequest(t, ts.router, http.MethodGet, "/user/"+a.ID.String()+"/stats", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats models.UserStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, models.UserStats{UserID: a.ID, Ended: 3, Wins: 1, Losses: 1, Draws: 1}, stats)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, ts.router, http.MethodGet, "/user/nope/stats", "", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, ts.router, http.MethodGet, "/user/"+uuid.NewString()+"/stats", "", "").Code)
}

func TestMatchHandlerHidesAnswersUntilEnded(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	answer := "42"
	id := uuid.New()
	require.NoError(t, ts.accounts.CreateMatch(ctx, &models.Match{
		ID: id, Player1Name: "alice", Player2Name: "bob", Status: models.MatchStatusStarted,
		Player1Answer: &answer,
	}))

	rr := doRequest(t, ts.router, http.MethodGet, "/match/"+id.String(), "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var m models.Match
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	assert.Equal(t, "alice", m.Player1Name)
	assert.Nil(t, m.Player1Answer)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, ts.router, http.MethodGet, "/match/bad", "", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, ts.router, http.MethodGet, "/match/"+uuid.NewString(), "", "").Code)
}

func TestTrainingOptions(t *testing.T) {
	ts := setupTestServer(t)
	rr := doRequest(t, ts.router, http.MethodGet, "/training/options", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var opts struct {
		Subjects     []string `json:"subjects"`
		Topics       []string `json:"topics"`
		Difficulties []string `json:"difficulties"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &opts))
	assert.Equal(t, []string{"Математика"}, opts.Subjects)
	assert.Equal(t, []string{"Арифметика"}, opts.Topics)
	assert.NotEmpty(t, opts.Difficulties)
}

func TestPingAndMetrics(t *testing.T) {
	ts := setupTestServer(t)
	assert.Equal(t, http.StatusOK, doRequest(t, ts.router, http.MethodGet, "/ping", "", "").Code)
	rr := doRequest(t, ts.router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "examarena_")
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc", extractCookieToken("theme=dark; auth_token=abc; x=y", "auth_token"))
	assert.Equal(t, "", extractCookieToken("theme=dark", "auth_token"))
	assert.Equal(t, "", extractCookieToken("", "auth_token"))
}

func TestFieldString(t *testing.T) {
	packet := map[string]interface{}{"s": "x", "n": float64(42), "f": 9.8, "b": true}
	assert.Equal(t, "x", fieldString(packet, "s"))
	assert.Equal(t, "42", fieldString(packet, "n"))
	assert.Equal(t, "9.8", fieldString(packet, "f"))
	assert.Equal(t, "true", fieldString(packet, "b"))
	assert.Equal(t, "", fieldString(packet, "missing"))
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t,
		[]string{"localhost:3000", "example.com", "*.example.org"},
		originHosts([]string{"http://localhost:3000", "https://example.com/", "*.example.org", ""}))
	assert.Nil(t, originHosts(nil))
}
