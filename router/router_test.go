package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collabcore/config"
	"collabcore/socket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-secret"

func bearer(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func newServer(t *testing.T) (http.Handler, *socket.Hub) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	hub := socket.NewHub(config.DefaultCollab(), nil, nil)
	return Setup(hub), hub
}

func do(t *testing.T, h http.Handler, method, path, body string, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoToken(t *testing.T) {
	h, _ := newServer(t)
	w := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAPIRequiresToken(t *testing.T) {
	h, _ := newServer(t)
	for _, path := range []string{"/api/rooms", "/api/rooms/r1/operations", "/api/rooms/r1/presence", "/ws"} {
		w := do(t, h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestPreflightIsAnswered(t *testing.T) {
	h, _ := newServer(t)
	w := do(t, h, http.MethodOptions, "/api/rooms/r1/operations", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApplyOperationThenReadHistory(t *testing.T) {
	h, _ := newServer(t)
	auth := bearer(t, "alice")

	body := `{"element_id":"S1","op_type":"move","new_value":{"x":100,"y":100},"timestamp":"` +
		time.Now().UTC().Format(time.RFC3339Nano) + `"}`
	w := do(t, h, http.MethodPost, "/api/rooms/r1/operations", body, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var applied struct {
		Success      bool            `json:"success"`
		Transformed  bool            `json:"transformed"`
		ResolvedByOT bool            `json:"resolved_by_ot"`
		FinalValue   json.RawMessage `json:"final_value"`
		OperationID  string          `json:"operation_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))
	assert.True(t, applied.Success)
	assert.False(t, applied.ResolvedByOT)
	assert.JSONEq(t, `{"x":100,"y":100}`, string(applied.FinalValue))
	assert.NotEmpty(t, applied.OperationID)

	// A concurrent move by another user supersedes it.
	body = `{"user_id":"bob","element_id":"S1","op_type":"move","new_value":{"x":200,"y":200}}`
	w = do(t, h, http.MethodPost, "/api/rooms/r1/operations", body, auth)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))
	assert.True(t, applied.ResolvedByOT)
	assert.JSONEq(t, `{"x":200,"y":200}`, string(applied.FinalValue))

	w = do(t, h, http.MethodGet, "/api/rooms/r1/operations?limit=1&offset=0", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Room       string `json:"room"`
		Total      int    `json:"total"`
		Operations []struct {
			UserID      string `json:"user_id"`
			Transformed bool   `json:"transformed"`
		} `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, "r1", history.Room)
	assert.Equal(t, 2, history.Total)
	require.Len(t, history.Operations, 1)
	assert.Equal(t, "alice", history.Operations[0].UserID)
	assert.True(t, history.Operations[0].Transformed)

	w = do(t, h, http.MethodGet, "/api/rooms", "", auth)
	assert.JSONEq(t, `{"rooms":1,"connections":0}`, w.Body.String())
}

func TestApplyOperationRejectsBadInput(t *testing.T) {
	h, hub := newServer(t)
	auth := bearer(t, "alice")

	cases := map[string]string{
		"not json":   `{"element_id":`,
		"no element": `{"op_type":"move","new_value":1}`,
		"bad kind":   `{"element_id":"S1","op_type":"spin","new_value":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/rooms/r1/operations", body, auth)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	rooms, _ := hub.Stats()
	assert.Zero(t, rooms)
}

func TestHistoryOfUnknownRoomIsEmpty(t *testing.T) {
	h, _ := newServer(t)
	w := do(t, h, http.MethodGet, "/api/rooms/nowhere/operations", "", bearer(t, "alice"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room":"nowhere","total":0,"operations":[]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/rooms/nowhere/operations?limit=ten", "", bearer(t, "alice"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPresenceOfUnknownRoomIsEmpty(t *testing.T) {
	h, _ := newServer(t)
	w := do(t, h, http.MethodGet, "/api/rooms/nowhere/presence", "", bearer(t, "alice"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room":"nowhere","presences":[]}`, w.Body.String())
}
