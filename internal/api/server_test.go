// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/traylinx/tess/internal/action"
	"github.com/traylinx/tess/internal/agent"
	"github.com/traylinx/tess/internal/brain"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/keypool"
	"github.com/traylinx/tess/internal/orchestrator"
	"github.com/traylinx/tess/internal/provider"
)

// echoDecider replies with the command text.
type echoDecider struct{}

func (echoDecider) Decide(_ context.Context, text string, _ []provider.Message) (brain.Decision, error) {
	if text == "fail" {
		return brain.Decision{}, brain.NewError(brain.StageBrain, "All providers are unavailable (tried mock)", brain.ErrProvidersExhausted)
	}
	payload, err := json.Marshal(map[string]string{"action": "reply", "content": text})
	if err != nil {
		return brain.Decision{}, err
	}
	a, err := action.Parse(string(payload))
	if err != nil {
		return brain.Decision{}, err
	}
	return brain.Decision{Action: a, Response: provider.RawResponse{Text: string(payload), Provider: "mock"}}, nil
}

type staticStatus []brain.ProviderStatus

func (s staticStatus) Status() []brain.ProviderStatus { return s }

func newTestServer(t *testing.T, secret string) (*Server, *agent.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Debug = true
	if secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
		require.NoError(t, err)
		cfg.Server.SecretKey = string(hash)
	}

	disp := orchestrator.New(orchestrator.Handlers{
		Reply: func(_ context.Context, a *action.Reply, sink orchestrator.Sink, _ orchestrator.Brain) (string, error) {
			sink("line 1")
			sink("line 2")
			return a.Content, nil
		},
	}, nil)
	store := agent.NewStore(echoDecider{}, disp, agent.Options{HistoryLimit: 10, HistoryWindow: 4})
	status := staticStatus{{
		ID: "mock", Type: config.TypeMock, Priority: 1, Available: 1,
		Credentials: []keypool.Credential{{ProviderID: "mock", Key: "sk-1...cdef", Status: keypool.StatusActive}},
	}}
	return NewServer(cfg, store, status), store
}

func do(t *testing.T, s *Server, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()
	require.NotEmpty(t, id)
	return id
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.True(t, gjson.Get(w.Body.String(), "version").Exists())
}

func TestProviders(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(t, s, http.MethodGet, "/v1/providers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "mock", gjson.Get(body, "providers.0.id").String())
	assert.Equal(t, "active", gjson.Get(body, "providers.0.credentials.0.status").String())
	assert.Equal(t, "sk-1...cdef", gjson.Get(body, "providers.0.credentials.0.key").String())
}

func TestSessionLifecycle(t *testing.T) {
	s, store := newTestServer(t, "")
	id := createSession(t, s)
	assert.Equal(t, 1, store.Len())

	w := do(t, s, http.MethodPost, "/v1/sessions/"+id+"/commands", `{"text":"hello there"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "reply", gjson.Get(body, "action").String())
	assert.Equal(t, "hello there", gjson.Get(body, "message").String())
	assert.Equal(t, `["line 1","line 2"]`, gjson.Get(body, "output").Raw)

	w = do(t, s, http.MethodGet, "/v1/sessions/"+id+"/history", "", nil)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "history.#").Int())

	w = do(t, s, http.MethodPost, "/v1/sessions/"+id+"/clear", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodGet, "/v1/sessions/"+id+"/history", "", nil)
	assert.Equal(t, int64(0), gjson.Get(w.Body.String(), "history.#").Int())

	w = do(t, s, http.MethodGet, "/v1/sessions", "", nil)
	assert.Equal(t, id, gjson.Get(w.Body.String(), "sessions.0.id").String())

	w = do(t, s, http.MethodDelete, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, http.MethodDelete, "/v1/sessions/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommand_Errors(t *testing.T) {
	s, _ := newTestServer(t, "")

	w := do(t, s, http.MethodPost, "/v1/sessions/nope/commands", `{"text":"hi"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	id := createSession(t, s)
	w = do(t, s, http.MethodPost, "/v1/sessions/"+id+"/commands", `{"text":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPost, "/v1/sessions/"+id+"/commands", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A failed command is still a well-formed reply.
	w = do(t, s, http.MethodPost, "/v1/sessions/"+id+"/commands", `{"text":"fail"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.False(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "BRAIN", gjson.Get(body, "stage").String())
	assert.Equal(t, "[BRAIN] All providers are unavailable (tried mock)", gjson.Get(body, "message").String())
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, "hunter2-secret")

	w := do(t, s, http.MethodGet, "/v1/providers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/v1/providers", "", http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/v1/providers", "", http.Header{"Authorization": {"Bearer hunter2-secret"}})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/v1/providers?token=hunter2-secret", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_RemoteWithoutSecret(t *testing.T) {
	s, _ := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuth_ForwardedLoopbackWithoutSecret(t *testing.T) {
	s, store := newTestServer(t, "")
	for _, h := range []string{"X-Forwarded-For", "X-Real-IP", "Forwarded"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set(h, "127.0.0.1")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, h)
	}

	// A local reverse proxy does not make its clients local.
	w := do(t, s, http.MethodPost, "/v1/sessions", "", http.Header{"X-Forwarded-For": {"203.0.113.7"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 0, store.Len())
}

func TestWebSocket_StreamsOutput(t *testing.T) {
	s, _ := newTestServer(t, "")
	id := createSession(t, s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	send := func(f Frame) {
		data, err := json.Marshal(f)
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}
	recv := func() Frame {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	}

	send(Frame{Type: FrameCommand, Text: "stream me"})
	assert.Equal(t, Frame{Type: FrameOutput, Line: "line 1"}, recv())
	assert.Equal(t, Frame{Type: FrameOutput, Line: "line 2"}, recv())
	reply := recv()
	require.Equal(t, FrameReply, reply.Type)
	require.NotNil(t, reply.Reply)
	assert.True(t, reply.Reply.Success)
	assert.Equal(t, "stream me", reply.Reply.Message)

	send(Frame{Type: FrameClear})
	assert.Equal(t, FrameCleared, recv().Type)

	send(Frame{Type: "dance"})
	assert.Equal(t, Frame{Type: FrameError, Error: "unknown frame type: dance"}, recv())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, FrameError, recv().Type)
}

func TestWebSocket_UnknownSession(t *testing.T) {
	s, _ := newTestServer(t, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
