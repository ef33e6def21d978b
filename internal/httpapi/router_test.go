package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/ai/aitest"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/chat"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/db"
	"github.com/suPer8Hu/brandpulse/internal/httpapi/handlers"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/planning"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
	"gorm.io/gorm"
)

type planProvider struct{}

func (planProvider) Chat(context.Context, []ai.Message) (string, error) {
	return `{"tasks":[{"title":"Launch poll","channel":"instagram","due_in_days":2}]}`, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t    *testing.T
	r    *gin.Engine
	prov *aitest.Provider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	cfg := config.Config{
		JWTSecret:      "test-secret",
		UploadMaxBytes: 1 << 20,
		CORSOrigins:    []string{"http://localhost:3000"},
	}
	log := logger.NewNop()
	set := prompts.Default()
	prov := &aitest.Provider{}

	contexts := aicontext.NewManager(aicontext.NewRepo(gdb), prov, aicontext.Options{SystemInstruction: set.SystemInstruction}, log)
	reg := ai.NewRegistry()
	reg.Register("fake", func(context.Context, string) (ai.Provider, error) { return planProvider{}, nil })

	h := &handlers.Handler{
		DB:       gdb,
		Cfg:      cfg,
		Log:      log,
		Contexts: contexts,
		Chat:     chat.NewService(chat.NewRepo(gdb), contexts, prov, set, 0, log),
		Analysis: analysis.NewGenerator(contexts, prov, set, analysis.NewRepo(gdb), nil, log),
		Planning: planning.NewService(planning.NewRepo(gdb), reg, "fake", "", set, log),
	}
	return &testServer{t: t, r: NewRouter(cfg, log, h), prov: prov}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req, token)
}

func (s *testServer) upload(path, token, filename string, data []byte) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = fw.Write(data)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.WriteField("category", "social"))
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(req, token)
}

func (s *testServer) send(req *http.Request, token string) (int, envelope) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/users", "", gin.H{"email": email, "password": "hunter2hunter2"})
	require.Equal(s.t, http.StatusOK, code, env.Message)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func (s *testServer) createClient(token, name string) uint64 {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/clients", token, gin.H{"name": name, "industry": "coffee"})
	require.Equal(s.t, http.StatusOK, code)
	var out struct {
		ID uint64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.ID
}

func TestAuthAndOwnership(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, 40101, env.Code)

	alice := s.register("alice@example.com")
	code, env = s.do(http.MethodPost, "/users", "", gin.H{"email": "ALICE@example.com", "password": "hunter2hunter2"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, 10003, env.Code)

	code, _ = s.do(http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(http.MethodPost, "/login", "", gin.H{"email": "alice@example.com", "password": "hunter2hunter2"})
	require.Equal(t, http.StatusOK, code)

	clientID := s.createClient(alice, "Bean Co")
	bob := s.register("bob@example.com")

	code, env = s.do(http.MethodGet, fmt.Sprintf("/clients/%d", clientID), bob, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 40403, env.Code)

	code, _ = s.do(http.MethodGet, fmt.Sprintf("/clients/%d", clientID), alice, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, "/nope", alice, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 40400, env.Code)
}

func TestUploadChatAndAnalysisFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register("owner@example.com")
	clientID := s.createClient(token, "Bean Co")
	base := fmt.Sprintf("/clients/%d", clientID)

	code, env := s.do(http.MethodPost, base+"/chat/sessions", token, gin.H{"title": "launch"})
	require.Equal(t, http.StatusOK, code)
	var sess struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sess))
	msgPath := base + "/chat/sessions/" + sess.SessionID + "/messages"

	// no documents yet: soft answer, nothing sent to the model
	code, env = s.do(http.MethodPost, msgPath, token, gin.H{"message": "how are we doing?"})
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), `"no_context":true`)
	require.Empty(t, s.prov.GenerateCalls)

	code, env = s.upload(base+"/files", token, "clip.mp4", []byte("not really a video"))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, 10011, env.Code)
	require.Empty(t, s.prov.Uploads)

	code, env = s.upload(base+"/files", token, "posts.txt", []byte("monday: 120 likes\ntuesday: 80 likes\n"))
	require.Equal(t, http.StatusOK, code, env.Message)
	require.Contains(t, string(env.Data), `"cache_active":true`)

	code, env = s.do(http.MethodGet, base+"/context", token, nil)
	require.Equal(t, http.StatusOK, code)
	var sum struct {
		Files []struct {
			Filename string `json:"filename"`
			Category string `json:"category"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	require.Len(t, sum.Files, 1)
	require.Equal(t, "social", sum.Files[0].Category)

	code, env = s.do(http.MethodPost, msgPath, token, gin.H{"message": "hi"})
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), `"reply":"echo: hi"`)

	code, env = s.do(http.MethodGet, msgPath, token, nil)
	require.Equal(t, http.StatusOK, code)
	var listed struct {
		Messages []chat.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed.Messages, 2)

	s.prov.GenerateFunc = func(ai.GenerateRequest) (string, error) { return "sorry, no chart today", nil }
	code, env = s.do(http.MethodPost, base+"/charts", token, gin.H{"requirements": "likes per day"})
	require.Equal(t, http.StatusBadGateway, code)
	require.Equal(t, 50210, env.Code)
	require.JSONEq(t, `{"raw":"sorry, no chart today"}`, string(env.Data))

	code, env = s.do(http.MethodPost, base+"/analysis/modules/q999", token, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 40406, env.Code)

	code, env = s.do(http.MethodPost, base+"/analysis/jobs", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, 50301, env.Code)

	code, _ = s.do(http.MethodPost, base+"/chat/sessions/"+sess.SessionID+"/close", token, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodPost, msgPath, token, gin.H{"message": "still there?"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, 40902, env.Code)
}

func TestPlanningRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.register("planner@example.com")
	base := fmt.Sprintf("/clients/%d", s.createClient(token, "Bean Co"))

	code, env := s.do(http.MethodPost, base+"/plans", token, gin.H{"goal": "more followers", "weeks": 2})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(http.MethodGet, base+"/tasks?status=todo", token, nil)
	require.Equal(t, http.StatusOK, code)
	var out struct {
		Tasks []planning.Task `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Tasks, 1)
	taskPath := fmt.Sprintf("%s/tasks/%d", base, out.Tasks[0].ID)

	code, env = s.do(http.MethodPatch, taskPath, token, gin.H{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, 10020, env.Code)

	code, _ = s.do(http.MethodPost, taskPath+"/notes", token, gin.H{"content": "needs a visual"})
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodDelete, taskPath, token, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodGet, taskPath+"/notes", token, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, 40407, env.Code)
}
