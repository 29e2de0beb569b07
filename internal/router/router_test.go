package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"ultichat/internal/billing"
	"ultichat/internal/database"
	"ultichat/internal/handler"
	"ultichat/internal/provider"
	"ultichat/internal/repository"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type stubGenerator struct {
	completion *provider.Completion
	err        error
	calls      int
}

func (g *stubGenerator) HasAPIKey() bool { return true }

func (g *stubGenerator) Generate(context.Context, provider.Request) (*provider.Completion, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.completion, nil
}

type testServer struct {
	engine *gin.Engine
	users  *repository.UserRepository
	gifts  *repository.GiftRepository
	gen    *stubGenerator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewUserRepository(db)
	authSessions := repository.NewAuthSessionRepository(db)
	chatSessions := repository.NewChatSessionRepository(db)
	messages := repository.NewMessageRepository(db)
	gifts := repository.NewGiftRepository(db)

	gen := &stubGenerator{completion: &provider.Completion{
		Reply:        "hello there",
		Usage:        &billing.Usage{PromptTokens: 100, CompletionTokens: 200, TotalTokens: 300},
		FinishReason: "stop",
	}}

	jwt := service.NewJWTService("secret", "ultichat", "ultichat-web")
	policy := billing.Policy{
		MinBalance:          decimal.RequireFromString("0.001"),
		MaxPromptChars:      12000,
		MinOutputTokens:     32,
		HardCapOutputTokens: 800,
		SafetyMultiplier:    decimal.RequireFromString("1.2"),
	}
	prices := billing.NewPriceTable(nil, billing.NewRates(1e-6, 2e-6))

	engine := Setup(Deps{
		CORSAllowedOrigins: "*",
		RateLimitAuthRPS:   100,
		RateLimitChatRPS:   100,
		JWT:                jwt,
		AuthSessions:       authSessions,
		Users:              handler.NewUserHandler(service.NewUserServiceWithRepo(users, authSessions, jwt)),
		Chat: handler.NewChatHandler(service.NewChatServiceWithDeps(
			prices, users, billing.NewEstimator(policy), gen, chatSessions, messages,
		)),
		Sessions: handler.NewSessionHandler(service.NewSessionServiceWithRepo(chatSessions, messages, "xiaomi/mimo-v2-flash")),
		Transactions: handler.NewTransactionHandler(service.NewTransactionServiceWithRepo(
			repository.NewTransactionRepository(db), gifts, users,
		)),
	})
	return &testServer{engine: engine, users: users, gifts: gifts, gen: gen}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, email string) (token, userID string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return gjson.Get(w.Body.String(), "session.access_token").String(), gjson.Get(w.Body.String(), "user.id").String()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "running")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	token, userID := s.register(t, "flow@example.com")

	// Unauthenticated
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/chat", "", map[string]any{}).Code)

	// New accounts start empty and are rejected before generation.
	w := s.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"modelId": "openai/gpt-4o-mini", "currentParts": []map[string]string{{"text": "hi"}},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Insufficient balance", gjson.Get(w.Body.String(), "error").String())
	assert.Zero(t, s.gen.calls)

	w = s.do(t, http.MethodPost, "/api/chat", token, map[string]any{"modelId": "m"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := s.users.Deposit(ctx, userID, decimal.RequireFromString("10"), "top up")
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/api/sessions/create", token, map[string]string{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sessionID := gjson.Get(w.Body.String(), "id").String()
	assert.Equal(t, "xiaomi/mimo-v2-flash", gjson.Get(w.Body.String(), "model_id").String())

	w = s.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"modelId":      "openai/gpt-4o-mini",
		"history":      []map[string]any{{"role": "user", "parts": []map[string]string{{"text": "earlier"}}}},
		"currentParts": []map[string]string{{"text": "hi"}},
		"sessionId":    sessionID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "hello there", gjson.Get(body, "reply").String())
	assert.InDelta(t, 0.0005, gjson.Get(body, "cost").Float(), 1e-12)
	assert.InDelta(t, 9.9995, gjson.Get(body, "balance").Float(), 1e-9)
	assert.False(t, gjson.Get(body, "limited").Bool())
	assert.False(t, gjson.Get(body, "prompt_truncated").Bool())
	assert.Equal(t, int64(800), gjson.Get(body, "max_tokens").Int())
	assert.Equal(t, int64(300), gjson.Get(body, "usage.total_tokens").Int())

	w = s.do(t, http.MethodGet, "/api/sessions/"+sessionID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := gjson.Parse(w.Body.String()).Array()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Get("content.0.text").String())
	assert.Equal(t, "hello there", msgs[1].Get("content.0.text").String())
	assert.InDelta(t, 0.0005, msgs[1].Get("cost").Float(), 1e-12)

	w = s.do(t, http.MethodGet, "/api/transactions/spend?limit=5", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	spends := gjson.Parse(w.Body.String()).Array()
	require.Len(t, spends, 1)
	assert.Equal(t, "openai/gpt-4o-mini", spends[0].Get("model").String())
	assert.InDelta(t, 0.0005, spends[0].Get("amount").Float(), 1e-12)

	w = s.do(t, http.MethodGet, "/api/sessions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, gjson.Parse(w.Body.String()).Array(), 1)

	w = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 9.9995, gjson.Get(w.Body.String(), "profile.usd_balance").Float(), 1e-9)
}

func TestSessionIsolation(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.register(t, "owner@example.com")
	other, _ := s.register(t, "other@example.com")

	w := s.do(t, http.MethodPost, "/api/sessions/create", owner, map[string]string{"modelId": "openai/gpt-4o-mini"})
	require.Equal(t, http.StatusOK, w.Code)
	sessionID := gjson.Get(w.Body.String(), "id").String()

	w = s.do(t, http.MethodGet, "/api/sessions/"+sessionID+"/messages", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", gjson.Get(w.Body.String(), "error").String())

	w = s.do(t, http.MethodPost, "/api/chat", other, map[string]any{
		"modelId": "m", "currentParts": []map[string]string{{"text": "hi"}}, "sessionId": sessionID,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, s.gen.calls)
}

func TestGiftRedeemTwice(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "gift@example.com")
	require.NoError(t, s.gifts.UpsertCode(context.Background(), "WINTER", decimal.RequireFromString("0.01")))

	w := s.do(t, http.MethodPost, "/api/transactions/gift", token, map[string]string{"code": "WINTER"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 0.01, gjson.Get(w.Body.String(), "balance").Float(), 1e-12)

	w = s.do(t, http.MethodPost, "/api/transactions/gift", token, map[string]string{"code": "WINTER"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Code already used", gjson.Get(w.Body.String(), "error").String())

	w = s.do(t, http.MethodPost, "/api/transactions/gift", token, map[string]string{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.InDelta(t, 0.01, gjson.Get(w.Body.String(), "profile.usd_balance").Float(), 1e-12)
}

func TestProviderErrorPassThrough(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	token, userID := s.register(t, "p@example.com")
	_, err := s.users.Deposit(ctx, userID, decimal.RequireFromString("1"), "top up")
	require.NoError(t, err)

	s.gen.err = &provider.Error{Status: http.StatusServiceUnavailable, Detail: `{"error":"overloaded"}`}
	w := s.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"modelId": "m", "currentParts": []map[string]string{{"text": "hi"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "details").String(), "overloaded")

	balance, err := s.users.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1")))
}
