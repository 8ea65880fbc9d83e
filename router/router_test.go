package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tally/config"
	"tally/database"
	"tally/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Server:     config.ServerConfig{Mode: gin.TestMode},
		JWT:        config.JWTConfig{Secret: "router-test-secret", ExpireTime: time.Hour},
		Invitation: config.InvitationConfig{ExpireDays: 7},
		RateLimit:  config.RateLimitConfig{LoginPerMinute: 10, LoginBurst: 5},
	}
	middleware.InitJWT(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return SetupRouter(ctx, cfg, NewServices(cfg, db, nil))
}

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := setupTestRouter(t)
	w := doRequest(r, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestCORSPreflight(t *testing.T) {
	r := setupTestRouter(t)
	w := doRequest(r, "OPTIONS", "/api/v1/tags", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := setupTestRouter(t)
	for _, path := range []string{"/api/v1/tags", "/api/v1/invitations/pending", "/api/v1/expenses", "/api/v1/auth/me"} {
		w := doRequest(r, "GET", path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

// 注册、登录后用 token 创建标签并查询
func TestRegisterLoginAndCreateTag(t *testing.T) {
	r := setupTestRouter(t)

	w := doRequest(r, "POST", "/api/v1/auth/register", "", `{"name":"Alice","email":"alice@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(r, "POST", "/api/v1/auth/login", "", `{"email":"alice@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	token := login.Data.Token
	require.NotEmpty(t, token)

	w = doRequest(r, "POST", "/api/v1/tags", token, `{"name":"Groceries","color":"#22c55e"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 自定义校验规则已注册到 gin
	w = doRequest(r, "POST", "/api/v1/tags", token, `{"name":"Bad*Name"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "letters, numbers, spaces")

	w = doRequest(r, "GET", "/api/v1/tags", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Groceries")

	w = doRequest(r, "GET", "/api/v1/auth/me", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestLoginRateLimited(t *testing.T) {
	r := setupTestRouter(t)
	var last int
	for i := 0; i < 6; i++ {
		w := doRequest(r, "POST", "/api/v1/auth/login", "", `{"email":"nobody@example.com","password":"password123"}`)
		last = w.Code
		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
