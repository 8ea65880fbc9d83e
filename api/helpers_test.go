package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"tally/config"
	"tally/database"
	"tally/middleware"
	"tally/models"
	"tally/service"
	"tally/validation"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const testPassword = "password123"

func init() {
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGin(); err != nil {
		panic(err)
	}
}

// setupMockDB 基于 sqlmock 的 mysql 连接，用于校验 SQL 形态
func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *gorm.DB, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return mock, gormDB, func() {
		sqlDB.Close()
	}
}

// testUserMiddleware 从 X-User-ID 头读取当前用户，替代 JWT
func testUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-User-ID"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err == nil {
				c.Set(middleware.ContextUserIDKey, uint(id))
			}
		}
		c.Next()
	}
}

// testEnv 内存 sqlite 上的完整服务与路由
type testEnv struct {
	t           *testing.T
	db          *gorm.DB
	cfg         *config.Config
	users       *service.UserService
	tags        *service.TagService
	invitations *service.InvitationService
	expenses    *service.ExpenseService
	router      *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour},
	}
	middleware.InitJWT(cfg)

	env := &testEnv{
		t:           t,
		db:          db,
		cfg:         cfg,
		users:       service.NewUserService(db, nil),
		tags:        service.NewTagService(db),
		invitations: service.NewInvitationService(db, service.DefaultInvitationTTL),
		expenses:    service.NewExpenseService(db),
	}
	env.router = env.buildRouter()
	return env
}

func (e *testEnv) buildRouter() *gin.Engine {
	r := gin.New()
	authHandler := NewAuthHandler(e.cfg, e.users, nil)
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	g := r.Group("")
	g.Use(testUserMiddleware())
	g.GET("/auth/me", authHandler.Me)
	g.PUT("/auth/profile", authHandler.UpdateProfile)
	g.PUT("/auth/password", authHandler.ChangePassword)
	g.POST("/auth/upload-url", authHandler.UploadURL)

	tagHandler := NewTagHandler(e.tags, e.invitations)
	g.GET("/tags", tagHandler.List)
	g.POST("/tags", tagHandler.Create)
	g.GET("/tags/:id", tagHandler.Get)
	g.PUT("/tags/:id", tagHandler.Update)
	g.DELETE("/tags/:id", tagHandler.Delete)
	g.GET("/tags/:id/shares", tagHandler.Shares)
	g.POST("/tags/:id/shares", tagHandler.Share)
	g.DELETE("/tags/:id/shares/:userId", tagHandler.Unshare)
	g.GET("/tags/:id/invitations", tagHandler.Invitations)

	invitationHandler := NewInvitationHandler(e.invitations)
	g.POST("/invitations", invitationHandler.Create)
	g.GET("/invitations/pending", invitationHandler.Pending)
	g.GET("/invitations/sent", invitationHandler.Sent)
	g.POST("/invitations/:id/accept", invitationHandler.Accept)
	g.POST("/invitations/:id/decline", invitationHandler.Decline)
	g.DELETE("/invitations/:id", invitationHandler.Cancel)

	expenseHandler := NewExpenseHandler(e.expenses)
	g.GET("/expenses", expenseHandler.List)
	g.POST("/expenses", expenseHandler.Create)
	g.GET("/expenses/:id", expenseHandler.Get)
	g.PUT("/expenses/:id", expenseHandler.Update)
	g.DELETE("/expenses/:id", expenseHandler.Delete)
	g.GET("/export/xlsx", NewExportHandler(e.expenses).ExportXLSX)
	return r
}

// createUser 直接写库，密码为 testPassword
func (e *testEnv) createUser(name, email string) *models.User {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(e.t, err)
	user := &models.User{Name: &name, Email: &email, PasswordHash: string(hash)}
	require.NoError(e.t, e.db.Create(user).Error)
	return user
}

// do 以 userID 身份发起请求，userID 为 0 表示未登录
func (e *testEnv) do(userID uint, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(userID), 10))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// testResponse 解码后的响应
type testResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Field   string          `json:"field"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) testResponse {
	t.Helper()
	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// decodeData 把 data 字段解码到 v
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) testResponse {
	t.Helper()
	resp := decode(t, w)
	require.NoError(t, json.Unmarshal(resp.Data, v), string(resp.Data))
	return resp
}

func newRequest(method, path string, userID uint) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(userID), 10))
	}
	return req
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
