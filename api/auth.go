package api

import (
	"time"

	"tally/config"
	"tally/middleware"
	"tally/models"
	"tally/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证与个人资料
type AuthHandler struct {
	cfg     *config.Config
	users   *service.UserService
	storage *service.StorageService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, users *service.UserService, storage *service.StorageService) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, storage: storage}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100" example:"Alice"`
	Email    string  `json:"email" binding:"required,email" example:"alice@example.com"`
	Password string  `json:"password" binding:"required,min=8,max=72" example:"password123"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required" example:"alice@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// UpdateProfileRequest 修改资料，未传的字段不修改
type UpdateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,max=100"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	AvatarKey *string `json:"avatar_key" binding:"omitempty,max=255"`
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required" example:"oldpassword123"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72" example:"newpassword123"`
}

// Register 用户注册
// @Summary 用户注册
// @Description 使用邮箱和密码创建账号，邮箱不区分大小写
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "注册信息"
// @Success 201 {object} Response{data=models.User} "注册成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "邮箱已被使用"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	Created(c, user)
}

// Login 用户登录
// @Summary 用户登录
// @Description 邮箱密码登录获取 JWT token，同一 IP 有频率限制
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录信息"
// @Success 200 {object} Response{data=LoginResponse} "登录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "邮箱或密码错误"
// @Failure 429 {object} Response "请求过于频繁"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(c, err)
		return
	}

	ttl := h.cfg.JWT.ExpireTime
	token, err := middleware.GenerateToken(user.ID, user.EmailValue(), ttl)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl),
		User:      user,
	})
}

// Me 获取当前用户
// @Summary 获取当前用户信息
// @Description 返回当前登录用户资料，头像为可直接访问的地址
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.UserProfile} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.users.Me(c.Request.Context(), middleware.GetCurrentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, profile)
}

// UpdateProfile 修改个人资料
// @Summary 修改个人资料
// @Description 修改姓名、邮箱、手机号或头像，头像需先通过 upload-url 上传
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "资料"
// @Success 200 {object} Response{data=service.UserProfile} "修改成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 409 {object} Response "邮箱已被使用"
// @Router /api/v1/auth/profile [put]
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	ctx := c.Request.Context()
	userID := middleware.GetCurrentUserID(c)
	if _, err := h.users.UpdateProfile(ctx, userID, service.UpdateProfileInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		AvatarKey: req.AvatarKey,
	}); err != nil {
		RespondError(c, err)
		return
	}

	profile, err := h.users.Me(ctx, userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Profile updated", profile)
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Description 校验原密码后修改当前用户密码
// @Tags 认证
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "密码信息"
// @Success 200 {object} Response "修改成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "原密码错误"
// @Router /api/v1/auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), middleware.GetCurrentUserID(c), req.OldPassword, req.NewPassword); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Password updated", nil)
}

// UploadURL 获取头像上传地址
// @Summary 获取头像上传地址
// @Description 返回预签名 PUT 地址和存储 key，上传完成后用 key 调用修改资料接口
// @Tags 认证
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.UploadTicket} "获取成功"
// @Failure 500 {object} Response "对象存储未配置"
// @Router /api/v1/auth/upload-url [post]
func (h *AuthHandler) UploadURL(c *gin.Context) {
	ticket, err := h.storage.GenerateUploadURL(c.Request.Context(), middleware.GetCurrentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, ticket)
}
