package api

import (
	"strconv"

	"tally/middleware"
	"tally/models"
	"tally/service"

	"github.com/gin-gonic/gin"
)

// InvitationHandler 标签共享邀请
type InvitationHandler struct {
	invitations *service.InvitationService
}

// NewInvitationHandler 创建邀请处理器
func NewInvitationHandler(invitations *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// CreateInvitationRequest 发送邀请请求
type CreateInvitationRequest struct {
	TagID      uint              `json:"tag_id" binding:"required" example:"1"`
	Email      string            `json:"email" binding:"required,email" example:"new-user@example.com"`
	Permission models.Permission `json:"permission" binding:"required,oneof=viewer editor" example:"viewer"`
	Message    *string           `json:"message" example:"Let's track groceries together"`
}

// Create 发送邀请
// @Summary 发送标签邀请
// @Description 所有者按邮箱邀请他人共享标签，受邀人可以尚未注册；同一邮箱同一标签只能有一个待处理邀请
// @Tags 邀请
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateInvitationRequest true "邀请信息"
// @Success 201 {object} Response{data=models.TagInvitation} "发送成功"
// @Failure 400 {object} Response "参数错误或邀请自己"
// @Failure 403 {object} Response "不是所有者"
// @Failure 404 {object} Response "标签不存在"
// @Failure 409 {object} Response "已共享或已有待处理邀请"
// @Router /api/v1/invitations [post]
func (h *InvitationHandler) Create(c *gin.Context) {
	var req CreateInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	inv, err := h.invitations.Create(c.Request.Context(), middleware.GetCurrentUserID(c), service.CreateInvitationInput{
		TagID:      req.TagID,
		Email:      req.Email,
		Permission: req.Permission,
		Message:    req.Message,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, inv)
}

// Pending 收到的待处理邀请
// @Summary 获取待处理邀请
// @Description 返回发给当前用户邮箱且未过期的 pending 邀请，按创建时间倒序
// @Tags 邀请
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]service.PendingInvitation} "获取成功"
// @Router /api/v1/invitations/pending [get]
func (h *InvitationHandler) Pending(c *gin.Context) {
	list, err := h.invitations.ListPending(c.Request.Context(), middleware.GetCurrentUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, list)
}

// Sent 已发出的邀请
// @Summary 获取已发出的邀请
// @Description 返回当前用户发出的全部邀请，可按标签过滤
// @Tags 邀请
// @Produce json
// @Security BearerAuth
// @Param tag_id query int false "标签ID"
// @Success 200 {object} Response{data=[]service.SentInvitation} "获取成功"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/invitations/sent [get]
func (h *InvitationHandler) Sent(c *gin.Context) {
	var tagID *uint
	if raw := c.Query("tag_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			BadRequest(c, "Invalid tag_id")
			return
		}
		id := uint(v)
		tagID = &id
	}

	list, err := h.invitations.ListSent(c.Request.Context(), middleware.GetCurrentUserID(c), tagID)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, list)
}

// Accept 接受邀请
// @Summary 接受邀请
// @Description 受邀邮箱本人接受后获得标签共享，已有共享时保留原权限
// @Tags 邀请
// @Produce json
// @Security BearerAuth
// @Param id path int true "邀请ID"
// @Success 200 {object} Response{data=models.TagShare} "接受成功"
// @Failure 403 {object} Response "邀请不是发给当前用户的"
// @Failure 404 {object} Response "邀请不存在"
// @Failure 422 {object} Response "邀请已处理或已过期"
// @Router /api/v1/invitations/{id}/accept [post]
func (h *InvitationHandler) Accept(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	share, err := h.invitations.Accept(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Invitation accepted", share)
}

// Decline 拒绝邀请
// @Summary 拒绝邀请
// @Tags 邀请
// @Produce json
// @Security BearerAuth
// @Param id path int true "邀请ID"
// @Success 200 {object} Response{data=models.TagInvitation} "拒绝成功"
// @Failure 403 {object} Response "邀请不是发给当前用户的"
// @Failure 404 {object} Response "邀请不存在"
// @Failure 422 {object} Response "邀请已处理或已过期"
// @Router /api/v1/invitations/{id}/decline [post]
func (h *InvitationHandler) Decline(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invitations.Decline(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Invitation declined", inv)
}

// Cancel 撤回邀请
// @Summary 撤回邀请
// @Description 邀请人撤回仍处于 pending 的邀请
// @Tags 邀请
// @Produce json
// @Security BearerAuth
// @Param id path int true "邀请ID"
// @Success 200 {object} Response "撤回成功"
// @Failure 403 {object} Response "不是邀请人"
// @Failure 404 {object} Response "邀请不存在"
// @Failure 422 {object} Response "邀请已处理"
// @Router /api/v1/invitations/{id} [delete]
func (h *InvitationHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.invitations.Cancel(c.Request.Context(), middleware.GetCurrentUserID(c), id); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Invitation cancelled", nil)
}
