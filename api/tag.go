package api

import (
	"tally/middleware"
	"tally/models"
	"tally/service"

	"github.com/gin-gonic/gin"
)

// TagHandler 标签及其共享
type TagHandler struct {
	tags        *service.TagService
	invitations *service.InvitationService
}

// NewTagHandler 创建标签处理器
func NewTagHandler(tags *service.TagService, invitations *service.InvitationService) *TagHandler {
	return &TagHandler{tags: tags, invitations: invitations}
}

// ListTagsQuery 标签列表查询参数
type ListTagsQuery struct {
	IncludeShared bool   `form:"include_shared"`
	Search        string `form:"search" binding:"max=100"`
	Sort          string `form:"sort" binding:"omitempty,oneof=name date usage"`
	Order         string `form:"order" binding:"omitempty,oneof=asc desc"`
}

// CreateTagRequest 创建标签请求
type CreateTagRequest struct {
	Name        string  `json:"name" binding:"required,tagname" example:"Groceries"`
	Description *string `json:"description" example:"Weekly food shopping"`
	Color       *string `json:"color" binding:"omitempty,tagcolor" example:"#22c55e"`
	IsPrivate   bool    `json:"is_private"`
}

// UpdateTagRequest 更新标签请求，未传的字段不修改
type UpdateTagRequest struct {
	Name        *string `json:"name" binding:"omitempty,tagname"`
	Description *string `json:"description"`
	Color       *string `json:"color" binding:"omitempty,tagcolor"`
	IsPrivate   *bool   `json:"is_private"`
}

// ShareTagRequest 共享标签请求
type ShareTagRequest struct {
	Email      string            `json:"email" binding:"required,email" example:"bob@example.com"`
	Permission models.Permission `json:"permission" binding:"required,oneof=viewer editor" example:"viewer"`
}

// List 标签列表
// @Summary 获取标签列表
// @Description 返回自己的标签，include_shared=true 时合并他人共享给自己的标签；支持搜索和排序
// @Tags 标签
// @Produce json
// @Security BearerAuth
// @Param include_shared query bool false "是否包含共享标签"
// @Param search query string false "按名称和描述搜索（不区分大小写）"
// @Param sort query string false "排序字段 name/date/usage" default(name)
// @Param order query string false "排序方向 asc/desc" default(asc)
// @Success 200 {object} Response{data=[]service.TagView} "获取成功"
// @Failure 400 {object} Response "参数错误"
// @Router /api/v1/tags [get]
func (h *TagHandler) List(c *gin.Context) {
	var q ListTagsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		BindError(c, err)
		return
	}

	views, err := h.tags.List(c.Request.Context(), middleware.GetCurrentUserID(c), service.ListTagsInput{
		IncludeShared: q.IncludeShared,
		Search:        q.Search,
		Sort:          q.Sort,
		Order:         q.Order,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, views)
}

// Create 创建标签
// @Summary 创建标签
// @Description 同一用户下标签名唯一；颜色支持十六进制或渐变，默认 #6b7280
// @Tags 标签
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTagRequest true "标签信息"
// @Success 201 {object} Response{data=models.Tag} "创建成功"
// @Failure 400 {object} Response "参数错误"
// @Failure 409 {object} Response "标签名已存在"
// @Router /api/v1/tags [post]
func (h *TagHandler) Create(c *gin.Context) {
	var req CreateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	tag, err := h.tags.Create(c.Request.Context(), middleware.GetCurrentUserID(c), service.CreateTagInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, tag)
}

// Get 标签详情
// @Summary 获取标签详情
// @Description 需要对标签至少有查看权限，否则按不存在处理
// @Tags 标签
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Success 200 {object} Response{data=service.TagView} "获取成功"
// @Failure 404 {object} Response "标签不存在"
// @Router /api/v1/tags/{id} [get]
func (h *TagHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.tags.Get(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, view)
}

// Update 更新标签
// @Summary 更新标签
// @Description 所有者或 editor 可修改
// @Tags 标签
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Param request body UpdateTagRequest true "更新内容"
// @Success 200 {object} Response{data=models.Tag} "更新成功"
// @Failure 403 {object} Response "无编辑权限"
// @Failure 404 {object} Response "标签不存在"
// @Failure 409 {object} Response "标签名已存在"
// @Router /api/v1/tags/{id} [put]
func (h *TagHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	tag, err := h.tags.Update(c.Request.Context(), middleware.GetCurrentUserID(c), id, service.UpdateTagInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, tag)
}

// Delete 删除标签
// @Summary 删除标签
// @Description 仅所有者可删除；同时删除共享、邀请以及消费记录上的引用
// @Tags 标签
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Success 200 {object} Response "删除成功"
// @Failure 403 {object} Response "不是所有者"
// @Failure 404 {object} Response "标签不存在"
// @Router /api/v1/tags/{id} [delete]
func (h *TagHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.tags.Remove(c.Request.Context(), middleware.GetCurrentUserID(c), id); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Tag deleted", nil)
}

// Shares 标签共享列表
// @Summary 获取标签共享列表
// @Description 仅所有者可见，其他人得到空列表
// @Tags 标签共享
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Success 200 {object} Response{data=[]service.ShareView} "获取成功"
// @Router /api/v1/tags/{id}/shares [get]
func (h *TagHandler) Shares(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	shares, err := h.tags.GetShares(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, shares)
}

// Share 共享标签给已注册用户
// @Summary 共享标签
// @Description 按邮箱直接共享给已注册用户；已共享时更新权限
// @Tags 标签共享
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Param request body ShareTagRequest true "共享信息"
// @Success 200 {object} Response{data=models.TagShare} "共享成功"
// @Failure 400 {object} Response "参数错误或共享给自己"
// @Failure 403 {object} Response "不是所有者"
// @Failure 404 {object} Response "标签或用户不存在"
// @Router /api/v1/tags/{id}/shares [post]
func (h *TagHandler) Share(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ShareTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	share, err := h.tags.Share(c.Request.Context(), middleware.GetCurrentUserID(c), id, req.Email, req.Permission)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, share)
}

// Unshare 取消共享
// @Summary 取消共享
// @Description 仅所有者可操作
// @Tags 标签共享
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Param userId path int true "被共享用户ID"
// @Success 200 {object} Response "取消成功"
// @Failure 403 {object} Response "不是所有者"
// @Failure 404 {object} Response "共享不存在"
// @Router /api/v1/tags/{id}/shares/{userId} [delete]
func (h *TagHandler) Unshare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	if err := h.tags.Unshare(c.Request.Context(), middleware.GetCurrentUserID(c), id, userID); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Share removed", nil)
}

// Invitations 标签已发出的邀请
// @Summary 获取标签的邀请记录
// @Description 返回当前用户为该标签发出的邀请，过期未清扫的 pending 邀请 effective_status 为 expired
// @Tags 标签共享
// @Produce json
// @Security BearerAuth
// @Param id path int true "标签ID"
// @Success 200 {object} Response{data=[]service.SentInvitation} "获取成功"
// @Router /api/v1/tags/{id}/invitations [get]
func (h *TagHandler) Invitations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	list, err := h.invitations.ListSent(c.Request.Context(), middleware.GetCurrentUserID(c), &id)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, list)
}
