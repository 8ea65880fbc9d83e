package api

import (
	"time"

	"tally/middleware"
	"tally/service"

	"github.com/gin-gonic/gin"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// ExpenseHandler 消费记录处理器
type ExpenseHandler struct {
	expenses *service.ExpenseService
}

// NewExpenseHandler 创建消费记录处理器
func NewExpenseHandler(expenses *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses}
}

// CreateExpenseRequest 创建消费记录请求
type CreateExpenseRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0" example:"99.99"`
	Description string  `json:"description" binding:"max=255" example:"Lunch"`
	Date        string  `json:"date" binding:"required" example:"2024-01-15 12:30:00"`
	TagIDs      []uint  `json:"tag_ids"`
}

// UpdateExpenseRequest 更新消费记录请求，tag_ids 传入时整体替换
type UpdateExpenseRequest struct {
	Amount      *float64 `json:"amount" binding:"omitempty,gt=0" example:"99.99"`
	Description *string  `json:"description" binding:"omitempty,max=255" example:"Lunch"`
	Date        *string  `json:"date" example:"2024-01-15 12:30:00"`
	TagIDs      *[]uint  `json:"tag_ids"`
}

// ExpenseListRequest 消费记录列表请求
type ExpenseListRequest struct {
	Page      int    `form:"page" example:"1"`
	PageSize  int    `form:"page_size" example:"10"`
	TagID     *uint  `form:"tag_id" example:"1"`
	StartTime string `form:"start_time" example:"2024-01-01"`
	EndTime   string `form:"end_time" example:"2024-12-31"`
}

// parseExpenseDate 支持 "2006-01-02 15:04:05" 和 "2006-01-02"
func parseExpenseDate(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateTimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, time.Local)
}

// parseDay 解析日期；endOfDay 为 true 时取当天最后一秒
func parseDay(s string, endOfDay bool) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return t, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// Create 创建消费记录
// @Summary 创建消费记录
// @Description 创建一条消费记录，引用的标签至少需要查看权限
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "消费记录信息"
// @Success 201 {object} Response{data=models.Expense} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 403 {object} Response "无权使用标签"
// @Router /api/v1/expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}
	date, err := parseExpenseDate(req.Date)
	if err != nil {
		BadRequest(c, "date must be formatted as 2006-01-02 15:04:05")
		return
	}

	expense, err := h.expenses.Create(c.Request.Context(), middleware.GetCurrentUserID(c), service.ExpenseInput{
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		TagIDs:      req.TagIDs,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, expense)
}

// List 消费记录列表
// @Summary 获取消费记录列表
// @Description 分页查询当前用户的消费记录，可按标签和日期范围过滤
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param tag_id query int false "标签ID"
// @Param start_time query string false "开始日期 (2024-01-01)"
// @Param end_time query string false "结束日期 (2024-12-31)"
// @Success 200 {object} Response{data=service.ExpensePage} "获取成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	var req ExpenseListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BindError(c, err)
		return
	}

	in := service.ListExpensesInput{Page: req.Page, PageSize: req.PageSize, TagID: req.TagID}
	if req.StartTime != "" {
		start, err := parseDay(req.StartTime, false)
		if err != nil {
			BadRequest(c, "start_time must be formatted as 2006-01-02")
			return
		}
		in.Start = &start
	}
	if req.EndTime != "" {
		end, err := parseDay(req.EndTime, true)
		if err != nil {
			BadRequest(c, "end_time must be formatted as 2006-01-02")
			return
		}
		in.End = &end
	}

	page, err := h.expenses.List(c.Request.Context(), middleware.GetCurrentUserID(c), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, page)
}

// Get 消费记录详情
// @Summary 获取消费记录详情
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	expense, err := h.expenses.Get(c.Request.Context(), middleware.GetCurrentUserID(c), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, expense)
}

// Update 更新消费记录
// @Summary 更新消费记录
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Param request body UpdateExpenseRequest true "更新内容"
// @Success 200 {object} Response{data=models.Expense} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 403 {object} Response "无权使用标签"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
		return
	}

	in := service.UpdateExpenseInput{
		Amount:      req.Amount,
		Description: req.Description,
		TagIDs:      req.TagIDs,
	}
	if req.Date != nil {
		date, err := parseExpenseDate(*req.Date)
		if err != nil {
			BadRequest(c, "date must be formatted as 2006-01-02 15:04:05")
			return
		}
		in.Date = &date
	}

	expense, err := h.expenses.Update(c.Request.Context(), middleware.GetCurrentUserID(c), id, in)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, expense)
}

// Delete 删除消费记录
// @Summary 删除消费记录
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "消费记录ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.expenses.Delete(c.Request.Context(), middleware.GetCurrentUserID(c), id); err != nil {
		RespondError(c, err)
		return
	}
	SuccessWithMessage(c, "Expense deleted", nil)
}
