package api

import (
	"bytes"
	"fmt"
	"net/http"

	"tally/middleware"
	"tally/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出处理器
type ExportHandler struct {
	expenses *service.ExpenseService
}

// NewExportHandler 创建导出处理器
func NewExportHandler(expenses *service.ExpenseService) *ExportHandler {
	return &ExportHandler{expenses: expenses}
}

// ExportXLSX 导出消费记录为 Excel
// @Summary 导出消费记录为 Excel
// @Description 根据时间范围导出消费记录为 xlsx 文件，包含标签名和汇总行
// @Tags 导出
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param start_time query string true "开始时间 (2024-01-01)"
// @Param end_time query string true "结束时间 (2024-12-31)"
// @Success 200 {file} file "Excel 文件"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/export/xlsx [get]
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	startTimeStr := c.Query("start_time")
	endTimeStr := c.Query("end_time")
	if startTimeStr == "" || endTimeStr == "" {
		BadRequest(c, "start_time and end_time are required")
		return
	}
	startTime, err := parseDay(startTimeStr, false)
	if err != nil {
		BadRequest(c, "start_time must be formatted as 2006-01-02")
		return
	}
	endTime, err := parseDay(endTimeStr, true)
	if err != nil {
		BadRequest(c, "end_time must be formatted as 2006-01-02")
		return
	}

	buf := new(bytes.Buffer)
	if err := h.expenses.ExportXLSX(c.Request.Context(), middleware.GetCurrentUserID(c), startTime, endTime, buf); err != nil {
		RespondError(c, err)
		return
	}

	filename := fmt.Sprintf("expenses_%s_%s.xlsx", startTimeStr, endTimeStr)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
