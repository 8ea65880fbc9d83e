package api

import (
	"errors"
	"net/http"
	"strconv"

	"tally/apperr"
	"tally/validation"

	"github.com/gin-gonic/gin"
)

// Response 通用响应结构，Error 为错误类别，成功时省略
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   apperr.Kind `json:"error,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: "success",
		Data:    data,
	})
}

// Created 201 创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

// SuccessWithMessage 带消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, kind apperr.Kind, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
		Error:   kind,
	})
}

// RespondError 按错误类别映射状态码
func RespondError(c *gin.Context, err error) {
	kind, message := errorMessage(err)
	resp := Response{
		Code:    kind.HTTPStatus(),
		Message: message,
		Error:   kind,
	}
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		resp.Field = e.Field
	}
	c.JSON(resp.Code, resp)
}

// BindError 请求体或查询参数校验失败
func BindError(c *gin.Context, err error) {
	RespondError(c, validation.Translate(err))
}

// BadRequest 400 错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, apperr.KindValidation, message)
}

// Unauthorized 401 错误响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, apperr.KindAuthentication, message)
}

// NotFound 404 错误响应
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, apperr.KindNotFound, message)
}

// pathID 解析路径中的 ID 参数，失败时直接返回 400
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		BadRequest(c, "Invalid ID")
		return 0, false
	}
	return uint(id), true
}
