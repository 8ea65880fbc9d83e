// Package apperr 定义业务错误分类，handler 根据 Kind 映射 HTTP 状态码
//
// 用法:
//
//	if tag.OwnerID != callerID {
//	    return apperr.Authorization("Only the tag owner can share it")
//	}
//
//	if errors.Is(err, apperr.ErrNotFound) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindAuthentication Kind = "AUTHENTICATION"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindValidation     Kind = "VALIDATION"
	KindConflict       Kind = "CONFLICT"
	KindNotFound       Kind = "NOT_FOUND"
	KindState          Kind = "STATE"
	KindInternal       Kind = "INTERNAL"
)

// HTTPStatus 类别对应的 HTTP 状态码
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error 业务错误
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"` // 校验失败的字段
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is 同类别即视为相等，便于 errors.Is(err, apperr.ErrNotFound)
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus 错误对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	return e.Kind.HTTPStatus()
}

// ErrNotFound 哨兵错误，配合 errors.Is 判断记录不存在
var ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}

// Authentication 未登录
func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Authorization 无权限
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// Validation 字段校验失败
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// Conflict 唯一性冲突
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// NotFound 记录不存在
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// State 状态不允许当前操作
func State(msg string) *Error {
	return &Error{Kind: KindState, Message: msg}
}

// Internal 内部错误
func Internal(msg string) *Error {
	return &Error{Kind: KindInternal, Message: msg}
}

// Internalf 包装内部错误，保留原始错误用于日志
func Internalf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), cause: err}
}

// KindOf 返回错误类别，非业务错误统一视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于某一类别
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
