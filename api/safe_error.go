package api

import (
	"errors"
	"log"

	"tally/apperr"
	"tally/config"
)

// SafeErrorMessage 生产环境下不向客户端暴露内部错误详情
func SafeErrorMessage(err error, fallback string) string {
	return config.SafeErrorMessage(err, fallback)
}

// errorMessage 业务错误直接返回消息，内部错误记录日志并按运行模式决定是否暴露细节
func errorMessage(err error) (apperr.Kind, string) {
	var e *apperr.Error
	if errors.As(err, &e) && e.Kind != apperr.KindInternal {
		return e.Kind, e.Message
	}
	log.Printf("内部错误: %v", err)
	return apperr.KindInternal, SafeErrorMessage(err, "Internal server error")
}
