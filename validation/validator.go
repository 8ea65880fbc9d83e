// Package validation 标签、颜色、邮箱等字段规则，同时注册到 gin 的 binding 引擎
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"tally/apperr"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	TagNameMinLen        = 2
	TagNameMaxLen        = 50
	TagDescriptionMaxLen = 200
	InvitationMessageMax = 500
	colorMaxLen          = 255
)

var (
	tagNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)
	hexColorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Default 返回注册了自定义规则的 validator 单例
func Default() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(jsonTagName)
		if err := Register(v); err != nil {
			panic(err)
		}
		instance = v
	})
	return instance
}

// Register 在 v 上注册 tagname / tagcolor 规则
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("tagname", func(fl validator.FieldLevel) bool {
		return CheckTagName(NormalizeTagName(fl.Field().String())) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation("tagcolor", func(fl validator.FieldLevel) bool {
		return IsValidColor(fl.Field().String())
	})
}

// RegisterGin 把自定义规则注册到 gin 的默认校验引擎
func RegisterGin() error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonTagName)
		return Register(v)
	}
	return nil
}

func jsonTagName(fld reflect.StructField) string {
	name := fld.Tag.Get("json")
	if name == "" {
		return fld.Name
	}
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	if name == "-" {
		return fld.Name
	}
	return name
}

// NormalizeTagName 去除首尾空白
func NormalizeTagName(name string) string {
	return strings.TrimSpace(name)
}

// CheckTagName 校验已去空白的标签名
func CheckTagName(name string) *apperr.Error {
	n := utf8.RuneCountInString(name)
	switch {
	case n < TagNameMinLen:
		return apperr.Validation("name", "Tag name must be at least 2 characters")
	case n > TagNameMaxLen:
		return apperr.Validation("name", "Tag name must be less than 50 characters")
	case !tagNamePattern.MatchString(name):
		return apperr.Validation("name", "Tag name can only contain letters, numbers, spaces, hyphens, and underscores")
	}
	return nil
}

// CheckTagDescription 校验已去空白的描述
func CheckTagDescription(desc string) *apperr.Error {
	if utf8.RuneCountInString(desc) > TagDescriptionMaxLen {
		return apperr.Validation("description", "Description must be less than 200 characters")
	}
	return nil
}

// IsGradient 是否为 CSS 渐变
func IsGradient(color string) bool {
	return strings.HasPrefix(color, "linear-gradient") || strings.HasPrefix(color, "radial-gradient")
}

// IsValidColor 十六进制颜色或渐变字符串
func IsValidColor(color string) bool {
	if len(color) > colorMaxLen {
		return false
	}
	if hexColorPattern.MatchString(color) {
		return true
	}
	return IsGradient(color) && strings.Contains(color, "(") && strings.HasSuffix(color, ")")
}

// CheckTagColor 校验颜色
func CheckTagColor(color string) *apperr.Error {
	if !IsValidColor(color) {
		return apperr.Validation("color", "Color must be a valid hex color (e.g., #FF0000) or gradient")
	}
	return nil
}

// NormalizeEmail 邮箱统一小写并去空白
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CheckEmail 校验邮箱格式
func CheckEmail(email string) *apperr.Error {
	if err := Default().Var(email, "required,email"); err != nil {
		return apperr.Validation("email", "Invalid email address")
	}
	return nil
}

// CheckInvitationMessage 校验邀请附言长度
func CheckInvitationMessage(msg string) *apperr.Error {
	if utf8.RuneCountInString(msg) > InvitationMessageMax {
		return apperr.Validation("message", "Message must be less than 500 characters")
	}
	return nil
}

// Translate 把 binding 校验失败转换为带字段名的校验错误，只取第一个失败字段
func Translate(err error) *apperr.Error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return apperr.Validation("", "Invalid request body")
	}
	fe := ve[0]
	return apperr.Validation(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Invalid email address"
	case "tagname":
		if e := CheckTagName(NormalizeTagName(fmt.Sprint(fe.Value()))); e != nil {
			return e.Message
		}
	case "tagcolor":
		return "Color must be a valid hex color (e.g., #FF0000) or gradient"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	}
	return fmt.Sprintf("%s is invalid", field)
}
