package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tally/apperr"
	"tally/models"
	"tally/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// PasswordMinLen 密码最短长度
const PasswordMinLen = 8

// passwordCost bcrypt 计算成本，测试中可调低
var passwordCost = bcrypt.DefaultCost

// AvatarResolver 把对象存储 key 解析为可访问的地址
type AvatarResolver interface {
	AvatarURL(ctx context.Context, key string) string
}

// UserService 用户目录：注册登录、按邮箱/手机号查找、资料修改
type UserService struct {
	db      *gorm.DB
	avatars AvatarResolver
}

// NewUserService 创建用户服务，avatars 可为 nil
func NewUserService(db *gorm.DB, avatars AvatarResolver) *UserService {
	return &UserService{db: db, avatars: avatars}
}

// RegisterInput 注册参数
type RegisterInput struct {
	Name     *string
	Email    string
	Password string
}

// UpdateProfileInput 修改资料参数，nil 表示不修改
type UpdateProfileInput struct {
	Name      *string
	Email     *string
	Phone     *string
	AvatarKey *string
}

// UserProfile 当前用户资料，AvatarURL 为空表示未设置头像
type UserProfile struct {
	models.User
	AvatarURL *string `json:"avatar_url"`
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", apperr.Internalf(err, "failed to hash password")
	}
	return string(hashed), nil
}

func checkPassword(password string) error {
	if len([]rune(password)) < PasswordMinLen {
		return apperr.Validation("password", fmt.Sprintf("Password must be at least %d characters", PasswordMinLen))
	}
	return nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Register 注册新用户，邮箱统一小写且唯一
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := validation.NormalizeEmail(in.Email)
	if e := validation.CheckEmail(email); e != nil {
		return nil, e
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to check email")
	}
	if count > 0 {
		return nil, apperr.Conflict("Email already in use")
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Name:         trimmedOrNil(in.Name),
		Email:        &email,
		PasswordHash: hashed,
	}
	if err := db.Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Conflict("Email already in use")
		}
		return nil, apperr.Internalf(err, "failed to create user")
	}
	return &user, nil
}

// Authenticate 校验邮箱和密码
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Authentication("Invalid email or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Authentication("Invalid email or password")
	}
	return user, nil
}

func (s *UserService) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where(query, args...).Take(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internalf(err, "failed to load user")
	}
	return &user, nil
}

// GetByID 按 ID 查找
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

// GetByEmail 按邮箱查找，大小写不敏感
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, "email = ?", validation.NormalizeEmail(email))
}

// GetByPhone 按手机号查找
func (s *UserService) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.findOne(ctx, "phone = ?", strings.TrimSpace(phone))
}

// Me 当前用户资料，附带头像地址
func (s *UserService) Me(ctx context.Context, callerID uint) (*UserProfile, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	user, err := s.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	profile := &UserProfile{User: *user}
	if user.AvatarKey != nil && s.avatars != nil {
		if url := s.avatars.AvatarURL(ctx, *user.AvatarKey); url != "" {
			profile.AvatarURL = &url
		}
	}
	return profile, nil
}

// UpdateProfile 只写入真正变化的字段；新邮箱不能被其他用户占用
func (s *UserService) UpdateProfile(ctx context.Context, callerID uint, in UpdateProfileInput) (*models.User, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized: You must be signed in to update your profile")
	}

	var result models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, callerID).Error; err != nil {
			if isNotFound(err) {
				return apperr.NotFound("User not found")
			}
			return apperr.Internalf(err, "failed to load user")
		}

		updates := map[string]any{}
		if in.Name != nil {
			name := trimmedOrNil(in.Name)
			if !sameString(name, user.Name) {
				updates["name"] = name
			}
		}
		if in.Phone != nil {
			phone := trimmedOrNil(in.Phone)
			if !sameString(phone, user.Phone) {
				updates["phone"] = phone
			}
		}
		if in.AvatarKey != nil {
			key := trimmedOrNil(in.AvatarKey)
			if key != nil && !strings.HasPrefix(*key, AvatarKeyPrefix(callerID)) {
				return apperr.Validation("avatar_key", "Invalid avatar storage key")
			}
			if !sameString(key, user.AvatarKey) {
				updates["avatar_key"] = key
			}
		}
		if in.Email != nil {
			email := validation.NormalizeEmail(*in.Email)
			if e := validation.CheckEmail(email); e != nil {
				return e
			}
			if email != user.EmailValue() {
				var count int64
				if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, callerID).Count(&count).Error; err != nil {
					return apperr.Internalf(err, "failed to check email")
				}
				if count > 0 {
					return apperr.Conflict("Email already in use")
				}
				updates["email"] = email
				updates["email_verified_at"] = nil
			}
		}

		if len(updates) > 0 {
			updates["updated_at"] = time.Now()
			if err := tx.Model(&models.User{}).Where("id = ?", callerID).Updates(updates).Error; err != nil {
				if isDuplicateKey(err) {
					return apperr.Conflict("Email already in use")
				}
				return apperr.Internalf(err, "failed to update profile")
			}
		}
		if err := tx.First(&result, callerID).Error; err != nil {
			return apperr.Internalf(err, "failed to reload user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ChangePassword 校验旧密码后设置新密码
func (s *UserService) ChangePassword(ctx context.Context, callerID uint, oldPassword, newPassword string) error {
	if callerID == 0 {
		return apperr.Authentication("Unauthorized")
	}
	user, err := s.GetByID(ctx, callerID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return apperr.Authentication("Current password is incorrect")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", callerID).
		Update("password_hash", hashed).Error; err != nil {
		return apperr.Internalf(err, "failed to update password")
	}
	return nil
}
