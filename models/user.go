package models

import (
	"time"
)

// User 用户模型
// Email/Phone 允许为空，使用指针让多个空值不触发唯一索引冲突
type User struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Name            *string    `json:"name,omitempty" gorm:"size:100"`
	Email           *string    `json:"email,omitempty" gorm:"size:255;uniqueIndex"` // 统一存小写
	Phone           *string    `json:"phone,omitempty" gorm:"size:32;index"`
	Image           *string    `json:"image,omitempty" gorm:"size:512"`      // 第三方头像地址
	AvatarKey       *string    `json:"avatar_key,omitempty" gorm:"size:255"` // 对象存储中的头像 key
	PasswordHash    string     `json:"-" gorm:"size:255;not null"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName 设置表名
func (User) TableName() string {
	return "users"
}

// PublicUser 对其他用户可见的身份信息
type PublicUser struct {
	ID    uint    `json:"id"`
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Image *string `json:"image,omitempty"`
}

// Public 返回用户的公开身份信息
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Image: u.Image}
}

// EmailValue 返回邮箱，未设置时为空字符串
func (u *User) EmailValue() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}
