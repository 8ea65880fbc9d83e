package models

import (
	"time"
)

// DefaultTagColor 默认灰色
const DefaultTagColor = "#6b7280"

// Tag 标签模型，(name, owner_id) 唯一
type Tag struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:50;not null;uniqueIndex:idx_tags_name_owner,priority:1"`
	Description *string   `json:"description,omitempty" gorm:"size:200"`
	Color       string    `json:"color" gorm:"size:255;default:#6b7280"` // 十六进制颜色或渐变字符串
	IsPrivate   bool      `json:"is_private" gorm:"default:false"`
	OwnerID     uint      `json:"owner_id" gorm:"not null;index;uniqueIndex:idx_tags_name_owner,priority:2"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 设置表名
func (Tag) TableName() string {
	return "tags"
}
