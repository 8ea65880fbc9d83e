package models

import (
	"time"
)

// TagShare 标签共享记录，(tag_id, shared_with_user_id) 唯一
type TagShare struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	TagID            uint       `json:"tag_id" gorm:"not null;uniqueIndex:idx_tag_shares_tag_user,priority:1"`
	SharedWithUserID uint       `json:"shared_with_user_id" gorm:"not null;index;uniqueIndex:idx_tag_shares_tag_user,priority:2"`
	SharedByUserID   uint       `json:"shared_by_user_id" gorm:"not null"`
	Permission       Permission `json:"permission" gorm:"size:16;not null"`
	CreatedAt        time.Time  `json:"created_at"`
}

// TableName 设置表名
func (TagShare) TableName() string {
	return "tag_shares"
}
