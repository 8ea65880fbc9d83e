package models

import (
	"time"
)

// InvitationStatus 邀请状态
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// TagInvitation 标签共享邀请
// 同一 (tag_id, invited_email) 最多存在一条 pending 记录，由业务层保证
type TagInvitation struct {
	ID              uint             `json:"id" gorm:"primaryKey"`
	TagID           uint             `json:"tag_id" gorm:"not null;index"`
	InvitedEmail    string           `json:"invited_email" gorm:"size:255;not null;index:idx_tag_invitations_email_status,priority:1"`
	InvitedByUserID uint             `json:"invited_by_user_id" gorm:"not null;index"`
	Permission      Permission       `json:"permission" gorm:"size:16;not null"`
	Status          InvitationStatus `json:"status" gorm:"size:16;not null;default:pending;index:idx_tag_invitations_email_status,priority:2"`
	Message         *string          `json:"message,omitempty" gorm:"size:500"`
	ExpiresAt       time.Time        `json:"expires_at" gorm:"not null;index"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	RespondedAt     *time.Time       `json:"responded_at,omitempty"`
}

// TableName 设置表名
func (TagInvitation) TableName() string {
	return "tag_invitations"
}

// IsExpiredAt 在 now 时刻是否已过期（状态字段可能仍是 pending）
func (i *TagInvitation) IsExpiredAt(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// IsActionableAt 在 now 时刻是否还能被接受/拒绝/撤回
func (i *TagInvitation) IsActionableAt(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpiredAt(now)
}

// EffectiveStatusAt 对外展示的状态：过期但未被清扫的 pending 视为 expired
func (i *TagInvitation) EffectiveStatusAt(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpiredAt(now) {
		return InvitationExpired
	}
	return i.Status
}
