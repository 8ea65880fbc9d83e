package service

import (
	"context"
	"log"
	"time"

	"tally/apperr"
	"tally/models"
	"tally/validation"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultInvitationTTL 邀请默认有效期 7 天
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationNotice 邀请通知内容
type InvitationNotice struct {
	Email       string
	TagName     string
	InviterName string
	Permission  models.Permission
	Message     *string
	ExpiresAt   time.Time
}

// Notifier 邀请创建后的通知渠道
type Notifier interface {
	NotifyInvitation(ctx context.Context, n InvitationNotice) error
}

// InvitationService 标签邀请：创建、接受、拒绝、撤回、查询
// 过期采用惰性判断，pending 且已过 expires_at 的邀请不可操作
type InvitationService struct {
	db       *gorm.DB
	now      Clock
	ttl      time.Duration
	notifier Notifier
}

// NewInvitationService 创建邀请服务，ttl <= 0 时使用默认 7 天
func NewInvitationService(db *gorm.DB, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &InvitationService{db: db, now: time.Now, ttl: ttl}
}

// SetClock 替换时间源
func (s *InvitationService) SetClock(now Clock) {
	s.now = now
}

// SetNotifier 设置通知渠道，nil 表示不通知
func (s *InvitationService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateInvitationInput 创建邀请参数
type CreateInvitationInput struct {
	TagID      uint
	Email      string
	Permission models.Permission
	Message    *string
}

// PendingInvitation 待处理邀请及其标签、邀请人
type PendingInvitation struct {
	models.TagInvitation
	Tag     *models.Tag        `json:"tag"`
	Inviter *models.PublicUser `json:"inviter"`
}

// SentInvitation 已发出的邀请，EffectiveStatus 把已过期的 pending 显示为 expired
type SentInvitation struct {
	models.TagInvitation
	EffectiveStatus models.InvitationStatus `json:"effective_status"`
	Tag             *models.Tag             `json:"tag,omitempty"`
}

func callerEmail(db *gorm.DB, callerID uint) (string, error) {
	var user models.User
	if err := db.First(&user, callerID).Error; err != nil {
		if isNotFound(err) {
			return "", apperr.NotFound("User not found")
		}
		return "", apperr.Internalf(err, "failed to load user")
	}
	return user.EmailValue(), nil
}

func loadInvitation(db *gorm.DB, id uint) (*models.TagInvitation, error) {
	var inv models.TagInvitation
	if err := db.First(&inv, id).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Invitation not found")
		}
		return nil, apperr.Internalf(err, "failed to load invitation")
	}
	return &inv, nil
}

// Create 所有者向某个邮箱发出邀请，邮箱不必已注册
func (s *InvitationService) Create(ctx context.Context, ownerID uint, in CreateInvitationInput) (*models.TagInvitation, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	if !in.Permission.Valid() {
		return nil, apperr.Validation("permission", "permission must be viewer or editor")
	}
	email := validation.NormalizeEmail(in.Email)
	if e := validation.CheckEmail(email); e != nil {
		return nil, e
	}
	message := optionalText(in.Message)
	if message != nil {
		if e := validation.CheckInvitationMessage(*message); e != nil {
			return nil, e
		}
	}

	var (
		inv     models.TagInvitation
		notice  InvitationNotice
		now     = s.now()
		pending = models.InvitationPending
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tag, access, err := resolveAccess(tx, in.TagID, ownerID)
		if err != nil {
			return err
		}
		if !access.CanManage() {
			return apperr.Authorization("Only tag owners can send invitations")
		}

		var inviter models.User
		if err := tx.First(&inviter, ownerID).Error; err != nil {
			return apperr.Internalf(err, "failed to load inviter")
		}
		if inviter.EmailValue() == email {
			return apperr.Validation("email", "Cannot invite yourself")
		}

		var existing models.User
		err = tx.Where("email = ?", email).Take(&existing).Error
		switch {
		case err == nil:
			var shared int64
			if err := tx.Model(&models.TagShare{}).
				Where("tag_id = ? AND shared_with_user_id = ?", tag.ID, existing.ID).
				Count(&shared).Error; err != nil {
				return apperr.Internalf(err, "failed to check share")
			}
			if shared > 0 {
				return apperr.Conflict("Tag is already shared with this user")
			}
		case !isNotFound(err):
			return apperr.Internalf(err, "failed to look up user")
		}

		// 已过期但未清扫的 pending 先标记为 expired，保证每个 (tag, email) 至多一条 pending
		if err := tx.Model(&models.TagInvitation{}).
			Where("tag_id = ? AND invited_email = ? AND status = ? AND expires_at <= ?", tag.ID, email, pending, now).
			Updates(map[string]any{"status": models.InvitationExpired, "updated_at": now}).Error; err != nil {
			return apperr.Internalf(err, "failed to expire stale invitations")
		}
		var open int64
		if err := tx.Model(&models.TagInvitation{}).
			Where("tag_id = ? AND invited_email = ? AND status = ?", tag.ID, email, pending).
			Count(&open).Error; err != nil {
			return apperr.Internalf(err, "failed to check invitations")
		}
		if open > 0 {
			return apperr.Conflict("A pending invitation already exists for this email")
		}

		inv = models.TagInvitation{
			TagID:           tag.ID,
			InvitedEmail:    email,
			InvitedByUserID: ownerID,
			Permission:      in.Permission,
			Status:          pending,
			Message:         message,
			ExpiresAt:       now.Add(s.ttl),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&inv).Error; err != nil {
			return apperr.Internalf(err, "failed to create invitation")
		}

		inviterName := inviter.EmailValue()
		if inviter.Name != nil && *inviter.Name != "" {
			inviterName = *inviter.Name
		}
		notice = InvitationNotice{
			Email:       email,
			TagName:     tag.Name,
			InviterName: inviterName,
			Permission:  in.Permission,
			Message:     message,
			ExpiresAt:   inv.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyInvitation(ctx, notice); err != nil {
			log.Printf("发送邀请通知失败 invitation=%d email=%s: %v", inv.ID, email, err)
		}
	}
	return &inv, nil
}

// ListPending 调用者邮箱收到的、仍可处理的邀请；标签或邀请人已不存在的记录被丢弃
func (s *InvitationService) ListPending(ctx context.Context, callerID uint) ([]PendingInvitation, error) {
	result := []PendingInvitation{}
	if callerID == 0 {
		return result, nil
	}
	db := s.db.WithContext(ctx)
	email, err := callerEmail(db, callerID)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return result, nil
	}

	var invs []models.TagInvitation
	if err := db.Where("invited_email = ? AND status = ? AND expires_at > ?", email, models.InvitationPending, s.now()).
		Order("created_at DESC, id DESC").
		Find(&invs).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list invitations")
	}
	if len(invs) == 0 {
		return result, nil
	}

	tagIDs := make([]uint, len(invs))
	inviterIDs := make([]uint, len(invs))
	for i, inv := range invs {
		tagIDs[i] = inv.TagID
		inviterIDs[i] = inv.InvitedByUserID
	}
	tags, err := tagsByID(db, tagIDs)
	if err != nil {
		return nil, err
	}
	inviters, err := usersByID(db, inviterIDs)
	if err != nil {
		return nil, err
	}

	for _, inv := range invs {
		tag, ok := tags[inv.TagID]
		inviter, ok2 := inviters[inv.InvitedByUserID]
		if !ok || !ok2 {
			continue
		}
		result = append(result, PendingInvitation{TagInvitation: inv, Tag: tag, Inviter: inviter.Public()})
	}
	return result, nil
}

func tagsByID(db *gorm.DB, ids []uint) (map[uint]*models.Tag, error) {
	out := make(map[uint]*models.Tag, len(ids))
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var tags []models.Tag
	if err := db.Where("id IN ?", ids).Find(&tags).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to load tags")
	}
	for i := range tags {
		out[tags[i].ID] = &tags[i]
	}
	return out, nil
}

// checkRespondable 接受/拒绝前的校验：邮箱匹配、仍为 pending、未过期
func checkRespondable(inv *models.TagInvitation, email string, now time.Time) error {
	if email == "" || inv.InvitedEmail != email {
		return apperr.Authorization("This invitation is not for your email address")
	}
	if inv.IsActionableAt(now) {
		return nil
	}
	if inv.Status != models.InvitationPending {
		return apperr.State("Invitation is no longer pending")
	}
	return apperr.State("Invitation has expired")
}

// Accept 接受邀请并生成共享；已存在共享时不重复创建，邀请同样标记为 accepted
func (s *InvitationService) Accept(ctx context.Context, callerID, invitationID uint) (*models.TagShare, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}

	var share models.TagShare
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		email, err := callerEmail(tx, callerID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := checkRespondable(inv, email, now); err != nil {
			return err
		}

		var tag models.Tag
		if err := tx.First(&tag, inv.TagID).Error; err != nil {
			if isNotFound(err) {
				return apperr.NotFound("Tag not found")
			}
			return apperr.Internalf(err, "failed to load tag")
		}

		err = tx.Where("tag_id = ? AND shared_with_user_id = ?", inv.TagID, callerID).Take(&share).Error
		switch {
		case err == nil:
		case isNotFound(err):
			share = models.TagShare{
				TagID:            inv.TagID,
				SharedWithUserID: callerID,
				SharedByUserID:   inv.InvitedByUserID,
				Permission:       inv.Permission,
				CreatedAt:        now,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&share)
			if res.Error != nil {
				return apperr.Internalf(res.Error, "failed to create share")
			}
			if res.RowsAffected == 0 {
				// 并发接受已写入共享；加锁读取才能看到其他事务刚提交的行
				share = models.TagShare{}
				if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
					Where("tag_id = ? AND shared_with_user_id = ?", inv.TagID, callerID).
					Take(&share).Error; err != nil {
					return apperr.Internalf(err, "failed to load share")
				}
			}
		default:
			return apperr.Internalf(err, "failed to load share")
		}

		if err := tx.Model(&models.TagInvitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
			Updates(map[string]any{
				"status":       models.InvitationAccepted,
				"responded_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return apperr.Internalf(err, "failed to update invitation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &share, nil
}

// Decline 拒绝邀请，不产生共享
func (s *InvitationService) Decline(ctx context.Context, callerID, invitationID uint) (*models.TagInvitation, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}

	var result models.TagInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		email, err := callerEmail(tx, callerID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := checkRespondable(inv, email, now); err != nil {
			return err
		}

		if err := tx.Model(&models.TagInvitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
			Updates(map[string]any{
				"status":       models.InvitationDeclined,
				"responded_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return apperr.Internalf(err, "failed to update invitation")
		}
		if err := tx.First(&result, inv.ID).Error; err != nil {
			return apperr.Internalf(err, "failed to reload invitation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel 发送者撤回 pending 邀请，直接删除记录
func (s *InvitationService) Cancel(ctx context.Context, callerID, invitationID uint) error {
	if callerID == 0 {
		return apperr.Authentication("Unauthorized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvitation(tx, invitationID)
		if err != nil {
			return err
		}
		if inv.InvitedByUserID != callerID {
			return apperr.Authorization("You can only cancel invitations you sent")
		}
		if inv.Status != models.InvitationPending {
			return apperr.State("Can only cancel pending invitations")
		}
		if err := tx.Delete(&models.TagInvitation{}, inv.ID).Error; err != nil {
			return apperr.Internalf(err, "failed to delete invitation")
		}
		return nil
	})
}

// ListSent 调用者发出的邀请，按创建时间倒序；未按标签过滤时附带标签（已删除为 nil）
func (s *InvitationService) ListSent(ctx context.Context, callerID uint, tagID *uint) ([]SentInvitation, error) {
	result := []SentInvitation{}
	if callerID == 0 {
		return result, nil
	}
	db := s.db.WithContext(ctx)

	q := db.Where("invited_by_user_id = ?", callerID)
	if tagID != nil {
		q = q.Where("tag_id = ?", *tagID)
	}
	var invs []models.TagInvitation
	if err := q.Order("created_at DESC, id DESC").Find(&invs).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list invitations")
	}

	var tags map[uint]*models.Tag
	if tagID == nil {
		ids := make([]uint, len(invs))
		for i, inv := range invs {
			ids[i] = inv.TagID
		}
		var err error
		if tags, err = tagsByID(db, ids); err != nil {
			return nil, err
		}
	}

	now := s.now()
	for _, inv := range invs {
		row := SentInvitation{TagInvitation: inv, EffectiveStatus: inv.EffectiveStatusAt(now)}
		if tags != nil {
			row.Tag = tags[inv.TagID]
		}
		result = append(result, row)
	}
	return result, nil
}

// SweepExpired 把已过期的 pending 邀请标记为 expired，返回处理条数
func (s *InvitationService) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.TagInvitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, now).
		Updates(map[string]any{"status": models.InvitationExpired, "updated_at": now})
	if res.Error != nil {
		return 0, apperr.Internalf(res.Error, "failed to sweep invitations")
	}
	return res.RowsAffected, nil
}
