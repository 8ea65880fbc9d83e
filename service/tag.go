package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"tally/apperr"
	"tally/models"
	"tally/validation"

	"gorm.io/gorm"
)

// 标签列表排序字段
const (
	SortByName  = "name"
	SortByDate  = "date"
	SortByUsage = "usage"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// TagService 标签的增删改查、权限解析与共享管理
type TagService struct {
	db  *gorm.DB
	now Clock
}

// NewTagService 创建标签服务
func NewTagService(db *gorm.DB) *TagService {
	return &TagService{db: db, now: time.Now}
}

// SetClock 替换时间源
func (s *TagService) SetClock(now Clock) {
	s.now = now
}

// CreateTagInput 创建标签参数
type CreateTagInput struct {
	Name        string
	Description *string
	Color       *string
	IsPrivate   bool
}

// UpdateTagInput 更新标签参数，nil 表示不修改
type UpdateTagInput struct {
	Name        *string
	Description *string
	Color       *string
	IsPrivate   *bool
}

// ListTagsInput 标签列表参数
type ListTagsInput struct {
	IncludeShared bool
	Search        string
	Sort          string
	Order         string
}

// TagView 带调用者视角信息的标签
type TagView struct {
	models.Tag
	IsOwner    bool               `json:"is_owner"`
	ShareCount *int64             `json:"share_count,omitempty"`
	Permission models.Permission  `json:"permission,omitempty"`
	SharedBy   *models.PublicUser `json:"shared_by,omitempty"`
}

// ShareView 共享记录及被共享用户的公开信息，用户已删除时 User 为 nil
type ShareView struct {
	models.TagShare
	User *models.PublicUser `json:"user"`
}

// resolveAccess 读取标签并解析调用者的访问级别，不做任何缓存
func resolveAccess(db *gorm.DB, tagID, callerID uint) (*models.Tag, models.AccessLevel, error) {
	var tag models.Tag
	if err := db.First(&tag, tagID).Error; err != nil {
		if isNotFound(err) {
			return nil, models.AccessNone, apperr.NotFound("Tag not found")
		}
		return nil, models.AccessNone, apperr.Internalf(err, "failed to load tag")
	}
	if callerID == 0 {
		return &tag, models.AccessNone, nil
	}
	if tag.OwnerID == callerID {
		return &tag, models.AccessOwner, nil
	}

	var share models.TagShare
	err := db.Where("tag_id = ? AND shared_with_user_id = ?", tagID, callerID).Take(&share).Error
	if err != nil {
		if isNotFound(err) {
			return &tag, models.AccessNone, nil
		}
		return nil, models.AccessNone, apperr.Internalf(err, "failed to load share")
	}
	return &tag, models.AccessFromPermission(share.Permission), nil
}

// ResolveAccess 返回标签及调用者对它的访问级别
func (s *TagService) ResolveAccess(ctx context.Context, tagID, callerID uint) (*models.Tag, models.AccessLevel, error) {
	return resolveAccess(s.db.WithContext(ctx), tagID, callerID)
}

func nameTaken(db *gorm.DB, name string, ownerID, exceptID uint) (bool, error) {
	var count int64
	q := db.Model(&models.Tag{}).Where("name = ? AND owner_id = ?", name, ownerID)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, apperr.Internalf(err, "failed to check tag name")
	}
	return count > 0, nil
}

func normalizeColor(color *string) (string, error) {
	if color == nil {
		return models.DefaultTagColor, nil
	}
	c := strings.TrimSpace(*color)
	if c == "" {
		return models.DefaultTagColor, nil
	}
	if e := validation.CheckTagColor(c); e != nil {
		return "", e
	}
	return c, nil
}

func normalizeDescription(desc *string) (*string, error) {
	d := optionalText(desc)
	if d != nil {
		if e := validation.CheckTagDescription(*d); e != nil {
			return nil, e
		}
	}
	return d, nil
}

// Create 创建标签
func (s *TagService) Create(ctx context.Context, ownerID uint, in CreateTagInput) (*models.Tag, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}

	name := validation.NormalizeTagName(in.Name)
	if e := validation.CheckTagName(name); e != nil {
		return nil, e
	}
	desc, err := normalizeDescription(in.Description)
	if err != nil {
		return nil, err
	}
	color, err := normalizeColor(in.Color)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	taken, err := nameTaken(db, name, ownerID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("Tag with this name already exists")
	}

	now := s.now()
	tag := models.Tag{
		Name:        name,
		Description: desc,
		Color:       color,
		IsPrivate:   in.IsPrivate,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&tag).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, apperr.Conflict("Tag with this name already exists")
		}
		return nil, apperr.Internalf(err, "failed to create tag")
	}
	return &tag, nil
}

// Update 修改标签，所有者或 editor 可操作；名称唯一性按标签所有者校验
func (s *TagService) Update(ctx context.Context, callerID, tagID uint, in UpdateTagInput) (*models.Tag, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}

	var updated models.Tag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tag, access, err := resolveAccess(tx, tagID, callerID)
		if err != nil {
			return err
		}
		if !access.CanWrite() {
			return apperr.Authorization("Insufficient permissions to edit this tag")
		}

		updates := map[string]any{"updated_at": s.now()}
		if in.Name != nil {
			name := validation.NormalizeTagName(*in.Name)
			if e := validation.CheckTagName(name); e != nil {
				return e
			}
			if name != tag.Name {
				taken, err := nameTaken(tx, name, tag.OwnerID, tag.ID)
				if err != nil {
					return err
				}
				if taken {
					return apperr.Conflict("Tag with this name already exists")
				}
			}
			updates["name"] = name
		}
		if in.Description != nil {
			desc, err := normalizeDescription(in.Description)
			if err != nil {
				return err
			}
			updates["description"] = desc
		}
		if in.Color != nil {
			color, err := normalizeColor(in.Color)
			if err != nil {
				return err
			}
			updates["color"] = color
		}
		if in.IsPrivate != nil {
			updates["is_private"] = *in.IsPrivate
		}

		if err := tx.Model(&models.Tag{}).Where("id = ?", tag.ID).Updates(updates).Error; err != nil {
			if isDuplicateKey(err) {
				return apperr.Conflict("Tag with this name already exists")
			}
			return apperr.Internalf(err, "failed to update tag")
		}
		if err := tx.First(&updated, tag.ID).Error; err != nil {
			return apperr.Internalf(err, "failed to reload tag")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove 删除标签，仅所有者；共享、邀请、消费记录引用在同一事务内清理
func (s *TagService) Remove(ctx context.Context, callerID, tagID uint) error {
	if callerID == 0 {
		return apperr.Authentication("Unauthorized")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, access, err := resolveAccess(tx, tagID, callerID)
		if err != nil {
			return err
		}
		if !access.CanManage() {
			return apperr.Authorization("Only the tag owner can delete it")
		}

		if err := tx.Where("tag_id = ?", tagID).Delete(&models.TagShare{}).Error; err != nil {
			return apperr.Internalf(err, "failed to delete shares")
		}

		var expenseIDs []uint
		if err := tx.Model(&models.ExpenseTag{}).Where("tag_id = ?", tagID).Pluck("expense_id", &expenseIDs).Error; err != nil {
			return apperr.Internalf(err, "failed to load expense references")
		}
		if len(expenseIDs) > 0 {
			if err := tx.Where("tag_id = ?", tagID).Delete(&models.ExpenseTag{}).Error; err != nil {
				return apperr.Internalf(err, "failed to remove expense references")
			}
			if err := tx.Model(&models.Expense{}).Where("id IN ?", expenseIDs).
				UpdateColumn("updated_at", s.now()).Error; err != nil {
				return apperr.Internalf(err, "failed to touch expenses")
			}
		}

		if err := tx.Delete(&models.Tag{}, tagID).Error; err != nil {
			return apperr.Internalf(err, "failed to delete tag")
		}
		return nil
	})
}

// shareCounts 统计各标签的共享数
func shareCounts(db *gorm.DB, tagIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(tagIDs))
	if len(tagIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		TagID uint
		Count int64
	}
	err := db.Model(&models.TagShare{}).
		Select("tag_id, COUNT(*) AS count").
		Where("tag_id IN ?", tagIDs).
		Group("tag_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internalf(err, "failed to count shares")
	}
	for _, r := range rows {
		counts[r.TagID] = r.Count
	}
	return counts, nil
}

// usersByID 批量读取用户，已删除的用户不在结果中
func usersByID(db *gorm.DB, ids []uint) (map[uint]*models.User, error) {
	out := make(map[uint]*models.User, len(ids))
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to load users")
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// List 返回调用者拥有的标签，IncludeShared 时合并共享给他的标签，然后过滤和排序
func (s *TagService) List(ctx context.Context, callerID uint, in ListTagsInput) ([]TagView, error) {
	if callerID == 0 {
		return []TagView{}, nil
	}
	sortBy, order, err := normalizeSort(in.Sort, in.Order)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var owned []models.Tag
	if err := db.Where("owner_id = ?", callerID).Order("id").Find(&owned).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list tags")
	}
	ownedIDs := make([]uint, len(owned))
	for i, t := range owned {
		ownedIDs[i] = t.ID
	}
	counts, err := shareCounts(db, ownedIDs)
	if err != nil {
		return nil, err
	}

	views := make([]TagView, 0, len(owned))
	for _, t := range owned {
		n := counts[t.ID]
		views = append(views, TagView{Tag: t, IsOwner: true, ShareCount: &n})
	}

	if in.IncludeShared {
		shared, err := s.sharedWith(db, callerID)
		if err != nil {
			return nil, err
		}
		views = append(views, shared...)
	}

	if q := strings.ToLower(strings.TrimSpace(in.Search)); q != "" {
		filtered := views[:0]
		for _, v := range views {
			if matchesSearch(&v.Tag, q) {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	sortTagViews(views, sortBy, order)
	return views, nil
}

// sharedWith 共享给 userID 的标签，标签已删除的共享记录被跳过
func (s *TagService) sharedWith(db *gorm.DB, userID uint) ([]TagView, error) {
	var shares []models.TagShare
	if err := db.Where("shared_with_user_id = ?", userID).Order("id").Find(&shares).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list shares")
	}
	if len(shares) == 0 {
		return nil, nil
	}

	tagIDs := make([]uint, len(shares))
	sharerIDs := make([]uint, len(shares))
	for i, sh := range shares {
		tagIDs[i] = sh.TagID
		sharerIDs[i] = sh.SharedByUserID
	}

	var tags []models.Tag
	if err := db.Where("id IN ?", uniqueIDs(tagIDs)).Find(&tags).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to load shared tags")
	}
	tagMap := make(map[uint]models.Tag, len(tags))
	for _, t := range tags {
		tagMap[t.ID] = t
	}
	sharers, err := usersByID(db, sharerIDs)
	if err != nil {
		return nil, err
	}

	views := make([]TagView, 0, len(shares))
	for _, sh := range shares {
		t, ok := tagMap[sh.TagID]
		if !ok {
			continue
		}
		views = append(views, TagView{
			Tag:        t,
			IsOwner:    false,
			Permission: sh.Permission,
			SharedBy:   sharers[sh.SharedByUserID].Public(),
		})
	}
	return views, nil
}

func normalizeSort(sortBy, order string) (string, string, error) {
	switch sortBy {
	case "":
		sortBy = SortByName
	case SortByName, SortByDate, SortByUsage:
	default:
		return "", "", apperr.Validation("sort", "sort must be one of name, date, usage")
	}
	switch order {
	case "":
		order = OrderAsc
	case OrderAsc, OrderDesc:
	default:
		return "", "", apperr.Validation("order", "order must be asc or desc")
	}
	return sortBy, order, nil
}

func matchesSearch(t *models.Tag, q string) bool {
	if strings.Contains(strings.ToLower(t.Name), q) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), q)
}

// sortTagViews 稳定排序；降序时对比较结果取反而不是排序后反转，相等元素保持原有顺序
func sortTagViews(views []TagView, sortBy, order string) {
	cmp := func(a, b *TagView) int {
		switch sortBy {
		case SortByDate:
			return a.CreatedAt.Compare(b.CreatedAt)
		case SortByUsage:
			return compareInt64(derefCount(a.ShareCount), derefCount(b.ShareCount))
		default:
			if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
				return c
			}
			return strings.Compare(a.Name, b.Name)
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		c := cmp(&views[i], &views[j])
		if order == OrderDesc {
			c = -c
		}
		return c < 0
	})
}

func derefCount(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Get 读取单个标签，调用者至少需要 viewer 权限；无权限时按不存在处理
func (s *TagService) Get(ctx context.Context, callerID, tagID uint) (*TagView, error) {
	if callerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	db := s.db.WithContext(ctx)
	tag, access, err := resolveAccess(db, tagID, callerID)
	if err != nil {
		return nil, err
	}
	if !access.CanRead() {
		return nil, apperr.NotFound("Tag not found")
	}

	view := &TagView{Tag: *tag, IsOwner: access == models.AccessOwner}
	if view.IsOwner {
		counts, err := shareCounts(db, []uint{tag.ID})
		if err != nil {
			return nil, err
		}
		n := counts[tag.ID]
		view.ShareCount = &n
		return view, nil
	}

	var share models.TagShare
	if err := db.Where("tag_id = ? AND shared_with_user_id = ?", tag.ID, callerID).Take(&share).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to load share")
	}
	view.Permission = share.Permission
	sharers, err := usersByID(db, []uint{share.SharedByUserID})
	if err != nil {
		return nil, err
	}
	view.SharedBy = sharers[share.SharedByUserID].Public()
	return view, nil
}

// Share 所有者按邮箱把标签共享给已注册用户，同一用户重复共享时原地更新权限
func (s *TagService) Share(ctx context.Context, ownerID, tagID uint, email string, perm models.Permission) (*models.TagShare, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	if !perm.Valid() {
		return nil, apperr.Validation("permission", "permission must be viewer or editor")
	}
	email = validation.NormalizeEmail(email)

	var result models.TagShare
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, access, err := resolveAccess(tx, tagID, ownerID)
		if err != nil {
			return err
		}
		if !access.CanManage() {
			return apperr.Authorization("Only the tag owner can share it")
		}

		var target models.User
		if err := tx.Where("email = ?", email).Take(&target).Error; err != nil {
			if isNotFound(err) {
				return apperr.NotFound("User not found")
			}
			return apperr.Internalf(err, "failed to look up user")
		}
		if target.ID == ownerID {
			return apperr.Validation("email", "Cannot share tag with yourself")
		}

		if err := upsertShare(tx, tagID, target.ID, ownerID, perm, s.now()); err != nil {
			return err
		}
		if err := tx.Where("tag_id = ? AND shared_with_user_id = ?", tagID, target.ID).Take(&result).Error; err != nil {
			return apperr.Internalf(err, "failed to reload share")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// upsertShare 已存在则只更新权限，否则插入；插入遇到并发冲突时退化为更新
func upsertShare(tx *gorm.DB, tagID, userID, sharedBy uint, perm models.Permission, now time.Time) error {
	update := func() error {
		if err := tx.Model(&models.TagShare{}).
			Where("tag_id = ? AND shared_with_user_id = ?", tagID, userID).
			Update("permission", perm).Error; err != nil {
			return apperr.Internalf(err, "failed to update share")
		}
		return nil
	}

	var count int64
	if err := tx.Model(&models.TagShare{}).
		Where("tag_id = ? AND shared_with_user_id = ?", tagID, userID).
		Count(&count).Error; err != nil {
		return apperr.Internalf(err, "failed to load share")
	}
	if count > 0 {
		return update()
	}

	share := models.TagShare{
		TagID:            tagID,
		SharedWithUserID: userID,
		SharedByUserID:   sharedBy,
		Permission:       perm,
		CreatedAt:        now,
	}
	if err := tx.Create(&share).Error; err != nil {
		if isDuplicateKey(err) {
			return update()
		}
		return apperr.Internalf(err, "failed to create share")
	}
	return nil
}

// Unshare 撤销某个用户的共享，仅所有者
func (s *TagService) Unshare(ctx context.Context, ownerID, tagID, userID uint) error {
	if ownerID == 0 {
		return apperr.Authentication("Unauthorized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, access, err := resolveAccess(tx, tagID, ownerID)
		if err != nil {
			return err
		}
		if !access.CanManage() {
			return apperr.Authorization("Only the tag owner can manage sharing")
		}
		res := tx.Where("tag_id = ? AND shared_with_user_id = ?", tagID, userID).Delete(&models.TagShare{})
		if res.Error != nil {
			return apperr.Internalf(res.Error, "failed to delete share")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("Share not found")
		}
		return nil
	})
}

// GetShares 列出标签的全部共享，仅所有者可见；其他人（包括标签不存在）得到空列表
func (s *TagService) GetShares(ctx context.Context, callerID, tagID uint) ([]ShareView, error) {
	empty := []ShareView{}
	if callerID == 0 {
		return empty, nil
	}
	db := s.db.WithContext(ctx)
	_, access, err := resolveAccess(db, tagID, callerID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return empty, nil
		}
		return nil, err
	}
	if !access.CanManage() {
		return empty, nil
	}

	var shares []models.TagShare
	if err := db.Where("tag_id = ?", tagID).Order("id").Find(&shares).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list shares")
	}
	userIDs := make([]uint, len(shares))
	for i, sh := range shares {
		userIDs[i] = sh.SharedWithUserID
	}
	users, err := usersByID(db, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]ShareView, 0, len(shares))
	for _, sh := range shares {
		views = append(views, ShareView{TagShare: sh, User: users[sh.SharedWithUserID].Public()})
	}
	return views, nil
}
