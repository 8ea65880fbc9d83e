package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"tally/apperr"
	"tally/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// MaxPageSize 分页上限
const MaxPageSize = 100

// ExpenseService 消费记录，每条记录可引用多个调用者有权使用的标签
type ExpenseService struct {
	db  *gorm.DB
	now Clock
}

// NewExpenseService 创建消费记录服务
func NewExpenseService(db *gorm.DB) *ExpenseService {
	return &ExpenseService{db: db, now: time.Now}
}

// SetClock 替换时间源
func (s *ExpenseService) SetClock(now Clock) {
	s.now = now
}

// ExpenseInput 创建消费记录参数
type ExpenseInput struct {
	Amount      float64
	Description string
	Date        time.Time
	TagIDs      []uint
}

// UpdateExpenseInput 更新参数，TagIDs 非 nil 时整体替换标签集合
type UpdateExpenseInput struct {
	Amount      *float64
	Description *string
	Date        *time.Time
	TagIDs      *[]uint
}

// ListExpensesInput 列表参数
type ListExpensesInput struct {
	Page     int
	PageSize int
	TagID    *uint
	Start    *time.Time
	End      *time.Time
}

// ExpensePage 分页结果
type ExpensePage struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	List     []models.Expense `json:"list"`
}

func checkAmount(amount float64) error {
	if amount <= 0 {
		return apperr.Validation("amount", "Amount must be greater than 0")
	}
	return nil
}

// checkTagUse 每个引用的标签调用者至少要有 viewer 权限
func checkTagUse(tx *gorm.DB, callerID uint, tagIDs []uint) error {
	for _, id := range tagIDs {
		_, access, err := resolveAccess(tx, id, callerID)
		if err != nil {
			return err
		}
		if !access.CanRead() {
			return apperr.Authorization("Insufficient permissions to use this tag")
		}
	}
	return nil
}

func replaceExpenseTags(tx *gorm.DB, expenseID uint, tagIDs []uint) error {
	if err := tx.Where("expense_id = ?", expenseID).Delete(&models.ExpenseTag{}).Error; err != nil {
		return apperr.Internalf(err, "failed to clear expense tags")
	}
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]models.ExpenseTag, len(tagIDs))
	for i, id := range tagIDs {
		rows[i] = models.ExpenseTag{ExpenseID: expenseID, TagID: id}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return apperr.Internalf(err, "failed to save expense tags")
	}
	return nil
}

// attachTagIDs 回填 TagIDs 字段
func attachTagIDs(db *gorm.DB, expenses []models.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	ids := make([]uint, len(expenses))
	index := make(map[uint]int, len(expenses))
	for i := range expenses {
		ids[i] = expenses[i].ID
		index[expenses[i].ID] = i
		expenses[i].TagIDs = []uint{}
	}
	var links []models.ExpenseTag
	if err := db.Where("expense_id IN ?", ids).Order("tag_id").Find(&links).Error; err != nil {
		return apperr.Internalf(err, "failed to load expense tags")
	}
	for _, l := range links {
		i := index[l.ExpenseID]
		expenses[i].TagIDs = append(expenses[i].TagIDs, l.TagID)
	}
	return nil
}

func (s *ExpenseService) loadOwned(db *gorm.DB, ownerID, id uint) (*models.Expense, error) {
	var expense models.Expense
	if err := db.Where("id = ? AND owner_id = ?", id, ownerID).Take(&expense).Error; err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("Expense not found")
		}
		return nil, apperr.Internalf(err, "failed to load expense")
	}
	list := []models.Expense{expense}
	if err := attachTagIDs(db, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// Create 创建消费记录
func (s *ExpenseService) Create(ctx context.Context, ownerID uint, in ExpenseInput) (*models.Expense, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	if err := checkAmount(in.Amount); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, apperr.Validation("date", "Date is required")
	}
	tagIDs := uniqueIDs(in.TagIDs)

	var result *models.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkTagUse(tx, ownerID, tagIDs); err != nil {
			return err
		}
		now := s.now()
		expense := models.Expense{
			OwnerID:     ownerID,
			Amount:      in.Amount,
			Description: strings.TrimSpace(in.Description),
			Date:        in.Date,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&expense).Error; err != nil {
			return apperr.Internalf(err, "failed to create expense")
		}
		if err := replaceExpenseTags(tx, expense.ID, tagIDs); err != nil {
			return err
		}
		var err error
		result, err = s.loadOwned(tx, ownerID, expense.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List 分页查询调用者的消费记录，按日期倒序
func (s *ExpenseService) List(ctx context.Context, ownerID uint, in ListExpensesInput) (*ExpensePage, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.PageSize <= 0 {
		in.PageSize = 10
	}
	if in.PageSize > MaxPageSize {
		in.PageSize = MaxPageSize
	}

	db := s.db.WithContext(ctx)
	query := db.Model(&models.Expense{}).Where("owner_id = ?", ownerID)
	if in.TagID != nil {
		query = query.Where("id IN (?)", db.Model(&models.ExpenseTag{}).Select("expense_id").Where("tag_id = ?", *in.TagID))
	}
	if in.Start != nil {
		query = query.Where("date >= ?", *in.Start)
	}
	if in.End != nil {
		query = query.Where("date <= ?", *in.End)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to count expenses")
	}
	expenses := []models.Expense{}
	offset := (in.Page - 1) * in.PageSize
	if err := query.Order("date DESC, id DESC").Offset(offset).Limit(in.PageSize).Find(&expenses).Error; err != nil {
		return nil, apperr.Internalf(err, "failed to list expenses")
	}
	if err := attachTagIDs(db, expenses); err != nil {
		return nil, err
	}
	return &ExpensePage{Total: total, Page: in.Page, PageSize: in.PageSize, List: expenses}, nil
}

// Get 读取单条记录，非本人记录按不存在处理
func (s *ExpenseService) Get(ctx context.Context, ownerID, id uint) (*models.Expense, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}
	return s.loadOwned(s.db.WithContext(ctx), ownerID, id)
}

// Update 部分更新
func (s *ExpenseService) Update(ctx context.Context, ownerID, id uint, in UpdateExpenseInput) (*models.Expense, error) {
	if ownerID == 0 {
		return nil, apperr.Authentication("Unauthorized")
	}

	var result *models.Expense
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadOwned(tx, ownerID, id); err != nil {
			return err
		}

		updates := map[string]any{"updated_at": s.now()}
		if in.Amount != nil {
			if err := checkAmount(*in.Amount); err != nil {
				return err
			}
			updates["amount"] = *in.Amount
		}
		if in.Description != nil {
			updates["description"] = strings.TrimSpace(*in.Description)
		}
		if in.Date != nil {
			if in.Date.IsZero() {
				return apperr.Validation("date", "Date is required")
			}
			updates["date"] = *in.Date
		}
		if in.TagIDs != nil {
			tagIDs := uniqueIDs(*in.TagIDs)
			if err := checkTagUse(tx, ownerID, tagIDs); err != nil {
				return err
			}
			if err := replaceExpenseTags(tx, id, tagIDs); err != nil {
				return err
			}
		}

		if err := tx.Model(&models.Expense{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Internalf(err, "failed to update expense")
		}
		var err error
		result, err = s.loadOwned(tx, ownerID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete 删除记录及其标签关联
func (s *ExpenseService) Delete(ctx context.Context, ownerID, id uint) error {
	if ownerID == 0 {
		return apperr.Authentication("Unauthorized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Expense{})
		if res.Error != nil {
			return apperr.Internalf(res.Error, "failed to delete expense")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("Expense not found")
		}
		if err := tx.Where("expense_id = ?", id).Delete(&models.ExpenseTag{}).Error; err != nil {
			return apperr.Internalf(err, "failed to delete expense tags")
		}
		return nil
	})
}

var xlsxBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
}

// ExportXLSX 导出 [start, end] 区间内的消费记录为 Excel，末行为合计
func (s *ExpenseService) ExportXLSX(ctx context.Context, ownerID uint, start, end time.Time, w io.Writer) error {
	if ownerID == 0 {
		return apperr.Authentication("Unauthorized")
	}
	if end.Before(start) {
		return apperr.Validation("end_time", "End time must not be before start time")
	}

	db := s.db.WithContext(ctx)
	var expenses []models.Expense
	if err := db.Where("owner_id = ? AND date >= ? AND date <= ?", ownerID, start, end).
		Order("date DESC, id DESC").
		Find(&expenses).Error; err != nil {
		return apperr.Internalf(err, "failed to load expenses")
	}
	if err := attachTagIDs(db, expenses); err != nil {
		return err
	}
	var allTagIDs []uint
	for _, e := range expenses {
		allTagIDs = append(allTagIDs, e.TagIDs...)
	}
	tags, err := tagsByID(db, allTagIDs)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Expenses"
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return apperr.Internalf(err, "failed to build workbook")
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 12, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    xlsxBorder,
	})
	dataStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    xlsxBorder,
	})
	summaryStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FFC000"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    xlsxBorder,
	})

	f.SetColWidth(sheetName, "A", "A", 10)
	f.SetColWidth(sheetName, "B", "B", 14)
	f.SetColWidth(sheetName, "C", "C", 30)
	f.SetColWidth(sheetName, "D", "D", 30)
	f.SetColWidth(sheetName, "E", "F", 20)

	headers := []string{"ID", "Amount", "Description", "Tags", "Date", "Created At"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	var totalAmount float64
	for i, e := range expenses {
		row := i + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), e.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), e.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), e.Description)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), tagNames(tags, e.TagIDs))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), e.Date.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), e.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("F%d", row), dataStyle)
		totalAmount += e.Amount
	}

	summaryRow := len(expenses) + 2
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), "Total")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", summaryRow), totalAmount)
	f.SetCellValue(sheetName, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("%d records", len(expenses)))
	f.MergeCell(sheetName, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("F%d", summaryRow))
	f.SetCellStyle(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("F%d", summaryRow), summaryStyle)

	if err := f.Write(w); err != nil {
		return apperr.Internalf(err, "failed to write workbook")
	}
	return nil
}

// tagNames 按名称排序后用逗号连接，已删除的标签跳过
func tagNames(tags map[uint]*models.Tag, ids []uint) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if t, ok := tags[id]; ok {
			names = append(names, t.Name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
