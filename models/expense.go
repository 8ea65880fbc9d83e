package models

import (
	"time"
)

// Expense 消费记录模型
type Expense struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	OwnerID     uint      `json:"owner_id" gorm:"index:idx_expenses_owner_date,priority:1;not null"`
	Amount      float64   `json:"amount" gorm:"type:decimal(12,2);not null"`
	Description string    `json:"description" gorm:"size:255"`
	Date        time.Time `json:"date" gorm:"index:idx_expenses_owner_date,priority:2;not null"`
	TagIDs      []uint    `json:"tag_ids" gorm:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// ExpenseTag 消费记录与标签的关联
type ExpenseTag struct {
	ExpenseID uint `json:"expense_id" gorm:"primaryKey;autoIncrement:false"`
	TagID     uint `json:"tag_id" gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName 设置表名
func (ExpenseTag) TableName() string {
	return "expense_tags"
}
