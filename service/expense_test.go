package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"tally/apperr"
	"tally/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExpenseService_CreateChecksTagAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.createTag(t, f.bob.ID, "Lunch")
	shared := f.createTag(t, f.alice.ID, "Groceries")
	private := f.createTag(t, f.alice.ID, "Secret")
	_, err := f.tags.Share(ctx, f.alice.ID, shared.ID, "bob@example.com", models.PermissionViewer)
	require.NoError(t, err)

	expense, err := f.expenses.Create(ctx, f.bob.ID, ExpenseInput{
		Amount:      12.5,
		Description: " <i>market</i> & co ",
		Date:        baseTime,
		TagIDs:      []uint{shared.ID, own.ID, shared.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, f.bob.ID, expense.OwnerID)
	assert.Equal(t, "<i>market</i> & co", expense.Description)
	assert.ElementsMatch(t, []uint{shared.ID, own.ID}, expense.TagIDs)

	_, err = f.expenses.Create(ctx, f.bob.ID, ExpenseInput{Amount: 1, Date: baseTime, TagIDs: []uint{private.ID}})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthorization))

	_, err = f.expenses.Create(ctx, f.bob.ID, ExpenseInput{Amount: 1, Date: baseTime, TagIDs: []uint{9999}})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = f.expenses.Create(ctx, f.bob.ID, ExpenseInput{Amount: 0, Date: baseTime})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.expenses.Create(ctx, f.bob.ID, ExpenseInput{Amount: 3})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// 失败的创建不留下记录
	var n int64
	require.NoError(t, f.db.Model(&models.Expense{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestExpenseService_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.createTag(t, f.alice.ID, "Food")

	for i := 0; i < 5; i++ {
		in := ExpenseInput{Amount: float64(i + 1), Date: baseTime.AddDate(0, 0, i)}
		if i%2 == 0 {
			in.TagIDs = []uint{food.ID}
		}
		_, err := f.expenses.Create(ctx, f.alice.ID, in)
		require.NoError(t, err)
	}
	_, err := f.expenses.Create(ctx, f.bob.ID, ExpenseInput{Amount: 99, Date: baseTime})
	require.NoError(t, err)

	page, err := f.expenses.List(ctx, f.alice.ID, ListExpensesInput{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.List, 2)
	assert.Equal(t, 5.0, page.List[0].Amount)
	assert.Equal(t, 4.0, page.List[1].Amount)

	page, err = f.expenses.List(ctx, f.alice.ID, ListExpensesInput{TagID: &food.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	for _, e := range page.List {
		assert.Equal(t, []uint{food.ID}, e.TagIDs)
	}

	start := baseTime.AddDate(0, 0, 1)
	end := baseTime.AddDate(0, 0, 3)
	page, err = f.expenses.List(ctx, f.alice.ID, ListExpensesInput{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)

	page, err = f.expenses.List(ctx, f.alice.ID, ListExpensesInput{PageSize: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Equal(t, 1, page.Page)
}

func TestExpenseService_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.createTag(t, f.alice.ID, "Food")
	travel := f.createTag(t, f.alice.ID, "Travel")

	expense, err := f.expenses.Create(ctx, f.alice.ID, ExpenseInput{Amount: 10, Description: "taxi", Date: baseTime, TagIDs: []uint{food.ID}})
	require.NoError(t, err)

	// 其他人看不到，也改不了
	_, err = f.expenses.Get(ctx, f.bob.ID, expense.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	_, err = f.expenses.Update(ctx, f.bob.ID, expense.ID, UpdateExpenseInput{Amount: new(float64)})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	amount := 20.0
	tags := []uint{travel.ID}
	f.clock.Advance(time.Hour)
	updated, err := f.expenses.Update(ctx, f.alice.ID, expense.ID, UpdateExpenseInput{Amount: &amount, TagIDs: &tags})
	require.NoError(t, err)
	assert.Equal(t, 20.0, updated.Amount)
	assert.Equal(t, "taxi", updated.Description)
	assert.Equal(t, []uint{travel.ID}, updated.TagIDs)
	assertSameTime(t, f.clock.Now(), updated.UpdatedAt)

	// 不传 TagIDs 时保持原标签
	desc := "airport taxi"
	updated, err = f.expenses.Update(ctx, f.alice.ID, expense.ID, UpdateExpenseInput{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, []uint{travel.ID}, updated.TagIDs)

	zero := 0.0
	_, err = f.expenses.Update(ctx, f.alice.ID, expense.ID, UpdateExpenseInput{Amount: &zero})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	err = f.expenses.Delete(ctx, f.bob.ID, expense.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	require.NoError(t, f.expenses.Delete(ctx, f.alice.ID, expense.ID))

	var n int64
	require.NoError(t, f.db.Model(&models.ExpenseTag{}).Where("expense_id = ?", expense.ID).Count(&n).Error)
	assert.Equal(t, int64(0), n)
	_, err = f.expenses.Get(ctx, f.alice.ID, expense.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestExpenseService_ExportXLSX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.createTag(t, f.alice.ID, "Food")
	fun := f.createTag(t, f.alice.ID, "Fun")

	_, err := f.expenses.Create(ctx, f.alice.ID, ExpenseInput{Amount: 10.5, Description: "pizza", Date: baseTime, TagIDs: []uint{fun.ID, food.ID}})
	require.NoError(t, err)
	_, err = f.expenses.Create(ctx, f.alice.ID, ExpenseInput{Amount: 4.5, Description: "bus", Date: baseTime.AddDate(0, 0, 1)})
	require.NoError(t, err)
	_, err = f.expenses.Create(ctx, f.alice.ID, ExpenseInput{Amount: 100, Description: "out of range", Date: baseTime.AddDate(0, 1, 0)})
	require.NoError(t, err)

	var buf bytes.Buffer
	err = f.expenses.ExportXLSX(ctx, f.alice.ID, baseTime.Add(-time.Hour), baseTime.AddDate(0, 0, 2), &buf)
	require.NoError(t, err)

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"ID", "Amount", "Description", "Tags", "Date", "Created At"}, rows[0])
	assert.Equal(t, "bus", rows[1][2])
	assert.Equal(t, "pizza", rows[2][2])
	assert.Equal(t, "Food, Fun", rows[2][3])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "15", rows[3][1])
	assert.Equal(t, "2 records", rows[3][2])

	err = f.expenses.ExportXLSX(ctx, f.alice.ID, baseTime, baseTime.Add(-time.Hour), &buf)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
