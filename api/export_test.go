package api

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"tally/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportHandler_ExportXLSX(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser("Alice", "alice@example.com")
	_, err := env.expenses.Create(context.Background(), alice.ID, service.ExpenseInput{
		Amount:      42.5,
		Description: "Dinner",
		Date:        time.Date(2024, 1, 15, 19, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)

	w := env.do(alice.ID, "GET", "/export/xlsx?start_time=2024-01-01&end_time=2024-01-31", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "expenses_2024-01-01_2024-01-31.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "Dinner", rows[1][2])
}

func TestExportHandler_ExportXLSX_BadRange(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser("Alice", "alice@example.com")

	w := env.do(alice.ID, "GET", "/export/xlsx", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(alice.ID, "GET", "/export/xlsx?start_time=2024-01-01&end_time=20240131", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 结束早于开始
	w = env.do(alice.ID, "GET", "/export/xlsx?start_time=2024-02-01&end_time=2024-01-01", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(0, "GET", "/export/xlsx?start_time=2024-01-01&end_time=2024-01-31", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
