package service

import (
	"context"
	"testing"
	"time"

	"tally/database"
	"tally/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	passwordCost = bcrypt.MinCost
}

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeClock 手动推进的时钟
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: baseTime}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, name, email string) *models.User {
	t.Helper()
	user := &models.User{Name: &name, Email: &email, PasswordHash: "-"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

// fixture 三个用户与一组服务共用一个时钟
type fixture struct {
	db          *gorm.DB
	clock       *fakeClock
	tags        *TagService
	invitations *InvitationService
	expenses    *ExpenseService
	alice       *models.User
	bob         *models.User
	carol       *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clock := newFakeClock()

	tags := NewTagService(db)
	tags.SetClock(clock.Now)
	invitations := NewInvitationService(db, 0)
	invitations.SetClock(clock.Now)
	expenses := NewExpenseService(db)
	expenses.SetClock(clock.Now)

	return &fixture{
		db:          db,
		clock:       clock,
		tags:        tags,
		invitations: invitations,
		expenses:    expenses,
		alice:       createUser(t, db, "Alice", "alice@example.com"),
		bob:         createUser(t, db, "Bob", "bob@example.com"),
		carol:       createUser(t, db, "Carol", "carol@example.com"),
	}
}

func (f *fixture) createTag(t *testing.T, ownerID uint, name string) *models.Tag {
	t.Helper()
	tag, err := f.tags.Create(context.Background(), ownerID, CreateTagInput{Name: name})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return tag
}

func (f *fixture) countShares(t *testing.T, tagID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.TagShare{}).Where("tag_id = ?", tagID).Count(&n).Error)
	return n
}

// assertSameTime 按时刻比较，忽略时区表示
func assertSameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "want %s, got %s", want, got)
}
