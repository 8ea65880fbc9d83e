package service

import (
	"context"
	"testing"
	"time"

	"tally/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_AddInvitationSweep(t *testing.T) {
	f := newFixture(t)
	s := NewScheduler()

	assert.Error(t, s.AddInvitationSweep("not a cron expression", f.invitations))
	require.NoError(t, s.AddInvitationSweep("@hourly", f.invitations))
	require.NoError(t, s.AddInvitationSweep("*/5 * * * *", f.invitations))

	s.Start()
	s.Stop()
}

func TestExpiredInvitationJob_Run(t *testing.T) {
	f := newFixture(t)
	tag := f.createTag(t, f.alice.ID, "Groceries")
	inv, err := f.invitations.Create(context.Background(), f.alice.ID, CreateInvitationInput{
		TagID: tag.ID, Email: "carol@example.com", Permission: models.PermissionViewer,
	})
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	job := &expiredInvitationJob{invitations: f.invitations}
	job.Run()

	var stored models.TagInvitation
	require.NoError(t, f.db.First(&stored, inv.ID).Error)
	assert.Equal(t, models.InvitationExpired, stored.Status)
}
