package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"tally/config"
	"tally/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func newTestEmailService(enabled bool) (*EmailService, *[]*gomail.Message) {
	s := NewEmailService(&config.EmailConfig{Enabled: enabled, Username: "noreply@example.com", From: "Tally"}, "https://tally.example.com/")
	var sent []*gomail.Message
	s.send = func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}
	return s, &sent
}

func TestGenerateInvitationEmailBody(t *testing.T) {
	s, _ := newTestEmailService(true)
	body := s.generateInvitationEmailBody(InvitationNotice{
		Email:       "carol@example.com",
		TagName:     "Groceries",
		InviterName: "Alice <admin>",
		Permission:  models.PermissionEditor,
		Message:     strPtr("see you & thanks"),
		ExpiresAt:   time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, body, "Groceries")
	assert.Contains(t, body, "Alice &lt;admin&gt;")
	assert.Contains(t, body, "see you &amp; thanks")
	assert.Contains(t, body, "view, use and edit")
	assert.Contains(t, body, "2025-03-08 10:00 UTC")
	assert.Contains(t, body, "https://tally.example.com/invitations")

	viewer := s.generateInvitationEmailBody(InvitationNotice{TagName: "Rent", InviterName: "Bob", Permission: models.PermissionViewer})
	assert.Contains(t, viewer, "view and use")
	assert.NotContains(t, viewer, `class="note"`)
}

func TestEmailService_NotifyInvitation(t *testing.T) {
	s, sent := newTestEmailService(true)
	err := s.NotifyInvitation(context.Background(), InvitationNotice{
		Email: "carol@example.com", TagName: "Groceries", InviterName: "Alice", Permission: models.PermissionViewer,
	})
	require.NoError(t, err)
	require.Len(t, *sent, 1)
	m := (*sent)[0]
	assert.Equal(t, []string{"carol@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{`[Tally] Alice invited you to the tag "Groceries"`}, m.GetHeader("Subject"))

	s.send = func(*gomail.Message) error { return errors.New("dial failed") }
	err = s.NotifyInvitation(context.Background(), InvitationNotice{Email: "carol@example.com"})
	assert.ErrorContains(t, err, "dial failed")
}

func TestPlainText(t *testing.T) {
	s, _ := newTestEmailService(true)
	body := s.generateInvitationEmailBody(InvitationNotice{
		TagName:     "Groceries",
		InviterName: "Alice",
		Permission:  models.PermissionViewer,
		Message:     strPtr("budget for x <y and z> & co"),
		ExpiresAt:   time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC),
	})
	text := plainText(body)
	assert.Contains(t, text, "budget for x <y and z> & co")
	assert.Contains(t, text, "Alice invited you to share the tag Groceries")
	assert.NotContains(t, text, "<div")
	assert.NotContains(t, text, "font-family")
	assert.NotContains(t, text, "\n\n")
}

func TestEmailService_MultipartBody(t *testing.T) {
	s, sent := newTestEmailService(true)
	require.NoError(t, s.NotifyInvitation(context.Background(), InvitationNotice{
		Email: "carol@example.com", TagName: "Groceries", InviterName: "Alice", Permission: models.PermissionViewer,
	}))
	require.Len(t, *sent, 1)

	var buf bytes.Buffer
	_, err := (*sent)[0].WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "text/plain")
	assert.Contains(t, raw, "text/html")
}

func TestEmailService_Disabled(t *testing.T) {
	s, sent := newTestEmailService(false)
	assert.Error(t, s.NotifyInvitation(context.Background(), InvitationNotice{Email: "carol@example.com"}))
	assert.Error(t, s.SendTestEmail("carol@example.com"))
	assert.Empty(t, *sent)
}
