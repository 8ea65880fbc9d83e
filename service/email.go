package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"tally/config"
	"tally/models"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/gomail.v2"
)

// stripTagsPolicy 去掉全部标签，style 等元素连同内容一起丢弃
var stripTagsPolicy = bluemonday.StripTagsPolicy()

// EmailService 邮件服务，实现 Notifier
type EmailService struct {
	cfg     *config.EmailConfig
	baseURL string
	send    func(m *gomail.Message) error
}

// NewEmailService 创建邮件服务，baseURL 为前端地址，用于生成邀请链接
func NewEmailService(cfg *config.EmailConfig, baseURL string) *EmailService {
	s := &EmailService{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/")}
	s.send = s.dialAndSend
	return s
}

// NotifyInvitation 发送标签邀请邮件
func (s *EmailService) NotifyInvitation(_ context.Context, n InvitationNotice) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 TALLY_EMAIL_ENABLED=true")
	}

	subject := fmt.Sprintf("[Tally] %s invited you to the tag \"%s\"", n.InviterName, n.TagName)
	body := s.generateInvitationEmailBody(n)

	return s.sendEmail(n.Email, subject, body)
}

func (s *EmailService) invitationLink() string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/invitations"
}

func permissionText(p models.Permission) string {
	if p == models.PermissionEditor {
		return "view, use and edit"
	}
	return "view and use"
}

// generateInvitationEmailBody 生成邀请邮件内容，用户输入的字段全部转义
func (s *EmailService) generateInvitationEmailBody(n InvitationNotice) string {
	messageBlock := ""
	if n.Message != nil && *n.Message != "" {
		messageBlock = fmt.Sprintf(`<div class="note"><p>%s</p></div>`, html.EscapeString(*n.Message))
	}
	buttonBlock := ""
	if link := s.invitationLink(); link != "" {
		buttonBlock = fmt.Sprintf(`<p style="text-align: center;"><a href="%s" class="btn">View invitation</a></p>`, html.EscapeString(link))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 20px rgba(0,0,0,0.1); }
        .header { background: linear-gradient(135deg, #10b981, #059669); color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 40px 30px; }
        .content p { color: #333; line-height: 1.8; margin: 0 0 20px; }
        .tag { display: inline-block; background: #f0fdf4; border: 1px solid #10b981; color: #059669; border-radius: 999px; padding: 4px 14px; font-weight: 600; }
        .note { background: #f8f9fa; border-left: 4px solid #10b981; padding: 15px; margin: 20px 0; border-radius: 4px; }
        .note p { margin: 0; color: #555; font-style: italic; }
        .btn { display: inline-block; background: linear-gradient(135deg, #10b981, #059669); color: white !important; text-decoration: none; padding: 14px 40px; border-radius: 8px; font-weight: 600; margin: 20px 0; }
        .warning { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; border-radius: 4px; }
        .warning p { margin: 0; color: #856404; font-size: 14px; }
        .footer { background: #f8f9fa; padding: 20px 30px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Tally</h1>
        </div>
        <div class="content">
            <p>Hello!</p>
            <p><strong>%s</strong> invited you to share the tag <span class="tag">%s</span>. You will be able to %s it.</p>
            %s
            %s
            <div class="warning">
                <p>This invitation expires on <strong>%s</strong>. Sign in with this email address to accept it.</p>
            </div>
        </div>
        <div class="footer">
            <p>This email was sent automatically, please do not reply.</p>
        </div>
    </div>
</body>
</html>
`,
		html.EscapeString(n.InviterName),
		html.EscapeString(n.TagName),
		permissionText(n.Permission),
		messageBlock,
		buttonBlock,
		n.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"),
	)
}

// sendEmail 发送邮件
func (s *EmailService) sendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainText(body))
	m.AddAlternative("text/html", body)

	if err := s.send(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// plainText 由 HTML 正文生成纯文本备选内容
func plainText(body string) string {
	text := html.UnescapeString(stripTagsPolicy.Sanitize(body))
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func (s *EmailService) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	return d.DialAndSend(m)
}

// SendTestEmail 发送测试邮件
func (s *EmailService) SendTestEmail(toEmail string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用")
	}

	subject := "[Tally] Mail configuration test"
	body := `
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; padding: 20px;">
    <h2>Mail is configured</h2>
    <p>If you received this message, outgoing mail works.</p>
    <p style="color: #666;">Tally</p>
</body>
</html>
`
	return s.sendEmail(toEmail, subject, body)
}
