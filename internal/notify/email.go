// Package notify 实现面试邀请的邮件通知。
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"hiregenius-go/internal/config"
	"hiregenius-go/internal/logger"
)

// EmailNotifier 通过SMTP发送面试邀请邮件。
// MockMode开启时不连接SMTP服务器，仅打印邮件内容，用于本地开发与测试环境。
type EmailNotifier struct {
	cfg      config.NotifierConfig
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(cfg config.NotifierConfig) *EmailNotifier {
	return &EmailNotifier{
		cfg:      cfg,
		sendFunc: smtp.SendMail,
	}
}

// SendInterviewInvite 发送面试邀请邮件，返回是否发送成功。
// 发送失败不向上抛错，由调用方根据布尔结果记录失败计数。
func (n *EmailNotifier) SendInterviewInvite(ctx context.Context, toEmail string, candidateName string, jobTitle string) bool {
	if toEmail == "" || toEmail == "Unknown" {
		logger.Ctx(ctx).Warn().Str("candidate", candidateName).Msg("候选人邮箱缺失，跳过邀请邮件")
		return false
	}

	subject := fmt.Sprintf("Interview Invitation - %s", jobTitle)
	body := fmt.Sprintf(
		"Dear %s,\n\nCongratulations! Based on your application for the %s position, we would like to invite you to an interview.\n\nOur team will contact you shortly to schedule a time.\n\nBest regards,\nThe Hiring Team",
		candidateName, jobTitle,
	)

	if n.cfg.MockMode {
		// 本地模式: 只打日志不发信，视为发送成功
		logger.Ctx(ctx).Info().
			Str("to", toEmail).
			Str("subject", subject).
			Msg("[MOCK] 面试邀请邮件")
		return true
	}

	msg := buildMessage(n.cfg.FromAddress, toEmail, subject, body)
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
	}

	// net/smtp 不接受context，用通道配合超时控制
	timeout := time.Duration(n.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- n.sendFunc(addr, auth, n.cfg.FromAddress, []string{toEmail}, msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("to", toEmail).Msg("面试邀请邮件发送失败")
			return false
		}
	case <-time.After(timeout):
		logger.Ctx(ctx).Error().Str("to", toEmail).Dur("timeout", timeout).Msg("面试邀请邮件发送超时")
		return false
	case <-ctx.Done():
		logger.Ctx(ctx).Error().Err(ctx.Err()).Str("to", toEmail).Msg("面试邀请邮件发送被取消")
		return false
	}

	logger.Ctx(ctx).Info().Str("to", toEmail).Str("job_title", jobTitle).Msg("面试邀请邮件已发送")
	return true
}

// buildMessage 构造RFC 5322格式的纯文本邮件
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
