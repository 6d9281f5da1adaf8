package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"time"
	"ztuff-backend/internal/repository/interfaces"
	"ztuff-backend/internal/util"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

// SMTPConfig 邮件服务器配置
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SiteURL  string
}

// EmailNotifier 通过邮件通知顾客订单和退货状态变化
type EmailNotifier struct {
	cfg   SMTPConfig
	users interfaces.UserRepository
	send  func(m *mail.Message) error
	async bool
}

func NewEmailNotifier(cfg SMTPConfig, users interfaces.UserRepository) *EmailNotifier {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	n := &EmailNotifier{cfg: cfg, users: users, async: true}
	n.send = n.dialAndSend
	return n
}

// Notify 查找收件人并异步发送，发送失败只记录日志
func (n *EmailNotifier) Notify(ctx context.Context, userID int64, name string, data map[string]interface{}) error {
	if _, ok := templates[name]; !ok {
		return fmt.Errorf("unknown notification template %q", name)
	}
	user, err := n.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load recipient: %w", err)
	}
	if user == nil || user.Email == "" {
		return fmt.Errorf("user %d has no email address", userID)
	}

	subject, body, err := render(name, user.Username, n.cfg.SiteURL, data)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if !n.async {
		return n.send(m)
	}
	go func() {
		if err := n.send(m); err != nil {
			util.Logger.Error("异步发送邮件失败",
				zap.Error(err),
				zap.String("to", user.Email),
				zap.String("template", name))
		}
	}()
	return nil
}

func render(name, username, siteURL string, data map[string]interface{}) (string, string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", name)
	}
	view := map[string]interface{}{
		"Username": username,
		"SiteURL":  siteURL,
	}
	for k, v := range data {
		view[k] = v
	}
	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, view); err != nil {
		return "", "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return tmpl.subject, body.String(), nil
}

func (n *EmailNotifier) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(n.cfg.Host, n.cfg.Port, n.cfg.Username, n.cfg.Password)
	d.Timeout = 20 * time.Second
	d.SSL = n.cfg.Port == 465
	d.TLSConfig = &tls.Config{ServerName: n.cfg.Host}

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	util.Logger.Info("邮件发送成功", zap.Strings("to", m.GetHeader("To")))
	return nil
}

// LogNotifier 未配置 SMTP 时使用，只写日志
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID int64, name string, data map[string]interface{}) error {
	util.Logger.Info("通知",
		zap.Int64("user_id", userID),
		zap.String("template", name),
		zap.Any("data", data))
	return nil
}
