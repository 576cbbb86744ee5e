// Package notify 后台任务完成后的邮件通知。
package notify

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"github.com/feldberlin/timething-web/pkg/config"
	"github.com/feldberlin/timething-web/pkg/models"
)

// Notifier 任务终态通知
type Notifier interface {
	// Done 通知一次后台流水线运行结束
	Done(rec *models.Transcription, runErr error)
}

// Mailer 基于 SMTP 的邮件通知实现
type Mailer struct {
	cfg config.NotifyConfig
}

// NewMailer 创建邮件通知器
func NewMailer(cfg config.NotifyConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Done 发送完成或失败通知邮件
// 发送失败只记录日志，不影响任务本身的结果
func (m *Mailer) Done(rec *models.Transcription, runErr error) {
	var subject, body string
	if runErr != nil {
		subject = fmt.Sprintf("转写失败: %s", rec.Upload.Filename)
		body = fmt.Sprintf("<p>文件 <b>%s</b> 的转写失败了。</p><p>错误: %v</p>",
			rec.Upload.Filename, runErr)
	} else {
		subject = fmt.Sprintf("转写完成: %s", rec.Upload.Filename)
		body = fmt.Sprintf("<p>文件 <b>%s</b> 的转写已完成。</p><p><a href=\"%s/player/%s\">查看结果</a></p>",
			rec.Upload.Filename, m.cfg.URLBase, rec.ID)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.SMTPUser, m.cfg.SMTPPassword)
	if err := d.DialAndSend(msg); err != nil {
		log.Printf("⚠️ 发送通知邮件失败 (id=%s): %v", rec.ID, err)
		return
	}
	log.Printf("✓ 通知邮件已发送 (id=%s)", rec.ID)
}

// Noop 通知关闭时的空实现
type Noop struct{}

func (Noop) Done(rec *models.Transcription, runErr error) {}
