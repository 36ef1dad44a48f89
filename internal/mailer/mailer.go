// Package mailer delivers schedule notifications over SMTP.
//
// Delivery is rate limited so a burst of simultaneous fires cannot trip a
// provider's throttling. With no SMTP host configured the mailer runs in
// log-only mode, which keeps local development working end to end.
package mailer

import (
	"bytes"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"context"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"clipflow/internal/asset"
	"clipflow/internal/config"
	"clipflow/internal/fault"
	"clipflow/internal/schedule"
	logx "clipflow/pkg/logx"
)

type Mailer struct {
	cfg     config.MailerConfig
	log     logx.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg config.MailerConfig, log logx.Logger) *Mailer {
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Mailer{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		now:     time.Now,
	}
}

// Send builds and delivers one notification. The returned message id is
// generated locally and stamped into the Message-ID header.
func (m *Mailer) Send(ctx context.Context, s *schedule.Schedule, a *asset.Asset) (string, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", fault.Wrap(fault.KindDelivery, err, "rate limit wait")
	}

	msgID := fmt.Sprintf("<%s@clipflow>", uuid.NewString())
	msg, err := m.buildMessage(msgID, s, a)
	if err != nil {
		return "", fault.Wrap(fault.KindDelivery, err, "build message")
	}

	if m.cfg.Host == "" {
		m.log.Info("mail delivery skipped (log-only mode)",
			logx.String("to", s.Recipient.Email),
			logx.String("subject", s.Subject),
			logx.String("message_id", msgID),
		)
		return msgID, nil
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.FromAddress, []string{s.Recipient.Email}, msg); err != nil {
		return "", fault.Wrap(fault.KindDelivery, err, "smtp send to %s", s.Recipient.Email)
	}
	return msgID, nil
}

func (m *Mailer) buildMessage(msgID string, s *schedule.Schedule, a *asset.Asset) ([]byte, error) {
	fromName := m.cfg.FromName
	if s.SenderName != "" {
		fromName = s.SenderName
	}
	from := m.cfg.FromAddress
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, m.cfg.FromAddress)
	}
	to := s.Recipient.Email
	if s.Recipient.Name != "" {
		to = fmt.Sprintf("%s <%s>", s.Recipient.Name, s.Recipient.Email)
	}
	subject := s.Subject
	if subject == "" {
		subject = "Your video is ready"
	}

	body, err := renderBody(s, a)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", msgID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
