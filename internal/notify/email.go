package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/segyhp/loan-platform/internal/domain"
	"github.com/segyhp/loan-platform/pkg/utils"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host       string
	Port       string
	Username   string
	Password   string
	From       string
	Recipients []string
}

// Mailer sends overdue digests over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewMailer creates a digest mailer
func NewMailer(cfg SMTPConfig, logger *logrus.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("at least one digest recipient is required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}

	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}, nil
}

// SendOverdueDigest mails the digest to every configured recipient.
func (m *Mailer) SendOverdueDigest(ctx context.Context, digest *domain.OverdueDigest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = m.cfg.Recipients
	e.Subject = digestSubject(digest)
	e.Text = []byte(digestBody(digest))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	if err := m.send(e, addr, auth); err != nil {
		m.logger.Errorf("Failed to send overdue digest to %s: %v", strings.Join(m.cfg.Recipients, ","), err)
		return fmt.Errorf("failed to send overdue digest: %w", err)
	}

	m.logger.Infof("Overdue digest sent to %d recipients: %s", len(m.cfg.Recipients), e.Subject)
	return nil
}

func digestSubject(digest *domain.OverdueDigest) string {
	return fmt.Sprintf("Overdue installments: %d across %d loans", len(digest.Installments), digest.Loans())
}

func digestBody(digest *domain.OverdueDigest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Overdue installments as of %s\n", digest.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Due on or before %s\n\n", digest.Cutoff.Format("2006-01-02"))

	for _, installment := range digest.Installments {
		fmt.Fprintf(&b, "loan %s  owner %s  #%d  due %s (%d days)  amount %s\n",
			installment.LoanID,
			installment.OwnerID,
			installment.Sequence,
			installment.DueDate.Format("2006-01-02"),
			utils.DaysOverdue(installment.DueDate, digest.GeneratedAt),
			installment.DueAmount.StringFixed(2),
		)
	}

	fmt.Fprintf(&b, "\nTotal due: %s\n", digest.TotalDue.StringFixed(2))
	b.WriteString("\nLoan Platform")
	return b.String()
}
