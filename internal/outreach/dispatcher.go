// Package outreach delivers composed emails over SMTP with an at-most-once
// guarantee per opportunity. The send ledger lives in the store: the flag is
// checked before dialing and set immediately after the server accepts the
// message, so a crash between the two can at worst lose a record of one send,
// never duplicate one.
package outreach

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"jobscout/internal/compose"
	"jobscout/internal/logger"
	"jobscout/internal/opportunity"
	"jobscout/internal/profile"
	"jobscout/internal/store"
)

// Sender delivers a single message. Implementations do not retry.
type Sender interface {
	Send(from string, to string, email *compose.Email, resume *profile.Attachment) error
}

const defaultSMTPTimeout = 30 * time.Second

// SMTPSender sends through a plain SMTP dialer. Timeout bounds the whole
// exchange, not just the TCP connect.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func NewSMTPSender(host string, port int, user, password string, timeout time.Duration) *SMTPSender {
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	return &SMTPSender{Host: host, Port: port, User: user, Password: password, Timeout: timeout}
}

func (s *SMTPSender) Send(from, to string, email *compose.Email, resume *profile.Attachment) error {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/plain", email.Body)

	if resume != nil {
		m.Attach(resume.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(resume.Bytes)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {resume.MIME},
			}),
		)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	// The dialer only bounds the TCP connect; a server that accepts and
	// then stalls would otherwise hang the pipeline. Run the session off to
	// the side and enforce our own deadline on the whole exchange.
	errc := make(chan error, 1)
	go func() { errc <- d.DialAndSend(m) }()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-time.After(s.Timeout):
		return fmt.Errorf("smtp send: no response from %s after %s", s.Host, s.Timeout)
	}
}

// SentChecker is the slice of the store the dispatcher needs for the ledger.
type SentChecker interface {
	IsSent(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
}

type Dispatcher struct {
	sender  Sender
	ledger  SentChecker
	profile *profile.Profile
	logger  *zap.Logger
	now     func() time.Time
}

func NewDispatcher(sender Sender, ledger SentChecker, prof *profile.Profile, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		ledger:  ledger,
		profile: prof,
		logger:  log,
		now:     time.Now,
	}
}

// Outcome reports what Dispatch did with an opportunity.
type Outcome int

const (
	// OutcomeSent means the message was handed to the SMTP server and recorded.
	OutcomeSent Outcome = iota
	// OutcomeAlreadySent means the ledger showed a prior send, nothing was dialed.
	OutcomeAlreadySent
	// OutcomeNoRecipient means the opportunity carries no email address.
	OutcomeNoRecipient
)

// Dispatch sends the email to the opportunity's first extracted address.
// The ledger check happens before any network activity; a failed SMTP send
// returns the error without touching the ledger so the operator can retry.
func (d *Dispatcher) Dispatch(ctx context.Context, opp *opportunity.Opportunity, email *compose.Email) (Outcome, error) {
	sent, err := d.ledger.IsSent(ctx, opp.ID)
	if err != nil {
		return 0, fmt.Errorf("check send ledger: %w", err)
	}
	if sent {
		d.logger.Info("skipping already sent opportunity",
			zap.String(logger.FieldOpportunity, opp.ID))
		return OutcomeAlreadySent, nil
	}

	to := opp.FirstEmail()
	if to == "" {
		d.logger.Info("no recipient address, skipping dispatch",
			zap.String(logger.FieldOpportunity, opp.ID))
		return OutcomeNoRecipient, nil
	}

	if err := d.sender.Send(d.profile.Email, to, email, d.profile.Resume); err != nil {
		return 0, err
	}

	at := d.now().UTC()
	if err := d.ledger.MarkSent(ctx, opp.ID, at); err != nil {
		// The mail is out but the ledger write failed. Surface it loudly:
		// until the row is fixed this opportunity looks resumable.
		d.logger.Error("email sent but ledger update failed",
			zap.String(logger.FieldOpportunity, opp.ID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("mark sent: %w", err)
	}

	d.logger.Info("outreach email sent",
		zap.String(logger.FieldOpportunity, opp.ID),
		zap.String("to", to),
		zap.String("subject", email.Subject),
	)

	return OutcomeSent, nil
}

var _ SentChecker = (*store.Memory)(nil)
var _ SentChecker = (*store.Postgres)(nil)
