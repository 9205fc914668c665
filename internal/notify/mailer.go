// Package notify delivers transactional email to customers. SMTPMailer is
// the production implementation; LogMailer stands in when no SMTP relay is
// configured, so local runs never need mail credentials.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// SMTPMailer sends order confirmations through an authenticated SMTP relay.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// NewSMTPMailer connects the mailer to the given relay. The connection is
// dialed lazily per message.
func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &SMTPMailer{client: client, from: from}, nil
}

// SendOrderConfirmation emails a plain-text order summary to the buyer.
func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, to, name string, o *order.Order) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return errors.Wrap(err, "set sender")
	}
	if err := msg.To(to); err != nil {
		return errors.Wrap(err, "set recipient")
	}
	msg.Subject(fmt.Sprintf("Order Confirmation - Order #%d", o.ID))
	msg.SetBodyString(mail.TypeTextPlain, confirmationBody(name, o))

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}

func confirmationBody(name string, o *order.Order) string {
	var b strings.Builder
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thank you for your order! Your order #%d has been received.\n\n", o.ID)
	b.WriteString("Items:\n")
	for _, item := range o.Items {
		fmt.Fprintf(&b, "  - product %d x%d at %s\n", item.ProductID, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", o.TotalAmount.StringFixed(2))
	b.WriteString("\nWe will notify you once your payment is confirmed.\n")
	return b.String()
}

// LogMailer logs confirmations instead of sending them.
type LogMailer struct {
	lg *zap.Logger
}

// NewLogMailer creates a LogMailer writing to lg.
func NewLogMailer(lg *zap.Logger) *LogMailer {
	return &LogMailer{lg: lg}
}

// SendOrderConfirmation records the would-be delivery and succeeds.
func (m *LogMailer) SendOrderConfirmation(_ context.Context, to, _ string, o *order.Order) error {
	m.lg.Info("order confirmation (mail disabled)",
		zap.String("to", to),
		zap.Int64("order_id", o.ID),
		zap.String("total", o.TotalAmount.StringFixed(2)),
	)
	return nil
}
