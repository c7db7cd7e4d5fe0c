package notify

import (
	"context"
	"errors"

	"github.com/codeboard/earlyaccess/internal/observability"
)

// Direct renders and sends mail synchronously on the caller's goroutine.
type Direct struct {
	mailer  Mailer
	metrics *observability.Metrics
}

// NewDirect constructs a Direct notifier.
func NewDirect(mailer Mailer, metrics *observability.Metrics) *Direct {
	return &Direct{mailer: mailer, metrics: metrics}
}

// SendWelcome delivers the welcome mail.
func (d *Direct) SendWelcome(ctx context.Context, email, name string) error {
	msg, err := RenderWelcome(email, name)
	if err != nil {
		return err
	}
	return d.deliver(ctx, "welcome", msg)
}

// SendContributionReceipt delivers the contribution receipt.
func (d *Direct) SendContributionReceipt(ctx context.Context, r Receipt) error {
	msg, err := RenderReceipt(r)
	if err != nil {
		return err
	}
	return d.deliver(ctx, "contribution_receipt", msg)
}

func (d *Direct) deliver(ctx context.Context, kind string, msg Message) error {
	if d.mailer == nil {
		return errors.New("notify: mailer not configured")
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.metrics.MailEvent(kind, "failure")
		return err
	}
	d.metrics.MailEvent(kind, "sent")
	return nil
}
