package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/codeboard/earlyaccess/internal/jobs"
	"github.com/codeboard/earlyaccess/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeMail sends the early-access welcome mail.
	TaskTypeWelcomeMail = "mail:welcome"
	// TaskTypeContributionReceipt acknowledges a stored contribution.
	TaskTypeContributionReceipt = "mail:contribution_receipt"

	maxMailRetry = 5
)

// WelcomePayload is the payload of TaskTypeWelcomeMail.
type WelcomePayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewWelcomeTask constructs a welcome mail task.
func NewWelcomeTask(payload WelcomePayload) (*asynq.Task, error) {
	if payload.Email == "" {
		return nil, notify.ErrNoRecipient
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeMail, data, asynq.MaxRetry(maxMailRetry)), nil
}

// NewContributionReceiptTask constructs a contribution receipt task.
func NewContributionReceiptTask(receipt notify.Receipt) (*asynq.Task, error) {
	if receipt.Email == "" {
		return nil, notify.ErrNoRecipient
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeContributionReceipt, data, asynq.MaxRetry(maxMailRetry)), nil
}

// MailHandlers renders queued mail tasks and hands them to a Mailer.
type MailHandlers struct {
	Mailer  notify.Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandleWelcome processes TaskTypeWelcomeMail tasks.
func (h *MailHandlers) HandleWelcome(ctx context.Context, t *asynq.Task) error {
	var payload WelcomePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Email == "" {
		h.logger().Warn("drop welcome task", slog.String("reason", "bad payload"))
		return fmt.Errorf("welcome payload: %w", asynq.SkipRetry)
	}
	msg, err := notify.RenderWelcome(payload.Email, payload.Name)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return h.deliver(ctx, TaskTypeWelcomeMail, msg)
}

// HandleContributionReceipt processes TaskTypeContributionReceipt tasks.
func (h *MailHandlers) HandleContributionReceipt(ctx context.Context, t *asynq.Task) error {
	var receipt notify.Receipt
	if err := json.Unmarshal(t.Payload(), &receipt); err != nil || receipt.Email == "" {
		h.logger().Warn("drop receipt task", slog.String("reason", "bad payload"))
		return fmt.Errorf("receipt payload: %w", asynq.SkipRetry)
	}
	msg, err := notify.RenderReceipt(receipt)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return h.deliver(ctx, TaskTypeContributionReceipt, msg)
}

func (h *MailHandlers) deliver(ctx context.Context, task string, msg notify.Message) (err error) {
	tracker := h.Metrics.Track(task)
	defer func() {
		err = tracker.End(err)
	}()
	if h.Mailer == nil {
		return errors.New("mail handlers: mailer not configured")
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.logger().Warn("mail delivery failed", slog.String("task", task), slog.Any("error", err))
		return err
	}
	h.logger().Info("mail delivered", slog.String("task", task), slog.String("to", msg.To))
	return nil
}

func (h *MailHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
