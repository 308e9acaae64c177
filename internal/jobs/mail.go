package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"ledgerd/internal/logging"
	"ledgerd/internal/models"
	"ledgerd/internal/services"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *logging.Logger
}

func NewLogMailer(logger *logging.Logger) *LogMailer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.logger.Info("mail", zap.String("to", to), zap.String("subject", subject))
	m.logger.Debug("mail body", zap.String("to", to), zap.String("body", body))
	return nil
}

type MailJob struct {
	mailer Mailer
	logger *logging.Logger
}

func NewMailJob(mailer Mailer, logger *logging.Logger) *MailJob {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &MailJob{mailer: mailer, logger: logger.Named("mail")}
}

func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var msg services.TokenMessage
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	subject, body, err := render(msg)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := j.mailer.Send(ctx, msg.Email, subject, body); err != nil {
		j.logger.Warn("mail delivery failed", zap.String("purpose", string(msg.Purpose)), zap.Error(err))
		return err
	}
	return nil
}

func render(msg services.TokenMessage) (string, string, error) {
	name := msg.Name
	if name == "" {
		name = msg.Email
	}
	expiry := ""
	if !msg.ExpiresAt.IsZero() {
		expiry = fmt.Sprintf("\n\nIt expires at %s.", msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	switch msg.Purpose {
	case models.PurposeEmailConfirmation:
		return "Confirm your email",
			fmt.Sprintf("Hello %s,\n\nUse this code to confirm your email address: %s%s\n", name, msg.Token, expiry),
			nil
	case models.PurposePasswordReset:
		return "Reset your password",
			fmt.Sprintf("Hello %s,\n\nUse this code to reset your password: %s%s\n\nIf you did not ask for a reset, ignore this message.\n", name, msg.Token, expiry),
			nil
	default:
		return "", "", fmt.Errorf("unknown token purpose %q", msg.Purpose)
	}
}
