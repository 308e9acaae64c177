package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgerd/internal/logging"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type PurgeJob struct {
	revocations Purger
	tokens      Purger
	now         func() time.Time
	logger      *logging.Logger
}

// NewPurgeJob accepts a nil revocations purger when revocations live in Redis,
// which expires them itself.
func NewPurgeJob(revocations, tokens Purger, logger *logging.Logger) *PurgeJob {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PurgeJob{revocations: revocations, tokens: tokens, now: time.Now, logger: logger.Named("purge")}
}

func (j *PurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode purge payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.DryRun {
		j.logger.Info("purge dry run")
		return nil
	}
	now := j.now()
	var revoked int64
	if j.revocations != nil {
		n, err := j.revocations.PurgeExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("purge revocations: %w", err)
		}
		revoked = n
	}
	tokens, err := j.tokens.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("purge ephemeral tokens: %w", err)
	}
	j.logger.Info("expired tokens purged",
		zap.Int64("revocations", revoked),
		zap.Int64("ephemeral_tokens", tokens),
	)
	return nil
}
