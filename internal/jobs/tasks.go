// Package jobs runs token housekeeping and token delivery on asynq.
package jobs

import (
	"encoding/json"
	"fmt"

	"ledgerd/internal/services"

	"github.com/hibiken/asynq"
)

const (
	QueueDefault = "default"

	// TaskTokensPurge deletes expired revocation and ephemeral token rows.
	TaskTokensPurge = "tokens:purge"
	// TaskMailToken delivers a confirmation or reset token by email.
	TaskMailToken = "mail:token"
)

type PurgePayload struct {
	// DryRun skips deletion.
	DryRun bool `json:"dry_run"`
}

func NewPurgeTask(dryRun bool) (*asynq.Task, error) {
	body, err := json.Marshal(PurgePayload{DryRun: dryRun})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokensPurge, body, asynq.Queue(QueueDefault)), nil
}

func NewMailTokenTask(msg services.TokenMessage) (*asynq.Task, error) {
	if msg.Email == "" || msg.Token == "" {
		return nil, fmt.Errorf("mail token task: email and token are required")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMailToken, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
