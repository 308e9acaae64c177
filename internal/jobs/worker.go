package jobs

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/logging"
	"ledgerd/internal/services"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker wraps the asynq server and its scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *logging.Logger
}

type WorkerConfig struct {
	RedisOpts     asynq.RedisClientOpt
	Concurrency   int
	PurgeSchedule string
	Purge         *PurgeJob
	Mail          *MailJob
	Logger        *logging.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Purge == nil || cfg.Mail == nil {
		return nil, errors.New("worker: purge and mail jobs are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	logger := cfg.Logger.Named("worker")
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTokensPurge, cfg.Purge.Handle)
	mux.HandleFunc(TaskMailToken, cfg.Mail.Handle)

	var scheduler *asynq.Scheduler
	if cfg.PurgeSchedule != "" {
		task, err := NewPurgeTask(false)
		if err != nil {
			return nil, err
		}
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		if _, err := scheduler.Register(cfg.PurgeSchedule, task, asynq.MaxRetry(3), asynq.Unique(time.Minute)); err != nil {
			return nil, err
		}
	}
	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	w.logger.Info("worker started")
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs. It is the production services.Notifier.
type Client struct {
	client enqueuer
	logger *logging.Logger
}

func NewClient(redisOpts asynq.RedisClientOpt, logger *logging.Logger) *Client {
	return newClient(asynq.NewClient(redisOpts), logger)
}

func newClient(e enqueuer, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{client: e, logger: logger.Named("jobs")}
}

func (c *Client) SendToken(ctx context.Context, msg services.TokenMessage) error {
	task, err := NewMailTokenTask(msg)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	c.logger.Debug("token mail enqueued", zap.String("task_id", info.ID), zap.String("purpose", string(msg.Purpose)))
	return nil
}

func (c *Client) EnqueuePurge(ctx context.Context) error {
	task, err := NewPurgeTask(false)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}

var _ services.Notifier = (*Client)(nil)
