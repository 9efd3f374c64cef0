// Package worker runs background jobs: contact form delivery and the periodic
// sweep of half-written documents. On postgres the jobs go through River; on
// sqlite they run in-process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/d9705996/clientportal/internal/contact"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

// ContactEmailArgs carries one contact form submission to the mailer.
type ContactEmailArgs struct {
	Message contact.Message `json:"message"`
}

// Kind returns the unique job type identifier for contact emails.
func (ContactEmailArgs) Kind() string { return "contact_email" }

// InsertOpts bounds retries; the mailer already retries transient failures.
func (ContactEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// SweepDocumentsArgs triggers one pending-document sweep.
type SweepDocumentsArgs struct{}

// Kind returns the unique job type identifier for document sweeps.
func (SweepDocumentsArgs) Kind() string { return "sweep_pending_documents" }

// Sender delivers contact messages.
type Sender interface {
	Send(ctx context.Context, msg contact.Message) error
}

// Sweeper removes documents stuck half-written.
type Sweeper interface {
	SweepPending(ctx context.Context, olderThan time.Duration) (int, error)
}

// Deps are the collaborators the jobs call.
type Deps struct {
	Mailer        Sender
	Documents     Sweeper
	Concurrency   int
	SweepInterval time.Duration
	SweepAge      time.Duration
	Log           *slog.Logger
}

type contactEmailWorker struct {
	river.WorkerDefaults[ContactEmailArgs]
	mailer Sender
	log    *slog.Logger
}

func (w *contactEmailWorker) Work(ctx context.Context, job *river.Job[ContactEmailArgs]) error {
	err := w.mailer.Send(ctx, job.Args.Message)
	if errors.Is(err, contact.ErrNotConfigured) {
		return river.JobCancel(err)
	}
	if err != nil {
		w.log.Warn("contact email failed", "attempt", job.Attempt, "err", err)
		return err
	}
	return nil
}

type sweepWorker struct {
	river.WorkerDefaults[SweepDocumentsArgs]
	docs Sweeper
	age  time.Duration
}

func (w *sweepWorker) Work(ctx context.Context, _ *river.Job[SweepDocumentsArgs]) error {
	_, err := w.docs.SweepPending(ctx, w.age)
	return err
}

// Queue is the interface exposed by both the River client and inlineQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	EnqueueContact(ctx context.Context, msg contact.Message) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// EnqueueContact inserts a contact_email job.
func (c *Client) EnqueueContact(ctx context.Context, msg contact.Message) error {
	if _, err := c.client.Insert(ctx, ContactEmailArgs{Message: msg}, nil); err != nil {
		return fmt.Errorf("enqueue contact email: %w", err)
	}
	return nil
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": a River client backed by pool, with the sweep registered as
//     a periodic job.
//   - anything else: an in-process queue that sends mail synchronously and
//     runs the sweep on a ticker.
//
// pool may be nil when driver != "postgres".
func New(_ context.Context, pool *pgxpool.Pool, driver string, deps Deps) (Queue, error) {
	if driver != "postgres" {
		return newInlineQueue(deps), nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &contactEmailWorker{mailer: deps.Mailer, log: deps.Log})
	river.AddWorker(workers, &sweepWorker{docs: deps.Documents, age: deps.SweepAge})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: max(deps.Concurrency, 1)},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(deps.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return SweepDocumentsArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
		Logger: deps.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: deps.Log}, nil
}

// inlineQueue is used when River is unavailable (DB_DRIVER=sqlite).
type inlineQueue struct {
	deps   Deps
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newInlineQueue(deps Deps) *inlineQueue { return &inlineQueue{deps: deps} }

func (q *inlineQueue) Start(ctx context.Context) error {
	q.deps.Log.Info("river disabled (sqlite driver); jobs run in-process")
	if q.deps.Documents == nil || q.deps.SweepInterval <= 0 {
		return nil
	}
	ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		t := time.NewTicker(q.deps.SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := q.deps.Documents.SweepPending(ctx, q.deps.SweepAge); err != nil {
					q.deps.Log.Warn("document sweep failed", "err", err)
				}
			}
		}
	}()
	return nil
}

func (q *inlineQueue) Stop(ctx context.Context) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()
	done := make(chan struct{})
	go func() { q.wg.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *inlineQueue) EnqueueContact(ctx context.Context, msg contact.Message) error {
	return q.deps.Mailer.Send(ctx, msg)
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}
