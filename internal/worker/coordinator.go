package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	contract "renderhub/internal/contracts/renderer/v0"
	"renderhub/internal/pkg/errors"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/ports"
	"renderhub/internal/render"
	"renderhub/internal/thumbnail"
)

// Transport moves encoded jobs. Push makes a job available now, Schedule at a
// later time.
type Transport interface {
	Push(ctx context.Context, payload []byte) error
	Schedule(ctx context.Context, payload []byte, at time.Time) error
}

type State string

const (
	StatePending       State = "pending"
	StateAttempting    State = "attempting"
	StateAwaitingRetry State = "awaiting_retry"
	StateCommitted     State = "committed"
	StateAbandoned     State = "abandoned"
)

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAbandoned
}

type EnqueueStatus string

const (
	EnqueueAccepted  EnqueueStatus = "accepted"
	EnqueueDuplicate EnqueueStatus = "duplicate"
	EnqueueRejected  EnqueueStatus = "rejected"
)

// Result describes where one Handle call left the job.
type Result struct {
	State       State
	Reason      string
	NextAttempt time.Time
	Record      *thumbnail.Record
}

type CoordinatorDeps struct {
	Transport Transport
	Locker    Locker
	Throttle  Throttle
	Client    render.Client
	Ledger    thumbnail.Ledger
	// Store is only consulted when Policy.VerifyOutput is set.
	Store  ports.StorageProvider
	Policy Policy
	Log    *logger.Logger

	Now     func() time.Time
	NewUUID func() string
}

// Coordinator runs render jobs: one uniqueness lock per (target, type), a
// fixed retry delay, the exception throttle and an absolute deadline.
type Coordinator struct {
	transport Transport
	locker    Locker
	throttle  Throttle
	client    render.Client
	ledger    thumbnail.Ledger
	store     ports.StorageProvider
	policy    Policy
	log       *logger.Logger
	now       func() time.Time
	newUUID   func() string
}

func NewCoordinator(d CoordinatorDeps) *Coordinator {
	c := &Coordinator{
		transport: d.Transport,
		locker:    d.Locker,
		throttle:  d.Throttle,
		client:    d.Client,
		ledger:    d.Ledger,
		store:     d.Store,
		policy:    d.Policy,
		log:       d.Log,
		now:       d.Now,
		newUUID:   d.NewUUID,
	}
	if c.log == nil {
		c.log = logger.Discard()
	}
	c.log = c.log.WithComponent("coordinator")
	if c.now == nil {
		c.now = time.Now
	}
	if c.newUUID == nil {
		c.newUUID = uuid.NewString
	}
	return c
}

// Enqueue submits a render for (target, typ). A second request while the
// first still holds the uniqueness lock is reported as a duplicate and
// dropped.
func (c *Coordinator) Enqueue(ctx context.Context, target render.Target, typ thumbnail.Type) (EnqueueStatus, *Job, error) {
	if _, err := render.EncodeTarget(target); err != nil {
		c.log.WithError(err).Error("render abandoned", "reason", "unsupported_target", "thumbnail_type", string(typ))
		return EnqueueRejected, nil, err
	}
	if _, err := thumbnail.ParseType(string(typ)); err != nil {
		return EnqueueRejected, nil, err
	}

	key := render.DedupKey(target, string(typ))
	log := c.log.WithDedupKey(key)

	token := c.newUUID()
	ok, err := c.locker.Acquire(ctx, key, token, c.policy.UniqueFor)
	switch {
	case err != nil:
		// Proceed unlocked; a lost lock only costs a duplicate render.
		log.WithError(err).Warn("uniqueness lock unavailable, enqueueing without it")
		token = ""
	case !ok:
		log.Debug("render already pending")
		return EnqueueDuplicate, nil, nil
	}

	job := &Job{
		ID:         c.newUUID(),
		Target:     target,
		Type:       typ,
		EnqueuedAt: c.now().UTC(),
		LockToken:  token,
	}
	payload, err := json.Marshal(job)
	if err == nil {
		err = c.transport.Push(ctx, payload)
	}
	if err != nil {
		c.release(context.WithoutCancel(ctx), *job, log)
		return EnqueueRejected, nil, errors.Wrap(err, "coordinator.enqueue", "push job")
	}

	log.WithJobID(job.ID).Info("render enqueued")
	return EnqueueAccepted, job, nil
}

// Handle runs one attempt of job and decides what happens next.
func (c *Coordinator) Handle(ctx context.Context, job Job) Result {
	log := c.log.
		WithJobID(job.ID).
		WithTarget(string(job.Target.Kind()), job.Target.ID(), string(job.Type))
	key := job.DedupKey()

	now := c.now()
	deadline := c.policy.Deadline(job)
	if !now.Before(deadline) {
		return c.abandon(ctx, job, log, "deadline_exceeded", nil)
	}

	until, err := c.throttle.SuspendedUntil(ctx, key, now)
	if err != nil {
		log.WithError(err).Warn("throttle lookup failed, attempting anyway")
		until = time.Time{}
	}
	if !until.IsZero() {
		if !until.Before(deadline) {
			return c.abandon(ctx, job, log, "deadline_exceeded", nil)
		}
		// Suspended jobs are released back without spending an attempt.
		return c.schedule(ctx, job, until, log, "suspended")
	}

	job.Attempt++
	log = log.WithFields(map[string]any{"attempt": job.Attempt})

	id := c.newUUID()
	params, err := render.BuildParams(job.Target, id)
	if err != nil {
		return c.abandon(ctx, job, log, string(errors.GetCode(err)), err)
	}
	if !c.client.Configured() {
		return c.abandon(ctx, job, log, string(errors.CodeMissingConfig), errors.MissingConfig("RENDER_SERVER_URL"))
	}

	out := c.client.Invoke(ctx, params)

	// The render happened or failed; bookkeeping must finish even if the
	// worker is shutting down.
	bctx := context.WithoutCancel(ctx)
	failure := out.AsError()
	if failure == nil {
		failure = c.verifyOutput(bctx, id)
	}
	if failure == nil {
		rec := thumbnail.NewRecord(id, c.now(), c.policy.ThumbnailTTL)
		if err := c.ledger.Commit(bctx, job.Ref(), job.Type, rec); err != nil {
			failure = errors.Wrap(err, "coordinator.commit", "ledger commit failed")
		} else {
			c.release(bctx, job, log)
			log.Info("thumbnail committed", "uuid", rec.UUID, "expires_at", rec.ExpiresAt)
			return Result{State: StateCommitted, Record: &rec}
		}
	}

	if errors.IsPermanent(failure) {
		return c.abandon(bctx, job, log, string(errors.GetCode(failure)), failure)
	}
	return c.retry(bctx, job, log, out, failure)
}

func (c *Coordinator) verifyOutput(ctx context.Context, id string) error {
	if !c.policy.VerifyOutput || c.store == nil {
		return nil
	}
	key := contract.ThumbnailKey(id)
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		return errors.Wrap(err, "coordinator.verify", "check rendered output")
	}
	if !ok {
		return errors.New(errors.CodeOutputMissing, "renderer reported success but wrote no image").WithField("key", key)
	}
	return nil
}

func (c *Coordinator) retry(ctx context.Context, job Job, log *logger.Logger, out render.Outcome, failure error) Result {
	flog := log.WithError(failure)
	if out.Kind != render.OutcomeSuccess {
		flog = flog.WithFields(map[string]any{"outcome": out.Kind.String(), "status": out.StatusCode})
	}
	flog.Warn("render attempt failed")

	now := c.now()
	until, err := c.throttle.RecordFailure(ctx, job.DedupKey(), now)
	if err != nil {
		log.WithError(err).Warn("throttle record failed")
		until = time.Time{}
	}

	next := c.policy.NextAttempt(now, until)
	if !next.Before(c.policy.Deadline(job)) {
		return c.abandon(ctx, job, log, "deadline_exceeded", failure)
	}
	return c.schedule(ctx, job, next, log, "retry")
}

func (c *Coordinator) schedule(ctx context.Context, job Job, at time.Time, log *logger.Logger, reason string) Result {
	payload, err := json.Marshal(job)
	if err == nil {
		err = c.transport.Schedule(ctx, payload, at)
	}
	if err != nil {
		return c.abandon(ctx, job, log, "schedule_failed", err)
	}
	log.Info("render rescheduled", "reason", reason, "next_attempt", at)
	return Result{State: StateAwaitingRetry, Reason: reason, NextAttempt: at}
}

func (c *Coordinator) abandon(ctx context.Context, job Job, log *logger.Logger, reason string, cause error) Result {
	ctx = context.WithoutCancel(ctx)
	c.release(ctx, job, log)
	log.WithError(cause).Error("render abandoned", "reason", reason)
	return Result{State: StateAbandoned, Reason: reason}
}

func (c *Coordinator) release(ctx context.Context, job Job, log *logger.Logger) {
	if job.LockToken == "" {
		return
	}
	if _, err := c.locker.Release(ctx, job.DedupKey(), job.LockToken); err != nil {
		log.WithError(err).Warn("uniqueness lock release failed")
	}
}
