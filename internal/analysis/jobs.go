package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/logger"
)

// ErrRetryable marks a job that was never claimed because storage failed; it is still queued
// and may be delivered again.
var ErrRetryable = errors.New("analysis job not started")

// statusWriteTimeout bounds the terminal status write, which outlives a cancelled run.
const statusWriteTimeout = 10 * time.Second

// Publisher hands a job id to the worker queue.
type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Jobs struct {
	repo *Repo
	gen  *Generator
	pub  Publisher
	log  *logger.Logger
}

func NewJobs(repo *Repo, gen *Generator, pub Publisher, log *logger.Logger) *Jobs {
	return &Jobs{repo: repo, gen: gen, pub: pub, log: log}
}

// EnqueueFullAnalysis stores a queued job and publishes it. With a non-empty idempotencyKey a
// repeated request returns the first job (created=false) without publishing again. A job that
// cannot be published is marked failed so it does not stay queued forever.
func (j *Jobs) EnqueueFullAnalysis(ctx context.Context, clientID, userID uint64, idempotencyKey string) (job *Job, created bool, err error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job = &Job{ID: id, ClientID: clientID, UserID: userID, Status: JobQueued}
	if idempotencyKey != "" {
		job.IdempotencyKey = &idempotencyKey
	}
	job, created, err = j.repo.CreateJobOrGetExisting(ctx, job)
	if err != nil || !created {
		return job, false, err
	}
	if err := j.pub.PublishJob(ctx, job.ID); err != nil {
		msg := fmt.Sprintf("publish: %v", err)
		if merr := j.repo.MarkJobFailed(ctx, job.ID, msg); merr != nil {
			j.log.Error("mark unpublished job failed", "job_id", job.ID, "err", merr)
		}
		return nil, false, err
	}
	return job, true, nil
}

func (j *Jobs) Get(ctx context.Context, jobID string) (*Job, error) {
	return j.repo.GetJobByID(ctx, jobID)
}

// RunJob executes a queued job. Redeliveries of a job that is no longer queued are ignored.
func (j *Jobs) RunJob(ctx context.Context, jobID string) error {
	start := time.Now()
	claimed, err := j.repo.ClaimJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: claim %s: %w", ErrRetryable, jobID, err)
	}
	if !claimed {
		j.log.Info("analysis job already handled", "job_id", jobID)
		return nil
	}
	job, err := j.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	report, err := j.gen.GenerateFullAnalysis(ctx, job.ClientID)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err != nil {
		if merr := j.repo.MarkJobFailed(wctx, jobID, err.Error()); merr != nil {
			j.log.Error("mark job failed", "job_id", jobID, "err", merr)
		}
		j.log.Warn("analysis job failed", "job_id", jobID, "client_id", job.ClientID, "cost", time.Since(start), "err", err)
		return err
	}
	if err := j.repo.MarkJobSucceeded(wctx, jobID, report.RunID); err != nil {
		return err
	}
	j.log.Info("analysis job done", "job_id", jobID, "client_id", job.ClientID, "status", report.Status, "cost", time.Since(start))
	return nil
}
