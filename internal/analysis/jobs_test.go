package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/logger"
)

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) PublishJob(_ context.Context, jobID string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, jobID)
	return nil
}

func TestJobs_EnqueueAndRun(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, 1)
	pub := &recordingPublisher{}
	jobs := NewJobs(f.repo, f.gen, pub, logger.NewNop())

	job, created, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 42, "")
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, job.ID, 26)
	require.Equal(t, []string{job.ID}, pub.ids)
	require.Equal(t, JobQueued, job.Status)

	require.NoError(t, jobs.RunJob(context.Background(), job.ID))
	done, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, JobSucceeded, done.Status)
	require.NotNil(t, done.RunID)

	// a redelivery is a no-op
	calls := len(f.prov.GenerateCalls)
	require.NoError(t, jobs.RunJob(context.Background(), job.ID))
	require.Len(t, f.prov.GenerateCalls, calls)
}

func TestJobs_FailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	jobs := NewJobs(f.repo, f.gen, &recordingPublisher{}, logger.NewNop())

	job, _, err := jobs.EnqueueFullAnalysis(context.Background(), 3, 1, "")
	require.NoError(t, err)
	err = jobs.RunJob(context.Background(), job.ID)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrRetryable))

	failed, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, JobFailed, failed.Status)
	require.NotNil(t, failed.Error)
}

func TestJobs_PublishFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("broker down")
	jobs := NewJobs(f.repo, f.gen, &recordingPublisher{err: boom}, logger.NewNop())

	_, _, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 1, "")
	require.ErrorIs(t, err, boom)

	var stored []Job
	require.NoError(t, f.repo.db.Find(&stored).Error)
	require.Len(t, stored, 1)
	require.Equal(t, JobFailed, stored[0].Status)
}

func TestJobs_IdempotencyKeyReusesJob(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{}
	jobs := NewJobs(f.repo, f.gen, pub, logger.NewNop())

	first, created, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 7, "weekly-report")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 7, "weekly-report")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)
	require.Len(t, pub.ids, 1)

	other, created, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 8, "weekly-report")
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)
}

func TestJobs_StorageFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	jobs := NewJobs(f.repo, f.gen, &recordingPublisher{}, logger.NewNop())
	require.NoError(t, f.repo.db.Migrator().DropTable(&Job{}))

	err := jobs.RunJob(context.Background(), "01HZX3T0Q9M7J4K2V8N5B6C1D0")
	require.ErrorIs(t, err, ErrRetryable)
	require.Empty(t, f.prov.GenerateCalls)
}

func TestJobs_CancelledRunIsMarkedFailed(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, 1)
	jobs := NewJobs(f.repo, f.gen, &recordingPublisher{}, logger.NewNop())

	job, _, err := jobs.EnqueueFullAnalysis(context.Background(), 1, 1, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.prov.GenerateFunc = func(ai.GenerateRequest) (string, error) {
		cancel()
		return "", context.Canceled
	}

	require.Error(t, jobs.RunJob(ctx, job.ID))
	stored, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, JobFailed, stored.Status)
	require.NotNil(t, stored.Error)
}
