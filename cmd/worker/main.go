package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/app"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/store/rabbitmq"
)

const (
	// full analysis runs every module sequentially; give it room
	jobTimeout = 10 * time.Minute
	maxRetries = 3
	retryDelay = 30 * time.Second
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", "err", err)
	}
	defer a.Close()

	// the worker only runs jobs, it never publishes
	jobs := analysis.NewJobs(a.Repo, a.Analysis, nil, log.With("component", "jobs"))

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel", "err", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare", "err", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos", "err", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume", "err", err)
	}

	retry := rabbitmq.NewChannelPublisher(ch, cfg.RabbitQueue)

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				handleDelivery(ctx, log, jobs, retry, workerID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(deliveries)
				wg.Wait()
				return
			}
			deliveries <- d
		}
	}
}

// handleDelivery acks handled jobs and dead-letters the rest. A job that failed after it was
// claimed is already marked failed in the database and is never retried; one that could not be
// claimed goes through the retry queue up to maxRetries times.
func handleDelivery(ctx context.Context, log *logger.Logger, jobs *analysis.Jobs, retry *rabbitmq.Publisher, workerID int, d amqp.Delivery) {
	m, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		log.Warn("bad message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}

	jctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	err = jobs.RunJob(jctx, m.JobID)
	if err != nil && errors.Is(err, analysis.ErrRetryable) {
		if attempt := rabbitmq.Attempt(d); attempt < maxRetries {
			delay := retryDelay * time.Duration(attempt+1)
			perr := retry.PublishRetry(ctx, m.JobID, attempt+1, delay)
			if perr == nil {
				log.Warn("job retry scheduled", "worker", workerID, "job_id", m.JobID, "attempt", attempt+1, "delay", delay, "err", err)
				_ = d.Ack(false)
				return
			}
			log.Error("publish retry failed", "worker", workerID, "job_id", m.JobID, "err", perr)
		}
	}
	if err != nil {
		log.Warn("job failed", "worker", workerID, "job_id", m.JobID, "cost", time.Since(start), "err", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "worker", workerID, "job_id", m.JobID, "err", err)
	}
}
