package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"notif/internal/cache"
	"notif/internal/config"
	"notif/internal/httpapi"
	"notif/internal/logging"
	"notif/internal/observability"
	"notif/internal/pipeline"
	"notif/internal/queue"
	"notif/internal/queue/redisqueue"
	sqsqueue "notif/internal/queue/sqs"
	"notif/internal/store/pg"
)

// errNotYetComplete signals the poll handler to leave a trigger message
// unacked (no store/sender failure occurred); it never escapes main.
var errNotYetComplete = errors.New("trigger: collection not yet complete")

func main() {
	cfg := config.LoadCollector()
	logging.Init("collector", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("collector db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("collector sqs client init failed", "err", err)
		os.Exit(1)
	}

	batchLoadedQueue, err := redisqueue.New(ctx, cfg.RedisAddr, "", 0, "push:batchloaded")
	if err != nil {
		slog.Error("collector redis connect failed", "err", err)
		os.Exit(1)
	}
	defer batchLoadedQueue.Close()

	allBatchesLoadedQueue, err := redisqueue.New(ctx, cfg.RedisAddr, "", 0, "push:allbatchesloaded")
	if err != nil {
		slog.Error("collector redis connect failed", "err", err)
		os.Exit(1)
	}
	defer allBatchesLoadedQueue.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	metricsQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "metrics", "")
	triggerQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "trigger", "")
	deadLetterQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "deadletter", "")

	metricsQueue := sqsqueue.MetricsQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: metricsQueueURL,
		WaitTimeSeconds: cfg.SQSWaitTimeSeconds, MaxMessages: cfg.SQSMaxMessages, VisibilityTimeout: cfg.SQSVisibilityTimeout,
	}}
	triggerQueue := sqsqueue.TriggerQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: triggerQueueURL,
		WaitTimeSeconds: cfg.SQSWaitTimeSeconds, MaxMessages: cfg.SQSMaxMessages, VisibilityTimeout: cfg.SQSVisibilityTimeout,
	}}
	deadLetterQueue := sqsqueue.DeadLetterQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: deadLetterQueueURL,
	}}

	reg := prometheus.DefaultRegisterer
	observability.Register(reg)

	metricsCache := cache.New()

	collector := &pipeline.Collector{
		Store:                 store,
		BatchLoadedQueue:      batchLoadedQueue,
		AllBatchesLoadedQueue: allBatchesLoadedQueue,
		Cache:                 metricsCache,
		Logger:                slog.Default(),
	}

	triggerLoop := &pipeline.TriggerLoop{
		Collector:       collector,
		TriggerQueue:    triggerQueue,
		DeadLetterQueue: deadLetterQueue,
		MaxRedeliveries: cfg.TriggerMaxRedeliveries,
		RedeliveryDelay: 30 * time.Second,
		Logger:          slog.Default(),
	}

	healthSrv := httpapi.New()
	httpapi.RegisterMetrics(healthSrv, &httpapi.MetricsHandler{Store: store, Cache: metricsCache})
	healthSrv.Mux.HandleFunc("/healthz", httpapi.Healthz())
	healthSrv.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &metricsQueueURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))
	healthSrv.Mux.Use(httpapi.Metrics(observability.HTTPRequests))

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(healthSrv.Mux),
	}

	healthErrCh := make(chan error, 1)
	go func() {
		slog.Info("collector health listening", "port", cfg.Port)
		healthErrCh <- httpSrv.ListenAndServe()
	}()

	// Two independent poll loops share one Collector: MetricsQueue feeds
	// CollectMetric as VariantMetricInformation arrive, TriggerQueue feeds
	// Recheck on C9's redelivery schedule (§4.8). Neither waits on the
	// other — a trigger redelivery and a fresh metric for the same job can
	// race, and CollectMetric/Recheck are each individually safe to call
	// concurrently for different variants of the same job.
	metricsPoller := &queue.Poller{
		Receiver:    metricsQueue,
		MaxMessages: cfg.SQSMaxMessages,
		DeadLetter:  deadLetterQueue,
		Retriable:   pipeline.Retriable,
	}
	// triggerPoller has no DeadLetter/Retriable of its own: TriggerLoop.
	// ProcessOne already routes an exhausted trigger to DeadLetterQueue
	// and acks it itself (§4.8), so the poller only needs to leave a
	// not-yet-complete trigger unacked for redelivery.
	triggerPoller := &queue.Poller{Receiver: triggerQueue, MaxMessages: cfg.SQSMaxMessages}

	var wg sync.WaitGroup
	pollErrCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("collector starting metrics poll", "queue_url", metricsQueueURL)
		pollErrCh <- metricsPoller.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, msg queue.Message) error {
			var wire pipeline.VariantMetricMessage
			if err := json.Unmarshal(msg.Body, &wire); err != nil {
				return fmt.Errorf("%w: decode variant metric: %v", pipeline.ErrStorePermanent, err)
			}
			_, err := collector.CollectMetric(ctx, wire.PushMessageInformationID, wire.Metric)
			return err
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("collector starting trigger poll", "queue_url", triggerQueueURL)
		pollErrCh <- triggerPoller.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, msg queue.Message) error {
			ack, err := triggerLoop.ProcessOne(ctx, msg.Body, msg.ApproximateReceiveCount)
			if err != nil && !ack {
				return err
			}
			if err != nil {
				// ProcessOne asked for the message to be deleted despite the
				// error (an undecodable trigger): log it and let it be acked.
				slog.Error("collector dropping trigger", "err", err)
			}
			if !ack {
				// Leaving the message unacked relies on SQS's own
				// visibility timeout to redeliver it, same as every other
				// queue in this pipeline; TriggerLoop.Redeliver exists for
				// brokers without that (the in-memory fake used in tests).
				return errNotYetComplete
			}
			return nil
		})
	}()

	go func() { wg.Wait(); close(pollErrCh) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("collector poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("collector health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("collector shutdown", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("collector shutdown timeout waiting for poll loops")
	}
}
