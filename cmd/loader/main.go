package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

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

func main() {
	cfg := config.LoadLoader()
	logging.Init("loader", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("loader db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("loader sqs client init failed", "err", err)
		os.Exit(1)
	}

	batchLoadedQueue, err := redisqueue.New(ctx, cfg.RedisAddr, "", 0, "push:batchloaded")
	if err != nil {
		slog.Error("loader redis connect failed", "err", err)
		os.Exit(1)
	}
	defer batchLoadedQueue.Close()

	allBatchesLoadedQueue, err := redisqueue.New(ctx, cfg.RedisAddr, "", 0, "push:allbatchesloaded")
	if err != nil {
		slog.Error("loader redis connect failed", "err", err)
		os.Exit(1)
	}
	defer allBatchesLoadedQueue.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	variantJobQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "variantjob", string(cfg.Platform))
	batchQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "batch", string(cfg.Platform))
	triggerQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "trigger", "")
	deadLetterQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "deadletter", "")

	variantJobQueue := sqsqueue.VariantJobQueue{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: variantJobQueueURL,
		WaitTimeSeconds: cfg.SQSWaitTimeSeconds, MaxMessages: cfg.SQSMaxMessages, VisibilityTimeout: cfg.SQSVisibilityTimeout,
	}}
	batchQueue := sqsqueue.BatchQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: batchQueueURL,
		WaitTimeSeconds: cfg.SQSWaitTimeSeconds, MaxMessages: cfg.SQSMaxMessages, VisibilityTimeout: cfg.SQSVisibilityTimeout,
	}}
	triggerQueue := sqsqueue.TriggerQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: triggerQueueURL,
	}}
	deadLetterQueue := sqsqueue.DeadLetterQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: deadLetterQueueURL,
	}}

	reg := prometheus.DefaultRegisterer
	observability.Register(reg)

	loader := &pipeline.Loader{
		Platform:               cfg.Platform,
		Store:                  store,
		SenderConfig:           config.NewSenderConfigurationRegistry(nil),
		BatchQueue:             batchQueue,
		BatchLoadedQueue:       batchLoadedQueue,
		AllBatchesLoadedQueue:  allBatchesLoadedQueue,
		VariantJobQueue:        variantJobQueue,
		TriggerQueue:           triggerQueue,
		TriggerRedeliveryDelay: time.Duration(cfg.TriggerRedeliveryDelayMS) * time.Millisecond,
		Logger:                 slog.Default().With("platform", string(cfg.Platform)),
	}

	healthSrv := httpapi.New()
	healthSrv.Mux.HandleFunc("/healthz", httpapi.Healthz())
	healthSrv.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &variantJobQueueURL,
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
		slog.Info("loader health listening", "port", cfg.Port, "platform", cfg.Platform)
		healthErrCh <- httpSrv.ListenAndServe()
	}()

	poller := &queue.Poller{
		Receiver:    variantJobQueue,
		MaxMessages: cfg.SQSMaxMessages,
		DeadLetter:  deadLetterQueue,
		Retriable:   pipeline.Retriable,
	}
	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("loader starting poll", "queue_url", variantJobQueueURL)
		pollErrCh <- poller.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, msg queue.Message) error {
			start := time.Now()
			err := loader.Process(ctx, msg.Body)
			if err != nil {
				slog.Error("loader job failed", "duration", time.Since(start), "err", err)
			}
			return err
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("loader poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("loader health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("loader shutdown", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("loader shutdown timeout waiting for poll loop")
	}
}
