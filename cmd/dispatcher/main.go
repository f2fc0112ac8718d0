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
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"notif/internal/config"
	"notif/internal/httpapi"
	"notif/internal/logging"
	"notif/internal/observability"
	"notif/internal/pipeline"
	"notif/internal/queue"
	sqsqueue "notif/internal/queue/sqs"
	"notif/internal/sender"
	"notif/internal/store/pg"
)

func main() {
	cfg := config.LoadDispatcher()
	logging.Init("dispatcher", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("dispatcher db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	installationStore := pg.New(db)

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("dispatcher sqs client init failed", "err", err)
		os.Exit(1)
	}

	batchQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "batch", string(cfg.Platform))
	metricsQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "metrics", "")
	deadLetterQueueURL := sqsqueue.Topology(cfg.QueueURLPrefix, "deadletter", "")

	batchQueue := sqsqueue.BatchQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: batchQueueURL,
		WaitTimeSeconds: cfg.SQSWaitTimeSeconds, MaxMessages: cfg.SQSMaxMessages, VisibilityTimeout: cfg.SQSVisibilityTimeout,
	}}
	metricsQueue := sqsqueue.MetricsQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: metricsQueueURL,
	}}
	deadLetterQueue := sqsqueue.DeadLetterQueueImpl{Queue: &sqsqueue.Queue{
		SQS: sqsClient, QueueURL: deadLetterQueueURL,
	}}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if _, err := sqsClient.GetQueueAttributes(startupCtx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &batchQueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	}); err != nil {
		slog.Error("sqs not reachable", "err", err)
		os.Exit(1)
	}

	reg := prometheus.DefaultRegisterer
	observability.Register(reg)

	limiter := rate.NewLimiter(rate.Limit(cfg.SenderRPSPerPlatform), cfg.SenderBurst)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sender_" + string(cfg.Platform),
		MaxRequests: cfg.BreakerMaxRequests,
		Timeout:     time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= cfg.BreakerFailureThreshold },
	})
	httpSender := sender.NewHTTPSender(cfg.SenderBaseURL)
	httpSender.Remover = installationStore
	guardedSender := &sender.Guarded{
		Inner:   httpSender,
		Limiter: limiter,
		Breaker: breaker,
	}

	dispatcher := &pipeline.Dispatcher{
		Platform:     cfg.Platform,
		Sender:       guardedSender,
		MetricsQueue: metricsQueue,
		Logger:       slog.Default().With("platform", string(cfg.Platform)),
	}

	healthSrv := httpapi.New()
	healthSrv.Mux.HandleFunc("/healthz", httpapi.Healthz())
	healthSrv.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error {
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &batchQueueURL,
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
		slog.Info("dispatcher health listening", "port", cfg.Port, "platform", cfg.Platform)
		healthErrCh <- httpSrv.ListenAndServe()
	}()

	poller := &queue.Poller{
		Receiver:    batchQueue,
		MaxMessages: cfg.SQSMaxMessages,
		DeadLetter:  deadLetterQueue,
		Retriable:   pipeline.Retriable,
	}
	pollErrCh := make(chan error, 1)
	go func() {
		slog.Info("dispatcher starting poll", "queue_url", batchQueueURL)
		pollErrCh <- poller.PollConcurrent(ctx, cfg.WorkerConcurrency, func(ctx context.Context, msg queue.Message) error {
			return dispatcher.Process(ctx, msg.Body)
		})
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-pollErrCh:
		if err != nil && err != context.Canceled {
			slog.Error("dispatcher poll failed", "err", err)
			os.Exit(1)
		}
	case err := <-healthErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("dispatcher health server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("dispatcher shutdown", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	select {
	case <-pollErrCh:
	case <-time.After(10 * time.Second):
		slog.Info("dispatcher shutdown timeout waiting for poll loop")
	}
}
