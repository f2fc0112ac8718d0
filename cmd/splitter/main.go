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
	"notif/internal/domain"
	"notif/internal/httpapi"
	"notif/internal/logging"
	"notif/internal/observability"
	"notif/internal/pipeline"
	"notif/internal/queue"
	sqsqueue "notif/internal/queue/sqs"
	"notif/internal/store/pg"
)

// allPlatforms enumerates every VariantJobQueue the splitter fans out to
// (spec.md §4.2: dispatch is partitioned by platform).
var allPlatforms = []domain.Platform{
	domain.PlatformIOS, domain.PlatformAndroid, domain.PlatformWebPush,
	domain.PlatformADM, domain.PlatformSimplePush, domain.PlatformWindows,
}

func main() {
	cfg := config.LoadSplitter()
	logging.Init("splitter", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())

	db, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		slog.Error("splitter db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	store := pg.New(db)

	sqsClient, err := sqsqueue.NewClient(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("splitter sqs client init failed", "err", err)
		os.Exit(1)
	}

	startupCtx, startupCancel := context.WithTimeout(ctx, 3*time.Second)
	defer startupCancel()
	if err := db.Ping(startupCtx); err != nil {
		slog.Error("db not reachable", "err", err)
		os.Exit(1)
	}

	variantQueues := make(map[domain.Platform]sqsqueue.VariantJobQueue, len(allPlatforms))
	for _, platform := range allPlatforms {
		variantQueues[platform] = sqsqueue.VariantJobQueue{Queue: &sqsqueue.Queue{
			SQS:      sqsClient,
			QueueURL: sqsqueue.Topology(cfg.QueueURLPrefix, "variantjob", string(platform)),
		}}
	}

	reg := prometheus.DefaultRegisterer
	observability.Register(reg)

	splitter := &pipeline.Splitter{
		Store: store,
		VariantJobQueue: func(platform domain.Platform) queue.VariantJobQueue {
			return variantQueues[platform]
		},
		Logger: slog.Default(),
	}

	srv := httpapi.New()
	httpapi.RegisterSplit(srv, &httpapi.SplitHandler{Splitter: splitter})
	srv.Mux.HandleFunc("/healthz", httpapi.Healthz())
	srv.Mux.HandleFunc("/readyz", httpapi.Readyz(2*time.Second,
		func(c context.Context) error { return db.Ping(c) },
		func(c context.Context) error {
			probeURL := variantQueues[domain.PlatformAndroid].QueueURL
			_, err := sqsClient.GetQueueAttributes(c, &sqs.GetQueueAttributesInput{
				QueueUrl:       &probeURL,
				AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
			})
			return err
		},
	))
	srv.Mux.Use(httpapi.Metrics(observability.HTTPRequests))

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(srv.Mux),
	}

	srvErrCh := make(chan error, 1)
	go func() {
		slog.Info("splitter listening", "port", cfg.Port)
		srvErrCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-srvErrCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("splitter server failed", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		slog.Info("splitter shutdown", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
