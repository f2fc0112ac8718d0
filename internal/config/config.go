// Package config loads per-binary configuration from the environment using
// envconfig, the same struct-tag-driven loader the teacher uses for its
// api/worker/webhook binaries.
package config

import (
	"github.com/kelseyhightower/envconfig"

	"notif/internal/domain"
)

// SplitterConfig configures cmd/splitter: the HTTP entrypoint that accepts a
// UnifiedPushMessage and runs the JobSplitter (C6).
type SplitterConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`

	// QueueURLPrefix is prepended to the per-platform/per-topology queue
	// name computed by internal/queue/sqs.Topology (e.g.
	// "<prefix>-variantjob-ios").
	QueueURLPrefix string `envconfig:"QUEUE_URL_PREFIX" required:"true"`
}

// LoaderConfig configures cmd/loader: the §4.5 variant-job worker. One
// process instance serves exactly one platform's VariantJobQueue/BatchQueue
// pair (spec.md §4.2), named by Platform.
type LoaderConfig struct {
	DBDSN       string          `envconfig:"DB_DSN" required:"true"`
	Platform    domain.Platform `envconfig:"PLATFORM" required:"true"`
	Port        string          `envconfig:"PORT" default:"8080"`
	MetricsPort string          `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string          `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	QueueURLPrefix     string `envconfig:"QUEUE_URL_PREFIX" required:"true"`
	RedisAddr          string `envconfig:"REDIS_ADDR" required:"true"`

	SQSWaitTimeSeconds int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMessages     int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVisibilityTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"10"`

	// REDELIVERY_DELAY_MS is the delay before TriggerMetricCollection is
	// made visible again (spec.md §4.5 step 6, §4.8).
	TriggerRedeliveryDelayMS int64 `envconfig:"TRIGGER_REDELIVERY_DELAY_MS" default:"1000"`
}

// DispatcherConfig configures cmd/dispatcher: the Dispatcher (C4) invoking
// platform senders. One process instance serves exactly one platform's
// BatchQueue/MetricsQueue pair (spec.md §4.2), named by Platform.
type DispatcherConfig struct {
	DBDSN       string          `envconfig:"DB_DSN" required:"true"`
	Platform    domain.Platform `envconfig:"PLATFORM" required:"true"`
	Port        string          `envconfig:"PORT" default:"8080"`
	MetricsPort string          `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string          `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	QueueURLPrefix     string `envconfig:"QUEUE_URL_PREFIX" required:"true"`

	SQSWaitTimeSeconds   int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMessages       int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVisibilityTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	WorkerConcurrency    int   `envconfig:"WORKER_CONCURRENCY" default:"20"`

	// SenderBaseURL is the reference HTTPSender's target: spec.md §4.3's
	// platform transport boundary. A real deployment would resolve this
	// per-variant from stored credentials; this repo has no variant-
	// credential registry, so every platform shares one configured
	// endpoint and the platform name travels in the request path instead
	// (see sender.HTTPSender.Send).
	SenderBaseURL        string  `envconfig:"SENDER_BASE_URL" required:"true"`
	SenderRPSPerPlatform float64 `envconfig:"SENDER_RPS_PER_PLATFORM" default:"50"`
	SenderBurst          int     `envconfig:"SENDER_BURST" default:"100"`

	BreakerMaxRequests      uint32 `envconfig:"BREAKER_MAX_REQUESTS" default:"3"`
	BreakerTimeoutSeconds   int    `envconfig:"BREAKER_TIMEOUT_SECONDS" default:"20"`
	BreakerFailureThreshold uint32 `envconfig:"BREAKER_FAILURE_THRESHOLD" default:"10"`
}

// CollectorConfig configures cmd/collector: MetricsCollector (C7),
// TriggerLoop (C9), and the §6/§7 admin metrics read path. The read path
// is hosted here rather than in its own binary because MetricsCache (C8)
// is process-local and only the collector ever writes it; a standalone
// reader process would always see a cold cache.
type CollectorConfig struct {
	DBDSN       string `envconfig:"DB_DSN" required:"true"`
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	AWSRegion          string `envconfig:"AWS_REGION" required:"true"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	QueueURLPrefix     string `envconfig:"QUEUE_URL_PREFIX" required:"true"`
	RedisAddr          string `envconfig:"REDIS_ADDR" required:"true"`

	SQSWaitTimeSeconds   int32 `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMessages       int32 `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVisibilityTimeout int32 `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
	WorkerConcurrency    int   `envconfig:"WORKER_CONCURRENCY" default:"10"`

	// TriggerMaxRedeliveries routes exhausted triggers to DeadLetterQueue
	// (spec.md §4.8, §7 TriggerExhausted).
	TriggerMaxRedeliveries int `envconfig:"TRIGGER_MAX_REDELIVERIES" default:"10"`
}

func LoadSplitter() SplitterConfig {
	var cfg SplitterConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadLoader() LoaderConfig {
	var cfg LoaderConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadDispatcher() DispatcherConfig {
	var cfg DispatcherConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadCollector() CollectorConfig {
	var cfg CollectorConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

// SenderConfiguration is C1: per-push-network tuning for the token loader.
// Pure data, read once at startup, immutable thereafter (spec.md §4.1).
type SenderConfiguration struct {
	BatchesToLoad int
	BatchSize     int
}

// TokensToLoad is the derived property batchesToLoad × batchSize.
func (s SenderConfiguration) TokensToLoad() int {
	return s.BatchesToLoad * s.BatchSize
}

// defaultSenderConfigurations are the conservative, compiled-in defaults
// named in spec.md §4.1 (FCM batchSize=1000, APNs batchSize=10000
// batchesToLoad=1 given HTTP/2 fan-out).
var defaultSenderConfigurations = map[domain.Platform]SenderConfiguration{
	domain.PlatformIOS:        {BatchesToLoad: 1, BatchSize: 10000},
	domain.PlatformAndroid:    {BatchesToLoad: 2, BatchSize: 1000},
	domain.PlatformWebPush:    {BatchesToLoad: 2, BatchSize: 500},
	domain.PlatformADM:        {BatchesToLoad: 2, BatchSize: 250},
	domain.PlatformSimplePush: {BatchesToLoad: 2, BatchSize: 1000},
	domain.PlatformWindows:    {BatchesToLoad: 2, BatchSize: 1000},
}

// SenderConfigurationRegistry is C1's immutable-after-init registry.
type SenderConfigurationRegistry struct {
	byPlatform map[domain.Platform]SenderConfiguration
}

// NewSenderConfigurationRegistry builds the registry from defaults,
// overridden per-platform by overrides (nil entries keep the default).
func NewSenderConfigurationRegistry(overrides map[domain.Platform]SenderConfiguration) *SenderConfigurationRegistry {
	byPlatform := make(map[domain.Platform]SenderConfiguration, len(defaultSenderConfigurations))
	for platform, cfg := range defaultSenderConfigurations {
		byPlatform[platform] = cfg
	}
	for platform, cfg := range overrides {
		byPlatform[platform] = cfg
	}
	return &SenderConfigurationRegistry{byPlatform: byPlatform}
}

// For returns the configuration for platform, falling back to the FCM-shaped
// default for any unregistered platform rather than panicking.
func (r *SenderConfigurationRegistry) For(platform domain.Platform) SenderConfiguration {
	if cfg, ok := r.byPlatform[platform]; ok {
		return cfg
	}
	return defaultSenderConfigurations[domain.PlatformAndroid]
}
