package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/archive-spider/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	ArchiveMetrics       *ArchiveMetrics
	KafkaProducerMetrics *KafkaProducerMetrics
	Close                func()
}

type KafkaProducerMetrics struct {
	SuccessfullySendMsgCnt func(count int64)
	FailedSendMsgCnt       func(count int64)
}

type ArchiveMetrics struct {
	SubmittedCnt      func(count int64)
	AdoptedCnt        func(count int64)
	SkippedCnt        func(count int64)
	RejectedCnt       func(count int64)
	BlockedRobotsCnt  func(count int64)
	BlockedUnknownCnt func(count int64)
	LookupErrorCnt    func(count int64)
	StoreErrorCnt     func(count int64)
	ExternalLinkCnt   func(count int64)
}

func noop(int64) {}

// NoopArchiveMetrics discards every measurement.
func NoopArchiveMetrics() *ArchiveMetrics {
	return &ArchiveMetrics{
		SubmittedCnt:      noop,
		AdoptedCnt:        noop,
		SkippedCnt:        noop,
		RejectedCnt:       noop,
		BlockedRobotsCnt:  noop,
		BlockedUnknownCnt: noop,
		LookupErrorCnt:    noop,
		StoreErrorCnt:     noop,
		ExternalLinkCnt:   noop,
	}
}

func NoopKafkaProducerMetrics() *KafkaProducerMetrics {
	return &KafkaProducerMetrics{SuccessfullySendMsgCnt: noop, FailedSendMsgCnt: noop}
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	counter := func(name, description, unit string) func(count int64) {
		c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
		if err != nil {
			slog.Error("failed to create telemetry counter.", slog.String("name", name),
				slog.String("err", err.Error()))
			os.Exit(1)
		}
		if !cfg.TelemetrySettings.Enabled {
			return noop
		}
		// initialize metrics in DataDog for setup UI
		c.Add(ctx, 0)
		return func(count int64) {
			c.Add(ctx, count)
		}
	}

	metricsProvider.KafkaProducerMetrics = &KafkaProducerMetrics{
		SuccessfullySendMsgCnt: counter("archive-spider.kafka.send.success",
			"The number of results that the kafka producer successfully sent", "{messages}"),
		FailedSendMsgCnt: counter("archive-spider.kafka.send.fail",
			"The number of results that the kafka producer could not send", "{messages}"),
	}

	metricsProvider.ArchiveMetrics = &ArchiveMetrics{
		SubmittedCnt: counter("archive-spider.urls.submitted",
			"The number of urls submitted to Save Page Now", "{urls}"),
		AdoptedCnt: counter("archive-spider.urls.adopted",
			"The number of urls with a fresh memento already in the archive", "{urls}"),
		SkippedCnt: counter("archive-spider.urls.skipped",
			"The number of urls archived within the renewal period according to the store", "{urls}"),
		RejectedCnt: counter("archive-spider.urls.rejected",
			"The number of urls rejected by link_deny rules", "{urls}"),
		BlockedRobotsCnt: counter("archive-spider.urls.blocked.robots",
			"The number of urls the archive refused because of robots.txt", "{urls}"),
		BlockedUnknownCnt: counter("archive-spider.urls.blocked.unknown",
			"The number of urls that failed submission for any other reason", "{urls}"),
		LookupErrorCnt: counter("archive-spider.lookup.errors",
			"The number of failed CDX lookups", "{errors}"),
		StoreErrorCnt: counter("archive-spider.store.errors",
			"The number of failed store reads and writes", "{errors}"),
		ExternalLinkCnt: counter("archive-spider.external-links.new",
			"The number of newly recorded off-site links", "{links}"),
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
