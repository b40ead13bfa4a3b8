package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "net/http/pprof"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal/aws_s3"
	"github.com/IliaW/archive-spider/internal/broker"
	cacheClient "github.com/IliaW/archive-spider/internal/cache"
	"github.com/IliaW/archive-spider/internal/coordinator"
	"github.com/IliaW/archive-spider/internal/crawler"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/IliaW/archive-spider/internal/persistence"
	"github.com/IliaW/archive-spider/internal/telemetry"
	"github.com/IliaW/archive-spider/internal/wayback"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

var cfg *config.Config

func main() {
	addRule := flag.String("add-rule", "", "store a link_deny regular expression for the site in URL and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg = config.MustLoad()
	setupLogger()
	if *addRule != "" {
		storeRule(ctx, *addRule)
		return
	}

	metrics := telemetry.SetupMetrics(context.Background(), cfg)
	defer metrics.Close()
	httpTransport := getHttpTransport()
	sessionID := uuid.New().String()

	submitter, err := wayback.NewSubmitter(cfg.ArchiveSettings, httpTransport)
	if err != nil {
		slog.Error("failed to create save page now client.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	deps := coordinator.Dependencies{
		SessionID: sessionID,
		Lookup:    wayback.NewLookupClient(wayback.NewCDXSearcher(cfg.ArchiveSettings)),
		Submitter: submitter,
		Metrics:   metrics.ArchiveMetrics,
	}
	if cache := setupCache(); cache != nil {
		defer cache.Close()
		deps.Cache = cache
	}
	publisher := setupPublishers(sessionID, metrics.KafkaProducerMetrics)
	deps.Publisher = publisher

	session, err := coordinator.NewSession(ctx, cfg, deps)
	if err != nil {
		slog.Error("failed to start crawl session.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	siteCrawler, err := crawler.NewSiteCrawler(cfg.CrawlerSettings, session.BaseURL, session.Coordinator,
		httpTransport)
	if err != nil {
		slog.Error("failed to create crawler.", slog.String("err", err.Error()))
		session.Close()
		os.Exit(1)
	}

	go healthCheckHandler()
	slog.Info("starting archive spider.", slog.String("env", cfg.Env), slog.String("url", session.BaseURL.String()),
		slog.String("session", session.ID), slog.Int("renewal_period_days", cfg.ArchiveSettings.RenewalPeriodDays))

	// Graceful shutdown.
	// 1. Signal stops the crawler from scheduling new requests. The in-flight page finishes and is persisted
	// 2. Flush the publishers: kafka batch, rabbitmq channel, s3 report
	// 3. Close database and memcached connections
	if err = siteCrawler.Run(ctx, session.BaseURL.String()); err != nil {
		slog.Error("crawl failed.", slog.String("err", err.Error()))
	}
	if ctx.Err() != nil {
		slog.Info("stopping archive spider...")
	}
	if err = publisher.Close(); err != nil {
		slog.Error("failed to flush results.", slog.String("err", err.Error()))
	}
	session.Close()
	slog.Info("archive spider stopped.", slog.Int64("pages", siteCrawler.Pages()))
}

func setupLogger() *slog.Logger {
	envLogLevel := strings.ToLower(cfg.LogLevel)
	var slogLevel slog.Level
	err := slogLevel.UnmarshalText([]byte(envLogLevel))
	if err != nil {
		log.Printf("encountenred log level: '%s'. The package does not support custom log levels", envLogLevel)
		slogLevel = slog.LevelDebug
	}
	log.Printf("slog level overwritten to '%v'", slogLevel)
	slog.SetLogLoggerLevel(slogLevel)

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       slogLevel,
			ReplaceAttr: replaceAttrs,
			NoColor:     cfg.Env != "local"}))
	}

	slog.SetDefault(logger)
	logger.Debug("debug messages are enabled.")

	return logger
}

func storeRule(ctx context.Context, pattern string) {
	baseURL, err := config.ParseBaseURL(cfg.BaseURL)
	if err != nil {
		slog.Error("invalid base url.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	db, err := persistence.Open(ctx, cfg.StoreSettings)
	if err != nil {
		slog.Error("failed to open the store.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer persistence.Close(db)

	rule := &model.ScrapeRule{
		RuleType:    model.LinkDeny,
		RulePattern: pattern,
		Domain:      strings.ToLower(baseURL.Host),
	}
	if err = persistence.NewArchiveRepository(db).AddRule(ctx, rule); err != nil {
		slog.Error("failed to save rule.", slog.String("err", err.Error()))
		return
	}
	slog.Info("rule saved.", slog.Int64("id", rule.ID), slog.String("domain", rule.Domain),
		slog.String("rule", rule.RulePattern))
}

// setupCache returns nil when the shared cache is disabled.
func setupCache() *cacheClient.MemcachedClient {
	if !cfg.CacheSettings.Enabled {
		return nil
	}
	cache, err := cacheClient.NewMemcachedClient(cfg.CacheSettings)
	if err != nil {
		slog.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	return cache
}

func setupPublishers(sessionID string, kafkaMetrics *telemetry.KafkaProducerMetrics) *broker.FanOut {
	var publishers []broker.Publisher
	if cfg.KafkaSettings.Enabled {
		publishers = append(publishers, broker.NewKafkaProducer(kafkaMetrics, cfg.KafkaSettings.Producer))
	}
	if cfg.RabbitMQSettings.Enabled {
		rabbit, err := broker.NewRabbitMQ(cfg.RabbitMQSettings)
		if err != nil {
			slog.Error("failed to connect to rabbitmq.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		publishers = append(publishers, rabbit)
	}
	if cfg.S3Settings.Enabled {
		bucket, err := aws_s3.NewS3BucketClient(cfg)
		if err != nil {
			slog.Error("failed to connect to s3.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		baseURL, _ := config.ParseBaseURL(cfg.BaseURL)
		publishers = append(publishers, aws_s3.NewReportPublisher(bucket, strings.ToLower(baseURL.Host), sessionID))
	}
	slog.Info("result publishers configured.", slog.Int("count", len(publishers)))

	return broker.NewFanOut(publishers...)
}

func healthCheckHandler() {
	http.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("http server error", slog.String("err", err.Error()))
	}
}

func getHttpTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        cfg.HttpClientSettings.MaxIdleConnections,
		MaxIdleConnsPerHost: cfg.HttpClientSettings.MaxIdleConnectionsPerHost,
		MaxConnsPerHost:     cfg.HttpClientSettings.MaxConnectionsPerHost,
		IdleConnTimeout:     cfg.HttpClientSettings.IdleConnectionTimeout,
		TLSHandshakeTimeout: cfg.HttpClientSettings.TlsHandshakeTimeout,
		DialContext: (&net.Dialer{
			Timeout:   cfg.HttpClientSettings.DialTimeout,
			KeepAlive: cfg.HttpClientSettings.DialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.HttpClientSettings.TlsInsecureSkipVerify,
		},
	}
}
