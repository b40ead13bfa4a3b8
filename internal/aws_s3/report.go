package aws_s3

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/archive-spider/internal/model"
)

const uploadTimeout = time.Minute

// ReportPublisher keeps the results of a session in memory and uploads them once, on Close.
type ReportPublisher struct {
	bucket    BucketClient
	host      string
	sessionID string
	mu        sync.Mutex
	results   []*model.Result
}

func NewReportPublisher(bucket BucketClient, host, sessionID string) *ReportPublisher {
	return &ReportPublisher{
		bucket:    bucket,
		host:      host,
		sessionID: sessionID,
	}
}

func (p *ReportPublisher) Publish(_ context.Context, result *model.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)

	return nil
}

func (p *ReportPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.results) == 0 {
		slog.Info("no results to report.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	key, err := p.bucket.WriteReport(ctx, p.host, p.sessionID, p.results)
	if err != nil {
		return err
	}
	slog.Info("crawl report uploaded.", slog.String("key", key), slog.Int("results", len(p.results)))
	p.results = nil

	return nil
}
