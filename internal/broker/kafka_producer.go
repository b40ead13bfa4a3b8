package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/archive-spider/config"
	"github.com/IliaW/archive-spider/internal"
	"github.com/IliaW/archive-spider/internal/model"
	"github.com/IliaW/archive-spider/internal/telemetry"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducerClient batches results and writes them to a topic from a single goroutine.
type KafkaProducerClient struct {
	resultChan  chan *model.Result
	kafkaWriter messageWriter
	metrics     *telemetry.KafkaProducerMetrics
	cfg         *config.ProducerConfig
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewKafkaProducer(metrics *telemetry.KafkaProducerMetrics, cfg *config.ProducerConfig) *KafkaProducerClient {
	kafkaWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Addr...),
		Topic:        cfg.WriteTopicName,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: 100 * time.Millisecond,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAsks),
		Async:        cfg.Async,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}

	return newKafkaProducer(kafkaWriter, metrics, cfg)
}

func newKafkaProducer(w messageWriter, metrics *telemetry.KafkaProducerMetrics,
	cfg *config.ProducerConfig) *KafkaProducerClient {
	if metrics == nil {
		metrics = telemetry.NoopKafkaProducerMetrics()
	}
	p := &KafkaProducerClient{
		resultChan:  make(chan *model.Result, max(cfg.BatchSize, 1)*2),
		kafkaWriter: w,
		metrics:     metrics,
		cfg:         cfg,
	}
	p.wg.Add(1)
	go p.run()

	return p
}

func (p *KafkaProducerClient) Publish(ctx context.Context, result *model.Result) error {
	select {
	case p.resultChan <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes the pending batch and closes the writer. Publish must not be called afterwards.
func (p *KafkaProducerClient) Close() error {
	p.closeOnce.Do(func() {
		close(p.resultChan)
		slog.Info("close resultChan.")
	})
	p.wg.Wait()

	return nil
}

func (p *KafkaProducerClient) run() {
	slog.Info("starting kafka producer...", slog.String("topic", p.cfg.WriteTopicName))
	defer p.wg.Done()
	defer func() {
		err := p.kafkaWriter.Close()
		if err != nil {
			slog.Error("failed to close kafka writer.", slog.String("err", err.Error()))
		}
	}()

	batchSize := max(p.cfg.BatchSize, 1)
	batchTimeout := p.cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	batch := make([]kafka.Message, 0, batchSize)
	batchTicker := time.NewTicker(batchTimeout)
	defer batchTicker.Stop()
	for {
		select {
		case <-batchTicker.C:
			if len(batch) == 0 {
				continue
			}
			p.writeMessage(batch)
			batch = batch[:0]
		case result, ok := <-p.resultChan:
			if !ok {
				if len(batch) > 0 {
					p.writeMessage(batch)
				}
				slog.Info("stopping kafka writer.")
				return
			}
			body, err := jsoniter.Marshal(result)
			if err != nil {
				slog.Error("marshaling error.", slog.String("err", err.Error()), slog.String("url", result.URL))
				p.metrics.FailedSendMsgCnt(1)
				continue
			}
			batch = append(batch, kafka.Message{
				Key:   []byte(internal.HashURL(result.URL)),
				Value: body,
			})
			if len(batch) >= batchSize {
				p.writeMessage(batch)
				batch = batch[:0]
				batchTicker.Reset(batchTimeout)
			}
		}
	}
}

func (p *KafkaProducerClient) writeMessage(batch []kafka.Message) {
	err := p.kafkaWriter.WriteMessages(context.Background(), batch...)
	if err != nil {
		slog.Error("failed to send messages to kafka.", slog.String("err", err.Error()))
		p.metrics.FailedSendMsgCnt(int64(len(batch)))
		return
	}
	p.metrics.SuccessfullySendMsgCnt(int64(len(batch)))
	slog.Debug("successfully sent messages to kafka.", slog.Int("batch length", len(batch)))
}
