package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/format"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/logtypes"
)

// Destinations.
const (
	DestinationLoki  = "loki"
	DestinationKafka = "kafka"
)

// Config contains configuration for the export forwarder
type Config struct {
	Loki  LokiConfig  `json:"loki" yaml:"loki"`
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`

	BatchSize     int           `json:"batch_size" yaml:"batch_size" default:"100"`           // Batch size for forwarding
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval" default:"5s"`    // Flush interval
	MaxQueueSize  int           `json:"max_queue_size" yaml:"max_queue_size" default:"10000"` // Max queue size per destination
}

// LokiConfig contains configuration for Loki forwarding
type LokiConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" default:"false"`
	Endpoint string        `json:"endpoint" yaml:"endpoint" default:"http://localhost:3100/loki/api/v1/push"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" default:"5s"`
	TenantID string        `json:"tenant_id" yaml:"tenant_id" default:""`
}

// KafkaConfig contains configuration for Kafka forwarding
type KafkaConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" default:"false"`
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	Topic        string        `json:"topic" yaml:"topic" default:"console-events"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout" default:"5s"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" default:"100ms"`
}

// Publisher writes messages to a Kafka topic. *kafka.Writer satisfies it.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is one captured console event as exported.
type Event struct {
	SessionID string `json:"session"`
	PageURL   string `json:"pageUrl,omitempty"`
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	TraceID   string `json:"traceId,omitempty"`
	SpanID    string `json:"spanId,omitempty"`

	forwardTime time.Time
}

// ForwarderMetrics contains metrics for the forwarder
type ForwarderMetrics struct {
	EventsForwardedTotal *metrics.Counter
	EventsDroppedTotal   *metrics.Counter
	ErrorsTotal          *metrics.Counter
	Latency              *metrics.Histogram
	BatchSize            *metrics.Histogram
	QueueSize            *metrics.Gauge
}

// Forwarder ships captured events to optional external sinks. Queues are
// bounded and a full queue drops events rather than blocking capture.
type Forwarder struct {
	config   *Config
	redactor *ingest.Redactor
	log      *logger.Handler
	metric   *metrics.Handler
	tracer   trace.Tracer
	metrics  *ForwarderMetrics

	lokiClient *http.Client
	publisher  Publisher

	lokiQueue  chan *Event
	kafkaQueue chan *Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewForwarder creates a forwarder. Nothing is sent until Start.
func NewForwarder(config *Config, redactor *ingest.Redactor, log *logger.Handler, metric *metrics.Handler) *Forwarder {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = 10000
	}
	if config.Loki.Timeout <= 0 {
		config.Loki.Timeout = 5 * time.Second
	}
	if config.Kafka.Timeout <= 0 {
		config.Kafka.Timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Forwarder{
		config:     config,
		redactor:   redactor,
		log:        log,
		metric:     metric,
		tracer:     otel.Tracer("console-brief/forwarder"),
		lokiClient: &http.Client{Timeout: config.Loki.Timeout},
		lokiQueue:  make(chan *Event, config.MaxQueueSize),
		kafkaQueue: make(chan *Event, config.MaxQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if config.Kafka.Enabled && len(config.Kafka.Brokers) > 0 {
		f.publisher = &kafka.Writer{
			Addr:         kafka.TCP(config.Kafka.Brokers...),
			Topic:        config.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: config.Kafka.BatchTimeout,
		}
	}

	f.metrics = &ForwarderMetrics{
		EventsForwardedTotal: metric.NewCounter("forwarder_events_forwarded_total", "Total events forwarded", "destination"),
		EventsDroppedTotal:   metric.NewCounter("forwarder_events_dropped_total", "Total events dropped", "destination", "reason"),
		ErrorsTotal:          metric.NewCounter("forwarder_errors_total", "Total forwarding errors", "destination"),
		Latency:              metric.NewHistogram("forwarder_latency_seconds", "Forwarding latency in seconds", "destination"),
		BatchSize:            metric.NewHistogram("forwarder_batch_size", "Batch size for forwarding", "destination"),
		QueueSize:            metric.NewGauge("forwarder_queue_size", "Current queue size", "destination"),
	}
	return f
}

// WithPublisher replaces the Kafka writer.
func (f *Forwarder) WithPublisher(p Publisher) *Forwarder {
	f.publisher = p
	return f
}

// Metrics exposes the forwarder's collectors.
func (f *Forwarder) Metrics() *ForwarderMetrics {
	return f.metrics
}

func (f *Forwarder) lokiEnabled() bool  { return f.config.Loki.Enabled }
func (f *Forwarder) kafkaEnabled() bool { return f.config.Kafka.Enabled && f.publisher != nil }

// Start starts the forwarder
func (f *Forwarder) Start() error {
	if f.lokiEnabled() {
		f.wg.Add(1)
		go f.run(DestinationLoki, f.lokiQueue, f.flushLoki)
	}
	if f.kafkaEnabled() {
		f.wg.Add(1)
		go f.run(DestinationKafka, f.kafkaQueue, f.flushKafka)
	}
	if f.log != nil {
		f.log.Info().Bool("loki", f.lokiEnabled()).Bool("kafka", f.kafkaEnabled()).Msg("export forwarder started")
	}
	return nil
}

// Stop flushes what is queued and stops the forwarder. Safe to call twice.
func (f *Forwarder) Stop() error {
	var err error
	f.once.Do(func() {
		f.cancel()
		f.wg.Wait()
		if f.publisher != nil {
			err = f.publisher.Close()
		}
		if f.log != nil {
			f.log.Info().Msg("export forwarder stopped")
		}
	})
	return err
}

// Forward queues entries of one session for every enabled destination.
func (f *Forwarder) Forward(ctx context.Context, sessionID, pageURL string, entries []logtypes.LogEntry) {
	if !f.lokiEnabled() && !f.kafkaEnabled() {
		return
	}

	_, span := f.tracer.Start(ctx, "forwarder.Forward")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("batch.size", len(entries)),
	)

	var traceID, spanID string
	if sc := span.SpanContext(); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}

	now := time.Now()
	for _, entry := range entries {
		entry.Fill(now)
		event := &Event{
			SessionID:   sessionID,
			PageURL:     entry.URL,
			Timestamp:   entry.Timestamp,
			Level:       entry.Level,
			Source:      entry.Source,
			Message:     format.FormatCompact(entry.Args),
			TraceID:     traceID,
			SpanID:      spanID,
			forwardTime: now,
		}
		if event.PageURL == "" {
			event.PageURL = pageURL
		}
		if f.redactor != nil {
			event.Message = f.redactor.Redact(event.Message)
		}

		if f.lokiEnabled() {
			f.enqueue(DestinationLoki, f.lokiQueue, event)
		}
		if f.kafkaEnabled() {
			f.enqueue(DestinationKafka, f.kafkaQueue, event)
		}
	}
}

func (f *Forwarder) enqueue(destination string, queue chan *Event, event *Event) {
	select {
	case queue <- event:
	default:
		f.metrics.EventsDroppedTotal.Inc(destination, "queue_full")
		if f.log != nil {
			f.log.Warn().Str("destination", destination).Msg("forwarder queue full, dropping event")
		}
	}
}

// run batches one destination queue and flushes on size, tick and stop.
func (f *Forwarder) run(destination string, queue chan *Event, flush func(context.Context, []*Event) error) {
	defer f.wg.Done()

	batch := make([]*Event, 0, f.config.BatchSize)
	ticker := time.NewTicker(f.config.FlushInterval)
	defer ticker.Stop()

	send := func() {
		if len(batch) == 0 {
			return
		}
		f.flush(destination, batch, flush)
		batch = batch[:0]
	}

	for {
		select {
		case <-f.ctx.Done():
			for {
				select {
				case event := <-queue:
					batch = append(batch, event)
					if len(batch) >= f.config.BatchSize {
						send()
					}
				default:
					send()
					return
				}
			}

		case event := <-queue:
			batch = append(batch, event)
			if len(batch) >= f.config.BatchSize {
				send()
			}

		case <-ticker.C:
			f.metrics.QueueSize.Set(float64(len(queue)), destination)
			send()
		}
	}
}

func (f *Forwarder) flush(destination string, batch []*Event, send func(context.Context, []*Event) error) {
	// The forwarder context is already cancelled during the final flush.
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout(destination))
	defer cancel()
	ctx, span := f.tracer.Start(ctx, "forwarder.flush")
	defer span.End()
	span.SetAttributes(
		attribute.String("destination", destination),
		attribute.Int("batch.size", len(batch)),
	)

	start := time.Now()
	err := send(ctx, batch)
	f.metrics.Latency.Observe(time.Since(start).Seconds(), destination)
	f.metrics.BatchSize.Observe(float64(len(batch)), destination)

	if err != nil {
		f.metrics.ErrorsTotal.Inc(destination)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if f.log != nil {
			f.log.Error().Err(err).Str("destination", destination).Int("batch_size", len(batch)).Msg("failed to forward batch")
		}
		return
	}
	f.metrics.EventsForwardedTotal.Add(float64(len(batch)), destination)
}

func (f *Forwarder) timeout(destination string) time.Duration {
	if destination == DestinationKafka {
		return f.config.Kafka.Timeout
	}
	return f.config.Loki.Timeout
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

// lokiPayload groups events into one stream per session, level and source.
func lokiPayload(batch []*Event) lokiPush {
	index := make(map[string]int)
	push := lokiPush{Streams: []lokiStream{}}
	for _, e := range batch {
		key := e.SessionID + "\x00" + e.Level + "\x00" + e.Source
		i, ok := index[key]
		if !ok {
			i = len(push.Streams)
			index[key] = i
			push.Streams = append(push.Streams, lokiStream{
				Stream: map[string]string{
					"session": e.SessionID,
					"level":   e.Level,
					"source":  e.Source,
				},
			})
		}
		push.Streams[i].Values = append(push.Streams[i].Values, [2]string{
			strconv.FormatInt(eventTime(e).UnixNano(), 10),
			e.Message,
		})
	}
	return push
}

func eventTime(e *Event) time.Time {
	for _, layout := range []string{logtypes.TimestampLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return e.forwardTime
}

func (f *Forwarder) flushLoki(ctx context.Context, batch []*Event) error {
	jsonData, err := json.Marshal(lokiPayload(batch))
	if err != nil {
		return fmt.Errorf("failed to marshal logs for Loki: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.Loki.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create Loki request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.config.Loki.TenantID != "" {
		req.Header.Set("X-Scope-OrgID", f.config.Loki.TenantID)
	}

	resp, err := f.lokiClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send logs to Loki: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("loki returned error status: %d", resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) flushKafka(ctx context.Context, batch []*Event) error {
	messages := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event for Kafka: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(e.SessionID),
			Value: value,
			Time:  eventTime(e),
		})
	}
	if err := f.publisher.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish events to Kafka: %w", err)
	}
	return nil
}
