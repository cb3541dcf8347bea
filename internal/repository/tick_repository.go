package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	pkgch "SaxoBridge/pkg/clickhouse"
	pkgkafka "SaxoBridge/pkg/kafka"
	"SaxoBridge/pkg/util"
)

const (
	tickColumns   = "ts, received_at, symbol, code, kind, bid, ask, open, high, low, close, size, volume"
	tickRowParams = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	chunkSize     = 2000
)

// ClickHouseTickStorage archives ticks into a ClickHouse table.
type ClickHouseTickStorage struct {
	client *pkgch.Client
	db     *sql.DB
	table  string
	now    func() time.Time
}

// NewClickHouseTickStorage creates ClickHouse storage.
func NewClickHouseTickStorage(client *pkgch.Client, table string) repository.TickStorage {
	return &ClickHouseTickStorage{client: client, db: client.DB(), table: table, now: time.Now}
}

func (s *ClickHouseTickStorage) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, pkgch.TickSchema(s.client.Database(), s.table))
}

func (s *ClickHouseTickStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	received := s.now().UTC()
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}
		values, args := tickRows(ticks[start:end], received)
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, tickColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert ticks: %w", err)
		}
	}
	return nil
}

// tickRows builds the VALUES placeholders and arguments for ticks.
// Undated ticks are stamped with the receive time.
func tickRows(ticks []*models.Tick, received time.Time) ([]string, []interface{}) {
	values := make([]string, 0, len(ticks))
	args := make([]interface{}, 0, len(ticks)*13)
	for _, t := range ticks {
		if t == nil || t.Symbol == "" {
			continue
		}
		ts, err := time.ParseInLocation(util.DatetimeLayout, t.Datetime, time.UTC)
		if err != nil {
			ts = received
		}
		values = append(values, tickRowParams)
		args = append(args,
			ts, received, t.Symbol, t.Code, string(t.Kind),
			t.Bid, t.Ask, t.Open, t.High, t.Low, t.Close, t.Size, t.Volume,
		)
	}
	return values, args
}

func (s *ClickHouseTickStorage) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseTickStorage) Close() error {
	return s.client.Close()
}

// KafkaTickPublisher publishes ticks keyed by symbol.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates Kafka publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) repository.TickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Symbol), t)
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		if t == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(t.Symbol), Value: t})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
