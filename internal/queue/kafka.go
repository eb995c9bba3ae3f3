// Package queue publishes forecast runs to Kafka.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/smartcity/aqforecast/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a Kafka writer
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a producer partitioning by message key
func NewProducer(brokers []string, topic string) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // one location -> one partition
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	})
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(w MessageWriter) *Producer {
	return &Producer{writer: w}
}

// Publish sends one keyed message
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers ...kafka.Header) error {
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("queue: failed to write message: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ForecastEvent is the published form of a forecast run
type ForecastEvent struct {
	RunID       string                  `json:"run_id"`
	LocationID  int64                   `json:"location_id"`
	Hours       int                     `json:"hours"`
	MaxIndex    *int                    `json:"max_aqi"`
	Fallback    bool                    `json:"is_fallback"`
	GeneratedAt time.Time               `json:"generated_at"`
	Steps       []domain.PredictionStep `json:"predictions"`
}

// ForecastPublisher emits one event per forecast run, keyed by location
type ForecastPublisher struct {
	producer *Producer
}

// NewForecastPublisher creates a publisher on top of a producer
func NewForecastPublisher(p *Producer) *ForecastPublisher {
	return &ForecastPublisher{producer: p}
}

// PublishForecast encodes and sends a forecast result
func (f *ForecastPublisher) PublishForecast(ctx context.Context, r domain.ForecastResult) error {
	value, err := json.Marshal(ForecastEvent{
		RunID:       r.RunID,
		LocationID:  r.LocationID,
		Hours:       r.Hours,
		MaxIndex:    r.MaxIndex,
		Fallback:    r.Fallback,
		GeneratedAt: r.GeneratedAt,
		Steps:       r.Steps,
	})
	if err != nil {
		return fmt.Errorf("queue: failed to encode forecast: %w", err)
	}
	return f.producer.Publish(ctx, strconv.FormatInt(r.LocationID, 10), value,
		kafka.Header{Key: "event", Value: []byte("forecast.generated")},
		kafka.Header{Key: "run_id", Value: []byte(r.RunID)},
	)
}

// Close closes the underlying producer
func (f *ForecastPublisher) Close() error {
	return f.producer.Close()
}
