// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package ledger streams decisions and evaluations to a kafka topic.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"heatpilot/v2/internal/model"
	"heatpilot/v2/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const (
	SchemaVersion = "1"
	queueSize     = 256

	TypeDecision   = "decision"
	TypeEvaluation = "evaluation"
)

var ErrQueueFull = errors.New("ledger queue full")

type Config struct {
	Brokers []string
	Topic   string
	Acks    int
}

// Envelope is the message value written to the topic.
type Envelope struct {
	Type          string          `json:"type"`
	SchemaVersion string          `json:"schema_version"`
	Time          time.Time       `json:"time"`
	Payload       json.RawMessage `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues ledger entries and writes them from Run, so control
// cycles never wait on the broker.
type Publisher struct {
	topic  string
	writer messageWriter
	queue  chan kafka.Message
	log    *logger.Logger
}

func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("ledger topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("ledger needs at least one broker")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
	return newPublisher(cfg.Topic, w), nil
}

func newPublisher(topic string, w messageWriter) *Publisher {
	return &Publisher{
		topic:  topic,
		writer: w,
		queue:  make(chan kafka.Message, queueSize),
		log:    logger.New("Ledger"),
	}
}

// PublishDecision queues a decision keyed by its device.
func (p *Publisher) PublishDecision(ctx context.Context, d model.DecisionLog) error {
	return p.enqueue(TypeDecision, strconv.FormatUint(uint64(d.DeviceID), 10), d.Timestamp, d)
}

// PublishEvaluation queues an evaluation keyed by its decision.
func (p *Publisher) PublishEvaluation(ctx context.Context, e model.Evaluation) error {
	return p.enqueue(TypeEvaluation, e.DecisionID, e.EvaluatedAt, e)
}

func (p *Publisher) enqueue(kind, key string, ts time.Time, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	value, err := json.Marshal(Envelope{Type: kind, SchemaVersion: SchemaVersion, Time: ts.UTC(), Payload: raw})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	select {
	case p.queue <- kafka.Message{Key: []byte(key), Value: value}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run writes queued messages until ctx is done, then drains what is left
// and closes the writer.
func (p *Publisher) Run(ctx context.Context) {
	p.log.Info("Publishing to topic %s", p.topic)
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("close: %v", err)
		}
		p.log.Info("Stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.deliver(ctx, msg)
		}
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case msg := <-p.queue:
			p.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, msg kafka.Message) {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("write: %v", err)
	}
}
