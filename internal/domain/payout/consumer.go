package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	reconnectDelay  = 5 * time.Second
	messageTimeout  = 30 * time.Second
	defaultPrefetch = 10
)

type Processor interface {
	RecordConversionPayout(ctx context.Context, eventID uuid.UUID) (*Result, error)
}

type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
	Workers  int
}

// ConversionMessage is the queue payload published by the tracking pipeline.
type ConversionMessage struct {
	EventID string `json:"event_id"`
}

type disposition int

const (
	ack disposition = iota
	reject
	requeue
)

// Consumer feeds conversion events from RabbitMQ into the payout processor
// with manual acknowledgements.
type Consumer struct {
	cfg  ConsumerConfig
	proc Processor
}

func NewConsumer(cfg ConsumerConfig, proc Processor) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaultPrefetch
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Consumer{cfg: cfg, proc: proc}
}

// Run consumes until ctx is cancelled, reconnecting when the broker drops.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", reconnectDelay).Msg("conversion consumer disconnected")

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	log.Info().Str("queue", c.cfg.Queue).Int("workers", c.cfg.Workers).Msg("conversion consumer started")

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						return
					}
					c.settle(d, c.handle(ctx, d.Body))
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("delivery channel closed")
}

func (c *Consumer) settle(d amqp.Delivery, disp disposition) {
	var err error
	switch disp {
	case ack:
		err = d.Ack(false)
	case reject:
		err = d.Nack(false, false)
	case requeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("failed to acknowledge delivery")
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) disposition {
	var msg ConversionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Error().Err(err).Str("body", string(body)).Msg("malformed conversion message")
		return reject
	}

	var eventID uuid.UUID
	if msg.EventID != "" {
		parsed, err := uuid.Parse(msg.EventID)
		if err != nil {
			log.Error().Str("event_id", msg.EventID).Msg("conversion message has invalid event id")
			return reject
		}
		eventID = parsed
	}

	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	res, err := c.proc.RecordConversionPayout(ctx, eventID)
	switch {
	case err == nil:
		log.Debug().Str("event_id", msg.EventID).Bool("already_processed", res.AlreadyProcessed).Msg("conversion message processed")
		return ack
	case IsBusinessError(err):
		log.Warn().Err(err).Str("event_id", msg.EventID).Str("code", Code(err)).Msg("conversion message dropped")
		return ack
	default:
		log.Error().Err(err).Str("event_id", msg.EventID).Msg("conversion message failed, requeueing")
		return requeue
	}
}
