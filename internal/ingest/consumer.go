package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/domain/notification"
)

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender is the notification producer API the consumer drives.
type Sender interface {
	Send(ctx context.Context, senderID int64, c notification.Content, t directory.Target) (*notification.SendResult, error)
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer turns incident events into notifications. Offsets are committed
// after the message is handled or deliberately skipped.
type Consumer struct {
	reader kafkaReader
	sender Sender
	log    logrus.FieldLogger

	retryBase time.Duration
	retryMax  time.Duration
}

func NewKafkaConsumer(cfg KafkaConfig, sender Sender, log logrus.FieldLogger) (*Consumer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newConsumer(r, sender, log.WithField("topic", cfg.Topic)), nil
}

func newConsumer(r kafkaReader, sender Sender, log logrus.FieldLogger) *Consumer {
	return &Consumer{
		reader:    r,
		sender:    sender,
		log:       log.WithField("component", "incident_consumer"),
		retryBase: 500 * time.Millisecond,
		retryMax:  30 * time.Second,
	}
}

// Run consumes until ctx ends. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("incident consumer started")
	defer c.log.Info("incident consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch incident event: %w", err)
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handle returns an error only when ctx ended during a retry.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	log := c.log.WithFields(logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	ev, err := decodeIncident(msg.Value)
	if err != nil {
		log.WithError(err).Warn("skip malformed incident event")
		return nil
	}
	content, target := ev.Notification()
	log = log.WithFields(logrus.Fields{"incident_id": ev.IncidentID, "target": target.String()})

	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		res, err := c.sender.Send(ctx, ev.ReportedBy, content, target)
		switch {
		case err == nil:
			log.WithFields(logrus.Fields{
				"notification_id": res.ID,
				"recipients":      res.Recipients,
			}).Info("incident notification sent")
			return nil
		case errors.Is(err, notification.ErrStoreUnavailable):
			log.WithError(err).WithField("attempt", attempt).Warn("store unavailable, retrying")
		default:
			log.WithError(err).Warn("skip incident event")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.retryMax)
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
