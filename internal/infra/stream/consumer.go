// Package stream consumes engagement signals published by tracking services.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sendtime_notifier/internal/app"
	"sendtime_notifier/internal/domain/engagement"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// SignalRecorder stores engagement signals.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, notificationID int64, kind engagement.SignalKind, at time.Time, source string) (*engagement.Event, bool, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Signal is the JSON payload on the engagement topic. The notification id
// may also be carried as the message key.
type Signal struct {
	NotificationID int64     `json:"notificationId"`
	Kind           string    `json:"kind"`
	OccurredAt     time.Time `json:"occurredAt"`
}

var errMalformed = errors.New("malformed engagement message")

// EngagementConsumer reads signals from a topic and records them. Offsets are
// committed after a message is handled, so a crash replays at most the
// in-flight message; duplicate signals are no-ops downstream.
type EngagementConsumer struct {
	reader   messageReader
	recorder SignalRecorder
	logger   *logrus.Entry
}

// NewEngagementConsumer joins groupID on topic.
func NewEngagementConsumer(brokers []string, topic, groupID string, recorder SignalRecorder, logger *logrus.Entry) *EngagementConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		MaxWait:        time.Second,
		CommitInterval: 0,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})
	return &EngagementConsumer{reader: r, recorder: recorder, logger: logger}
}

// Run blocks until ctx is cancelled.
func (c *EngagementConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("Engagement consumer started")

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Engagement consumer stopped")
				return nil
			}
			c.logger.WithError(err).Error("Kafka fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, m)

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).WithField("offset", m.Offset).Error("Kafka commit failed")
		}
	}
}

func (c *EngagementConsumer) handle(ctx context.Context, m kafka.Message) {
	log := c.logger.WithFields(logrus.Fields{"partition": m.Partition, "offset": m.Offset})

	sig, kind, err := parseMessage(m)
	if err != nil {
		log.WithError(err).Warn("Skipping engagement message")
		return
	}
	at := sig.OccurredAt
	if at.IsZero() {
		at = m.Time
	}
	if _, _, err := c.recorder.RecordSignal(ctx, sig.NotificationID, kind, at, app.SourceKafka); err != nil {
		if errors.Is(err, engagement.ErrEventNotFound) {
			return
		}
		log.WithError(err).WithField("notification_id", sig.NotificationID).Error("Failed to record engagement signal")
	}
}

func parseMessage(m kafka.Message) (Signal, engagement.SignalKind, error) {
	var sig Signal
	if err := json.Unmarshal(m.Value, &sig); err != nil {
		return sig, "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	if sig.NotificationID == 0 && len(m.Key) > 0 {
		id, err := strconv.ParseInt(string(m.Key), 10, 64)
		if err != nil {
			return sig, "", fmt.Errorf("%w: key %q is not an id", errMalformed, m.Key)
		}
		sig.NotificationID = id
	}
	if sig.NotificationID <= 0 {
		return sig, "", fmt.Errorf("%w: missing notificationId", errMalformed)
	}
	kind, ok := engagement.ParseSignalKind(sig.Kind)
	if !ok {
		return sig, "", fmt.Errorf("%w: unknown kind %q", errMalformed, sig.Kind)
	}
	return sig, kind, nil
}
