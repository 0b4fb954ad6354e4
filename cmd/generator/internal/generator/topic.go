package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	topicReadyAttempts = 10
	topicReadyPoll     = 500 * time.Millisecond
)

// TopicAdmin is the slice of the kafka-go admin API used to provision the tick topic.
// *kafka.Client satisfies it.
type TopicAdmin interface {
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
}

// EnsureTopic creates the topic when it is missing and waits until its partitions are visible.
// An existing topic is left untouched.
func EnsureTopic(ctx context.Context, admin TopicAdmin, clock clockwork.Clock, logger *zap.Logger, topic string, partitions int) error {
	if partitions < 1 {
		partitions = 1
	}

	resp, err := admin.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		}},
	})
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}

	switch terr := resp.Errors[topic]; {
	case terr == nil:
		logger.Info("Topic created", zap.String("topic", topic), zap.Int("partitions", partitions))
	case errors.Is(terr, kafka.TopicAlreadyExists):
		logger.Info("Topic already exists", zap.String("topic", topic))
	default:
		return fmt.Errorf("create topic %s: %w", topic, terr)
	}

	for attempt := 1; attempt <= topicReadyAttempts; attempt++ {
		if n := readyPartitions(ctx, admin, topic); n > 0 {
			logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", n))
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(topicReadyPoll):
		}
	}
	return fmt.Errorf("topic %s not ready after %d attempts", topic, topicReadyAttempts)
}

func readyPartitions(ctx context.Context, admin TopicAdmin, topic string) int {
	md, err := admin.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{topic}})
	if err != nil {
		return 0
	}
	for _, t := range md.Topics {
		if t.Name == topic && t.Error == nil {
			return len(t.Partitions)
		}
	}
	return 0
}
