package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"
)

var ErrKafkaDown = errors.New("kafka error")

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Batches    int
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Batches++
	if m.ShouldFail {
		return ErrKafkaDown
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) BatchCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Batches
}

// MockRand always returns Val.
type MockRand struct {
	Val float64
}

func (m *MockRand) Float64() float64 { return m.Val }

// MockTopicAdmin records topic creation. Metadata reports the topic ready once ReadyAfter
// lookups have been made.
type MockTopicAdmin struct {
	Created    []kafka.TopicConfig
	CreateErr  error // per-topic error returned in the response
	CallErr    error // transport error
	ReadyAfter int
	Lookups    int
	Mu         sync.Mutex
}

func (m *MockTopicAdmin) CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.CallErr != nil {
		return nil, m.CallErr
	}
	resp := &kafka.CreateTopicsResponse{Errors: make(map[string]error)}
	for _, t := range req.Topics {
		m.Created = append(m.Created, t)
		resp.Errors[t.Topic] = m.CreateErr
	}
	return resp, nil
}

func (m *MockTopicAdmin) Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Lookups++

	resp := &kafka.MetadataResponse{}
	for _, name := range req.Topics {
		topic := kafka.Topic{Name: name}
		if m.Lookups > m.ReadyAfter {
			for _, c := range m.Created {
				if c.Topic == name {
					for i := 0; i < c.NumPartitions; i++ {
						topic.Partitions = append(topic.Partitions, kafka.Partition{Topic: name, ID: i})
					}
				}
			}
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return resp, nil
}

func (m *MockTopicAdmin) LookupCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Lookups
}
