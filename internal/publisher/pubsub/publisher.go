// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher publishes run summaries through a Pub/Sub client. Topic handles
// are cached so the client can batch messages across calls.
type Publisher struct {
	client       *pubsub.Client
	defaultTopic string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// New connects to the given project. It authenticates using Google Cloud's
// Application Default Credentials unless opts override that.
func New(ctx context.Context, projectID, defaultTopic string, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return NewWithClient(client, defaultTopic), nil
}

// NewWithClient wraps an existing client. Tests use this with a fake server.
func NewWithClient(client *pubsub.Client, defaultTopic string) *Publisher {
	return &Publisher{
		client:       client,
		defaultTopic: defaultTopic,
		topics:       make(map[string]*pubsub.Topic),
	}
}

// VerifyTopic confirms the default topic exists so a misconfigured run fails
// at startup instead of at the first publish.
func (p *Publisher) VerifyTopic(ctx context.Context) error {
	topic := p.topicFor(p.defaultTopic)
	if topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	ok, err := topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check pubsub topic %q: %w", topic.ID(), err)
	}
	if !ok {
		return fmt.Errorf("pubsub topic %q does not exist", topic.ID())
	}
	return nil
}

// Publish marshals the payload to JSON and publishes it, blocking until the
// server acknowledges the message. An empty topic falls back to the default.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	t := p.topicFor(topic)
	if t == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	result := t.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topicFor(name string) *pubsub.Topic {
	if name == "" {
		name = p.defaultTopic
	}
	if name == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[name]; ok {
		return t
	}
	t := p.client.Topic(name)
	p.topics[name] = t
	return t
}

// Close flushes outstanding publishes and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.mu.Unlock()

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
