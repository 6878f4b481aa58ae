package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/Ign14/PYMERP-sub000/internal/config"
)

// PubSubPublisher publishes events as JSON messages on a single topic.
// The event type travels in the "event_type" attribute.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context, cfg config.PubSubConfig) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := NewPubSubPublisherWithClient(ctx, client, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

// NewPubSubPublisherWithClient creates the topic when it does not exist yet.
func NewPubSubPublisherWithClient(ctx context.Context, client *pubsub.Client, topic string) (*PubSubPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	t := client.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %q: %w", topic, err)
	}
	if !ok {
		if t, err = client.CreateTopic(ctx, topic); err != nil {
			return nil, fmt.Errorf("create topic %q: %w", topic, err)
		}
	}
	return &PubSubPublisher{client: client, topic: t}, nil
}

func (p *PubSubPublisher) PublishAccepted(ctx context.Context, ev DocumentAccepted) error {
	return p.publish(ctx, TypeDocumentAccepted, ev.TenantID, ev.DocumentID, ev)
}

func (p *PubSubPublisher) PublishRejected(ctx context.Context, ev DocumentRejected) error {
	return p.publish(ctx, TypeDocumentRejected, ev.TenantID, ev.DocumentID, ev)
}

func (p *PubSubPublisher) publish(ctx context.Context, eventType, tenantID, documentID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":  eventType,
			"tenant_id":   tenantID,
			"document_id": documentID,
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
