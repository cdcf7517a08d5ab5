// Package pubsub implements the feed sink on Google Cloud Pub/Sub, for
// deployments where the workflow engine consumes a topic instead of a file.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/scoutlabs/scout/internal/discovery"
)

// Sink publishes one message per canonical record. The entity_key rides as a
// message attribute so consumers can dedup without decoding the payload.
type Sink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects a client and binds the topic.
func New(ctx context.Context, projectID, topicID string) (*Sink, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Sink{client: client, topic: client.Topic(topicID)}, nil
}

// Emit publishes the batch and waits for server acknowledgement of every
// message, so records are durable before checkpoints advance.
func (s *Sink) Emit(ctx context.Context, records []discovery.CanonicalRecord) error {
	results := make([]*pubsub.PublishResult, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return discovery.Fatal(fmt.Errorf("encode record %s: %w", rec.EntityKey, err))
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: payload,
			Attributes: map[string]string{
				"entity_key": rec.EntityKey,
			},
		}))
	}
	for i, res := range results {
		if _, err := res.Get(ctx); err != nil {
			return discovery.Fatal(fmt.Errorf("publish record %s: %w", records[i].EntityKey, err))
		}
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client.
func (s *Sink) Close() error {
	s.topic.Stop()
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
