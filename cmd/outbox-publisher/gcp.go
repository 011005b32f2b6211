package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// topicPublishers hands out one publisher per topic; nil means the topic is not configured.
type topicPublishers interface {
	For(topic string) topicPublisher
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) error
}

type orderedTopicSource interface {
	OrderedPublisher(name string) *gcppubsub.Publisher
}

// gcpTopics caches ordered Pub/Sub publishers by topic name.
type gcpTopics struct {
	source orderedTopicSource

	mu   sync.Mutex
	pubs map[string]*gcpTopic
}

func newGCPTopics(source orderedTopicSource) *gcpTopics {
	return &gcpTopics{source: source, pubs: map[string]*gcpTopic{}}
}

func (g *gcpTopics) For(topic string) topicPublisher {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pub, ok := g.pubs[topic]; ok {
		return pub
	}
	raw := g.source.OrderedPublisher(topic)
	if raw == nil {
		return nil
	}
	pub := &gcpTopic{pub: raw}
	g.pubs[topic] = pub
	return pub
}

// Stop flushes pending messages on every publisher handed out.
func (g *gcpTopics) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, pub := range g.pubs {
		pub.pub.Stop()
	}
}

type gcpTopic struct {
	pub *gcppubsub.Publisher
}

func (t *gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) error {
	_, err := t.pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// an ordered publisher pauses the key after a failure until resumed
		t.pub.ResumePublish(msg.OrderingKey)
	}
	return err
}
