package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/gcp"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// resources expands short topic and subscription ids into full resource names.
type resources string

func (r resources) topic(id string) string { return r.expand("topics", id) }
func (r resources) subscription(id string) string { return r.expand("subscriptions", id) }

// expand returns projects/<p>/<kind>/<id>. Ids already naming a resource of
// that kind pass through; a blank id or project yields "".
func (r resources) expand(kind, id string) string {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/"):
		return id
	case r == "":
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", r, kind, id)
}

// Client carries the order change topic and the dispatcher subscription.
type Client struct {
	client *pubsub.Client
	names  resources
	cfg    config.PubSubConfig
}

var errNotInitialized = errors.New("pubsub client not initialized")

// NewClient opens a Pub/Sub client and checks that the configured topic and
// subscription exist.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project, err := gcp.Project(gcpCfg)
	if err != nil {
		return nil, err
	}
	psClient, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, names: resources(project), cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"orders_topic":        cfg.OrdersTopic,
			"orders_subscription": cfg.OrdersSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping confirms the configured topic and subscription are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if name := c.names.topic(c.cfg.OrdersTopic); name != "" {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		if err := gcp.Exists("topic", c.cfg.OrdersTopic, err); err != nil {
			return err
		}
	}
	if name := c.names.subscription(c.cfg.OrdersSubscription); name != "" {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		if err := gcp.Exists("subscription", c.cfg.OrdersSubscription, err); err != nil {
			return err
		}
	}
	return nil
}

// OrdersSubscription returns the subscriber the dispatcher reads order changes from.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if name := c.names.subscription(c.cfg.OrdersSubscription); name != "" {
		return c.client.Subscriber(name)
	}
	return nil
}

// OrderedPublisher returns a publisher for topic that keeps per-key order.
func (c *Client) OrderedPublisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.names.topic(topic)
	if name == "" {
		return nil
	}
	pub := c.client.Publisher(name)
	pub.EnableMessageOrdering = true
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
