package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub events topic is required")
	errClosed            = errors.New("pubsub client closed")
)

// Message is one outbound event. Messages sharing an OrderingKey are
// delivered in publish order when ordering is enabled.
type Message struct {
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Client publishes engine events. Publishers are created once per topic and
// flushed on Close.
type Client struct {
	gcp       *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	closed     bool
}

// NewClient dials Pub/Sub and fails fast when the events topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...option.ClientOption) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.EventsTopic) == "" {
		return nil, errNoTopic
	}

	conn, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		gcp:        conn,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("pubsub ready topic=%s ordering=%t", cfg.EventsTopic, cfg.Ordering))
	}
	return c, nil
}

// Ping checks the events topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.gcp == nil {
		return errors.New("pubsub client not initialized")
	}
	name := TopicResourceName(c.projectID, c.cfg.EventsTopic)
	if name == "" {
		return errNoTopic
	}
	_, err := c.gcp.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", name)
	default:
		return fmt.Errorf("checking topic %s: %w", name, err)
	}
}

// Send publishes msg to topic and blocks until the server acknowledges it.
func (c *Client) Send(ctx context.Context, topic string, msg Message) (string, error) {
	pub, err := c.publisher(topic)
	if err != nil {
		return "", err
	}
	out := &pubsub.Message{Data: msg.Data, Attributes: msg.Attributes}
	if c.cfg.Ordering {
		out.OrderingKey = msg.OrderingKey
	}
	id, err := pub.Publish(ctx, out).Get(ctx)
	if err != nil && out.OrderingKey != "" {
		// A failed ordered publish pauses its key until resumed.
		pub.ResumePublish(out.OrderingKey)
	}
	return id, err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	if c == nil || c.gcp == nil {
		return nil, errors.New("pubsub client not initialized")
	}
	name := TopicResourceName(c.projectID, topic)
	if name == "" {
		return nil, fmt.Errorf("topic %q not configured", topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	if pub, ok := c.publishers[name]; ok {
		return pub, nil
	}
	pub := c.gcp.Publisher(name)
	pub.EnableMessageOrdering = c.cfg.Ordering
	c.publishers[name] = pub
	return pub, nil
}

// Close flushes outstanding publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.mu.Unlock()
	return c.gcp.Close()
}

// TopicResourceName expands a topic id into projects/<p>/topics/<id>. Full
// resource names pass through.
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
