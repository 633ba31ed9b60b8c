package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/angelmondragon/mmn-engine/pkg/config"
)

const testProject = "mmn-test"

func newFakeServer(t *testing.T, topics ...string) option.ClientOption {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	for _, topic := range topics {
		_, err := srv.GServer.CreateTopic(context.Background(), &pubsubpb.Topic{Name: TopicResourceName(testProject, topic)})
		require.NoError(t, err)
	}
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return option.WithGRPCConn(conn)
}

func TestSendPublishesWithOrderingKey(t *testing.T) {
	ctx := context.Background()
	conn := newFakeServer(t, "mmn-events")
	client, err := NewClient(ctx, config.GCPConfig{ProjectID: testProject}, config.PubSubConfig{EventsTopic: "mmn-events", Ordering: true}, nil, conn)
	require.NoError(t, err)
	defer client.Close()

	id, err := client.Send(ctx, "mmn-events", Message{
		Data:        []byte(`{"version":1}`),
		Attributes:  map[string]string{"event_type": "rank_changed"},
		OrderingKey: "tenant-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	first, err := client.publisher("mmn-events")
	require.NoError(t, err)
	second, err := client.publisher(TopicResourceName(testProject, "mmn-events"))
	require.NoError(t, err)
	assert.Same(t, first, second, "publishers are reused per topic")
}

func TestNewClientFailsOnMissingTopic(t *testing.T) {
	conn := newFakeServer(t)
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: testProject}, config.PubSubConfig{EventsTopic: "absent"}, nil, conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSendAfterClose(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, config.GCPConfig{ProjectID: testProject}, config.PubSubConfig{EventsTopic: "mmn-events"}, nil, newFakeServer(t, "mmn-events"))
	require.NoError(t, err)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Send(ctx, "mmn-events", Message{Data: []byte("x")})
	assert.ErrorIs(t, err, errClosed)
}

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/acme/topics/mmn-events", TopicResourceName("acme", "mmn-events"))
	assert.Equal(t, "projects/other/topics/x", TopicResourceName("acme", "projects/other/topics/x"))
	assert.Empty(t, TopicResourceName("", "mmn-events"))
	assert.Empty(t, TopicResourceName("acme", "  "))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{EventsTopic: "mmn-events"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)
	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: testProject}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopic)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
	_, err := c.Send(context.Background(), "mmn-events", Message{})
	assert.Error(t, err)
}
