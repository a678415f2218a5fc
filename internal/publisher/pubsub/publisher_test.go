// Package pubsub_test exercises the publisher against a fake Pub/Sub server.
package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/arcadehq/listing-harvester/internal/publisher/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

func newFakeClient(t *testing.T) *gcppubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gcppubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client
}

func TestPublisherPublishAndClose(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(t)

	topic, err := client.CreateTopic(ctx, "run-summaries")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", gcppubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := pubsub.NewWithClient(client, "run-summaries")
	require.NoError(t, pub.VerifyTopic(ctx))

	id, err := pub.Publish(ctx, "", map[string]any{"run_id": "abc", "total_games": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	recvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	received := make(chan *gcppubsub.Message, 1)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *gcppubsub.Message) {
			received <- msg
			msg.Ack()
			cancel()
		})
	}()
	msg := <-received

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "abc", payload["run_id"])

	assert.NoError(t, pub.Close())
}

func TestPublisherVerifyTopicMissing(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(t)
	defer client.Close()

	pub := pubsub.NewWithClient(client, "never-created")
	err := pub.VerifyTopic(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPublisherRequiresTopic(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient(t)
	defer client.Close()

	pub := pubsub.NewWithClient(client, "")
	_, err := pub.Publish(ctx, "", "payload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
