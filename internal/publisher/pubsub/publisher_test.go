package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSnapshotEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "rank-snapshots")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Stop()

	event := rank.SnapshotEvent{
		SnapshotID:  "snap-1",
		Query:       "red shoes",
		PrimaryID:   "111",
		PrimaryRank: 5,
		PrimaryPage: 1,
		CreatedAt:   time.Unix(1700000000, 0).UTC(),
	}
	id, err := pub.Publish(ctx, "rank-snapshots", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, EventSnapshotSaved, msgs[0].Attributes["event"])
	require.Equal(t, "snap-1", msgs[0].Attributes["snapshot_id"])

	var decoded rank.SnapshotEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, event, decoded)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, err := New(nil).Publish(ctx, "t", "x")
	require.Error(t, err)

	client, _ := newTestClient(t)
	pub := New(client)
	defer pub.Stop()

	_, err = pub.Publish(ctx, "", "x")
	require.Error(t, err)
	_, err = pub.Publish(ctx, "missing-topic", "x")
	require.Error(t, err)
	_, err = pub.Publish(ctx, "missing-topic", make(chan int))
	require.ErrorContains(t, err, "marshal")
}
