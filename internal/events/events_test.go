package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func TestNATSPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("ragd.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := Connect(server.ClientURL(), "ragd")
	require.NoError(t, err)
	defer pub.Close()

	e := New(IngestCompleted, "acme.corp")
	e.DocumentID = "0b7c9a1e-5f0d-4f4e-8a43-6f2f1c9d2b10"
	e.Fragments = 3
	require.NoError(t, pub.Publish(context.Background(), e))

	select {
	case msg := <-msgs:
		assert.Equal(t, "ragd.ingest.completed.acme_corp", msg.Subject)

		var got Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "acme.corp", got.TenantID)
		assert.Equal(t, 3, got.Fragments)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = NewNATSPublisher(nc, "").Publish(ctx, New(PartitionDeleted, "acme"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubject(t *testing.T) {
	tests := []struct {
		tenant string
		want   string
	}{
		{"acme", "ragd.document.deleted.acme"},
		{"user@example.com", "ragd.document.deleted.user@example_com"},
		{"a*b>c", "ragd.document.deleted.a_b_c"},
	}
	for _, tt := range tests {
		t.Run(tt.tenant, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject("ragd", DocumentDeleted, tt.tenant))
		})
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), New(IngestCompleted, "acme")))
	assert.NoError(t, p.Close())
}
