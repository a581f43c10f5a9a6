package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/clinicflow/clinicflow/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSub_PublishSubscribe(t *testing.T) {
	ps := NewPubSub(logger.NewNoopLogger())
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := ps.Subscribe(ctx, "billing_events")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "billing_events", message.NewMessage("bevt_1", []byte(`{"event_type":"invoice_paid"}`))))

	select {
	case msg := <-messages:
		assert.Equal(t, "bevt_1", msg.UUID)
		assert.JSONEq(t, `{"event_type":"invoice_paid"}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
