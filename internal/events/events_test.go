package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promptcron/internal/testutil"
)

func TestBus_EnsuresStream(t *testing.T) {
	js := testutil.StartEventServer(t).JS

	_, err := NewBus(js, zap.NewNop())
	require.NoError(t, err)

	stream, err := js.StreamInfo(StreamName)
	require.NoError(t, err)
	assert.Equal(t, []string{"promptcron.>"}, stream.Config.Subjects)

	// A second bus reuses the existing stream
	_, err = NewBus(js, zap.NewNop())
	require.NoError(t, err)
}

func TestBus_ScheduleChanged(t *testing.T) {
	js := testutil.StartEventServer(t).JS

	bus, err := NewBus(js, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan ScheduleChanged, 1)
	require.NoError(t, bus.SubscribeScheduleChanged(ctx, func(event ScheduleChanged) {
		received <- event
	}))

	require.NoError(t, bus.PublishScheduleChanged(ctx, ScheduleChanged{
		ScheduleID: "s1",
		Name:       "morning",
		Action:     ActionUpdated,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "s1", event.ScheduleID)
		assert.Equal(t, ActionUpdated, event.Action)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("schedule change was not delivered")
	}
}

func TestBus_RunCompleted(t *testing.T) {
	js := testutil.StartEventServer(t).JS

	bus, err := NewBus(js, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, bus.PublishRunCompleted(context.Background(), RunCompleted{
		ScheduleID: "s1",
		LogID:      "l1",
		Success:    false,
		TimedOut:   true,
		Error:      "timed out after 10m0s",
	}))

	sub, err := js.SubscribeSync(SubjectRunCompleted, nats.DeliverAll())
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event RunCompleted
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "l1", event.LogID)
	assert.True(t, event.TimedOut)
}

func TestConnect(t *testing.T) {
	srv := testutil.StartEventServer(t)

	bus, nc, err := Connect(srv.URL(), zap.NewNop())
	require.NoError(t, err)
	defer nc.Close()

	require.NoError(t, bus.PublishScheduleChanged(context.Background(), ScheduleChanged{
		ScheduleID: "s1",
		Action:     ActionDeleted,
	}))

	info, err := srv.JS.StreamInfo(StreamName)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestConnect_Unreachable(t *testing.T) {
	_, _, err := Connect("nats://127.0.0.1:1", zap.NewNop())
	require.Error(t, err)
}
