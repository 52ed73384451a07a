package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/trsync/config"
	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/pkg/retry"
	"github.com/c360/trsync/testutil"
)

func testRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func newTestSession(t *testing.T, broker *testutil.Broker) *Session {
	t.Helper()
	session := NewSession(Config{
		URL:             broker.URL(),
		ProtocolVersion: 31,
		Client:          config.ClientInfo{Locale: "fr", PlatformID: "webtrading"},
		Retry:           testRetry(),
		ReadTimeout:     2 * time.Second,
	})
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestSession_ConnectHandshake(t *testing.T) {
	broker := testutil.NewBroker(t, func(id uint64, _ map[string]any) string {
		return fmt.Sprintf("%d A {}", id)
	})
	session := newTestSession(t, broker)

	require.NoError(t, session.Connect(context.Background()))
	assert.Equal(t, 1, broker.Connects())
}

func TestSession_ConnectFailsWhenUnreachable(t *testing.T) {
	session := NewSession(Config{
		URL:             "ws://127.0.0.1:1", // nothing listens here
		ProtocolVersion: 31,
		Retry:           testRetry(),
		ReadTimeout:     time.Second,
	})

	err := session.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestSession_SubscribeAwaitsOneResponse(t *testing.T) {
	broker := testutil.NewBroker(t, func(id uint64, payload map[string]any) string {
		assert.Equal(t, "timelineTransactions", payload["type"])
		return fmt.Sprintf(`%d A {"items":[]}`, id)
	})
	session := newTestSession(t, broker)
	require.NoError(t, session.Connect(context.Background()))

	id := session.NextID()
	raw, err := session.Subscribe(context.Background(), id, map[string]string{
		"type":  "timelineTransactions",
		"token": "tok",
	})

	require.NoError(t, err)
	assert.Contains(t, string(raw), `"items"`)
	require.NoError(t, session.Unsubscribe(context.Background(), id))

	assert.Equal(t, []uint64{id}, broker.SubscribeIDs())
	assert.Equal(t, []uint64{id}, broker.UnsubscribeIDs())
}

func TestSession_NextIDStrictlyIncreasing(t *testing.T) {
	session := NewSession(Config{URL: "ws://unused", ProtocolVersion: 31})

	previous := uint64(0)
	for i := 0; i < 100; i++ {
		id := session.NextID()
		assert.Greater(t, id, previous)
		previous = id
	}
}

func TestSession_RequestPairsSubAndUnsub(t *testing.T) {
	broker := testutil.NewBroker(t, func(id uint64, _ map[string]any) string {
		return fmt.Sprintf(`%d A {"ok":true}`, id)
	})
	session := newTestSession(t, broker)
	require.NoError(t, session.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := session.Request(context.Background(), map[string]string{"type": "availableCash"})
		require.NoError(t, err)
	}

	subs := broker.SubscribeIDs()
	unsubs := broker.UnsubscribeIDs()
	require.Len(t, subs, 3)
	assert.Equal(t, subs, unsubs)

	// Strictly increasing, never reused
	for i := 1; i < len(subs); i++ {
		assert.Greater(t, subs[i], subs[i-1])
	}
}

func TestSession_SubscribeBeforeConnect(t *testing.T) {
	session := NewSession(Config{URL: "ws://unused", ProtocolVersion: 31})

	_, err := session.Subscribe(context.Background(), session.NextID(), map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}

func TestSession_NoFramesAfterClose(t *testing.T) {
	broker := testutil.NewBroker(t, nil)
	session := newTestSession(t, broker)
	require.NoError(t, session.Connect(context.Background()))

	require.NoError(t, session.Close())
	require.NoError(t, session.Close()) // idempotent

	_, err := session.Subscribe(context.Background(), session.NextID(), map[string]string{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
	assert.True(t, errors.IsFatal(err))

	assert.ErrorIs(t, session.Connect(context.Background()), errors.ErrChannelClosed)
}

func TestSession_RequestDoesNotRetryFatalErrors(t *testing.T) {
	broker := testutil.NewBroker(t, nil)
	session := newTestSession(t, broker)
	require.NoError(t, session.Connect(context.Background()))
	require.NoError(t, session.Close())

	_, err := session.Request(context.Background(), map[string]string{"type": "availableCash"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrChannelClosed)
	assert.True(t, retry.IsNonRetryable(err))
}
