package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, broker *Broker) *websocket.Conn {
	t.Helper()
	return dialWithClock(t, broker, clockwork.NewFakeClockAt(time.Now()))
}

// dialWithClock needs a clock close to the wall clock, socket deadlines
// are derived from it.
func dialWithClock(t *testing.T, broker *Broker, clock clockwork.Clock) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(NewWebSocketHandler(broker, clock, DefaultWebSocketConfig()))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event Event
	require.NoError(t, conn.ReadJSON(&event))

	return event
}

func waitForSubscribers(t *testing.T, broker *Broker, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func Test_WebSocketHandler_Streams_Events_After_Initial_Resync(t *testing.T) {
	// Arrange
	broker := NewBroker(8, zap.NewNop())
	conn := dial(t, broker)

	require.Equal(t, ChangeResync, read(t, conn).Type)
	waitForSubscribers(t, broker, 1)

	event, err := NewEvent(TableSessions, ChangeUpdate, map[string]string{"status": "finished"}, nil, testTime)
	require.NoError(t, err)

	// Act
	broker.Dispatch(event)

	// Assert
	got := read(t, conn)
	require.Equal(t, event.ID, got.ID)
	require.Equal(t, ChangeUpdate, got.Type)
	require.JSONEq(t, `{"status":"finished"}`, string(got.New))
}

func Test_WebSocketHandler_Closes_Connection_When_Subscription_Dropped(t *testing.T) {
	// Arrange
	broker := NewBroker(8, zap.NewNop())
	conn := dial(t, broker)
	require.Equal(t, ChangeResync, read(t, conn).Type)
	waitForSubscribers(t, broker, 1)

	// Act
	broker.Close()

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), err)
}

func Test_WebSocketHandler_Unsubscribes_When_Client_Disconnects(t *testing.T) {
	// Arrange
	broker := NewBroker(8, zap.NewNop())
	conn := dial(t, broker)
	require.Equal(t, ChangeResync, read(t, conn).Type)
	waitForSubscribers(t, broker, 1)

	// Act
	require.NoError(t, conn.Close())

	// Assert
	waitForSubscribers(t, broker, 0)
}

func Test_WebSocketHandler_Stamps_Initial_Resync_With_Clock_Time(t *testing.T) {
	// Arrange
	now := time.Now().UTC().Truncate(time.Second)
	clock := clockwork.NewFakeClockAt(now)
	broker := NewBroker(8, zap.NewNop())

	// Act
	conn := dialWithClock(t, broker, clock)

	// Assert
	event := read(t, conn)
	require.Equal(t, ChangeResync, event.Type)
	require.True(t, now.Equal(event.OccurredAt), "expected %s, got %s", now, event.OccurredAt)
}

func Test_WebSocketHandler_Pings_Client_When_Clock_Reaches_Interval(t *testing.T) {
	// Arrange
	clock := clockwork.NewFakeClockAt(time.Now())
	broker := NewBroker(8, zap.NewNop())
	conn := dialWithClock(t, broker, clock)
	require.Equal(t, ChangeResync, read(t, conn).Type)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	// Control frames are only handled while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// Act
	clock.Advance(DefaultWebSocketConfig().PingInterval)

	// Assert
	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}
