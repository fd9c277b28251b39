package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-skyfix/pkg/protocol"
)

func startHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()

	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/fixes", h.Handler())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)

	t.Cleanup(func() {
		cancel()
		app.Shutdown()
	})
	return h, "ws://" + ln.Addr().String() + "/ws/fixes", cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readType(t *testing.T, ws *websocket.Conn) (*protocol.Message, error) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.ParseMessage(data)
}

func TestMessage_Wants(t *testing.T) {
	tests := []struct {
		msg    Message
		filter string
		want   bool
	}{
		{NewMessage("a", nil), "", true},
		{NewMessage("a", nil), "a", true},
		{NewMessage("a", nil), "b", false},
		{NewMessage("", nil), "b", true},
	}
	for _, tc := range tests {
		if got := tc.msg.wants(tc.filter); got != tc.want {
			t.Errorf("Message{%q}.wants(%q) = %v, want %v", tc.msg.SessionID, tc.filter, got, tc.want)
		}
	}
}

func TestHub_NewIsIdle(t *testing.T) {
	h := New("idle")
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.IsRunning())
	assert.Equal(t, Stats{}, h.Stats())

	// Broadcasting with nobody listening queues and does not block.
	msg, _ := protocol.NewMessage(protocol.TypePing, nil)
	require.NoError(t, h.BroadcastMessage("", msg))
}

func TestHub_FanOutWithSessionFilter(t *testing.T) {
	h, url, _ := startHub(t)

	all := dial(t, url)
	onlyB := dial(t, url+"?session=b")
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	fixA, _ := protocol.NewFixMessage(protocol.FixData{SessionID: "a", Strategy: "planar"})
	fixB, _ := protocol.NewFixMessage(protocol.FixData{SessionID: "b", Strategy: "pose"})
	require.NoError(t, h.BroadcastMessage("a", fixA))
	require.NoError(t, h.BroadcastMessage("b", fixB))

	for _, want := range []string{"a", "b"} {
		msg, err := readType(t, all)
		require.NoError(t, err)
		fix, err := msg.GetFixData()
		require.NoError(t, err)
		assert.Equal(t, want, fix.SessionID)
	}

	msg, err := readType(t, onlyB)
	require.NoError(t, err)
	fix, err := msg.GetFixData()
	require.NoError(t, err)
	assert.Equal(t, "b", fix.SessionID, "filtered observer must skip other sessions")

	assert.Equal(t, uint64(3), h.Stats().Sent)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, url, _ := startHub(t)

	ws := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	ws.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, url, cancel := startHub(t)

	ws := dial(t, url)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !h.IsRunning() }, 2*time.Second, 10*time.Millisecond)

	_, err := readType(t, ws)
	assert.Error(t, err)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_ClientRunWaitsForWriter(t *testing.T) {
	h := New("churn")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	// Reports how many write pumps are still alive once Run hands the
	// connection back to fiber.
	returned := make(chan int32, 1)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/fixes", fiberws.New(func(c *fiberws.Conn) {
		NewClient(h, c, "").Run()
		returned <- h.writers.Load()
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() {
		cancel()
		app.Shutdown()
	})
	url := "ws://" + ln.Addr().String() + "/ws/fixes"

	ping, err := protocol.NewPingMessage("churn")
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

		require.NoError(t, h.BroadcastMessage("", ping))
		ws.Close()

		select {
		case n := <-returned:
			require.Zero(t, n, "connection %d: write pump outlived Run", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d: handler did not return", i)
		}
	}

	assert.Equal(t, 0, h.ClientCount())
	assert.True(t, h.IsRunning())
}
