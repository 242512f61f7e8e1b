package handlers

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/events"
)

type nopSubscriber struct{}

func (nopSubscriber) Subscribe(context.Context, string, func(events.Event)) error { return nil }

func TestWSHub_DeliversByTxHash(t *testing.T) {
	hub := NewWSHub(nopSubscriber{}, zap.NewNop())

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(hub.HandleWS))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	tx := "0x6F1C1E0BD1B8D2A7C1D9F1C5A0B2E4F7A8C9D0E1F2A3B4C5D6E7F8091A2B3C4D"
	conn, _, err := fws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws?tx="+tx, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.watchers(tx) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.dispatch(events.Event{Type: events.EventDepositIndexed, Key: "0xother"})
	hub.dispatch(events.Event{Type: events.EventDepositResolved, Key: strings.ToLower(tx)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), events.EventDepositResolved)
}

func TestWSUpgradeMiddleware_RejectsPlainHTTP(t *testing.T) {
	app := fiber.New()
	app.Use("/ws", WSUpgradeMiddleware())
	app.Get("/ws", func(c *fiber.Ctx) error { return c.SendString("unreachable") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
