package client

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Subscribe follows /api/updates until ctx is done and returns a channel of
// invalidation signals. One signal is also sent after every successful
// (re)connect, because updates may have been missed while disconnected.
// Signals coalesce: a signal sent while one is still unread is dropped.
// The channel is closed when ctx is done.
func (c *Client) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	go c.follow(ctx, out)
	return out
}

func (c *Client) follow(ctx context.Context, out chan struct{}) {
	defer close(out)
	emit := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	backoff := c.minBackoff
	for {
		connected, err := c.followOnce(ctx, emit)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = c.minBackoff
		}
		c.logger.Info("push channel lost, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// followOnce holds one connection until it fails or ctx is done.
func (c *Client) followOnce(ctx context.Context, emit func()) (bool, error) {
	ws, _, err := c.dialer.DialContext(ctx, c.updatesURL(), nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			_ = ws.Close()
		case <-stop:
		}
	}()

	ws.SetPingHandler(func(appData string) error {
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	c.logger.Debug("push channel connected")
	emit()
	for {
		_ = ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		messageType, _, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		if messageType == websocket.TextMessage {
			emit()
		}
	}
}

func (c *Client) updatesURL() string {
	u := *c.baseURL
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimRight(u.Path, "/") + "/api/updates"
	return u.String()
}
