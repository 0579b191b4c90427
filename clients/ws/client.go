// Package ws provides a WebSocket client for the quotagate gateway.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/quotagate/internal/gateway/ws"
)

// Client is a WebSocket client for the quotagate gateway.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Dial connects to the gateway WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Refresh requests a quota refresh for the given scope. A concurrency of 0
// uses the gateway's configured default.
func (c *Client) Refresh(scope string, concurrency int) error {
	return c.request(wsprotocol.MethodRefresh, map[string]any{
		"scope":       scope,
		"concurrency": concurrency,
	})
}

// Stop asks the gateway to stop the active refresh run.
func (c *Client) Stop() error {
	return c.request(wsprotocol.MethodStop, nil)
}

// Status requests the current coordinator snapshot.
func (c *Client) Status() error {
	return c.request(wsprotocol.MethodStatus, nil)
}

// SetFilter replaces the entry-list glob filter.
func (c *Client) SetFilter(pattern string) error {
	return c.request(wsprotocol.MethodSetFilter, map[string]string{"filter": pattern})
}

func (c *Client) request(method wsprotocol.Method, params any) error {
	seq := atomic.AddUint64(&c.reqSeq, 1)

	frame := wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     fmt.Sprintf("req-%d", seq),
		Method: string(method),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		frame.Params = data
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return err
	}

	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
