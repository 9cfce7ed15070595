package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsHandshakeTimeout bounds the WebSocket opening handshake.
const wsHandshakeTimeout = 10 * time.Second

// Envelope is the JSON frame carried on WebSocket streams.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSDialer opens WebSocket streams. http(s) URLs are rewritten to ws(s).
type WSDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWSDialer returns a dialer that sends header with every handshake.
// tlsCfg may be nil.
func NewWSDialer(tlsCfg *tls.Config, header http.Header) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: wsHandshakeTimeout,
			TLSClientConfig:  tlsCfg,
		},
		header: header,
	}
}

// Dial performs the WebSocket handshake.
func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	wsURL, err := websocketURL(url)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", url, err)
	}
	conn, resp, err := d.dialer.DialContext(ctx, wsURL, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("stream: dial %s: status %d: %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("stream: dial %s: %w", wsURL, err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

// Next returns the next data frame. A frame that is not an envelope is
// delivered whole as a "message" event.
func (c *wsConn) Next() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		return Event{Name: EventMessage, Data: data}, nil
	}
	return Event{Name: env.Event, Data: []byte(env.Data)}, nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
