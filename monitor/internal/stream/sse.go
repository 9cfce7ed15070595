package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/vito/go-sse/sse"
)

// SSEDialer opens Server-Sent Event streams with a resty client. The client
// must not carry a request timeout or every stream is cut at that deadline.
type SSEDialer struct {
	client *resty.Client
}

// NewSSEDialer returns a dialer that issues requests through client.
func NewSSEDialer(client *resty.Client) *SSEDialer {
	return &SSEDialer{client: client}
}

// Dial issues the stream GET and returns once response headers arrive.
// The connection lives until Close is called or ctx is cancelled.
func (d *SSEDialer) Dial(ctx context.Context, url string) (Conn, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("stream: dial %s: %w", url, err)
	}

	body := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		body.Close()
		return nil, fmt.Errorf("stream: dial %s: unexpected status %d", url, resp.StatusCode())
	}
	return &sseConn{rc: sse.NewReadCloser(body)}, nil
}

type sseConn struct {
	rc        *sse.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// Next skips frames without data, such as retry hints.
func (c *sseConn) Next() (Event, error) {
	ev, err := c.rc.Next()
	for err == nil && len(ev.Data) == 0 {
		ev, err = c.rc.Next()
	}
	if err != nil {
		return Event{}, err
	}
	name := ev.Name
	if name == "" {
		name = EventMessage
	}
	return Event{Name: name, Data: ev.Data}, nil
}

func (c *sseConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.rc.Close() })
	return c.closeErr
}
