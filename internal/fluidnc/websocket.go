package fluidnc

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer connects to the FluidNC WebSocket server (port 81 on stock firmware).
// Status lines arrive as message payloads instead of a telnet byte stream.
type WSDialer struct {
	Addr    string
	Path    string
	Timeout time.Duration
}

// Dial connects to the WebSocket server
func (d WSDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	dialer := *websocket.DefaultDialer
	if d.Timeout > 0 {
		dialer.HandshakeTimeout = d.Timeout
	}

	conn, _, err := dialer.DialContext(ctx, d.url(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FluidNC: %w", err)
	}
	return &wsLink{conn: conn}, nil
}

func (d WSDialer) String() string { return d.url() }

func (d WSDialer) url() string {
	path := d.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Scheme: "ws", Host: d.Addr, Path: path}
	return u.String()
}

// wsLink presents a WebSocket connection as a byte stream. Message boundaries
// are dropped: the line reader does the framing.
type wsLink struct {
	conn *websocket.Conn
	r    io.Reader
	wmu  sync.Mutex
}

func (l *wsLink) Read(p []byte) (int, error) {
	for {
		if l.r == nil {
			_, r, err := l.conn.NextReader()
			if err != nil {
				return 0, err
			}
			l.r = r
		}
		n, err := l.r.Read(p)
		if err == io.EOF {
			l.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (l *wsLink) Write(p []byte) (int, error) {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if err := l.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *wsLink) SetReadDeadline(t time.Time) error {
	return l.conn.SetReadDeadline(t)
}

func (l *wsLink) Close() error {
	l.wmu.Lock()
	l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	l.wmu.Unlock()
	return l.conn.Close()
}
