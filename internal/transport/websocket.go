package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WSConn frames a WebSocket connection: every data message is one handshake
// step or one record.
type WSConn struct {
	conn *websocket.Conn
	addr string
}

// NewWSConn wraps an upgraded connection. addr is the remote address as seen
// by the HTTP server, which may differ from the socket address behind a proxy.
func NewWSConn(conn *websocket.Conn, addr string, maxRecord int) *WSConn {
	conn.SetReadLimit(int64(maxRecord))
	if addr == "" {
		addr = conn.RemoteAddr().String()
	}
	return &WSConn{conn: conn, addr: addr}
}

// ReadHandshake returns the next message as one handshake step of at most
// max bytes.
func (c *WSConn) ReadHandshake(max int) ([]byte, error) {
	data, err := c.read()
	if err != nil {
		return nil, err
	}
	data = trimEOL(data)
	if len(data) > max {
		return nil, ErrHandshakeTooLarge
	}
	return data, nil
}

// ReadRecord returns the next message. The read limit set at construction
// surfaces as ErrRecordTooLarge.
func (c *WSConn) ReadRecord() ([]byte, error) {
	data, err := c.read()
	if err != nil {
		return nil, err
	}
	return trimEOL(data), nil
}

func (c *WSConn) read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, websocket.ErrReadLimit):
		return nil, fmt.Errorf("%w: %v", ErrRecordTooLarge, err)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return nil, io.EOF
	default:
		return nil, err
	}
}

// WriteRecord sends record as one text message.
func (c *WSConn) WriteRecord(record []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, record)
}

// SetReadDeadline sets the deadline for the next message read.
func (c *WSConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the deadline for WriteRecord.
func (c *WSConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// RemoteAddr returns the address given at construction.
func (c *WSConn) RemoteAddr() string { return c.addr }

// Close sends a best-effort close frame before closing the socket.
func (c *WSConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}
