// Package transport turns a connection into a stream of discrete records.
//
// Two framings are provided: LineConn for raw TCP, where each record is a
// UTF-8 line terminated by '\n', and WSConn for WebSocket clients, where each
// text message is one record. Both also expose the pre-framing handshake read
// used for the display name and the profile image.
package transport

import (
	"errors"
	"net"
	"time"
)

var (
	// ErrRecordTooLarge is returned when a record exceeds the configured limit.
	// The stream cannot be resynchronised afterwards.
	ErrRecordTooLarge = errors.New("record exceeds maximum size")
	// ErrHandshakeTooLarge is returned when a handshake read exceeds its limit.
	ErrHandshakeTooLarge = errors.New("handshake exceeds maximum size")
)

// Conn is a framed, duplex connection owned by exactly one worker.
//
// ReadHandshake and ReadRecord must be called from a single goroutine, and so
// must WriteRecord. Close may be called from anywhere.
type Conn interface {
	// ReadHandshake returns one raw handshake step of at most max bytes with
	// any trailing line terminator removed.
	ReadHandshake(max int) ([]byte, error)
	// ReadRecord returns the next record without its delimiter. It returns
	// io.EOF when the peer closed the stream between records.
	ReadRecord() ([]byte, error)
	// WriteRecord writes one record followed by its delimiter.
	WriteRecord(record []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}
