package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"time"
)

const (
	readBufferSize = 4096

	// handshakeIdleGap ends a handshake step from a peer that does not
	// terminate its steps with newlines.
	handshakeIdleGap = 100 * time.Millisecond
)

// LineConn frames a byte stream as newline-terminated records. Bytes read past
// the end of a record stay buffered for the next call, so a record may arrive
// split across any number of socket reads.
type LineConn struct {
	conn      net.Conn
	br        *bufio.Reader
	maxRecord int

	deadline time.Time
	steps    int
	lines    bool
}

// NewLineConn wraps conn. maxRecord bounds a record, excluding its delimiter.
func NewLineConn(conn net.Conn, maxRecord int) *LineConn {
	return &LineConn{
		conn:      conn,
		br:        bufio.NewReaderSize(conn, readBufferSize),
		maxRecord: maxRecord,
	}
}

// ReadHandshake returns one handshake step of at most max bytes.
//
// The first step is whatever one socket read delivers, cut at a newline if
// there is one. If it was newline-terminated, later steps are read up to the
// next newline. Otherwise a later step ends when the peer pauses for
// handshakeIdleGap.
func (c *LineConn) ReadHandshake(max int) ([]byte, error) {
	first := c.steps == 0
	c.steps++
	raw := !first && !c.lines
	if raw {
		defer func() { _ = c.conn.SetReadDeadline(c.deadline) }()
	}

	var step []byte
	for {
		if raw && len(step) > 0 {
			if err := c.conn.SetReadDeadline(earliest(time.Now().Add(handshakeIdleGap), c.deadline)); err != nil {
				return nil, err
			}
		}
		if c.br.Buffered() == 0 {
			if _, err := c.br.Peek(1); err != nil {
				if raw && len(step) > 0 && IsTimeout(err) {
					break
				}
				return nil, err
			}
		}

		buf, err := c.br.Peek(c.br.Buffered())
		if err != nil {
			return nil, err
		}
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			step = append(step, buf[:i+1]...)
			if _, err := c.br.Discard(i + 1); err != nil {
				return nil, err
			}
			if first {
				c.lines = true
			}
			break
		}
		step = append(step, buf...)
		if _, err := c.br.Discard(len(buf)); err != nil {
			return nil, err
		}
		if len(step) > max+1 {
			return nil, ErrHandshakeTooLarge
		}
		if first {
			break
		}
	}

	step = trimEOL(step)
	if len(step) > max {
		return nil, ErrHandshakeTooLarge
	}
	return step, nil
}

// ReadRecord returns the next line. A stream that ends in the middle of a
// record yields io.ErrUnexpectedEOF and the partial bytes are discarded.
func (c *LineConn) ReadRecord() ([]byte, error) {
	var record []byte
	for {
		frag, err := c.br.ReadSlice('\n')
		if len(record)+len(frag) > c.maxRecord+1 {
			return nil, ErrRecordTooLarge
		}
		record = append(record, frag...)

		switch {
		case err == nil:
			return trimEOL(record), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(record) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// WriteRecord writes record and its delimiter in a single write.
func (c *LineConn) WriteRecord(record []byte) error {
	buf := make([]byte, len(record)+1)
	copy(buf, record)
	buf[len(record)] = '\n'
	_, err := c.conn.Write(buf)
	return err
}

// SetReadDeadline sets the deadline for handshake and record reads.
func (c *LineConn) SetReadDeadline(t time.Time) error {
	c.deadline = t
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for WriteRecord.
func (c *LineConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

// RemoteAddr returns the peer's address.
func (c *LineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Close closes the underlying connection.
func (c *LineConn) Close() error { return c.conn.Close() }

func earliest(a, b time.Time) time.Time {
	if b.IsZero() || a.Before(b) {
		return a
	}
	return b
}
