package transport

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipe(t *testing.T, maxRecord int) (*LineConn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return NewLineConn(server, maxRecord), client
}

func writeAsync(t *testing.T, conn net.Conn, parts ...string) {
	t.Helper()
	go func() {
		for _, p := range parts {
			if _, err := conn.Write([]byte(p)); err != nil {
				return
			}
		}
	}()
}

func TestReadRecordReassemblesSplitWrites(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	writeAsync(t, peer, `{"type":"mess`, `age","content":"a"}`+"\n"+`{"type":`, `"x"}`+"\r\n")

	first, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"message","content":"a"}`, string(first))

	second, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"x"}`, string(second))
}

func TestReadRecordReportsEndOfStream(t *testing.T) {
	t.Parallel()

	t.Run("clean close", func(t *testing.T) {
		conn, peer := newPipe(t, 1024)
		go func() {
			_, _ = peer.Write([]byte("one\n"))
			_ = peer.Close()
		}()

		rec, err := conn.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, "one", string(rec))

		_, err = conn.ReadRecord()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("close mid record", func(t *testing.T) {
		conn, peer := newPipe(t, 1024)
		go func() {
			_, _ = peer.Write([]byte("partial"))
			_ = peer.Close()
		}()

		_, err := conn.ReadRecord()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func TestReadRecordEnforcesLimit(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 8)
	writeAsync(t, peer, strings.Repeat("x", 9)+"\n")

	_, err := conn.ReadRecord()
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestReadRecordLargerThanBuffer(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	conn := NewLineConn(server, 1<<20)
	payload := strings.Repeat("abcdefgh", 1000)
	writeAsync(t, client, payload+"\n")

	rec, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, payload, string(rec))
}

func TestReadHandshakeStopsAtNewline(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	writeAsync(t, peer, "alice\niVBORw0KGgo=\n{\"type\":\"message\",\"recipient\":\"bob\",\"content\":\"hi\"}\n")

	name, err := conn.ReadHandshake(64)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(name))

	image, err := conn.ReadHandshake(1024)
	require.NoError(t, err)
	assert.Equal(t, "iVBORw0KGgo=", string(image))

	rec, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Contains(t, string(rec), `"recipient":"bob"`)
}

func TestReadHandshakeRawStep(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	writeAsync(t, peer, "bob")

	name, err := conn.ReadHandshake(64)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(name))
}

func TestReadHandshakeEnforcesLimit(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	writeAsync(t, peer, strings.Repeat("n", 65)+"\n")

	_, err := conn.ReadHandshake(64)
	assert.ErrorIs(t, err, ErrHandshakeTooLarge)
}

func TestReadHandshakeTimeoutIsRecoverable(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	_, err := conn.ReadHandshake(64)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	require.NoError(t, conn.SetReadDeadline(time.Time{}))
	writeAsync(t, peer, "late\n")
	rec, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "late", string(rec))
}

func TestWriteRecordAppendsDelimiter(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	go func() {
		_ = conn.WriteRecord([]byte(`{"type":"group_list","groups":[]}`))
	}()

	line, err := bufio.NewReader(peer).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"type":"group_list","groups":[]}`+"\n", line)
}

func TestReadHandshakeLargeImageAcrossReads(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	image := strings.Repeat("QUJD", 75_000)
	writeAsync(t, peer, "alice\n", image[:100_000], image[100_000:]+"\n", `{"type":"message"}`+"\n")

	name, err := conn.ReadHandshake(64)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(name))

	got, err := conn.ReadHandshake(1 << 20)
	require.NoError(t, err)
	assert.Len(t, got, 300_000)
	assert.Equal(t, image, string(got))

	rec, err := conn.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"message"}`, string(rec))
}

func TestReadHandshakeLineImageEnforcesLimit(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	writeAsync(t, peer, "alice\n", strings.Repeat("x", 10_000))

	_, err := conn.ReadHandshake(64)
	require.NoError(t, err)
	_, err = conn.ReadHandshake(8192)
	assert.ErrorIs(t, err, ErrHandshakeTooLarge)
}

func TestReadHandshakeRawImageEndsAtPause(t *testing.T) {
	t.Parallel()

	conn, peer := newPipe(t, 1024)
	go func() {
		for _, p := range []string{"bob", "AAAA", "BBBB"} {
			if _, err := peer.Write([]byte(p)); err != nil {
				return
			}
		}
		time.Sleep(3 * handshakeIdleGap)
		_, _ = peer.Write([]byte(`{"type":"message"}` + "\n"))
	}()

	name, err := conn.ReadHandshake(64)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(name))

	image, err := conn.ReadHandshake(1024)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(image))

	rec, err := conn.ReadRecord()
	require.NoError(t, err, "the idle deadline must not outlive the handshake step")
	assert.Equal(t, `{"type":"message"}`, string(rec))
}

func TestLineConnBufferIsSmall(t *testing.T) {
	t.Parallel()

	conn, _ := newPipe(t, 1<<20)
	assert.Equal(t, readBufferSize, conn.br.Size())
}
