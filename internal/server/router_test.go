package server

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Jazzystic/robust-comm-system/internal/protocol"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Save(fileName string, data []byte) (string, error) {
	args := m.Called(fileName, data)
	return args.String(0), args.Error(1)
}

func newMockStoreHub(t *testing.T) (*Hub, *mockStore) {
	t.Helper()
	store := &mockStore{}
	t.Cleanup(func() { store.AssertExpectations(t) })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(*NewConfig(), store, logger), store
}

func sendChunks(h *Hub, from *Client, recipient, fileName string, parts ...string) {
	for i, p := range parts {
		h.dispatch(from, protocol.FileChunk{
			Recipient:   recipient,
			FileName:    fileName,
			ChunkNumber: i,
			TotalChunks: len(parts),
			Content:     base64.StdEncoding.EncodeToString([]byte(p)),
		})
	}
}

func TestFileNoticeUsesStoredPath(t *testing.T) {
	t.Parallel()
	h, store := newMockStoreHub(t)
	alice, bob := connect(t, h, "alice"), connect(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	store.On("Save", "report.pdf", []byte("ab")).Return("/srv/inbox/received_report.pdf", nil).Once()

	sendChunks(h, alice, "bob", "report.pdf", "a", "b")

	got := drain(t, bob)
	require.Len(t, got, 1)
	assert.Equal(t, "[File received: report.pdf]. Saved at: /srv/inbox/received_report.pdf", got[0]["content"])
}

func TestFilePersistFailureSendsNoNotice(t *testing.T) {
	t.Parallel()
	h, store := newMockStoreHub(t)
	alice, bob := connect(t, h, "alice"), connect(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	store.On("Save", "report.pdf", []byte("ab")).Return("", errors.New("disk full")).Once()

	sendChunks(h, alice, "bob", "report.pdf", "a", "b")

	assert.Empty(t, drain(t, bob))
	assert.Empty(t, drain(t, alice))
	assert.Zero(t, h.Stats().PendingTransfers)
	assert.Equal(t, 2, h.Stats().Sessions, "a storage failure never disconnects anyone")
}

func TestFileForOfflineRecipientIsStillStored(t *testing.T) {
	t.Parallel()
	h, store := newMockStoreHub(t)
	alice := connect(t, h, "alice")
	drain(t, alice)

	store.On("Save", "memo.txt", []byte("hello")).Return("/srv/inbox/received_memo.txt", nil).Once()

	sendChunks(h, alice, "carol", "memo.txt", "hel", "lo")

	assert.Empty(t, drain(t, alice))
}

func TestFileChunkOutOfRangeIsDropped(t *testing.T) {
	t.Parallel()
	h, _ := newMockStoreHub(t)
	alice, bob := connect(t, h, "alice"), connect(t, h, "bob")
	drain(t, alice)
	drain(t, bob)

	h.dispatch(alice, protocol.FileChunk{Recipient: "bob", FileName: "x", ChunkNumber: 5, TotalChunks: 2, Content: ""})
	h.dispatch(alice, protocol.FileChunk{Recipient: "bob", FileName: "x", ChunkNumber: 0, TotalChunks: 0, Content: ""})

	assert.Empty(t, drain(t, bob))
	assert.Zero(t, h.Stats().PendingTransfers)
}
