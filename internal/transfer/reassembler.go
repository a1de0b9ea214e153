// Package transfer reassembles chunked file uploads and persists the result.
package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidTotal     = errors.New("total chunks must be positive")
	ErrTooManyChunks    = errors.New("total chunks exceeds limit")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")
	ErrTransferConflict = errors.New("transfer already in progress with a different chunk count")
	ErrPersist          = errors.New("persist assembled file")
)

// Store persists an assembled file and returns where it was written.
type Store interface {
	Save(fileName string, data []byte) (string, error)
}

// Assembled describes a completed and persisted transfer.
type Assembled struct {
	Recipient string
	FileName  string
	Path      string
	Size      int
}

type key struct {
	recipient string
	fileName  string
}

type pending struct {
	slots    [][]byte
	filled   int
	lastSeen time.Time
}

// Reassembler accumulates chunks per (recipient, file name) until every slot
// is filled. Index order, not arrival order, defines the byte order.
type Reassembler struct {
	store     Store
	maxChunks int
	now       func() time.Time

	mu      sync.Mutex
	pending map[key]*pending
}

// NewReassembler returns a Reassembler that writes completed files to store.
// maxChunks caps total_chunks so a single record cannot force a huge slot
// allocation; zero means no cap.
func NewReassembler(store Store, maxChunks int) *Reassembler {
	return &Reassembler{
		store:     store,
		maxChunks: maxChunks,
		now:       time.Now,
		pending:   make(map[key]*pending),
	}
}

// Ingest stores one chunk. It returns nil while the transfer is incomplete.
// When the last missing slot is filled the transfer is removed, assembled and
// persisted; a persistence failure is reported with ErrPersist and the bytes
// are discarded.
//
// A chunk for a key already in flight with a different total is rejected with
// ErrTransferConflict. A repeated index overwrites the earlier chunk.
func (r *Reassembler) Ingest(recipient, fileName string, index, total int, data []byte) (*Assembled, error) {
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	if r.maxChunks > 0 && total > r.maxChunks {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyChunks, total, r.maxChunks)
	}
	if index < 0 || index >= total {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrChunkOutOfRange, index, total)
	}

	slots, err := r.fill(key{recipient, fileName}, index, total, data)
	if err != nil || slots == nil {
		return nil, err
	}

	content := bytes.Join(slots, nil)
	path, err := r.store.Save(fileName, content)
	if err != nil {
		return nil, fmt.Errorf("%w %q for %s: %v", ErrPersist, fileName, recipient, err)
	}
	return &Assembled{Recipient: recipient, FileName: fileName, Path: path, Size: len(content)}, nil
}

// fill stores data and, once every slot is present, removes the transfer and
// returns its slots.
func (r *Reassembler) fill(k key, index, total int, data []byte) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[k]
	if !ok {
		p = &pending{slots: make([][]byte, total)}
		r.pending[k] = p
	} else if len(p.slots) != total {
		return nil, fmt.Errorf("%w: %q for %s has %d, got %d", ErrTransferConflict, k.fileName, k.recipient, len(p.slots), total)
	}

	if p.slots[index] == nil {
		p.filled++
	}
	if data == nil {
		data = []byte{}
	}
	p.slots[index] = data
	p.lastSeen = r.now()

	if p.filled < total {
		return nil, nil
	}
	delete(r.pending, k)
	return p.slots, nil
}

// Sweep discards transfers that have not received a chunk for longer than
// ttl and returns how many were dropped.
func (r *Reassembler) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for k, p := range r.pending {
		if p.lastSeen.Before(cutoff) {
			delete(r.pending, k)
			dropped++
		}
	}
	return dropped
}

// Pending returns the number of incomplete transfers.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
