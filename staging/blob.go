package staging

import (
	"errors"
	"sync"
)

var ErrBlobReleased = errors.New("blob already released")

// Blob holds the bytes of a file that was staged but not uploaded yet. It is
// released when its image is removed or the store is torn down; after that
// the bytes are gone and every read fails.
type Blob struct {
	mu       sync.RWMutex
	data     []byte
	size     int64
	released bool
}

func NewBlob(data []byte) *Blob {
	return &Blob{data: data, size: int64(len(data))}
}

// Bytes returns the staged content. The slice must not be modified.
func (b *Blob) Bytes() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.released {
		return nil, ErrBlobReleased
	}
	return b.data, nil
}

func (b *Blob) Size() int64 {
	return b.size
}

// Release drops the content. Calling it more than once is harmless.
func (b *Blob) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = nil
	b.released = true
}

func (b *Blob) Released() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.released
}
