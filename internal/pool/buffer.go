package pool

import (
	"sync"
)

// Buffers hands out byte slices of one fixed length.
type Buffers struct {
	size int
	p    sync.Pool
}

// NewBuffers creates a pool of size byte buffers.
func NewBuffers(size int) *Buffers {
	b := &Buffers{size: size}
	b.p.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// Size returns the length of every buffer in the pool.
func (b *Buffers) Size() int {
	return b.size
}

// Get returns a buffer of full length. Its contents are unspecified.
// The caller is responsible for calling Put to return it.
func (b *Buffers) Get() *[]byte {
	bufPtr := b.p.Get().(*[]byte)
	*bufPtr = (*bufPtr)[:b.size]
	return bufPtr
}

// Put returns a buffer to the pool. Buffers of another capacity are
// dropped. The buffer should not be used after calling Put.
func (b *Buffers) Put(bufPtr *[]byte) {
	if bufPtr == nil || cap(*bufPtr) != b.size {
		return
	}
	b.p.Put(bufPtr)
}
