// Copyright © 2021 Kris Nóva <kris@nivenly.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// ────────────────────────────────────────────────────────────────────────────
//
//  ████████╗██╗    ██╗██╗███╗   ██╗██╗  ██╗
//  ╚══██╔══╝██║    ██║██║████╗  ██║╚██╗██╔╝
//     ██║   ██║ █╗ ██║██║██╔██╗ ██║ ╚███╔╝
//     ██║   ██║███╗██║██║██║╚██╗██║ ██╔██╗
//     ██║   ╚███╔███╔╝██║██║ ╚████║██╔╝ ██╗
//     ╚═╝    ╚══╝╚══╝ ╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝
//
// ────────────────────────────────────────────────────────────────────────────

package rtmp

import (
	"sync"
	"sync/atomic"

	"github.com/gwuhaolin/livego/utils/pio"
)

const (
	// DefaultMaxOutstandingBuffers caps how many scratch buffers the pool hands
	// out before Obtain falls back to transient allocations.
	DefaultMaxOutstandingBuffers int = 1024

	defaultBufferCapacity int = 4 * 1024
)

// Buffer is a growable scratch buffer used to build outgoing bytes.
// Buffers come from a BufferPool and go back with Recycle.
type Buffer struct {
	buf    []byte
	pooled bool
}

func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// extend grows the buffer by k bytes and returns the new tail.
func (b *Buffer) extend(k int) []byte {
	n := len(b.buf)
	if cap(b.buf)-n < k {
		grown := make([]byte, n, 2*cap(b.buf)+k)
		copy(grown, b.buf)
		b.buf = grown
	}
	b.buf = b.buf[:n+k]
	return b.buf[n:]
}

func (b *Buffer) Write(p []byte) (int, error) {
	copy(b.extend(len(p)), p)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	b.extend(1)[0] = c
	return nil
}

func (b *Buffer) WriteU16BE(v uint16) {
	pio.PutU16BE(b.extend(2), v)
}

func (b *Buffer) WriteU24BE(v uint32) {
	pio.PutU24BE(b.extend(3), v)
}

func (b *Buffer) WriteU32BE(v uint32) {
	pio.PutU32BE(b.extend(4), v)
}

func (b *Buffer) WriteU32LE(v uint32) {
	pio.PutU32LE(b.extend(4), v)
}

// BufferPool hands out scratch Buffers and the byte arrays behind RentedBuffers.
//
// The number of pooled scratch buffers in use at once is bounded. Once the
// bound is reached Obtain returns a transient buffer instead of blocking.
type BufferPool struct {
	maxOutstanding int32
	outstanding    int32

	buffers sync.Pool
	arrays  sync.Pool

	rented   int64
	recycled int64
}

func NewBufferPool(maxOutstanding int) *BufferPool {
	if maxOutstanding <= 0 {
		maxOutstanding = DefaultMaxOutstandingBuffers
	}
	return &BufferPool{
		maxOutstanding: int32(maxOutstanding),
		buffers: sync.Pool{
			New: func() interface{} {
				return &Buffer{buf: make([]byte, 0, defaultBufferCapacity)}
			},
		},
	}
}

// Obtain returns an empty scratch buffer.
func (p *BufferPool) Obtain() *Buffer {
	if atomic.AddInt32(&p.outstanding, 1) > p.maxOutstanding {
		atomic.AddInt32(&p.outstanding, -1)
		return &Buffer{buf: make([]byte, 0, defaultBufferCapacity)}
	}
	b := p.buffers.Get().(*Buffer)
	b.pooled = true
	b.Reset()
	return b
}

// Recycle gives a buffer back. Transient buffers are left to the GC.
func (p *BufferPool) Recycle(b *Buffer) {
	if b == nil || !b.pooled {
		return
	}
	b.pooled = false
	b.Reset()
	atomic.AddInt32(&p.outstanding, -1)
	p.buffers.Put(b)
}

// OutstandingBuffers is the number of pooled scratch buffers not yet recycled.
func (p *BufferPool) OutstandingBuffers() int {
	return int(atomic.LoadInt32(&p.outstanding))
}

// Rent returns a RentedBuffer of size bytes held by claims owners.
func (p *BufferPool) Rent(size int, claims int32) *RentedBuffer {
	if claims <= 0 {
		panic("rtmp: rented buffer needs at least one claim")
	}
	var arr []byte
	if v, ok := p.arrays.Get().(*[]byte); ok && cap(*v) >= size {
		arr = (*v)[:size]
	} else {
		arr = make([]byte, size)
	}
	atomic.AddInt64(&p.rented, 1)
	return &RentedBuffer{
		claims: claims,
		buf:    arr,
		size:   size,
		pool:   p,
	}
}

// RentFrom copies the contents of b into a new RentedBuffer.
func (p *BufferPool) RentFrom(b *Buffer, claims int32) *RentedBuffer {
	r := p.Rent(b.Len(), claims)
	copy(r.buf, b.Bytes())
	return r
}

func (p *BufferPool) release(arr []byte) {
	atomic.AddInt64(&p.recycled, 1)
	arr = arr[:0]
	p.arrays.Put(&arr)
}

// Outstanding is the number of rented buffers whose claims have not all been released.
func (p *BufferPool) Outstanding() int64 {
	return atomic.LoadInt64(&p.rented) - atomic.LoadInt64(&p.recycled)
}

// Recycled is the number of rented buffers returned to the pool so far.
func (p *BufferPool) Recycled() int64 {
	return atomic.LoadInt64(&p.recycled)
}

// noCopy makes go vet complain about copies of the structs that embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// RentedBuffer is a pooled byte array shared by several owners.
//
// Every owner holds one claim. The array goes back to the pool when the
// last claim is released, and must not be touched after that.
type RentedBuffer struct {
	noCopy noCopy

	claims int32
	buf    []byte
	size   int
	pool   *BufferPool
}

func (r *RentedBuffer) Bytes() []byte {
	return r.buf[:r.size]
}

func (r *RentedBuffer) Size() int {
	return r.size
}

// Claims is the current claim count. Only meaningful in tests and logs.
func (r *RentedBuffer) Claims() int32 {
	return atomic.LoadInt32(&r.claims)
}

// Claim adds an owner. Claiming a released buffer is a bug and panics.
func (r *RentedBuffer) Claim() {
	for {
		c := atomic.LoadInt32(&r.claims)
		if c <= 0 {
			panic("rtmp: claim on a released buffer")
		}
		if atomic.CompareAndSwapInt32(&r.claims, c, c+1) {
			return
		}
	}
}

// Unclaim drops an owner and recycles the array when none are left.
func (r *RentedBuffer) Unclaim() {
	c := atomic.AddInt32(&r.claims, -1)
	if c > 0 {
		return
	}
	if c < 0 {
		panic("rtmp: unclaim on a released buffer")
	}
	arr := r.buf
	r.buf = nil
	r.pool.release(arr)
}
