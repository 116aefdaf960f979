// ABOUTME: Fixed-size buffer pool shared by all backends
// ABOUTME: Non-blocking free/ready queues with ownership checks
package transport

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-capture/pkg/audio"
)

var (
	// ErrForeignBuffer is returned when a buffer is queued to a pool that does not own it
	ErrForeignBuffer = errors.New("transport: buffer does not belong to this stream")

	// ErrBufferNotDequeued is returned when a buffer is queued that is not held by the caller
	ErrBufferNotDequeued = errors.New("transport: buffer was not dequeued")
)

const (
	bufferFree uint32 = iota
	bufferReady
	bufferDequeued
)

// DefaultBufferCount is the number of buffers a backend pool holds
const DefaultBufferCount = 8

// bufferDuration is the longest period a backend pool buffer holds
const bufferDuration = 100 * time.Millisecond

// poolFrames returns the frames in one backend buffer at rate
func poolFrames(rate uint32) int {
	return int(time.Duration(rate) * bufferDuration / time.Second)
}

// Buffer is a capture buffer owned by a stream. A dequeued buffer is on loan
// to the caller until it is queued back.
type Buffer struct {
	Data   []byte // backing storage
	Size   uint32 // valid bytes in Data
	Stride uint32 // bytes per frame

	pool  *Pool
	state atomic.Uint32
}

// Bytes returns the valid data of the buffer
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.Size]
}

// PoolStats counts pool activity
type PoolStats struct {
	Filled   uint64 // buffers written by the backend
	Dequeued uint64 // buffers handed to the client
	Returned uint64 // buffers queued back by the client
	Overruns uint64 // backend writes, or parts of them, dropped because no buffer was free
}

// Pool is a fixed set of buffers moving between a free queue (backend side)
// and a ready queue (client side). No operation blocks or allocates.
type Pool struct {
	buffers []*Buffer
	free    chan *Buffer
	ready   chan *Buffer

	filled   atomic.Uint64
	dequeued atomic.Uint64
	returned atomic.Uint64
	overruns atomic.Uint64
}

// NewPool allocates count buffers of size bytes each
func NewPool(count, size int) *Pool {
	p := &Pool{
		buffers: make([]*Buffer, count),
		free:    make(chan *Buffer, count),
		ready:   make(chan *Buffer, count),
	}
	for i := range p.buffers {
		b := &Buffer{Data: make([]byte, size), pool: p}
		p.buffers[i] = b
		p.free <- b
	}
	return p
}

// Write copies data into free buffers and marks them ready. Data longer than
// a buffer is split on frame boundaries, and only whole frames of stride
// bytes are kept. It reports false when a piece found no free buffer.
func (p *Pool) Write(data []byte, stride uint32) bool {
	for {
		b := p.acquire()
		if b == nil {
			return false
		}
		n := copy(b.Data[:frameCapacity(len(b.Data), stride)], data)
		p.publish(b, n, stride)
		data = data[n:]
		if n == 0 || len(data) == 0 || len(data) < int(stride) {
			return true
		}
	}
}

// WriteFloat32 encodes samples into free buffers and marks them ready,
// splitting like Write
func (p *Pool) WriteFloat32(samples []float32, stride uint32) bool {
	frame := int(stride) / audio.Float32Width
	for {
		b := p.acquire()
		if b == nil {
			return false
		}
		n := min(frameCapacity(len(b.Data), stride)/audio.Float32Width, len(samples))
		p.publish(b, audio.Float32Bytes(b.Data, samples[:n]), stride)
		samples = samples[n:]
		if n == 0 || len(samples) == 0 || len(samples) < frame {
			return true
		}
	}
}

// frameCapacity is the usable byte size of a buffer holding whole frames
func frameCapacity(size int, stride uint32) int {
	if stride == 0 || size < int(stride) {
		return size
	}
	return size - size%int(stride)
}

func (p *Pool) acquire() *Buffer {
	select {
	case b := <-p.free:
		return b
	default:
		p.overruns.Add(1)
		return nil
	}
}

func (p *Pool) publish(b *Buffer, n int, stride uint32) {
	if stride > 0 {
		n -= n % int(stride)
	}
	b.Size = uint32(n)
	b.Stride = stride
	b.state.Store(bufferReady)
	p.filled.Add(1)
	p.ready <- b
}

// Dequeue returns the oldest ready buffer, or nil
func (p *Pool) Dequeue() *Buffer {
	select {
	case b := <-p.ready:
		b.state.Store(bufferDequeued)
		p.dequeued.Add(1)
		return b
	default:
		return nil
	}
}

// Queue returns a dequeued buffer to the free queue
func (p *Pool) Queue(b *Buffer) error {
	if b == nil || b.pool != p {
		return ErrForeignBuffer
	}
	if !b.state.CompareAndSwap(bufferDequeued, bufferFree) {
		return ErrBufferNotDequeued
	}
	p.returned.Add(1)
	p.free <- b
	return nil
}

// Flush moves every ready buffer back to the free queue
func (p *Pool) Flush() {
	for {
		select {
		case b := <-p.ready:
			b.state.Store(bufferFree)
			p.free <- b
		default:
			return
		}
	}
}

// Ready returns the number of buffers waiting to be dequeued
func (p *Pool) Ready() int {
	return len(p.ready)
}

// Stats returns pool counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Filled:   p.filled.Load(),
		Dequeued: p.dequeued.Load(),
		Returned: p.returned.Load(),
		Overruns: p.overruns.Load(),
	}
}

// poolStream implements the buffer half of Stream for backends that fill a Pool
type poolStream struct {
	pool atomic.Pointer[Pool]
}

// DequeueBuffer returns the next ready buffer, or nil when none is ready
func (s *poolStream) DequeueBuffer() (*Buffer, error) {
	p := s.pool.Load()
	if p == nil {
		return nil, ErrNotConnected
	}
	return p.Dequeue(), nil
}

// QueueBuffer hands a dequeued buffer back to the stream
func (s *poolStream) QueueBuffer(b *Buffer) error {
	p := s.pool.Load()
	if p == nil {
		return ErrNotConnected
	}
	return p.Queue(b)
}

// Stats returns the counters of the current pool
func (s *poolStream) Stats() PoolStats {
	p := s.pool.Load()
	if p == nil {
		return PoolStats{}
	}
	return p.Stats()
}
