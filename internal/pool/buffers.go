// Package pool reduces GC pressure on the hot query path with sync.Pool
// reuse of wire-size scratch buffers: the UDP read loop, the TCP request
// reader and the resolver client all borrow here instead of allocating a
// fresh slice per message.
package pool

import "sync"

const (
	// SmallBufferSize fits a plain UDP query, the common case.
	SmallBufferSize = 512
	// MediumBufferSize fits an EDNS-negotiated response.
	MediumBufferSize = 4096
	// LargeBufferSize is the DNS maximum message size.
	LargeBufferSize = 65535
)

var smallBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, SmallBufferSize)
		return &buf
	},
}

var mediumBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, MediumBufferSize)
		return &buf
	},
}

var largeBuffers = sync.Pool{
	New: func() any {
		buf := make([]byte, LargeBufferSize)
		return &buf
	},
}

// GetSmallBuffer returns a 512-byte scratch buffer.
func GetSmallBuffer() []byte {
	return (*smallBuffers.Get().(*[]byte))[:SmallBufferSize]
}

// PutSmallBuffer returns a buffer to the small pool. Undersized buffers are
// dropped rather than pooled.
func PutSmallBuffer(buf []byte) {
	if cap(buf) < SmallBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	smallBuffers.Put(&buf)
}

// GetMediumBuffer returns a 4096-byte scratch buffer.
func GetMediumBuffer() []byte {
	return (*mediumBuffers.Get().(*[]byte))[:MediumBufferSize]
}

// PutMediumBuffer returns a buffer to the medium pool.
func PutMediumBuffer(buf []byte) {
	if cap(buf) < MediumBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	mediumBuffers.Put(&buf)
}

// GetLargeBuffer returns a 65535-byte scratch buffer, enough for any DNS
// message on either transport.
func GetLargeBuffer() []byte {
	return (*largeBuffers.Get().(*[]byte))[:LargeBufferSize]
}

// PutLargeBuffer returns a buffer to the large pool.
func PutLargeBuffer(buf []byte) {
	if cap(buf) < LargeBufferSize {
		return
	}
	buf = buf[:cap(buf)]
	largeBuffers.Put(&buf)
}

// GetBuffer picks the smallest pool whose buffers hold size bytes.
func GetBuffer(size int) []byte {
	switch {
	case size <= SmallBufferSize:
		return GetSmallBuffer()
	case size <= MediumBufferSize:
		return GetMediumBuffer()
	default:
		return GetLargeBuffer()
	}
}

// PutBuffer routes a borrowed buffer back to the pool it came from. Buffers
// of any other capacity are dropped.
func PutBuffer(buf []byte) {
	switch cap(buf) {
	case SmallBufferSize:
		PutSmallBuffer(buf)
	case MediumBufferSize:
		PutMediumBuffer(buf)
	case LargeBufferSize:
		PutLargeBuffer(buf)
	}
}
