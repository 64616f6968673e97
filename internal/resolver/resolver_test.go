package resolver

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/dnsscience/tacodnsd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetMiss(t *testing.T) {
	c := NewCache()
	_, ok := c.Get(CacheKey{Name: "example.com."}, time.Now())
	assert.False(t, ok)
}

func TestCachePutGetDecrementsTTL(t *testing.T) {
	c := NewCache()
	key := CacheKey{Name: "example.com.", Type: wire.TypeA, Class: wire.ClassIN}
	now := time.Now()

	c.Put(key, Result{Answer: []wire.Resource{{Name: "example.com.", TTL: 100}}}, now, 100)

	res, ok := c.Get(key, now.Add(10*time.Second))
	require.True(t, ok)
	require.Len(t, res.Answer, 1)
	assert.Equal(t, uint32(90), res.Answer[0].TTL)
}

func TestCacheGetExpires(t *testing.T) {
	c := NewCache()
	key := CacheKey{Name: "example.com."}
	now := time.Now()

	c.Put(key, Result{Answer: []wire.Resource{{TTL: 5}}}, now, 5)

	_, ok := c.Get(key, now.Add(10*time.Second))
	assert.False(t, ok, "entry should have expired")
}

func TestCacheTTLNeverGoesNegative(t *testing.T) {
	c := NewCache()
	key := CacheKey{Name: "example.com."}
	now := time.Now()

	c.Put(key, Result{Answer: []wire.Resource{{TTL: 5}}}, now, 100)

	res, ok := c.Get(key, now.Add(50*time.Second))
	require.True(t, ok)
	assert.Equal(t, uint32(0), res.Answer[0].TTL)
}

func TestRcodeError(t *testing.T) {
	cases := map[uint8]error{
		1: ErrFormatError,
		2: ErrServerFailure,
		3: ErrNameError,
		4: ErrNotImplemented,
		5: ErrRefused,
		9: ErrServerFailure,
	}
	for rcode, want := range cases {
		assert.Equal(t, want, rcodeError(rcode))
	}
}

// fakeUpstream starts a TCP listener that answers every query with a single
// A record, framed per the 2-byte length prefix this client expects.
func fakeUpstream(t *testing.T, answerTTL uint32) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var lenBuf [2]byte
		if _, err := conn.Read(lenBuf[:]); err != nil {
			return
		}
		qLen := binary.BigEndian.Uint16(lenBuf[:])
		qBuf := make([]byte, qLen)
		if _, err := conn.Read(qBuf); err != nil {
			return
		}
		q, err := wire.Decode(qBuf)
		if err != nil {
			return
		}

		resp := &wire.Message{
			Header:   wire.Header{ID: q.Header.ID, QR: true, RD: true, RA: true},
			Question: q.Question,
			Answer: []wire.Resource{
				{Name: q.Question[0].Name, Type: wire.TypeA, Class: wire.ClassIN, TTL: answerTTL, RData: []byte{10, 0, 0, 1}},
			},
		}
		out := wire.Encode(resp, wire.TCP)
		framed := make([]byte, 2+len(out))
		binary.BigEndian.PutUint16(framed[:2], uint16(len(out)))
		copy(framed[2:], out)
		conn.Write(framed)
	}()

	return ln.Addr().String()
}

func TestClientResolveAndCache(t *testing.T) {
	addr := fakeUpstream(t, 300)
	client := NewClient()

	q := wire.Question{Name: "example.com.", Type: wire.TypeA, Class: wire.ClassIN}
	res, err := client.Resolve(context.Background(), addr, q)
	require.NoError(t, err)
	require.Len(t, res.Answer, 1)
	assert.Equal(t, "example.com.", res.Answer[0].Name)
	assert.Equal(t, []byte{10, 0, 0, 1}, res.Answer[0].RData)

	// Second call should be served from cache without dialing anything.
	res2, err := client.Resolve(context.Background(), addr, q)
	require.NoError(t, err)
	assert.LessOrEqual(t, res2.Answer[0].TTL, uint32(300))
}

func TestClientResolveDialFailure(t *testing.T) {
	client := NewClient()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := client.Resolve(ctx, "127.0.0.1:1", wire.Question{Name: "example.com.", Type: wire.TypeA, Class: wire.ClassIN})
	assert.Error(t, err)
}
