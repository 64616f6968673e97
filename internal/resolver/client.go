// Package resolver forwards a single Question to an upstream DNS server
// over TCP and caches the result.
package resolver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dnsscience/tacodnsd/internal/metrics"
	"github.com/dnsscience/tacodnsd/internal/pool"
	"github.com/dnsscience/tacodnsd/internal/random"
	"github.com/dnsscience/tacodnsd/internal/wire"
)

// One error per non-zero upstream rcode.
var (
	ErrFormatError    = errors.New("resolver: upstream returned FORMERR")
	ErrServerFailure  = errors.New("resolver: upstream returned SERVFAIL")
	ErrNameError      = errors.New("resolver: upstream returned NXDOMAIN")
	ErrNotImplemented = errors.New("resolver: upstream returned NOTIMP")
	ErrRefused        = errors.New("resolver: upstream returned REFUSED")
)

func rcodeError(rcode uint8) error {
	switch rcode {
	case 1:
		return ErrFormatError
	case 2:
		return ErrServerFailure
	case 3:
		return ErrNameError
	case 4:
		return ErrNotImplemented
	case 5:
		return ErrRefused
	default:
		return ErrServerFailure
	}
}

// DefaultTimeout bounds the dial and the whole round trip when the caller's
// context carries no deadline of its own.
const DefaultTimeout = 5 * time.Second

// Client forwards questions to whatever upstream a caller names and caches
// the answers. The globally configured resolver is just this type used with
// one fixed server string everywhere except RNS delegation, which names a
// different server per zone.
type Client struct {
	Cache   *Cache
	Timeout time.Duration
}

// NewClient returns a Client with an empty cache.
func NewClient() *Client {
	return &Client{Cache: NewCache(), Timeout: DefaultTimeout}
}

// Resolve answers q via server ("host:port"), consulting the cache first
// and falling back to a length-framed TCP round trip on a miss.
func (c *Client) Resolve(ctx context.Context, server string, q wire.Question) (Result, error) {
	key := cacheKeyFor(q)
	now := time.Now()
	if res, ok := c.Cache.Get(key, now); ok {
		metrics.CacheHitsTotal.Inc()
		return res, nil
	}
	metrics.CacheMissesTotal.Inc()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", server)
	if err != nil {
		return Result{}, fmt.Errorf("%w: dial %s: %v", ErrServerFailure, server, err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	conn.SetDeadline(deadline)

	query := &wire.Message{
		Header:   wire.Header{ID: random.TransactionID(), RD: true},
		Question: []wire.Question{q},
	}
	payload := wire.Encode(query, wire.TCP)

	framed := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(framed[:2], uint16(len(payload)))
	copy(framed[2:], payload)
	if _, err := conn.Write(framed); err != nil {
		return Result{}, fmt.Errorf("%w: write: %v", ErrServerFailure, err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return Result{}, fmt.Errorf("%w: read length: %v", ErrServerFailure, err)
	}
	respLen := int(binary.BigEndian.Uint16(lenBuf[:]))
	respBuf := pool.GetBuffer(respLen)[:respLen]
	defer pool.PutBuffer(respBuf)
	if _, err := io.ReadFull(conn, respBuf); err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrServerFailure, err)
	}

	resp, err := wire.Decode(respBuf)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode: %v", ErrServerFailure, err)
	}
	if resp.Header.Rcode != 0 {
		return Result{}, rcodeError(resp.Header.Rcode)
	}

	result := Result{Answer: resp.Answer, Authority: resp.Authority, Additional: resp.Additional}
	c.Cache.Put(key, result, now, leastTTL(resp))
	return result, nil
}
