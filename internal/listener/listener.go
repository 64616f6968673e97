// Package listener accepts DNS queries over UDP and TCP and hands them off
// to a bounded worker pool.
package listener

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/dnsscience/tacodnsd/internal/engine"
	"github.com/dnsscience/tacodnsd/internal/metrics"
	"github.com/dnsscience/tacodnsd/internal/pool"
	"github.com/dnsscience/tacodnsd/internal/wire"
	"github.com/dnsscience/tacodnsd/internal/worker"
)

// Listener owns the UDP and TCP sockets and drives requests through an
// Engine via a worker.Pool. Both accept/read loops only ever do the accept
// (or datagram read) plus a handoff to the pool, so they stay responsive
// regardless of worker contention.
type Listener struct {
	Engine  *engine.Engine
	Pool    *worker.Pool
	Verbose bool

	udpConn *net.UDPConn
	tcpLn   net.Listener

	parseErrors atomic.Uint64
	writeErrors atomic.Uint64
}

// ListenUDP binds addr and starts the UDP datagram read loop in the
// background. One packet per datagram; the buffer is large enough to
// accommodate an EDNS-negotiated size above the default 512 bytes.
func (l *Listener) ListenUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	l.udpConn = conn

	go l.readUDP()
	return nil
}

// ListenTCP binds addr and starts the TCP accept loop in the background.
func (l *Listener) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	l.tcpLn = ln

	go l.acceptTCP()
	return nil
}

// Close shuts down both sockets. In-flight worker jobs are not waited on
// here; internal/server.Server.Stop closes the worker.Pool after this,
// which waits for the queued jobs to finish.
func (l *Listener) Close() error {
	var errs []error
	if l.udpConn != nil {
		if err := l.udpConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.tcpLn != nil {
		if err := l.tcpLn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Listener) readUDP() {
	for {
		buf := pool.GetLargeBuffer()
		n, addr, err := l.udpConn.ReadFromUDP(buf)
		if err != nil {
			pool.PutLargeBuffer(buf)
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		pool.PutLargeBuffer(buf)

		job := worker.JobFunc(func(ctx context.Context) error {
			return l.handleUDP(ctx, payload, addr)
		})
		if err := l.Pool.SubmitAsync(context.Background(), job); err != nil {
			log.Printf("listener: udp job dropped: %v", err)
		}
		metrics.WorkerQueueDepth.Set(float64(l.Pool.QueueDepth()))
	}
}

func (l *Listener) handleUDP(ctx context.Context, payload []byte, addr *net.UDPAddr) error {
	resp, err := l.handleMessage(ctx, "udp", payload)
	if err != nil {
		return nil // already logged/counted in handleMessage; nothing to reply with
	}

	out := wire.Encode(resp, wire.UDP)
	if resp.Header.TC {
		metrics.TruncationsTotal.Inc()
	}
	if _, err := l.udpConn.WriteToUDP(out, addr); err != nil {
		l.writeErrors.Add(1)
		return err
	}
	return nil
}

func (l *Listener) acceptTCP() {
	for {
		conn, err := l.tcpLn.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		job := worker.JobFunc(func(ctx context.Context) error {
			return l.handleTCPConn(ctx, conn)
		})
		if err := l.Pool.SubmitAsync(context.Background(), job); err != nil {
			log.Printf("listener: tcp job dropped: %v", err)
			conn.Close()
		}
		metrics.WorkerQueueDepth.Set(float64(l.Pool.QueueDepth()))
	}
}

func (l *Listener) handleTCPConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload := pool.GetBuffer(int(length))[:length]
	defer pool.PutBuffer(payload)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil
	}

	resp, err := l.handleMessage(ctx, "tcp", payload)
	if err != nil {
		return nil
	}

	out := wire.Encode(resp, wire.TCP)
	framed := make([]byte, 2+len(out))
	binary.BigEndian.PutUint16(framed[:2], uint16(len(out)))
	copy(framed[2:], out)

	if _, err := conn.Write(framed); err != nil {
		l.writeErrors.Add(1)
		return err
	}
	return nil
}

// handleMessage decodes, resolves and returns the response for one raw
// message, regardless of transport. A request with qr=true is treated as
// hostile (a possible reflection attempt) and dropped; a malformed request
// is dropped too.
func (l *Listener) handleMessage(ctx context.Context, transport string, payload []byte) (*wire.Message, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
	}()

	req, err := wire.Decode(payload)
	if err != nil {
		l.parseErrors.Add(1)
		metrics.ParseErrorsTotal.Inc()
		if l.Verbose {
			log.Printf("listener: %s: malformed request: %v", transport, err)
		}
		return nil, err
	}
	if req.Header.QR {
		if l.Verbose {
			log.Printf("listener: %s: dropping request with qr=1 (possible reflection)", transport)
		}
		return nil, errors.New("listener: request has qr=1")
	}

	if len(req.Question) > 0 {
		metrics.QueriesTotal.WithLabelValues(transport, wire.TypeName(req.Question[0].Type)).Inc()
		if l.Verbose {
			log.Printf("listener: %s: query %s %d", transport, req.Question[0].Name, req.Question[0].Type)
		}
	}

	resp := l.Engine.Handle(ctx, req)
	metrics.AnswersTotal.WithLabelValues(rcodeLabel(resp.Header.Rcode)).Inc()
	if l.Verbose {
		log.Printf("listener: %s: response rcode=%d answers=%d", transport, resp.Header.Rcode, len(resp.Answer))
	}
	return resp, nil
}

func rcodeLabel(rcode uint8) string {
	switch rcode {
	case 0:
		return "noerror"
	case 1:
		return "formerr"
	case 2:
		return "servfail"
	case 3:
		return "nxdomain"
	case 4:
		return "notimp"
	case 5:
		return "refused"
	default:
		return "other"
	}
}
