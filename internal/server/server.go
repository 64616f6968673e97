// Package server wires the listener, worker pool, resolution engine,
// resolver client and metrics into one process-lifetime object.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/dnsscience/tacodnsd/internal/config"
	"github.com/dnsscience/tacodnsd/internal/engine"
	"github.com/dnsscience/tacodnsd/internal/listener"
	"github.com/dnsscience/tacodnsd/internal/metrics"
	"github.com/dnsscience/tacodnsd/internal/resolver"
	"github.com/dnsscience/tacodnsd/internal/worker"
)

// Config holds everything needed to stand up a Server: the parsed zone
// configuration plus the runtime knobs that come from the CLI rather than
// the configuration document.
type Config struct {
	Zones *config.Config

	ListenAddr   string // shared bind address:port for both UDP and TCP
	Threads      int    // worker pool size, minimum 1
	UpstreamAddr string // the configured recursive resolver
	Verbose      bool
	MetricsAddr  string // optional; empty disables the metrics HTTP server
}

// Server owns the listener, worker pool, engine and (optionally) a metrics
// HTTP server for the process's lifetime.
type Server struct {
	cfg Config

	engine   *engine.Engine
	pool     *worker.Pool
	listener *listener.Listener
	metrics  *metrics.Server
}

// New builds a Server from cfg. Nothing is bound or started yet; call Start.
func New(cfg Config) (*Server, error) {
	if cfg.Threads < 1 {
		return nil, fmt.Errorf("server: threads must be >= 1, got %d", cfg.Threads)
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("server: ListenAddr is required")
	}
	if cfg.UpstreamAddr == "" {
		return nil, fmt.Errorf("server: UpstreamAddr is required")
	}

	eng := &engine.Engine{
		Config:       cfg.Zones,
		Resolver:     resolver.NewClient(),
		UpstreamAddr: cfg.UpstreamAddr,
	}

	pool := worker.NewPool(worker.Config{Workers: cfg.Threads})

	l := &listener.Listener{
		Engine:  eng,
		Pool:    pool,
		Verbose: cfg.Verbose,
	}

	s := &Server{cfg: cfg, engine: eng, pool: pool, listener: l}

	if cfg.MetricsAddr != "" {
		s.metrics = metrics.NewServer(cfg.MetricsAddr)
	}

	return s, nil
}

// Start binds the UDP and TCP sockets and, if configured, the metrics
// server. Both listeners share the same address and port.
func (s *Server) Start() error {
	if err := s.listener.ListenUDP(s.cfg.ListenAddr); err != nil {
		return fmt.Errorf("server: udp listen %s: %w", s.cfg.ListenAddr, err)
	}
	if err := s.listener.ListenTCP(s.cfg.ListenAddr); err != nil {
		return fmt.Errorf("server: tcp listen %s: %w", s.cfg.ListenAddr, err)
	}
	if s.metrics != nil {
		s.metrics.Start()
	}
	return nil
}

// Stop closes the listeners and drains the worker pool. Metrics, if
// running, are shut down with a bounded grace period.
func (s *Server) Stop() error {
	if err := s.listener.Close(); err != nil {
		return err
	}
	if err := s.pool.Close(); err != nil {
		return err
	}
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.metrics.Stop(ctx)
	}
	return nil
}

// Stats reports the worker pool's current statistics, used by the
// process's periodic stats printer.
func (s *Server) Stats() worker.Stats {
	return s.pool.GetStats()
}
