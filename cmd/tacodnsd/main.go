package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnsscience/tacodnsd/internal/config"
	"github.com/dnsscience/tacodnsd/internal/options"
	"github.com/dnsscience/tacodnsd/internal/server"
)

func main() {
	opts, err := options.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tacodnsd: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     tacodnsd — authoritative DNS              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	doc, err := loadConfigDocument(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zones, err := config.Load(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Listen:     %s\n", opts.ListenAddr())
	fmt.Printf("  Threads:    %d\n", opts.Threads)
	fmt.Printf("  Resolver:   %s\n", opts.Resolver)
	fmt.Printf("  Zones:      %d\n", len(zones.Zones))
	fmt.Printf("  Verbose:    %v\n", opts.Verbose)
	if opts.MetricsAddr != "" {
		fmt.Printf("  Metrics:    %s\n", opts.MetricsAddr)
	}
	fmt.Println()

	srv, err := server.New(server.Config{
		Zones:        zones,
		ListenAddr:   opts.ListenAddr(),
		Threads:      opts.Threads,
		UpstreamAddr: opts.Resolver,
		Verbose:      opts.Verbose,
		MetricsAddr:  opts.MetricsAddr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting server: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("tacodnsd started")
	fmt.Println()

	go printStats(srv)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println()

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigDocument reads the raw YAML document text, preferring the
// -config-env environment variable over -config's file path.
func loadConfigDocument(opts *options.Options) ([]byte, error) {
	if opts.ConfigEnv != "" {
		val, ok := os.LookupEnv(opts.ConfigEnv)
		if !ok {
			return nil, fmt.Errorf("environment variable %q is not set", opts.ConfigEnv)
		}
		return []byte(val), nil
	}
	return os.ReadFile(opts.ConfigPath)
}

func printStats(srv *server.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastSubmitted uint64
	lastTime := time.Now()

	for range ticker.C {
		stats := srv.Stats()
		now := time.Now()
		elapsed := now.Sub(lastTime).Seconds()
		qps := float64(stats.Submitted-lastSubmitted) / elapsed

		fmt.Printf("═══════════════════════════════════════════════════════════\n")
		fmt.Printf("Statistics (%.1fs interval):\n", elapsed)
		fmt.Printf("  Queries:    %10d  (%.0f qps)\n", stats.Submitted, qps)
		fmt.Printf("  Completed:  %10d\n", stats.Completed)
		fmt.Printf("  Failed:     %10d\n", stats.Failed)
		fmt.Printf("  QueueDepth: %10d / %d\n", stats.QueueDepth, stats.QueueSize)
		fmt.Printf("═══════════════════════════════════════════════════════════\n\n")

		lastSubmitted = stats.Submitted
		lastTime = now
	}
}
