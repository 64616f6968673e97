// Package options parses the command-line surface with the standard flag
// package.
package options

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Options is the fully resolved set of CLI flags, each with a documented
// default, consumed by cmd/tacodnsd to build an internal/server.Server.
type Options struct {
	ListenAddress string
	ListenPort    uint16
	Verbose       bool
	ConfigPath    string
	ConfigEnv     string
	Threads       int
	Resolver      string
	MetricsAddr   string
}

// DefaultConfigPath is where the configuration document is read from when
// neither -config nor -config-env is given.
const DefaultConfigPath = "/etc/tacodns.yml"

// Parse parses args (typically os.Args[1:]) into an Options value.
// -resolver falls back to the first nameserver line of /etc/resolv.conf
// when unset.
func Parse(args []string) (*Options, error) {
	fs := flag.NewFlagSet("tacodnsd", flag.ContinueOnError)

	listenAddress := fs.String("listen-address", "0.0.0.0", "bind address for UDP and TCP")
	listenPort := fs.Uint("listen-port", 53, "bind port for UDP and TCP")
	verbose := fs.Bool("verbose", false, "emit per-request trace lines")
	configPath := fs.String("config", DefaultConfigPath, "path to the configuration document")
	configEnv := fs.String("config-env", "", "read configuration text from this environment variable instead of -config")
	threads := fs.Int("threads", 4, "worker pool size; must be >= 1")
	resolver := fs.String("resolver", "", "upstream recursive resolver (host:port); defaults to the first nameserver in /etc/resolv.conf")
	metricsAddr := fs.String("metrics-addr", "", "Prometheus metrics listen address; empty disables the metrics server")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *threads < 1 {
		return nil, fmt.Errorf("options: -threads must be >= 1, got %d", *threads)
	}

	opts := &Options{
		ListenAddress: *listenAddress,
		ListenPort:    uint16(*listenPort),
		Verbose:       *verbose,
		ConfigPath:    *configPath,
		ConfigEnv:     *configEnv,
		Threads:       *threads,
		Resolver:      *resolver,
		MetricsAddr:   *metricsAddr,
	}

	if opts.Resolver == "" {
		r, err := defaultResolver()
		if err != nil {
			return nil, fmt.Errorf("options: no -resolver given and none could be read from /etc/resolv.conf: %w", err)
		}
		opts.Resolver = r
	}

	return opts, nil
}

// defaultResolver reads the first "nameserver" line out of /etc/resolv.conf.
func defaultResolver() (string, error) {
	f, err := os.Open("/etc/resolv.conf")
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			return fields[1] + ":53", nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no nameserver line found")
}

// ListenAddr formats ListenAddress/ListenPort as a dial/listen string.
func (o *Options) ListenAddr() string {
	return o.ListenAddress + ":" + strconv.Itoa(int(o.ListenPort))
}
