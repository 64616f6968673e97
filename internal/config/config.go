// Package config loads the YAML zone configuration document: the set of
// zones a server answers for, each keyed by a matcher expression (see
// internal/zonematch) and holding the records that expression claims.
package config

import (
	"time"

	"github.com/dnsscience/tacodnsd/internal/zonematch"
)

// DefaultTTL is used for any record that does not specify its own TTL and
// whose zone does not override the document-level default either.
const DefaultTTL = 30 * time.Minute

// ARecord is a single IPv4 answer.
type ARecord struct {
	TTL  time.Duration
	Addr [4]byte
}

// AAAARecord is a single IPv6 answer.
type AAAARecord struct {
	TTL  time.Duration
	Addr [16]byte
}

// NSRecord names a delegated nameserver.
type NSRecord struct {
	TTL  time.Duration
	Name string
}

// CNAMERecord points the owner name at another name, to be re-resolved.
type CNAMERecord struct {
	TTL    time.Duration
	Target string
}

// ANAMERecord behaves like CNAME but is allowed at a zone apex; it is
// flattened at the apex instead of emitted as a CNAME RR.
type ANAMERecord struct {
	TTL    time.Duration
	Target string
}

// MXRecord is a mail exchange, with lower Priority preferred.
type MXRecord struct {
	TTL      time.Duration
	Priority uint16
	Host     string
}

// TXTRecord carries free-form text data.
type TXTRecord struct {
	TTL  time.Duration
	Data string
}

// RNSKind tags which form an RNSHost takes.
type RNSKind int

const (
	// RNSAddr is a bare IP address upstream, e.g. "8.8.8.8".
	RNSAddr RNSKind = iota
	// RNSHostname is a DNS name upstream that itself needs resolving.
	RNSHostname
)

// RNSHost is the upstream a RNS record forwards a subtree to.
type RNSHost struct {
	Kind RNSKind
	Addr string // RNSAddr: dotted IP, no port
	Host string // RNSHostname: bare name, no port
	Port uint16
}

// RNSRecord delegates resolution of everything the zone matches to another
// nameserver, instead of answering from local records.
type RNSRecord struct {
	TTL      time.Duration
	Host     RNSHost
	External bool
}

// Records is the full set of record lists a zone may hold. Dispatch order
// between these (CNAME beats direct types, etc.) is the resolution engine's
// concern, not this package's.
type Records struct {
	A     []ARecord
	AAAA  []AAAARecord
	NS    []NSRecord
	CNAME []CNAMERecord
	ANAME []ANAMERecord
	MX    []MXRecord
	TXT   []TXTRecord
	RNS   []RNSRecord
}

// Zone binds a set of matcher expressions to the records they claim. A
// query name is served by this zone if MatchAny succeeds against any one of
// Matchers.
type Zone struct {
	Expr     string
	Matchers []zonematch.Matcher
	Records  Records
}

// Config is a fully parsed configuration document: the default TTL and the
// ordered list of zones, in declaration order (order matters: zones are
// tried in this order, and the first matching zone that yields any answer
// or authority record wins).
type Config struct {
	TTL   time.Duration
	Zones []*Zone
}
