// Package engine drives per-question resolution: zone dispatch, CNAME/ANAME
// chasing, NS-glue assembly, and RNS (recursive nameserver) fallback. It is
// the glue between internal/config (what a zone claims), internal/zonematch
// (whether a query name is claimed) and internal/resolver (upstream fallback
// and caching).
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dnsscience/tacodnsd/internal/config"
	"github.com/dnsscience/tacodnsd/internal/resolver"
	"github.com/dnsscience/tacodnsd/internal/wire"
	"github.com/dnsscience/tacodnsd/internal/zonematch"
	"golang.org/x/sync/errgroup"
)

// ErrNotImplemented is returned for questions this server declines to
// answer at all, e.g. a non-IN query class.
var ErrNotImplemented = errors.New("engine: not implemented")

// Engine ties a parsed Configuration to a resolver.Client for upstream
// fallback. It holds no other mutable state; a single Engine is safe to
// share across worker goroutines.
type Engine struct {
	Config *config.Config

	// Resolver forwards and caches questions this engine can't answer
	// locally, whether to the globally configured resolver or to a
	// per-zone RNS endpoint.
	Resolver *resolver.Client

	// UpstreamAddr is the globally configured recursive resolver: the
	// fallback used for CNAME/ANAME chase misses and for "external" RNS
	// hostname lookups.
	UpstreamAddr string
}

// Handle answers one decoded request message in full: per-question dispatch
// followed by a pass that fills an empty authority section with the zone's
// NS records. It never returns an error; failures are reflected as an rcode
// on the returned message.
func (e *Engine) Handle(ctx context.Context, req *wire.Message) *wire.Message {
	resp := &wire.Message{
		Header:   wire.Header{ID: req.Header.ID, RD: req.Header.RD, Opcode: req.Header.Opcode},
		Question: req.Question,
		EDNS:     req.EDNS,
	}

	if len(req.Question) != 1 {
		resp.Header.Rcode = rcodeFormatError
		return resp
	}
	q := req.Question[0]

	answer, authority, additional, err := e.Resolve(ctx, q)
	if err != nil {
		resp.Header.Rcode = rcodeServerFailure
		return resp
	}

	if len(authority) == 0 && q.Type != wire.TypeNS {
		_, nsAuth, nsAdd, nsErr := e.Resolve(ctx, wire.Question{Name: q.Name, Type: wire.TypeNS, Class: q.Class})
		if nsErr == nil {
			authority = append(authority, nsAuth...)
			additional = append(additional, nsAdd...)
		}
	}

	resp.Answer = answer
	resp.Authority = authority
	resp.Additional = additional
	resp.Header.QR = true
	resp.Header.AA = true
	resp.Header.RA = false
	resp.Header.Rcode = 0
	return resp
}

// Rcodes the engine itself is willing to set on a response; anything else
// (NXDOMAIN included) is a matter for an upstream server, never this one.
const (
	rcodeFormatError   = 1
	rcodeServerFailure = 2
)

// Resolve dispatches a single Question against the configuration, returning
// the answer, authority and additional record lists. Zones are tried in
// configuration order; the first zone whose dispatch produces any answer or
// authority record wins and stops the scan.
func (e *Engine) Resolve(ctx context.Context, q wire.Question) (answer, authority, additional []wire.Resource, err error) {
	if q.Class != wire.ClassIN {
		return nil, nil, nil, ErrNotImplemented
	}

	labels := splitLabels(q.Name)

	for _, zone := range e.Config.Zones {
		ok, merr := zonematch.MatchAny(zone.Matchers, labels)
		if merr != nil {
			return nil, nil, nil, merr
		}
		if !ok {
			continue
		}

		ans, auth, add, derr := e.dispatchZone(ctx, zone, q)
		if derr != nil {
			return nil, nil, nil, derr
		}
		if len(ans) > 0 || len(auth) > 0 {
			return ans, auth, add, nil
		}
	}

	return nil, nil, nil, nil
}

// dispatchZone runs the first applicable branch for one matched zone:
// CNAME rewriting beats ANAME flattening beats direct type lookup, with RNS
// delegation as the last resort.
func (e *Engine) dispatchZone(ctx context.Context, zone *config.Zone, q wire.Question) (answer, authority, additional []wire.Resource, err error) {
	recs := zone.Records

	switch {
	case len(recs.CNAME) > 0 && q.Type != wire.TypeCNAME:
		for _, cname := range recs.CNAME {
			target := canonicalName(rewriteXName(cname.Target, q.Name))

			answer = append(answer, wire.Resource{
				Name:  q.Name,
				Type:  wire.TypeCNAME,
				Class: wire.ClassIN,
				TTL:   ttlSeconds(cname.TTL),
				RData: wire.EncodeName(target),
			})

			targetQ := wire.Question{Name: target, Type: q.Type, Class: q.Class}
			innerAns, innerAuth, _, ierr := e.Resolve(ctx, targetQ)
			if ierr != nil {
				return nil, nil, nil, ierr
			}
			if len(innerAns) == 0 && len(innerAuth) == 0 {
				if result, rerr := e.Resolver.Resolve(ctx, e.UpstreamAddr, targetQ); rerr == nil {
					answer = append(answer, result.Answer...)
				}
			} else {
				answer = append(answer, innerAns...)
			}
		}

	case (q.Type == wire.TypeA || q.Type == wire.TypeAAAA) && len(recs.ANAME) > 0:
		for _, aname := range recs.ANAME {
			target := canonicalName(rewriteXName(aname.Target, q.Name))
			targetQ := wire.Question{Name: target, Type: q.Type, Class: q.Class}

			innerAns, innerAuth, _, ierr := e.Resolve(ctx, targetQ)
			if ierr != nil {
				return nil, nil, nil, ierr
			}

			var resources []wire.Resource
			if len(innerAns) == 0 && len(innerAuth) == 0 {
				if result, rerr := e.Resolver.Resolve(ctx, e.UpstreamAddr, targetQ); rerr == nil {
					resources = result.Answer
				}
			} else {
				resources = innerAns
			}

			for _, r := range resources {
				r.Name = q.Name
				answer = append(answer, r)
			}
		}

	default:
		answer, authority, additional, err = e.resolveDirect(ctx, recs, q)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	// RNS delegation is the last resort whichever branch ran: a failed
	// ANAME chase leaves the sections as empty as a missing record type
	// does. The CNAME branch never gets here, since it always emits the
	// CNAME record itself.
	if len(answer) == 0 && len(authority) == 0 && q.Type != wire.TypeNS {
		rnsAns, rnsAuth, rerr := e.resolveRNS(ctx, zone, q)
		if rerr != nil {
			return nil, nil, nil, rerr
		}
		answer = append(answer, rnsAns...)
		authority = append(authority, rnsAuth...)
	}

	return answer, authority, additional, nil
}

// resolveDirect serves a question straight from the zone's record lists,
// with no aliasing involved.
func (e *Engine) resolveDirect(ctx context.Context, recs config.Records, q wire.Question) (answer, authority, additional []wire.Resource, err error) {
	switch q.Type {
	case wire.TypeA:
		for _, a := range recs.A {
			answer = append(answer, wire.Resource{
				Name: q.Name, Type: wire.TypeA, Class: wire.ClassIN,
				TTL: ttlSeconds(a.TTL), RData: append([]byte(nil), a.Addr[:]...),
			})
		}

	case wire.TypeAAAA:
		for _, aaaa := range recs.AAAA {
			answer = append(answer, wire.Resource{
				Name: q.Name, Type: wire.TypeAAAA, Class: wire.ClassIN,
				TTL: ttlSeconds(aaaa.TTL), RData: append([]byte(nil), aaaa.Addr[:]...),
			})
		}

	case wire.TypeNS:
		for _, ns := range recs.NS {
			authority = append(authority, wire.Resource{
				Name: q.Name, Type: wire.TypeNS, Class: wire.ClassIN,
				TTL: ttlSeconds(ns.TTL), RData: wire.EncodeName(canonicalName(ns.Name)),
			})

			glueA, glueAAAA, gerr := e.resolveGlue(ctx, ns.Name, q.Class)
			if gerr != nil {
				return nil, nil, nil, gerr
			}
			additional = append(additional, glueA...)
			additional = append(additional, glueAAAA...)
		}

	case wire.TypeMX:
		for _, mx := range recs.MX {
			rdata := make([]byte, 0, 2+len(mx.Host)+2)
			rdata = binary.BigEndian.AppendUint16(rdata, mx.Priority)
			rdata = append(rdata, wire.EncodeName(canonicalName(mx.Host))...)
			answer = append(answer, wire.Resource{
				Name: q.Name, Type: wire.TypeMX, Class: wire.ClassIN,
				TTL: ttlSeconds(mx.TTL), RData: rdata,
			})
		}

	case wire.TypeSOA, wire.TypeTXT, wire.TypeSRV:
		// No local records are served for these types.
	}

	return answer, authority, additional, nil
}

// resolveGlue resolves a delegated nameserver's A and AAAA records for the
// additional section. The two lookups are independent, so they run
// concurrently under one errgroup.
func (e *Engine) resolveGlue(ctx context.Context, name string, class uint16) (a, aaaa []wire.Resource, err error) {
	canon := canonicalName(name)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ans, _, _, rerr := e.Resolve(gctx, wire.Question{Name: canon, Type: wire.TypeA, Class: class})
		a = ans
		return rerr
	})
	g.Go(func() error {
		ans, _, _, rerr := e.Resolve(gctx, wire.Question{Name: canon, Type: wire.TypeAAAA, Class: class})
		aaaa = ans
		return rerr
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return a, aaaa, nil
}

// resolveRNS tries each of a zone's RNS delegations in configuration order,
// stopping at the first one that returns any records.
func (e *Engine) resolveRNS(ctx context.Context, zone *config.Zone, q wire.Question) (answer, authority []wire.Resource, err error) {
	for _, rns := range zone.Records.RNS {
		endpoint, ok := e.resolveRNSEndpoint(ctx, rns)
		if !ok {
			continue
		}

		result, rerr := e.Resolver.Resolve(ctx, endpoint, q)
		if rerr != nil {
			continue
		}
		if len(result.Answer) > 0 || len(result.Authority) > 0 {
			return result.Answer, result.Authority, nil
		}
	}
	return nil, nil, nil
}

// resolveRNSEndpoint turns an RNS directive into a dialable "host:port". A
// bare address resolves trivially; a hostname is looked up AAAA-then-A,
// either through this engine (internal zones may shadow the public name) or
// directly against the configured resolver when External is set.
func (e *Engine) resolveRNSEndpoint(ctx context.Context, rns config.RNSRecord) (string, bool) {
	if rns.Host.Kind == config.RNSAddr {
		return net.JoinHostPort(rns.Host.Addr, portString(rns.Host.Port)), true
	}

	name := canonicalName(rns.Host.Host)
	lookup := func(qtype uint16) []wire.Resource {
		q := wire.Question{Name: name, Type: qtype, Class: wire.ClassIN}
		if rns.External {
			result, err := e.Resolver.Resolve(ctx, e.UpstreamAddr, q)
			if err != nil {
				return nil
			}
			return result.Answer
		}
		ans, _, _, err := e.Resolve(ctx, q)
		if err != nil {
			return nil
		}
		return ans
	}

	for _, rr := range lookup(wire.TypeAAAA) {
		if rr.Type == wire.TypeAAAA && len(rr.RData) == 16 {
			return net.JoinHostPort(net.IP(rr.RData).String(), portString(rns.Host.Port)), true
		}
	}
	for _, rr := range lookup(wire.TypeA) {
		if rr.Type == wire.TypeA && len(rr.RData) == 4 {
			return net.JoinHostPort(net.IP(rr.RData).String(), portString(rns.Host.Port)), true
		}
	}
	return "", false
}

func portString(p uint16) string {
	return strconv.Itoa(int(p))
}

func ttlSeconds(d time.Duration) uint32 {
	return uint32(d / time.Second)
}

// splitLabels turns a canonical dotted name ("www.example.com.") into its
// ordered labels (["www","example","com"]), matching the wire codec's
// "trailing-dot, no compression" name form. The root name yields no labels.
func splitLabels(name string) []string {
	trimmed := strings.TrimSuffix(name, ".")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ".")
}

// canonicalName ensures name carries the trailing dot the wire codec and
// this engine's Question.Name fields always use.
func canonicalName(name string) string {
	if name == "" || name == "." {
		return "."
	}
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// rewriteXName rewrites a CNAME/ANAME target: an absolute destination
// (trailing dot) loses the dot and is used as-is; a relative one is anchored
// under the parent of the current qname (qname with its leftmost label
// dropped).
func rewriteXName(dest, qname string) string {
	if strings.HasSuffix(dest, ".") {
		return strings.TrimSuffix(dest, ".")
	}
	parent := parentOf(qname)
	if parent == "" {
		return dest
	}
	return dest + "." + parent
}

func parentOf(qname string) string {
	trimmed := strings.TrimSuffix(qname, ".")
	idx := strings.IndexByte(trimmed, '.')
	if idx < 0 {
		return ""
	}
	return trimmed[idx+1:]
}
