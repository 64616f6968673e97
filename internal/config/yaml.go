package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load parses a configuration document of the shape:
//
//	ttl: 1h          # optional, document-wide default
//	zones:
//	  "example.com":
//	    A: 10.0.0.1
//	    NS: ns1.example.com
//	  "*.example.com":
//	    A:
//	      - 10.0.0.2
//	      - 10.0.0.3 5m
//
// Key order is preserved (zones are tried in declaration order), which is why this
// walks yaml.Node mappings directly instead of decoding into a Go map.
func Load(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("config: empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: document root must be a mapping")
	}

	cfg := &Config{TTL: DefaultTTL}
	var zonesNode *yaml.Node

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		val := root.Content[i+1]
		switch key.Value {
		case "ttl":
			ttl, err := parseTTLNode(val)
			if err != nil {
				return nil, fmt.Errorf("config: ttl: %w", err)
			}
			cfg.TTL = ttl
		case "zones":
			zonesNode = val
		}
	}
	if zonesNode == nil {
		return nil, fmt.Errorf("config: missing \"zones\"")
	}
	if zonesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config: \"zones\" must be a mapping")
	}

	for i := 0; i+1 < len(zonesNode.Content); i += 2 {
		keyNode := zonesNode.Content[i]
		valNode := zonesNode.Content[i+1]

		expr, zoneTTL, _ := parseValueTTL(keyNode.Value, cfg.TTL)
		matchers, err := parseMatchers(expr)
		if err != nil {
			return nil, err
		}
		if valNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config: zone %q: records must be a mapping", expr)
		}
		records, err := parseRecords(valNode, zoneTTL)
		if err != nil {
			return nil, fmt.Errorf("config: zone %q: %w", expr, err)
		}

		cfg.Zones = append(cfg.Zones, &Zone{Expr: expr, Matchers: matchers, Records: *records})
	}

	return cfg, nil
}

func parseTTLNode(n *yaml.Node) (time.Duration, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("expected a scalar")
	}
	d, err := ParseTTL(n.Value)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// parseValueTTL splits a "value [flags...] [ttl]" string into its leading
// value, the effective TTL (parsed from the trailing token, falling back to
// defaultTTL), and whatever flag tokens sit between them.
func parseValueTTL(s string, defaultTTL time.Duration) (value string, ttl time.Duration, flags []string) {
	parts := strings.Fields(s)
	if len(parts) == 0 {
		return "", defaultTTL, nil
	}
	value = parts[0]
	last := parts[len(parts)-1]

	if d, err := ParseTTL(last); err == nil {
		ttl = d
		flags = append([]string{}, parts[1:len(parts)-1]...)
	} else {
		ttl = defaultTTL
		flags = append([]string{}, parts[1:]...)
	}
	return value, ttl, flags
}

// entries normalizes a record value node to a slice: a null node yields
// none, a scalar yields itself, and a sequence yields its items.
func entries(n *yaml.Node) []*yaml.Node {
	switch n.Kind {
	case yaml.SequenceNode:
		return n.Content
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		return []*yaml.Node{n}
	default:
		return []*yaml.Node{n}
	}
}

func parseRecords(node *yaml.Node, zoneTTL time.Duration) (*Records, error) {
	rec := &Records{}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valNode := node.Content[i+1]

		typeName, recordTTL, _ := parseValueTTL(keyNode.Value, zoneTTL)
		typeName = strings.ToUpper(typeName)

		for _, e := range entries(valNode) {
			var err error
			switch typeName {
			case "A":
				err = parseA(rec, e, recordTTL)
			case "AAAA":
				err = parseAAAA(rec, e, recordTTL)
			case "NS":
				err = parseNS(rec, e, recordTTL)
			case "CNAME":
				err = parseCNAME(rec, e, recordTTL)
			case "ANAME":
				err = parseANAME(rec, e, recordTTL)
			case "MX":
				err = parseMX(rec, e, recordTTL)
			case "TXT":
				err = parseTXT(rec, e, recordTTL)
			case "RNS":
				err = parseRNS(rec, e, recordTTL)
			default:
				err = fmt.Errorf("unknown record type %q", typeName)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

func parseA(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, _ := parseValueTTL(n.Value, ttl)
	ip := net.ParseIP(value).To4()
	if ip == nil {
		return fmt.Errorf("A record %q is not a valid IPv4 address", value)
	}
	var addr [4]byte
	copy(addr[:], ip)
	rec.A = append(rec.A, ARecord{TTL: recTTL, Addr: addr})
	return nil
}

func parseAAAA(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, _ := parseValueTTL(n.Value, ttl)
	ip := net.ParseIP(value).To16()
	if ip == nil {
		return fmt.Errorf("AAAA record %q is not a valid IPv6 address", value)
	}
	var addr [16]byte
	copy(addr[:], ip)
	rec.AAAA = append(rec.AAAA, AAAARecord{TTL: recTTL, Addr: addr})
	return nil
}

func parseNS(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, _ := parseValueTTL(n.Value, ttl)
	rec.NS = append(rec.NS, NSRecord{TTL: recTTL, Name: value})
	return nil
}

func parseCNAME(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, _ := parseValueTTL(n.Value, ttl)
	rec.CNAME = append(rec.CNAME, CNAMERecord{TTL: recTTL, Target: value})
	return nil
}

func parseANAME(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, _ := parseValueTTL(n.Value, ttl)
	rec.ANAME = append(rec.ANAME, ANAMERecord{TTL: recTTL, Target: value})
	return nil
}

func parseMX(rec *Records, n *yaml.Node, ttl time.Duration) error {
	const defaultPriority = 10

	if n.Kind == yaml.MappingNode {
		var host string
		priority := uint16(defaultPriority)
		recTTL := ttl

		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			v := n.Content[i+1]
			switch k {
			case "host":
				host = v.Value
			case "priority":
				p, err := strconv.ParseUint(v.Value, 10, 16)
				if err != nil {
					return fmt.Errorf("MX priority %q: %w", v.Value, err)
				}
				priority = uint16(p)
			case "ttl":
				d, err := ParseTTL(v.Value)
				if err != nil {
					return fmt.Errorf("MX ttl %q: %w", v.Value, err)
				}
				recTTL = d
			}
		}
		if host == "" {
			return fmt.Errorf("MX record missing \"host\"")
		}
		rec.MX = append(rec.MX, MXRecord{TTL: recTTL, Priority: priority, Host: host})
		return nil
	}

	host, recTTL, _ := parseValueTTL(n.Value, ttl)
	rec.MX = append(rec.MX, MXRecord{TTL: recTTL, Priority: defaultPriority, Host: host})
	return nil
}

func parseTXT(rec *Records, n *yaml.Node, ttl time.Duration) error {
	parts := strings.Fields(n.Value)
	if len(parts) == 0 {
		rec.TXT = append(rec.TXT, TXTRecord{TTL: ttl, Data: ""})
		return nil
	}
	data, recTTL, flags := parseValueTTL(n.Value, ttl)
	if len(flags) > 0 {
		data = data + " " + strings.Join(flags, " ")
	}
	rec.TXT = append(rec.TXT, TXTRecord{TTL: recTTL, Data: data})
	return nil
}

func parseRNS(rec *Records, n *yaml.Node, ttl time.Duration) error {
	value, recTTL, flags := parseValueTTL(n.Value, ttl)

	external := false
	for _, f := range flags {
		if f == "external" {
			external = true
		}
	}

	parts := strings.Split(value, ":")
	var host string
	port := uint16(53)
	switch len(parts) {
	case 1:
		host = parts[0]
	case 2:
		host = parts[0]
		p, err := strconv.ParseUint(parts[1], 10, 16)
		if err != nil {
			return fmt.Errorf("RNS port %q: %w", parts[1], err)
		}
		port = uint16(p)
	default:
		return fmt.Errorf("RNS host %q: ambiguous host:port (IPv6 upstreams are not supported)", value)
	}

	var rh RNSHost
	if ip := net.ParseIP(host); ip != nil {
		rh = RNSHost{Kind: RNSAddr, Addr: host, Port: port}
	} else {
		rh = RNSHost{Kind: RNSHostname, Host: host, Port: port}
	}

	rec.RNS = append(rec.RNS, RNSRecord{TTL: recTTL, Host: rh, External: external})
	return nil
}
