package wire

import "strings"

// EncodeName renders a canonical dot-separated FQDN (e.g. "www.example.com.")
// as length-prefixed wire labels terminated by a zero byte. The root name "."
// encodes as a single zero byte. The encoder never emits compression.
func EncodeName(name string) []byte {
	if name == "." || name == "" {
		return []byte{0}
	}

	trimmed := strings.TrimSuffix(name, ".")
	labels := strings.Split(trimmed, ".")

	size := 1
	for _, l := range labels {
		size += 1 + len(l)
	}

	out := make([]byte, 0, size)
	for _, l := range labels {
		out = append(out, byte(len(l)))
		out = append(out, l...)
	}
	out = append(out, 0)
	return out
}
