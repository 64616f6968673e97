package wire

import "encoding/binary"

// Encode serializes a Message for the given transport. The encoder never
// emits compression: every name is written out verbatim, which keeps size
// accounting exact at the cost of larger messages than a compressing
// encoder would produce.
//
// Truncation policy: sections are appended in order question, answer,
// authority, additional against the transport's available-size budget. The
// first item that would overflow the budget stops the encode; everything
// written so far is kept, the remainder of that section and every later
// section is dropped, and the TC bit is set. If even the question does not
// fit, a truncated partial question is still emitted and TC is set.
func Encode(m *Message, transport Transport) []byte {
	available := availableSize(m, transport)

	additional := m.Additional
	if m.EDNS.Present {
		additional = appendOPT(additional, m.EDNS)
	}

	out := make([]byte, headerSize, available)
	cum := headerSize
	truncated := false

	var qdCount, anCount, nsCount, arCount int

	for i := range m.Question {
		if truncated {
			break
		}
		qBytes := encodeQuestion(m.Question[i])
		if cum+len(qBytes) > available {
			room := available - cum
			if room > 0 {
				out = append(out, qBytes[:room]...)
				cum += room
			}
			truncated = true
			qdCount++
			break
		}
		out = append(out, qBytes...)
		cum += len(qBytes)
		qdCount++
	}

	sections := []struct {
		rrs   []Resource
		count *int
	}{
		{m.Answer, &anCount},
		{m.Authority, &nsCount},
		{additional, &arCount},
	}

	for _, s := range sections {
		if truncated {
			break
		}
		for i := range s.rrs {
			rrBytes := encodeResource(s.rrs[i])
			if cum+len(rrBytes) > available {
				truncated = true
				break
			}
			out = append(out, rrBytes...)
			cum += len(rrBytes)
			*s.count++
		}
	}

	binary.BigEndian.PutUint16(out[0:2], m.Header.ID)

	var flags uint16
	if m.Header.QR {
		flags |= 0x8000
	}
	flags |= uint16(m.Header.Opcode&0x0F) << 11
	if m.Header.AA {
		flags |= 0x0400
	}
	if m.Header.TC || truncated {
		flags |= 0x0200
	}
	if m.Header.RD {
		flags |= 0x0100
	}
	if m.Header.RA {
		flags |= 0x0080
	}
	flags |= uint16(m.Header.Z&0x07) << 4
	flags |= uint16(m.Header.Rcode & 0x0F)
	binary.BigEndian.PutUint16(out[2:4], flags)

	binary.BigEndian.PutUint16(out[4:6], uint16(qdCount))
	binary.BigEndian.PutUint16(out[6:8], uint16(anCount))
	binary.BigEndian.PutUint16(out[8:10], uint16(nsCount))
	binary.BigEndian.PutUint16(out[10:12], uint16(arCount))

	return out
}

func availableSize(m *Message, transport Transport) int {
	if transport == TCP {
		return MaxMessageSize
	}
	if m.EDNS.Present && int(m.EDNS.UDPSize) > 0 {
		return int(m.EDNS.UDPSize)
	}
	return DefaultUDPSize
}

func appendOPT(additional []Resource, e EDNS) []Resource {
	ttl := uint32(e.ExtRcode)<<24 | uint32(e.Version)<<16
	if e.DO {
		ttl |= 0x00008000
	}
	out := make([]Resource, len(additional), len(additional)+1)
	copy(out, additional)
	return append(out, Resource{
		Name:  ".",
		Type:  TypeOPT,
		Class: e.UDPSize,
		TTL:   ttl,
		RData: e.Options,
	})
}

func encodeQuestion(q Question) []byte {
	name := EncodeName(q.Name)
	out := make([]byte, 0, len(name)+4)
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, q.Type)
	out = binary.BigEndian.AppendUint16(out, q.Class)
	return out
}

func encodeResource(rr Resource) []byte {
	name := EncodeName(rr.Name)
	out := make([]byte, 0, len(name)+10+len(rr.RData))
	out = append(out, name...)
	out = binary.BigEndian.AppendUint16(out, rr.Type)
	out = binary.BigEndian.AppendUint16(out, rr.Class)
	out = binary.BigEndian.AppendUint32(out, rr.TTL)
	out = binary.BigEndian.AppendUint16(out, uint16(len(rr.RData)))
	out = append(out, rr.RData...)
	return out
}
