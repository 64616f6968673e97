package wire

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// decoder parses a single DNS message, tracking a cursor into the raw bytes.
type decoder struct {
	msg    []byte
	offset int
}

// Decode parses a complete DNS message, enforcing the codec's security
// bounds: a pointer-chase budget on name compression, bounded RR counts and
// RRset size.
func Decode(msg []byte) (*Message, error) {
	if len(msg) < headerSize {
		return nil, ErrMessageTooShort
	}

	d := &decoder{msg: msg}
	m := &Message{}

	if err := d.parseHeader(&m.Header); err != nil {
		return nil, fmt.Errorf("wire: parse header: %w", err)
	}

	m.Question = make([]Question, m.Header.QDCount)
	for i := 0; i < int(m.Header.QDCount); i++ {
		q, err := d.parseQuestion()
		if err != nil {
			return nil, fmt.Errorf("wire: parse question %d: %w", i, err)
		}
		m.Question[i] = q
	}

	var err error
	m.Answer, err = d.parseRRSection(int(m.Header.ANCount))
	if err != nil {
		return nil, fmt.Errorf("wire: parse answer: %w", err)
	}
	m.Authority, err = d.parseRRSection(int(m.Header.NSCount))
	if err != nil {
		return nil, fmt.Errorf("wire: parse authority: %w", err)
	}
	m.Additional, err = d.parseRRSection(int(m.Header.ARCount))
	if err != nil {
		return nil, fmt.Errorf("wire: parse additional: %w", err)
	}

	promoteEDNS(m)

	return m, nil
}

// promoteEDNS pulls the first OPT record out of Additional into m.EDNS.
func promoteEDNS(m *Message) {
	for i, rr := range m.Additional {
		if rr.Type != TypeOPT {
			continue
		}
		m.EDNS = EDNS{
			Present:  true,
			UDPSize:  rr.Class,
			ExtRcode: uint8(rr.TTL >> 24),
			Version:  uint8(rr.TTL >> 16),
			DO:       rr.TTL&0x00008000 != 0,
			Options:  rr.RData,
		}
		m.Additional = append(m.Additional[:i], m.Additional[i+1:]...)
		return
	}
}

func (d *decoder) parseHeader(h *Header) error {
	if len(d.msg) < headerSize {
		return ErrMessageTooShort
	}
	be := binary.BigEndian

	h.ID = be.Uint16(d.msg[0:])

	flags := be.Uint16(d.msg[2:])
	bit := func(n uint) bool { return flags&(1<<n) != 0 }
	h.QR = bit(15)
	h.Opcode = uint8(flags>>11) & 0x0F
	h.AA = bit(10)
	h.TC = bit(9)
	h.RD = bit(8)
	h.RA = bit(7)
	h.Z = uint8(flags>>4) & 0x07
	h.Rcode = uint8(flags) & 0x0F

	h.QDCount = be.Uint16(d.msg[4:])
	h.ANCount = be.Uint16(d.msg[6:])
	h.NSCount = be.Uint16(d.msg[8:])
	h.ARCount = be.Uint16(d.msg[10:])

	d.offset = headerSize
	return nil
}

func (d *decoder) parseQuestion() (Question, error) {
	q := Question{}

	name, err := d.parseName()
	if err != nil {
		return q, fmt.Errorf("name: %w", err)
	}
	q.Name = name

	if d.offset+4 > len(d.msg) {
		return q, ErrMessageTooShort
	}
	q.Type = binary.BigEndian.Uint16(d.msg[d.offset:])
	q.Class = binary.BigEndian.Uint16(d.msg[d.offset+2:])
	d.offset += 4

	return q, nil
}

func (d *decoder) parseRRSection(count int) ([]Resource, error) {
	if count > maxRRsPerSection {
		return nil, ErrTooManyRRs
	}

	rrs := make([]Resource, 0, count)
	sectionSize := 0

	for i := 0; i < count; i++ {
		rr, size, err := d.parseRR()
		if err != nil {
			return nil, fmt.Errorf("rr %d: %w", i, err)
		}

		sectionSize += size
		if sectionSize > maxRRSetSize {
			return nil, ErrRRSetTooLarge
		}

		rrs = append(rrs, rr)
	}

	return rrs, nil
}

func (d *decoder) parseRR() (Resource, int, error) {
	rr := Resource{}
	startOffset := d.offset

	name, err := d.parseName()
	if err != nil {
		return rr, 0, fmt.Errorf("name: %w", err)
	}
	rr.Name = name

	if d.offset+10 > len(d.msg) {
		return rr, 0, ErrMessageTooShort
	}

	rr.Type = binary.BigEndian.Uint16(d.msg[d.offset:])
	rr.Class = binary.BigEndian.Uint16(d.msg[d.offset+2:])
	rr.TTL = binary.BigEndian.Uint32(d.msg[d.offset+4:])
	rdlength := int(binary.BigEndian.Uint16(d.msg[d.offset+8:]))
	d.offset += 10

	if d.offset+rdlength > len(d.msg) {
		return rr, 0, ErrMessageTooShort
	}
	rdataStart := d.offset

	switch rr.Type {
	case TypeNS, TypeCNAME:
		d.offset = rdataStart
		name, err := d.parseName()
		if err != nil {
			return rr, 0, fmt.Errorf("rdata name: %w", err)
		}
		rr.RData = EncodeName(name)

	case TypeMX:
		if rdataStart+2 > len(d.msg) {
			return rr, 0, ErrMessageTooShort
		}
		pref := d.msg[rdataStart : rdataStart+2]
		d.offset = rdataStart + 2
		name, err := d.parseName()
		if err != nil {
			return rr, 0, fmt.Errorf("rdata exchange: %w", err)
		}
		rr.RData = make([]byte, 0, 2+len(name)+2)
		rr.RData = append(rr.RData, pref...)
		rr.RData = append(rr.RData, EncodeName(name)...)

	default:
		rr.RData = make([]byte, rdlength)
		copy(rr.RData, d.msg[rdataStart:rdataStart+rdlength])
	}

	// Resync the cursor to the declared rdata boundary regardless of where
	// an embedded name decode (possibly via a compression pointer) left it.
	d.offset = rdataStart + rdlength

	size := d.offset - startOffset
	return rr, size, nil
}

// parseName reads a possibly-compressed domain name starting at the cursor
// and leaves the cursor just past the name's bytes at its original position.
// Pointer chains may land anywhere in the message, forward included; a chase
// budget derived from the message length turns any cycle into a hard error,
// since a message of n bytes cannot hold a legitimate chain of more than n
// pointers.
func (d *decoder) parseName() (string, error) {
	var name strings.Builder
	pos := d.offset
	resume := -1 // cursor to restore after the name; -1 until the first jump
	hops := 0

	for {
		if pos >= len(d.msg) {
			return "", ErrInvalidOffset
		}
		c := int(d.msg[pos])

		switch {
		case c == 0x00:
			if resume < 0 {
				resume = pos + 1
			}
			d.offset = resume
			if name.Len() == 0 {
				return ".", nil
			}
			name.WriteByte('.')
			return name.String(), nil

		case c&0xC0 == 0xC0:
			if pos+1 >= len(d.msg) {
				return "", ErrMessageTooShort
			}
			hops++
			if hops > len(d.msg) {
				return "", ErrCompressionBomb
			}
			if resume < 0 {
				resume = pos + 2
			}
			target := int(binary.BigEndian.Uint16(d.msg[pos:]) & 0x3FFF)
			if target >= len(d.msg) {
				return "", ErrInvalidOffset
			}
			pos = target

		case c&0xC0 != 0:
			return "", fmt.Errorf("%w: reserved label type %#x", ErrMalformedMessage, c&0xC0)

		default:
			if c > maxLabelLength {
				return "", fmt.Errorf("%w: label of %d bytes", ErrMalformedMessage, c)
			}
			if pos+1+c > len(d.msg) {
				return "", ErrMessageTooShort
			}
			label := d.msg[pos+1 : pos+1+c]
			if !utf8.Valid(label) {
				return "", fmt.Errorf("%w: label is not valid UTF-8", ErrMalformedMessage)
			}
			if name.Len() > 0 {
				name.WriteByte('.')
			}
			name.Write(label)
			if name.Len()+1 > maxDomainLength { // +1 for the eventual trailing dot
				return "", fmt.Errorf("%w: name exceeds %d bytes", ErrMalformedMessage, maxDomainLength)
			}
			pos += 1 + c
		}
	}
}
