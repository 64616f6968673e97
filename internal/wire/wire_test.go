package wire

import (
	"errors"
	"testing"
)

func TestDecodeSimpleQuery(t *testing.T) {
	msg := []byte{
		0x12, 0x34,
		0x01, 0x00,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,

		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		0x03, 'c', 'o', 'm',
		0x00,
		0x00, 0x01,
		0x00, 0x01,
	}

	m, err := Decode(msg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if m.Header.ID != 0x1234 {
		t.Errorf("ID = %x, want 0x1234", m.Header.ID)
	}
	if !m.Header.RD {
		t.Error("RD should be true")
	}
	if len(m.Question) != 1 {
		t.Fatalf("got %d questions, want 1", len(m.Question))
	}
	if m.Question[0].Name != "example.com." {
		t.Errorf("Name = %q, want example.com.", m.Question[0].Name)
	}
}

func TestDecodeCompressionPointer(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x81, 0x80,
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,

		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		0x03, 'c', 'o', 'm',
		0x00,
		0x00, 0x01,
		0x00, 0x01,

		0xC0, 0x0C, // pointer back to the question's name
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00, 0x00, 0x64,
		0x00, 0x04,
		10, 10, 10, 10,
	}

	m, err := Decode(msg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(m.Answer) != 1 {
		t.Fatalf("got %d answers, want 1", len(m.Answer))
	}
	if m.Answer[0].Name != "example.com." {
		t.Errorf("Answer name = %q, want example.com.", m.Answer[0].Name)
	}
}

func TestDecodeCompressionLoopRejected(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x01, 0x00,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,

		0xC0, 0x0C, // points at itself
		0x00, 0x01,
		0x00, 0x01,
	}

	if _, err := Decode(msg); err == nil {
		t.Error("expected error decoding self-referential compression pointer")
	}
}

func TestDecodeForwardPointerAllowed(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x01, 0x00,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,

		0xC0, 0x12, // qname is a pointer forward to offset 18
		0x00, 0x01,
		0x00, 0x01,

		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		0x03, 'c', 'o', 'm',
		0x00,
	}

	m, err := Decode(msg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if m.Question[0].Name != "example.com." {
		t.Errorf("Name = %q, want example.com.", m.Question[0].Name)
	}
}

func TestDecodeRejectsInvalidUTF8Label(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x01, 0x00,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,

		0x02, 0xFF, 0xFE, // label bytes that are not valid UTF-8
		0x03, 'c', 'o', 'm',
		0x00,
		0x00, 0x01,
		0x00, 0x01,
	}

	_, err := Decode(msg)
	if err == nil {
		t.Fatal("expected error decoding a label with invalid UTF-8")
	}
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("error = %v, want ErrMalformedMessage", err)
	}
}

func TestDecodeRejectsReservedLabelType(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x01, 0x00,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,
		0x00, 0x00,

		0x40, 'x', // 0b01 label type is reserved
		0x00,
		0x00, 0x01,
		0x00, 0x01,
	}

	if _, err := Decode(msg); !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("error = %v, want ErrMalformedMessage", err)
	}
}

func TestDecodeCanonicalizesCNAMERData(t *testing.T) {
	msg := []byte{
		0x00, 0x01,
		0x81, 0x80,
		0x00, 0x01,
		0x00, 0x01,
		0x00, 0x00,
		0x00, 0x00,

		0x03, 'w', 'w', 'w',
		0x07, 'e', 'x', 'a', 'm', 'p', 'l', 'e',
		0x03, 'c', 'o', 'm',
		0x00,
		0x00, 0x05,
		0x00, 0x01,

		0xC0, 0x10, // rname -> "example.com." via pointer at offset 16 (skips "www")
		0x00, 0x05,
		0x00, 0x01,
		0x00, 0x00, 0x00, 0x64,
		0x00, 0x02,
		0xC0, 0x10, // rdata: pointer to "example.com."
	}

	m, err := Decode(msg)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(m.Answer) != 1 {
		t.Fatalf("got %d answers, want 1", len(m.Answer))
	}
	got := m.Answer[0].RData
	want := EncodeName("example.com.")
	if string(got) != string(want) {
		t.Errorf("CNAME rdata = %v, want %v (uncompressed canonical name)", got, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := &Message{
		Header: Header{ID: 0xBEEF, QR: true, AA: true, RD: true},
		Question: []Question{
			{Name: "example.com.", Type: TypeA, Class: ClassIN},
		},
		Answer: []Resource{
			{Name: "example.com.", Type: TypeA, Class: ClassIN, TTL: 100, RData: []byte{10, 10, 10, 10}},
		},
	}

	out := Encode(m, UDP)

	back, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode(Encode(m)) error: %v", err)
	}
	if back.Header.ID != m.Header.ID {
		t.Errorf("ID = %x, want %x", back.Header.ID, m.Header.ID)
	}
	if len(back.Answer) != 1 || string(back.Answer[0].RData) != string(m.Answer[0].RData) {
		t.Errorf("Answer roundtrip mismatch: %+v", back.Answer)
	}
}

func TestEncodeTruncatesAndSetsTC(t *testing.T) {
	m := &Message{
		Header:   Header{ID: 1, QR: true},
		Question: []Question{{Name: "example.com.", Type: TypeA, Class: ClassIN}},
	}
	for i := 0; i < 200; i++ {
		m.Answer = append(m.Answer, Resource{
			Name: "example.com.", Type: TypeTXT, Class: ClassIN, TTL: 60,
			RData: []byte("this record is deliberately long enough to force UDP truncation well before two hundred copies of it"),
		})
	}

	out := Encode(m, UDP)
	if len(out) > DefaultUDPSize {
		t.Fatalf("encoded length %d exceeds UDP budget %d", len(out), DefaultUDPSize)
	}

	back, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode(truncated) error: %v", err)
	}
	if !back.Header.TC {
		t.Error("TC bit should be set on a truncated response")
	}
	if len(back.Answer) >= 200 {
		t.Error("truncated response should not carry every answer")
	}
}

func TestEncodeEDNSAppendsOPT(t *testing.T) {
	m := &Message{
		Header:   Header{ID: 1, QR: true},
		Question: []Question{{Name: "example.com.", Type: TypeA, Class: ClassIN}},
		EDNS:     EDNS{Present: true, UDPSize: 4096},
	}

	out := Encode(m, UDP)
	back, err := Decode(out)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !back.EDNS.Present {
		t.Fatal("expected EDNS to be promoted back out on decode")
	}
	if back.EDNS.UDPSize != 4096 {
		t.Errorf("UDPSize = %d, want 4096", back.EDNS.UDPSize)
	}
	if len(back.Additional) != 0 {
		t.Errorf("OPT record should be promoted out of Additional, got %d left", len(back.Additional))
	}
}

func TestEncodeNameRoot(t *testing.T) {
	got := EncodeName(".")
	want := []byte{0}
	if string(got) != string(want) {
		t.Errorf("EncodeName(\".\") = %v, want %v", got, want)
	}
}
