package frame

import (
	"bytes"
	"testing"
)

func TestSingleFrameRoundTrip(t *testing.T) {
	tests := [][]byte{
		{0x01},
		{0x02, 0x01},
		bytes.Repeat([]byte{0xAB}, 7),
	}
	for _, data := range tests {
		wire, err := EncodeSingle(data)
		if err != nil {
			t.Fatalf("EncodeSingle(%v): %v", data, err)
		}
		got, err := DecodeSingle(wire)
		if err != nil {
			t.Fatalf("DecodeSingle(%x): %v", wire, err)
		}
		if !bytes.Equal(got.Data, data) {
			t.Errorf("round trip %v -> %x -> %v", data, wire, got.Data)
		}
	}
}

func TestSingleFrameEscaped(t *testing.T) {
	data := bytes.Repeat([]byte{0x7A}, 40)
	wire, err := EncodeSingle(data)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	if wire[0] != 0x00 {
		t.Fatalf("expected escaped PCI 0x00, got %#x", wire[0])
	}
	got, err := DecodeSingle(wire)
	if err != nil {
		t.Fatalf("DecodeSingle: %v", err)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("escaped round trip mismatch: got %v want %v", got.Data, data)
	}
}

func TestEncodeSingleRejectsEmpty(t *testing.T) {
	if _, err := EncodeSingle(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestFirstFrameRoundTrip(t *testing.T) {
	lead := []byte{1, 2, 3, 4, 5, 6}
	wire, err := EncodeFirst(20, lead)
	if err != nil {
		t.Fatalf("EncodeFirst: %v", err)
	}
	got, err := DecodeFirst(wire)
	if err != nil {
		t.Fatalf("DecodeFirst: %v", err)
	}
	if got.Length != 20 {
		t.Errorf("Length = %d, want 20", got.Length)
	}
	if !bytes.Equal(got.Data, lead) {
		t.Errorf("Data = %v, want %v", got.Data, lead)
	}
}

func TestFirstFrameEscapedLength(t *testing.T) {
	lead := []byte{1, 2, 3, 4, 5, 6}
	wire, err := EncodeFirst(MaximumPayload+1, lead)
	if err != nil {
		t.Fatalf("EncodeFirst: %v", err)
	}
	if wire[0] != 0x10 || wire[1] != 0x00 {
		t.Fatalf("expected escaped FF PCI 0x10 0x00, got %#x %#x", wire[0], wire[1])
	}
	got, err := DecodeFirst(wire)
	if err != nil {
		t.Fatalf("DecodeFirst: %v", err)
	}
	if got.Length != MaximumPayload+1 {
		t.Errorf("Length = %d, want %d", got.Length, MaximumPayload+1)
	}
}

func TestConsecutiveFrameRoundTrip(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7}
	wire := EncodeConsecutive(5, data)
	got, err := DecodeConsecutive(wire)
	if err != nil {
		t.Fatalf("DecodeConsecutive: %v", err)
	}
	if got.SequenceNumber != 5 {
		t.Errorf("SequenceNumber = %d, want 5", got.SequenceNumber)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("Data = %v, want %v", got.Data, data)
	}
}

func TestNextSequenceNumberWrapsAt15NotBackTo1(t *testing.T) {
	seq := byte(15)
	next := NextSequenceNumber(seq)
	if next != 0 {
		t.Errorf("NextSequenceNumber(15) = %d, want 0", next)
	}
	if NextSequenceNumber(0) != 1 {
		t.Errorf("NextSequenceNumber(0) = %d, want 1", NextSequenceNumber(0))
	}
}

func TestFlowControlRoundTrip(t *testing.T) {
	fc := NewClearToSend(0x10, 0x05)
	wire := EncodeFlowControl(fc)
	got, err := DecodeFlowControl(wire)
	if err != nil {
		t.Fatalf("DecodeFlowControl: %v", err)
	}
	if got != fc {
		t.Errorf("got %+v, want %+v", got, fc)
	}
}

func TestDecodeFlowControlRejectsUnknownStatus(t *testing.T) {
	if _, err := DecodeFlowControl([]byte{0x33, 0x00, 0x00}); err == nil {
		t.Fatal("expected error for flow status 3")
	}
}

func TestSeparationTimeMicros(t *testing.T) {
	cases := []struct {
		st   byte
		want int
	}{
		{0x00, 0},
		{0x7F, 127000},
		{0xF1, 100},
		{0xF9, 900},
		{0xFA, 0}, // reserved
	}
	for _, c := range cases {
		f := FlowControlFrame{SeparationTime: c.st}
		if got := f.SeparationTimeMicros(); got != c.want {
			t.Errorf("SeparationTimeMicros(%#x) = %d, want %d", c.st, got, c.want)
		}
	}
}

func TestPeekType(t *testing.T) {
	ty, err := PeekType([]byte{0x21, 0xAA})
	if err != nil {
		t.Fatalf("PeekType: %v", err)
	}
	if ty != TypeConsecutive {
		t.Errorf("PeekType = %v, want consecutive", ty)
	}
	if _, err := PeekType(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}
