package buscodec

import (
	"bytes"
	"testing"
)

func TestNullDecoderIdentity(t *testing.T) {
	in := []byte{1, 2, 3}
	out, err := NullDecoder{}.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("out = %v, want %v", out, in)
	}
}

func TestNullEncoderAdvertisesBound(t *testing.T) {
	e := NewNullEncoder(7)
	if e.MaximumFrameLength() != 7 {
		t.Errorf("MaximumFrameLength = %d, want 7", e.MaximumFrameLength())
	}
}

func TestJ1850DecoderRejectsEmpty(t *testing.T) {
	if _, err := (J1850Decoder{}).Decode(nil); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestKWP2000DecoderRejectsEmpty(t *testing.T) {
	if _, err := (KWP2000Decoder{}).Decode(nil); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestISO9141DecoderSingleChunk(t *testing.T) {
	// header/len bytes 0-1, "seq" at index 2, payload at 3-6, checksum at 7.
	chunk := []byte{0x48, 0x6B, 0x01, 0xAA, 0xBB, 0xCC, 0xDD, 0xFF}
	got, err := (ISO9141Decoder{}).Decode(chunk)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{0x48, 0x6B, 0xAA, 0xBB, 0xCC, 0xDD}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestISO9141DecoderMultiChunk(t *testing.T) {
	chunk1 := []byte{0x48, 0x6B, 0x01, 0xAA, 0xBB, 0xCC, 0xDD, 0xFF}
	chunk2 := []byte{0x00, 0x00, 0x02, 0xEE, 0xFF, 0x11, 0x22, 0xFF}
	got, err := (ISO9141Decoder{}).Decode(append(append([]byte{}, chunk1...), chunk2...))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{0x48, 0x6B, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	if !bytes.Equal(got, want) {
		t.Errorf("got %x, want %x", got, want)
	}
}

func TestISO9141DecoderRejectsSequenceMismatch(t *testing.T) {
	chunk1 := []byte{0x48, 0x6B, 0x01, 0xAA, 0xBB, 0xCC, 0xDD, 0xFF}
	chunk2 := []byte{0x00, 0x00, 0x03, 0xEE, 0xFF, 0x11, 0x22, 0xFF} // seq should be 2
	if _, err := (ISO9141Decoder{}).Decode(append(append([]byte{}, chunk1...), chunk2...)); err == nil {
		t.Fatal("expected sequence mismatch error")
	}
}

func TestISO9141DecoderRejectsNonMultipleOf8(t *testing.T) {
	if _, err := (ISO9141Decoder{}).Decode(make([]byte, 9)); err == nil {
		t.Fatal("expected length error")
	}
}
