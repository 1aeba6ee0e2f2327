// Package isotp implements the ISO 15765-2 (ISO-TP) transport layer: a
// stateless codec that folds a payload into a flat concatenation of framed
// bytes and back, and a bidirectional Transceiver that drives the same
// framing as a proper multi-frame exchange with flow control. Both build on
// pkg/frame's PCI encode/decode primitives rather than re-deriving the bit
// layout themselves.
package isotp

import (
	"github.com/oskay-diag/linkuds"
	"github.com/oskay-diag/linkuds/pkg/frame"
)

// MaximumPayload is the largest payload the codec and transceiver accept:
// 12 bits of ISO-TP length field.
const MaximumPayload = frame.MaximumPayload

// Encode folds payload into the flat byte concatenation ISO 15765-2 would
// place across one or more CAN frames, without CAN framing or padding: a
// payload that fits a Single Frame is PCI+payload; a longer one is the
// First Frame PCI+prefix followed by each Consecutive Frame's PCI+chunk
// back to back.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, linkuds.ErrMessageTooSmall
	}
	if len(payload) > MaximumPayload {
		return nil, linkuds.ErrMessageTooBig
	}
	if len(payload) <= 7 {
		out, err := frame.EncodeSingle(payload)
		if err != nil {
			return nil, &linkuds.EncoderError{Reason: err.Error()}
		}
		return out, nil
	}

	first, err := frame.EncodeFirst(len(payload), payload[:6])
	if err != nil {
		return nil, &linkuds.EncoderError{Reason: err.Error()}
	}
	out := append([]byte(nil), first...)

	rest := payload[6:]
	seq := byte(1)
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > 7 {
			chunk = chunk[:7]
		}
		out = append(out, frame.EncodeConsecutive(seq, chunk)...)
		rest = rest[len(chunk):]
		seq = frame.NextSequenceNumber(seq)
	}
	return out, nil
}

// Decode reverses Encode: it inspects the shape of concatenated to decide
// whether it holds a single frame or a first-frame-plus-consecutive-frames
// sequence, and returns the reassembled payload.
//
// A concatenation shorter than 9 bytes is ambiguous with a lone flow
// control echo (PCI 0x30): per the source this decoder mirrors, that case
// is passed through unchanged rather than treated as a payload. Callers
// that know the input is a real payload rather than a possible FC echo
// should route through the Transceiver instead, which carries that
// context explicitly.
func Decode(concatenated []byte) ([]byte, error) {
	if len(concatenated) == 0 {
		return nil, &linkuds.DecoderError{Reason: "input is empty"}
	}
	if len(concatenated) < 9 {
		if concatenated[0] == 0x30 {
			return append([]byte(nil), concatenated...), nil
		}
		sf, err := frame.DecodeSingle(concatenated)
		if err != nil {
			return nil, &linkuds.DecoderError{Reason: err.Error()}
		}
		return sf.Data, nil
	}

	ff, err := frame.DecodeFirst(concatenated)
	if err != nil {
		return nil, &linkuds.DecoderError{Reason: err.Error()}
	}
	if ff.Length <= 6 {
		return nil, &linkuds.DecoderError{Reason: "first frame length too small for a multi-frame message"}
	}

	out := make([]byte, 0, ff.Length)
	out = append(out, concatenated[2:8]...)
	remaining := ff.Length - 6

	rest := concatenated[8:]
	seq := byte(1)
	for remaining > 0 {
		if len(rest) == 0 {
			return nil, &linkuds.DecoderError{Reason: "input underflow before payload was fully reassembled"}
		}
		n := 7
		if n > remaining {
			n = remaining
		}
		if n > len(rest)-1 {
			n = len(rest) - 1
		}
		cf, err := frame.DecodeConsecutive(rest[:1+n])
		if err != nil {
			return nil, &linkuds.DecoderError{Reason: err.Error()}
		}
		if cf.SequenceNumber != seq {
			return nil, &linkuds.DecoderError{Reason: "unexpected consecutive frame sequence number"}
		}
		out = append(out, cf.Data...)
		rest = rest[1+n:]
		remaining -= 7
		seq = frame.NextSequenceNumber(seq)
	}
	return out, nil
}
